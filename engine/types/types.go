package types

import (
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
)

// Side represents order side
type Side int

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unspecified"
	}
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// SideFromString parses a wire-format side
func SideFromString(s string) Side {
	switch strings.ToLower(s) {
	case "buy":
		return SideBuy
	case "sell":
		return SideSell
	default:
		return SideUnspecified
	}
}

// OrderType represents order type
type OrderType int

const (
	OrderTypeUnspecified OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStopLimit
	OrderTypeStopMarket
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "market"
	case OrderTypeLimit:
		return "limit"
	case OrderTypeStopLimit:
		return "stop_limit"
	case OrderTypeStopMarket:
		return "stop_market"
	default:
		return "unspecified"
	}
}

// IsStop returns true if the order rests in the trigger table until its
// stop price is crossed.
func (t OrderType) IsStop() bool {
	return t == OrderTypeStopLimit || t == OrderTypeStopMarket
}

func OrderTypeFromString(s string) OrderType {
	switch strings.ToLower(s) {
	case "market":
		return OrderTypeMarket
	case "limit":
		return OrderTypeLimit
	case "stop_limit":
		return OrderTypeStopLimit
	case "stop_market":
		return OrderTypeStopMarket
	default:
		return OrderTypeUnspecified
	}
}

// TimeInForce represents order time in force
type TimeInForce int

const (
	TimeInForceGTC TimeInForce = iota // Good Till Cancel (default)
	TimeInForceIOC                    // Immediate Or Cancel
	TimeInForceFOK                    // Fill Or Kill
	TimeInForceGTD                    // Good Till Date
)

func (t TimeInForce) String() string {
	switch t {
	case TimeInForceIOC:
		return "ioc"
	case TimeInForceFOK:
		return "fok"
	case TimeInForceGTD:
		return "gtd"
	default:
		return "gtc"
	}
}

func TimeInForceFromString(s string) TimeInForce {
	switch strings.ToLower(s) {
	case "ioc":
		return TimeInForceIOC
	case "fok":
		return TimeInForceFOK
	case "gtd":
		return TimeInForceGTD
	default:
		return TimeInForceGTC
	}
}

// OrderStatus represents order status.
// Transitions are monotonic: PENDING -> OPEN|PARTIAL|FILLED|REJECTED,
// OPEN -> PARTIAL -> FILLED, OPEN|PARTIAL -> CANCELLED, * -> EXPIRED.
type OrderStatus int

const (
	OrderStatusPending OrderStatus = iota
	OrderStatusOpen
	OrderStatusPartial
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
	OrderStatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "pending"
	case OrderStatusOpen:
		return "open"
	case OrderStatusPartial:
		return "partial"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusRejected:
		return "rejected"
	case OrderStatusExpired:
		return "expired"
	default:
		return "unspecified"
	}
}

// IsTerminal returns true if no further transitions are allowed
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

func OrderStatusFromString(s string) OrderStatus {
	switch strings.ToLower(s) {
	case "pending":
		return OrderStatusPending
	case "open":
		return OrderStatusOpen
	case "partial":
		return OrderStatusPartial
	case "filled":
		return OrderStatusFilled
	case "cancelled":
		return OrderStatusCancelled
	case "rejected":
		return OrderStatusRejected
	case "expired":
		return OrderStatusExpired
	default:
		return OrderStatusPending
	}
}

// QtyScale is the fixed-point scale for order and trade quantities.
const QtyScale = 8

// Order represents a trading instruction
type Order struct {
	ID            uuid.UUID
	ClientOrderID string
	Principal     uuid.UUID
	Symbol        string // BASE-QUOTE, uppercase
	Side          Side
	Type          OrderType
	TimeInForce   TimeInForce
	Price         math.LegacyDec // nil for market orders
	StopPrice     math.LegacyDec // nil unless stop order
	Quantity      math.LegacyDec
	FilledQty     math.LegacyDec
	RemainingQty  math.LegacyDec
	AvgFillPrice  math.LegacyDec
	Status        OrderStatus
	Sequence      uint64 // monotonic per engine
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExpiresAt     *time.Time // gtd orders only
}

// NewOrder creates a new order in PENDING state
func NewOrder(principal uuid.UUID, clientOrderID, symbol string, side Side, typ OrderType, tif TimeInForce, price, stopPrice, qty math.LegacyDec) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:            uuid.New(),
		ClientOrderID: clientOrderID,
		Principal:     principal,
		Symbol:        symbol,
		Side:          side,
		Type:          typ,
		TimeInForce:   tif,
		Price:         price,
		StopPrice:     stopPrice,
		Quantity:      qty,
		FilledQty:     math.LegacyZeroDec(),
		RemainingQty:  qty,
		Status:        OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsActive returns true if the order can still be matched or cancelled
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusOpen || o.Status == OrderStatusPartial
}

// Fill applies a fill, preserving filled+remaining = quantity and the
// quantity-weighted average fill price.
func (o *Order) Fill(qty, price math.LegacyDec) {
	prevValue := math.LegacyZeroDec()
	if !o.AvgFillPrice.IsNil() {
		prevValue = o.AvgFillPrice.Mul(o.FilledQty)
	}
	o.FilledQty = o.FilledQty.Add(qty)
	o.RemainingQty = o.RemainingQty.Sub(qty)
	o.AvgFillPrice = prevValue.Add(qty.Mul(price)).Quo(o.FilledQty)
	if o.RemainingQty.IsZero() {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartial
	}
	o.UpdatedAt = time.Now().UTC()
}

// BaseAsset returns the base asset of the order's symbol
func (o *Order) BaseAsset() string {
	base, _ := SplitSymbol(o.Symbol)
	return base
}

// QuoteAsset returns the quote asset of the order's symbol
func (o *Order) QuoteAsset() string {
	_, quote := SplitSymbol(o.Symbol)
	return quote
}

// SplitSymbol splits BASE-QUOTE into its assets
func SplitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "-", 2)
	if len(parts) != 2 {
		return symbol, ""
	}
	return parts[0], parts[1]
}

// ValidSymbol reports whether symbol is a well-formed uppercase
// BASE-QUOTE pair.
func ValidSymbol(symbol string) bool {
	base, quote := SplitSymbol(symbol)
	if base == "" || quote == "" {
		return false
	}
	for _, part := range []string{base, quote} {
		for _, c := range part {
			if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
				return false
			}
		}
	}
	return true
}

// BookEntry is a resting order's presence on the book
type BookEntry struct {
	OrderID      uuid.UUID
	Principal    uuid.UUID
	Side         Side
	Price        math.LegacyDec
	RemainingQty math.LegacyDec
	ArrivalSeq   uint64 // monotonic within a symbol
}

// Trade is an immutable execution record. Price is always the maker's
// limit price; Side is the taker's side.
type Trade struct {
	ID              uuid.UUID
	TradeID         int64 // globally monotonic per engine
	Symbol          string
	MakerOrderID    uuid.UUID
	TakerOrderID    uuid.UUID
	MakerPrincipal  uuid.UUID
	TakerPrincipal  uuid.UUID
	Side            Side
	Price           math.LegacyDec
	Quantity        math.LegacyDec
	QuoteQuantity   math.LegacyDec // price * quantity
	Commission      math.LegacyDec
	CommissionAsset string
	ExecutedAt      time.Time
}

// DepthLevel is one aggregated row of book depth
type DepthLevel struct {
	Price      math.LegacyDec
	Quantity   math.LegacyDec
	OrderCount int
}

// User is an authenticated principal with trading caps
type User struct {
	ID                   uuid.UUID
	Email                string
	HashedPassword       string
	IsVerified           bool
	DailyTradeLimit      math.LegacyDec // quote-denominated
	DailyWithdrawalLimit math.LegacyDec
	CreatedAt            time.Time
}

// Balance is one (principal, asset) ledger row
type Balance struct {
	Principal uuid.UUID
	Asset     string
	Available math.LegacyDec
	Locked    math.LegacyDec
	UpdatedAt time.Time
}

// Total returns available + locked
func (b *Balance) Total() math.LegacyDec {
	return b.Available.Add(b.Locked)
}

// Wallet is an external address bound to a principal
type Wallet struct {
	ID        uuid.UUID
	Principal uuid.UUID
	Address   string // lowercase hex
	Chain     string
	Currency  string
	Verified  bool
	CreatedAt time.Time
}

// TransactionStatus is the lifecycle state of a wallet transaction
type TransactionStatus int

const (
	TransactionPending TransactionStatus = iota
	TransactionConfirmed
	TransactionFailed
)

func (s TransactionStatus) String() string {
	switch s {
	case TransactionConfirmed:
		return "confirmed"
	case TransactionFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Transaction is a withdrawal or deposit record
type Transaction struct {
	ID          uuid.UUID
	WalletID    uuid.UUID
	Principal   uuid.UUID
	Type        string // withdrawal | deposit
	Status      TransactionStatus
	FromAddress string
	ToAddress   string
	Currency    string
	Amount      math.LegacyDec
	CreatedAt   time.Time
}
