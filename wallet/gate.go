package wallet

import (
	"context"
	"sync"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/store"
)

// DefaultCommissionRate is charged to the taker, base-denominated
var DefaultCommissionRate = math.LegacyMustNewDecFromStr("0.001")

// DefaultSlippageFactor pads market buy reservations against price
// movement between admission and execution.
var DefaultSlippageFactor = math.LegacyMustNewDecFromStr("0.05")

// reservation tracks what one resting order still holds locked.
// perUnit is the locked amount per base unit: the reserve price for
// buys (quote asset), one for sells (base asset).
type reservation struct {
	asset     string
	perUnit   math.LegacyDec
	remaining math.LegacyDec
}

// Gate guards every order admission and settlement against the asset
// ledger. All mutations are serialized; the matching engine calls in
// from per-symbol goroutines.
type Gate struct {
	mu             sync.Mutex
	balances       store.BalanceStore
	logger         log.Logger
	commissionRate math.LegacyDec
	slippageFactor math.LegacyDec
	reservations   map[uuid.UUID]*reservation
}

// NewGate creates a balance gate over the given ledger
func NewGate(balances store.BalanceStore, logger log.Logger) *Gate {
	return &Gate{
		balances:       balances,
		logger:         logger.With("component", "balance_gate"),
		commissionRate: DefaultCommissionRate,
		slippageFactor: DefaultSlippageFactor,
		reservations:   make(map[uuid.UUID]*reservation),
	}
}

// SetCommissionRate overrides the taker commission rate
func (g *Gate) SetCommissionRate(rate math.LegacyDec) { g.commissionRate = rate }

// SetSlippageFactor overrides the market buy reservation padding
func (g *Gate) SetSlippageFactor(f math.LegacyDec) { g.slippageFactor = f }

// CommissionRate returns the taker commission rate
func (g *Gate) CommissionRate() math.LegacyDec { return g.commissionRate }

// Deposit credits available funds
func (g *Gate) Deposit(ctx context.Context, principal uuid.UUID, asset string, amount math.LegacyDec) error {
	if !amount.IsPositive() {
		return types.ErrInvalidOrder.Wrap("deposit amount must be positive")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.balances.GetBalance(ctx, principal, asset)
	if err != nil {
		return err
	}
	b.Available = b.Available.Add(amount)
	return g.balances.SaveBalance(ctx, b)
}

// Reserve locks funds for an incoming order. Buys lock quote at the
// limit price, or at refPrice padded by the slippage factor for market
// orders; sells lock base. refPrice may be nil for limit orders.
func (g *Gate) Reserve(ctx context.Context, order *types.Order, refPrice math.LegacyDec) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	asset, perUnit, err := g.reserveTerms(order, refPrice)
	if err != nil {
		return err
	}
	total := perUnit.Mul(order.RemainingQty)

	b, err := g.balances.GetBalance(ctx, order.Principal, asset)
	if err != nil {
		return err
	}
	if b.Available.LT(total) {
		return types.ErrInsufficientBalance.Wrapf("need %s %s, have %s", total, asset, b.Available)
	}
	b.Available = b.Available.Sub(total)
	b.Locked = b.Locked.Add(total)
	if err := g.balances.SaveBalance(ctx, b); err != nil {
		return err
	}

	g.reservations[order.ID] = &reservation{
		asset:     asset,
		perUnit:   perUnit,
		remaining: order.RemainingQty,
	}
	return nil
}

func (g *Gate) reserveTerms(order *types.Order, refPrice math.LegacyDec) (string, math.LegacyDec, error) {
	if order.Side == types.SideSell {
		return order.BaseAsset(), math.LegacyOneDec(), nil
	}
	if order.Type == types.OrderTypeMarket || (order.Type == types.OrderTypeStopMarket && order.Price.IsNil()) {
		if refPrice.IsNil() || refPrice.IsZero() {
			return "", math.LegacyDec{}, types.ErrNoLiquidity.Wrap("no reference price for market buy")
		}
		return order.QuoteAsset(), refPrice.Mul(math.LegacyOneDec().Add(g.slippageFactor)), nil
	}
	if order.Price.IsNil() || !order.Price.IsPositive() {
		return "", math.LegacyDec{}, types.ErrInvalidOrder.Wrap("limit order requires positive price")
	}
	return order.QuoteAsset(), order.Price, nil
}

// Release returns an order's remaining locked funds to available.
// Idempotent: a second release is a no-op.
func (g *Gate) Release(ctx context.Context, order *types.Order) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.reservations[order.ID]
	if !ok || !res.remaining.IsPositive() {
		delete(g.reservations, order.ID)
		return nil
	}
	amount := res.perUnit.Mul(res.remaining)

	b, err := g.balances.GetBalance(ctx, order.Principal, res.asset)
	if err != nil {
		return err
	}
	b.Locked = b.Locked.Sub(amount)
	b.Available = b.Available.Add(amount)
	if err := g.balances.SaveBalance(ctx, b); err != nil {
		return err
	}
	delete(g.reservations, order.ID)
	return nil
}

// Settle moves funds for one execution. The buyer's quote leaves
// locked at the reserve price with the surplus over the trade price
// refunded; the seller's base leaves locked. The taker pays the
// commission: buyers in base units withheld from the credit, sellers
// as the base commission converted at the trade price and deducted
// from proceeds.
func (g *Gate) Settle(ctx context.Context, trade *types.Trade) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	buyerOrderID, sellerOrderID := trade.MakerOrderID, trade.TakerOrderID
	buyer, seller := trade.MakerPrincipal, trade.TakerPrincipal
	buyerIsTaker := trade.Side == types.SideBuy
	if buyerIsTaker {
		buyerOrderID, sellerOrderID = trade.TakerOrderID, trade.MakerOrderID
		buyer, seller = trade.TakerPrincipal, trade.MakerPrincipal
	}

	base, quote := types.SplitSymbol(trade.Symbol)
	cost := trade.Price.Mul(trade.Quantity)

	// buyer: quote out of locked, surplus refunded, base credited
	consumed := cost
	if res, ok := g.reservations[buyerOrderID]; ok {
		consumed = res.perUnit.Mul(trade.Quantity)
		res.remaining = res.remaining.Sub(trade.Quantity)
		if !res.remaining.IsPositive() {
			delete(g.reservations, buyerOrderID)
		}
	}
	bq, err := g.balances.GetBalance(ctx, buyer, quote)
	if err != nil {
		return err
	}
	bq.Locked = bq.Locked.Sub(consumed)
	bq.Available = bq.Available.Add(consumed.Sub(cost))
	if err := g.balances.SaveBalance(ctx, bq); err != nil {
		return err
	}

	baseCredit := trade.Quantity
	if buyerIsTaker {
		baseCredit = baseCredit.Sub(trade.Commission)
	}
	bb, err := g.balances.GetBalance(ctx, buyer, base)
	if err != nil {
		return err
	}
	bb.Available = bb.Available.Add(baseCredit)
	if err := g.balances.SaveBalance(ctx, bb); err != nil {
		return err
	}

	// seller: base out of locked, quote proceeds credited
	if res, ok := g.reservations[sellerOrderID]; ok {
		res.remaining = res.remaining.Sub(trade.Quantity)
		if !res.remaining.IsPositive() {
			delete(g.reservations, sellerOrderID)
		}
	}
	sb, err := g.balances.GetBalance(ctx, seller, base)
	if err != nil {
		return err
	}
	sb.Locked = sb.Locked.Sub(trade.Quantity)
	if err := g.balances.SaveBalance(ctx, sb); err != nil {
		return err
	}

	proceeds := cost
	if !buyerIsTaker {
		proceeds = proceeds.Sub(trade.Commission.Mul(trade.Price))
	}
	sq, err := g.balances.GetBalance(ctx, seller, quote)
	if err != nil {
		return err
	}
	sq.Available = sq.Available.Add(proceeds)
	return g.balances.SaveBalance(ctx, sq)
}

// Commission returns the taker commission for a fill, base-denominated
func (g *Gate) Commission(qty math.LegacyDec) math.LegacyDec {
	return qty.Mul(g.commissionRate)
}
