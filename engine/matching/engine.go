package matching

import (
	"context"
	"sync"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/orderbook"
	"github.com/gwrxuk/FastTrading/engine/tradelog"
	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/pubsub"
	"github.com/gwrxuk/FastTrading/store"
)

// depthLevels is the book snapshot size published on each change
const depthLevels = 20

// expireInterval paces the GTD expiry sweep
const expireInterval = time.Second

// OrderWriter is the persistence surface the engine commits through.
// Executions carry the trade and its order rows in one atomic write.
type OrderWriter interface {
	store.OrderStore
	store.ExecutionStore
}

// Funds gates admissions and settlements against the asset ledger
type Funds interface {
	Reserve(ctx context.Context, order *types.Order, refPrice math.LegacyDec) error
	Release(ctx context.Context, order *types.Order) error
	Settle(ctx context.Context, trade *types.Trade) error
	Commission(qty math.LegacyDec) math.LegacyDec
}

// PlaceResult is the synchronous outcome of an admission
type PlaceResult struct {
	Order  *types.Order
	Trades []*types.Trade
}

// symbolEngine owns one symbol's book, stop ladder, and halt flag.
// All access goes through mu.
type symbolEngine struct {
	mu        sync.Mutex
	symbol    string
	book      *orderbook.Book
	stops     *stopLadder
	halted    bool
	lastPrice math.LegacyDec
}

// Engine is the price-time priority matching engine. Symbols are
// independent: each has its own lock, book, and stop ladder. Trade ids
// are globally monotonic via the trade log allocator.
type Engine struct {
	orders OrderWriter
	funds  Funds
	trades *tradelog.Log
	bus    pubsub.Bus
	logger log.Logger

	minQty math.LegacyDec
	maxQty math.LegacyDec

	mu      sync.RWMutex
	symbols map[string]*symbolEngine
}

// Admission size bounds applied when none are configured
const (
	defaultMinOrderSize = "0.001"
	defaultMaxOrderSize = "1000000"
)

// New creates a matching engine
func New(orders OrderWriter, funds Funds, trades *tradelog.Log, bus pubsub.Bus, logger log.Logger) *Engine {
	return &Engine{
		orders:  orders,
		funds:   funds,
		trades:  trades,
		bus:     bus,
		logger:  logger.With("component", "matching_engine"),
		minQty:  math.LegacyMustNewDecFromStr(defaultMinOrderSize),
		maxQty:  math.LegacyMustNewDecFromStr(defaultMaxOrderSize),
		symbols: make(map[string]*symbolEngine),
	}
}

// SetSizeBounds overrides the admission quantity bounds
func (e *Engine) SetSizeBounds(min, max math.LegacyDec) {
	if !min.IsNil() && min.IsPositive() {
		e.minQty = min
	}
	if !max.IsNil() && max.IsPositive() {
		e.maxQty = max
	}
}

func (e *Engine) symbolEngine(symbol string) *symbolEngine {
	e.mu.RLock()
	se, ok := e.symbols[symbol]
	e.mu.RUnlock()
	if ok {
		return se
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if se, ok = e.symbols[symbol]; ok {
		return se
	}
	se = &symbolEngine{
		symbol: symbol,
		book:   orderbook.New(symbol),
		stops:  newStopLadder(),
	}
	e.symbols[symbol] = se
	return se
}

// Symbols returns every symbol the engine has seen
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.symbols))
	for s := range e.symbols {
		out = append(out, s)
	}
	return out
}

// PlaceOrder validates, funds, and matches an incoming order. Stop
// orders are queued on the trigger ladder instead of matching.
func (e *Engine) PlaceOrder(ctx context.Context, order *types.Order) (*PlaceResult, error) {
	if err := e.validateOrder(order); err != nil {
		order.Status = types.OrderStatusRejected
		if saveErr := e.orders.SaveOrder(ctx, order); saveErr != nil {
			e.logger.Error("persist rejected order", "order_id", order.ID, "err", saveErr)
		}
		return nil, err
	}

	if order.ClientOrderID != "" {
		existing, err := e.orders.GetOrderByClientID(ctx, order.Principal, order.ClientOrderID)
		if err == nil && existing.ID != order.ID {
			return nil, types.ErrDuplicateClientOrder.Wrap(order.ClientOrderID)
		}
	}

	se := e.symbolEngine(order.Symbol)
	se.mu.Lock()
	defer se.mu.Unlock()

	if se.halted {
		return nil, types.ErrSymbolHalted.Wrap(order.Symbol)
	}

	order.Sequence = se.book.NextSequence()

	refPrice := e.referencePrice(se, order)
	if needsReference(order) && (refPrice.IsNil() || refPrice.IsZero()) {
		order.Status = types.OrderStatusRejected
		if err := e.orders.SaveOrder(ctx, order); err != nil {
			return nil, e.halt(se, err)
		}
		return nil, types.ErrNoLiquidity.Wrap("market buy with no reference price")
	}

	if err := e.funds.Reserve(ctx, order, refPrice); err != nil {
		order.Status = types.OrderStatusRejected
		if saveErr := e.orders.SaveOrder(ctx, order); saveErr != nil {
			return nil, e.halt(se, saveErr)
		}
		return nil, err
	}

	if order.Type.IsStop() {
		order.Status = types.OrderStatusOpen
		if err := e.orders.SaveOrder(ctx, order); err != nil {
			return nil, e.halt(se, err)
		}
		se.stops.Add(order)
		e.publishOrder(ctx, order)
		e.logger.Info("stop order queued",
			"order_id", order.ID, "symbol", order.Symbol,
			"stop_price", order.StopPrice.String(), "side", order.Side.String())
		return &PlaceResult{Order: order}, nil
	}

	trades, err := e.execute(ctx, se, order)
	if err != nil {
		return nil, err
	}
	if len(trades) > 0 {
		if err := e.fireStops(ctx, se, trades); err != nil {
			return nil, err
		}
	}
	return &PlaceResult{Order: order, Trades: trades}, nil
}

// needsReference reports whether admission requires a market reference
// price to size the quote-side reservation.
func needsReference(order *types.Order) bool {
	return order.Side == types.SideBuy && order.Type == types.OrderTypeMarket
}

// referencePrice returns the best ask, falling back to the last trade
// price, for sizing market buy reservations. Stop market buys use
// their stop price: the trigger guarantees the market is near it.
func (e *Engine) referencePrice(se *symbolEngine, order *types.Order) math.LegacyDec {
	if order.Side != types.SideBuy {
		return math.LegacyDec{}
	}
	if order.Type == types.OrderTypeStopMarket {
		return order.StopPrice
	}
	if order.Type != types.OrderTypeMarket {
		return math.LegacyDec{}
	}
	if ask := se.book.BestAsk(); ask != nil {
		return ask.Price
	}
	return se.lastPrice
}

func (e *Engine) validateOrder(order *types.Order) error {
	if !types.ValidSymbol(order.Symbol) {
		return types.ErrInvalidSymbol.Wrap(order.Symbol)
	}
	if order.Side != types.SideBuy && order.Side != types.SideSell {
		return types.ErrInvalidOrder.Wrap("side required")
	}
	if order.Quantity.IsNil() || !order.Quantity.IsPositive() {
		return types.ErrInvalidOrder.Wrap("quantity must be positive")
	}
	if order.Quantity.LT(e.minQty) {
		return types.ErrInvalidOrder.Wrapf("quantity below minimum %s", e.minQty)
	}
	if order.Quantity.GT(e.maxQty) {
		return types.ErrInvalidOrder.Wrapf("quantity above maximum %s", e.maxQty)
	}
	switch order.Type {
	case types.OrderTypeLimit, types.OrderTypeStopLimit:
		if order.Price.IsNil() || !order.Price.IsPositive() {
			return types.ErrInvalidOrder.Wrap("limit price must be positive")
		}
	case types.OrderTypeMarket, types.OrderTypeStopMarket:
		if !order.Price.IsNil() {
			return types.ErrInvalidOrder.Wrap("market order must not carry a price")
		}
	default:
		return types.ErrInvalidOrder.Wrap("order type required")
	}
	if order.Type.IsStop() && (order.StopPrice.IsNil() || !order.StopPrice.IsPositive()) {
		return types.ErrInvalidOrder.Wrap("stop price must be positive")
	}
	if !order.Type.IsStop() && !order.StopPrice.IsNil() {
		return types.ErrInvalidOrder.Wrap("stop price on non-stop order")
	}
	if order.Type == types.OrderTypeMarket && order.TimeInForce == types.TimeInForceGTC {
		// market orders cannot rest
		order.TimeInForce = types.TimeInForceIOC
	}
	if order.TimeInForce == types.TimeInForceGTD {
		if order.ExpiresAt == nil || !order.ExpiresAt.After(time.Now()) {
			return types.ErrInvalidOrder.Wrap("gtd order requires a future expiry")
		}
	}
	return nil
}

// execute matches a funded taker against the book and finishes it:
// rest, cancel remainder, or reject. Caller holds the symbol lock.
func (e *Engine) execute(ctx context.Context, se *symbolEngine, taker *types.Order) ([]*types.Trade, error) {
	if taker.TimeInForce == types.TimeInForceFOK && !e.fokFillable(se, taker) {
		taker.Status = types.OrderStatusRejected
		if err := e.funds.Release(ctx, taker); err != nil {
			return nil, e.halt(se, err)
		}
		if err := e.orders.SaveOrder(ctx, taker); err != nil {
			return nil, e.halt(se, err)
		}
		e.publishOrder(ctx, taker)
		return nil, types.ErrFillOrKill
	}

	var executed []*types.Trade
	for taker.RemainingQty.IsPositive() {
		level := se.book.BestLevel(taker.Side)
		if level == nil || !priceCompatible(taker, level.Price) {
			break
		}
		maker := level.FirstOrder()

		if maker.Principal == taker.Principal {
			// self-match avoidance: the resting order yields
			se.book.Remove(maker.ID)
			maker.Status = types.OrderStatusCancelled
			maker.UpdatedAt = time.Now().UTC()
			if err := e.funds.Release(ctx, maker); err != nil {
				return executed, e.halt(se, err)
			}
			if err := e.orders.SaveOrder(ctx, maker); err != nil {
				return executed, e.halt(se, err)
			}
			e.publishOrder(ctx, maker)
			e.logger.Info("self-match avoided, resting order cancelled",
				"maker_order_id", maker.ID, "taker_order_id", taker.ID)
			continue
		}

		qty := math.LegacyMinDec(taker.RemainingQty, maker.RemainingQty)
		price := level.Price

		fullMaker := qty.Equal(maker.RemainingQty)
		if fullMaker {
			se.book.Remove(maker.ID)
		}
		maker.Fill(qty, price)
		if !fullMaker {
			se.book.ReduceOrder(maker, qty)
		}
		taker.Fill(qty, price)

		trade := &types.Trade{
			ID:              uuid.New(),
			TradeID:         e.trades.NextID(),
			Symbol:          taker.Symbol,
			MakerOrderID:    maker.ID,
			TakerOrderID:    taker.ID,
			MakerPrincipal:  maker.Principal,
			TakerPrincipal:  taker.Principal,
			Side:            taker.Side,
			Price:           price,
			Quantity:        qty,
			QuoteQuantity:   price.Mul(qty),
			Commission:      e.funds.Commission(qty),
			CommissionAsset: taker.BaseAsset(),
			ExecutedAt:      time.Now().UTC(),
		}

		if err := e.funds.Settle(ctx, trade); err != nil {
			return executed, e.halt(se, err)
		}
		// One commit covers the trade and both order fills
		if err := e.orders.SaveExecution(ctx, trade, maker, taker); err != nil {
			return executed, e.halt(se, err)
		}

		se.lastPrice = price
		executed = append(executed, trade)
		e.publishTrade(ctx, trade)
		e.publishOrder(ctx, maker)
	}

	if err := e.finishTaker(ctx, se, taker); err != nil {
		return executed, err
	}

	if len(executed) > 0 || taker.Status == types.OrderStatusOpen {
		e.publishPrice(ctx, se)
		e.publishBook(ctx, se)
	}
	return executed, nil
}

func (e *Engine) finishTaker(ctx context.Context, se *symbolEngine, taker *types.Order) error {
	switch {
	case taker.Status == types.OrderStatusFilled:
		// reservation fully consumed in settlement

	case taker.Type == types.OrderTypeLimit &&
		(taker.TimeInForce == types.TimeInForceGTC || taker.TimeInForce == types.TimeInForceGTD):
		if taker.Status == types.OrderStatusPending {
			taker.Status = types.OrderStatusOpen
		}
		se.book.Add(taker)

	default:
		// market or IOC remainder is discarded
		if taker.Type == types.OrderTypeMarket && taker.FilledQty.IsZero() {
			taker.Status = types.OrderStatusRejected
		} else {
			taker.Status = types.OrderStatusCancelled
		}
		taker.UpdatedAt = time.Now().UTC()
		if err := e.funds.Release(ctx, taker); err != nil {
			return e.halt(se, err)
		}
	}

	if err := e.orders.SaveOrder(ctx, taker); err != nil {
		return e.halt(se, err)
	}
	e.publishOrder(ctx, taker)

	if taker.Type == types.OrderTypeMarket && taker.FilledQty.IsZero() {
		return types.ErrNoLiquidity
	}
	return nil
}

// fokFillable walks the opposite side to check whether the taker can
// fill completely without mutating anything. Own resting orders do not
// count: they would be cancelled, not traded.
func (e *Engine) fokFillable(se *symbolEngine, taker *types.Order) bool {
	available := math.LegacyZeroDec()
	fillable := false
	se.book.IterateOpposite(taker.Side, func(level *orderbook.PriceLevel) bool {
		if !priceCompatible(taker, level.Price) {
			return false
		}
		for _, maker := range level.Orders {
			if maker.Principal == taker.Principal {
				continue
			}
			available = available.Add(maker.RemainingQty)
			if available.GTE(taker.Quantity) {
				fillable = true
				return false
			}
		}
		return true
	})
	return fillable
}

func priceCompatible(taker *types.Order, levelPrice math.LegacyDec) bool {
	if taker.Type == types.OrderTypeMarket {
		return true
	}
	if taker.Side == types.SideBuy {
		return taker.Price.GTE(levelPrice)
	}
	return taker.Price.LTE(levelPrice)
}

// fireStops converts and executes stops crossed by the given trades'
// prices, cascading through any further triggers. Caller holds the
// symbol lock.
func (e *Engine) fireStops(ctx context.Context, se *symbolEngine, trades []*types.Trade) error {
	var queue []*types.Order
	for _, t := range trades {
		queue = append(queue, se.stops.Triggered(t.Price)...)
	}

	for len(queue) > 0 {
		stop := queue[0]
		queue = queue[1:]

		if stop.Type == types.OrderTypeStopLimit {
			stop.Type = types.OrderTypeLimit
		} else {
			stop.Type = types.OrderTypeMarket
			if stop.TimeInForce == types.TimeInForceGTC {
				stop.TimeInForce = types.TimeInForceIOC
			}
		}
		stop.Status = types.OrderStatusPending
		stop.UpdatedAt = time.Now().UTC()
		e.logger.Info("stop order triggered",
			"order_id", stop.ID, "symbol", stop.Symbol, "stop_price", stop.StopPrice.String())

		newTrades, err := e.execute(ctx, se, stop)
		if err != nil {
			if types.ErrSymbolHalted.Is(err) {
				return err
			}
			// rejection of one triggered stop does not stop the cascade
			e.logger.Info("triggered stop not executed", "order_id", stop.ID, "err", err)
		}
		for _, t := range newTrades {
			queue = append(queue, se.stops.Triggered(t.Price)...)
		}
	}
	return nil
}

// Cancel removes an order from the book or stop ladder. Cancelling an
// already cancelled or expired order returns it unchanged.
func (e *Engine) Cancel(ctx context.Context, principal uuid.UUID, orderID uuid.UUID) (*types.Order, error) {
	stored, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if stored.Principal != principal {
		return nil, types.ErrUnauthorized.Wrap("order belongs to another principal")
	}

	se := e.symbolEngine(stored.Symbol)
	se.mu.Lock()
	defer se.mu.Unlock()

	if se.halted {
		return nil, types.ErrSymbolHalted.Wrap(stored.Symbol)
	}

	order := se.book.Remove(orderID)
	if order == nil {
		order = se.stops.Remove(orderID)
	}
	if order == nil {
		// Not live. Any terminal state, a prior cancel included,
		// refuses a second cancel.
		stored, err = e.orders.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return nil, types.ErrOrderNotCancellable.Wrapf("status %s", stored.Status)
	}

	order.Status = types.OrderStatusCancelled
	order.UpdatedAt = time.Now().UTC()
	if err := e.funds.Release(ctx, order); err != nil {
		return nil, e.halt(se, err)
	}
	if err := e.orders.SaveOrder(ctx, order); err != nil {
		return nil, e.halt(se, err)
	}
	e.publishOrder(ctx, order)
	e.publishBook(ctx, se)
	return order, nil
}

// CancelAll cancels every live order a principal has on one symbol,
// or on all symbols when symbol is empty. Returns the cancelled count.
func (e *Engine) CancelAll(ctx context.Context, principal uuid.UUID, symbol string) (int, error) {
	var symbols []string
	if symbol != "" {
		symbols = []string{symbol}
	} else {
		symbols = e.Symbols()
	}

	count := 0
	for _, sym := range symbols {
		se := e.symbolEngine(sym)
		se.mu.Lock()
		if se.halted {
			se.mu.Unlock()
			continue
		}

		var targets []*types.Order
		for _, o := range se.book.Orders() {
			if o.Principal == principal {
				targets = append(targets, o)
			}
		}
		for _, o := range se.stops.All() {
			if o.Principal == principal {
				targets = append(targets, o)
			}
		}

		for _, o := range targets {
			if se.book.Remove(o.ID) == nil {
				se.stops.Remove(o.ID)
			}
			o.Status = types.OrderStatusCancelled
			o.UpdatedAt = time.Now().UTC()
			if err := e.funds.Release(ctx, o); err != nil {
				err = e.halt(se, err)
				se.mu.Unlock()
				return count, err
			}
			if err := e.orders.SaveOrder(ctx, o); err != nil {
				err = e.halt(se, err)
				se.mu.Unlock()
				return count, err
			}
			e.publishOrder(ctx, o)
			count++
		}
		if len(targets) > 0 {
			e.publishBook(ctx, se)
		}
		se.mu.Unlock()
	}
	return count, nil
}

// Halted reports whether a symbol is refusing orders
func (e *Engine) Halted(symbol string) bool {
	se := e.symbolEngine(symbol)
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.halted
}

// Recover rebuilds a halted symbol's book and stop ladder from the
// store's open orders, then lifts the halt.
func (e *Engine) Recover(ctx context.Context, symbol string) error {
	open, err := e.orders.OpenOrders(ctx, symbol)
	if err != nil {
		return types.ErrStoreUnavailable.Wrapf("recover %s: %s", symbol, err)
	}

	se := e.symbolEngine(symbol)
	se.mu.Lock()
	defer se.mu.Unlock()

	se.book.Clear()
	se.stops = newStopLadder()
	var maxSeq uint64
	for _, o := range open {
		if o.Sequence > maxSeq {
			maxSeq = o.Sequence
		}
		if o.Type.IsStop() {
			se.stops.Add(o)
		} else {
			se.book.Add(o)
		}
	}
	se.book.RestoreSequence(maxSeq)
	se.halted = false

	e.logger.Info("symbol recovered",
		"symbol", symbol, "resting_orders", se.book.Len(), "stops", se.stops.Len())
	e.publishBook(ctx, se)
	return nil
}

// ExpireSweep cancels every GTD order whose expiry has passed
func (e *Engine) ExpireSweep(ctx context.Context) {
	now := time.Now()
	for _, symbol := range e.Symbols() {
		se := e.symbolEngine(symbol)
		se.mu.Lock()
		if se.halted {
			se.mu.Unlock()
			continue
		}

		var expired []*types.Order
		for _, o := range se.book.Orders() {
			if o.ExpiresAt != nil && !o.ExpiresAt.After(now) {
				expired = append(expired, o)
			}
		}
		for _, o := range se.stops.All() {
			if o.ExpiresAt != nil && !o.ExpiresAt.After(now) {
				expired = append(expired, o)
			}
		}

		for _, o := range expired {
			if se.book.Remove(o.ID) == nil {
				se.stops.Remove(o.ID)
			}
			o.Status = types.OrderStatusExpired
			o.UpdatedAt = time.Now().UTC()
			if err := e.funds.Release(ctx, o); err != nil {
				e.halt(se, err)
				break
			}
			if err := e.orders.SaveOrder(ctx, o); err != nil {
				e.halt(se, err)
				break
			}
			e.publishOrder(ctx, o)
			e.logger.Info("order expired", "order_id", o.ID, "symbol", symbol)
		}
		if len(expired) > 0 {
			e.publishBook(ctx, se)
		}
		se.mu.Unlock()
	}
}

// Run drives the expiry sweep until ctx is cancelled
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(expireInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ExpireSweep(ctx)
		}
	}
}

// Depth returns up to n aggregated levels per side with the book's
// current sequence number.
func (e *Engine) Depth(symbol string, n int) (bids, asks []types.DepthLevel, seq uint64) {
	se := e.symbolEngine(symbol)
	se.mu.Lock()
	defer se.mu.Unlock()
	bids, asks = se.book.Depth(n)
	return bids, asks, se.book.Sequence()
}

// Quote returns the last trade price and best bid/ask for a symbol.
// Nil decimals mean that side is empty.
func (e *Engine) Quote(symbol string) (last, bid, ask math.LegacyDec) {
	se := e.symbolEngine(symbol)
	se.mu.Lock()
	defer se.mu.Unlock()
	last = se.lastPrice
	if l := se.book.BestBid(); l != nil {
		bid = l.Price
	}
	if l := se.book.BestAsk(); l != nil {
		ask = l.Price
	}
	return last, bid, ask
}

func (e *Engine) halt(se *symbolEngine, err error) error {
	se.halted = true
	e.logger.Error("symbol halted on persistence failure", "symbol", se.symbol, "err", err)
	return types.ErrSymbolHalted.Wrap(err.Error())
}

/// Publication is fire-and-forget: the book is authoritative, a missed
// tick only delays consumers until the next one.

func (e *Engine) publishTrade(ctx context.Context, trade *types.Trade) {
	if err := e.bus.Publish(ctx, pubsub.TradesChannel(trade.Symbol), pubsub.TradePayload(trade)); err != nil {
		e.logger.Debug("publish trade", "err", err)
	}
}

func (e *Engine) publishOrder(ctx context.Context, order *types.Order) {
	if err := e.bus.Publish(ctx, pubsub.OrdersChannel(order.Principal), pubsub.OrderPayload(order)); err != nil {
		e.logger.Debug("publish order", "err", err)
	}
}

func (e *Engine) publishPrice(ctx context.Context, se *symbolEngine) {
	var bid, ask math.LegacyDec
	if l := se.book.BestBid(); l != nil {
		bid = l.Price
	}
	if l := se.book.BestAsk(); l != nil {
		ask = l.Price
	}
	payload := pubsub.PricePayload(se.lastPrice, bid, ask, time.Now())
	if err := e.bus.Publish(ctx, pubsub.PricesChannel(se.symbol), payload); err != nil {
		e.logger.Debug("publish price", "err", err)
	}
}

func (e *Engine) publishBook(ctx context.Context, se *symbolEngine) {
	bids, asks := se.book.Depth(depthLevels)
	payload := pubsub.BookPayload(se.book.Sequence(), bids, asks)
	if err := e.bus.Publish(ctx, pubsub.BookChannel(se.symbol), payload); err != nil {
		e.logger.Debug("publish book", "err", err)
	}
}
