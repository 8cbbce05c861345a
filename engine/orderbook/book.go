package orderbook

import (
	"cosmossdk.io/math"
	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
)

const btreeDegree = 32 // affects node size and cache efficiency

// PriceLevel holds resting orders at one price in FIFO order
type PriceLevel struct {
	Price    math.LegacyDec
	Quantity math.LegacyDec
	Orders   []*types.Order
}

// NewPriceLevel creates an empty price level
func NewPriceLevel(price math.LegacyDec) *PriceLevel {
	return &PriceLevel{
		Price:    price,
		Quantity: math.LegacyZeroDec(),
		Orders:   make([]*types.Order, 0),
	}
}

// AddOrder appends an order to the FIFO queue
func (pl *PriceLevel) AddOrder(order *types.Order) {
	pl.Orders = append(pl.Orders, order)
	pl.Quantity = pl.Quantity.Add(order.RemainingQty)
}

// RemoveOrder removes an order by ID, preserving FIFO order of the rest
func (pl *PriceLevel) RemoveOrder(orderID uuid.UUID) *types.Order {
	for i, o := range pl.Orders {
		if o.ID == orderID {
			pl.Orders = append(pl.Orders[:i], pl.Orders[i+1:]...)
			pl.Quantity = pl.Quantity.Sub(o.RemainingQty)
			return o
		}
	}
	return nil
}

// Reduce subtracts filled quantity from the level total after the
// front order was partially filled.
func (pl *PriceLevel) Reduce(qty math.LegacyDec) {
	pl.Quantity = pl.Quantity.Sub(qty)
}

// PopFront removes and returns the oldest order at this level
func (pl *PriceLevel) PopFront() *types.Order {
	if len(pl.Orders) == 0 {
		return nil
	}
	o := pl.Orders[0]
	pl.Orders = pl.Orders[1:]
	pl.Quantity = pl.Quantity.Sub(o.RemainingQty)
	return o
}

// FirstOrder returns the oldest order at this level without removing it
func (pl *PriceLevel) FirstOrder() *types.Order {
	if len(pl.Orders) == 0 {
		return nil
	}
	return pl.Orders[0]
}

// IsEmpty returns true if no orders at this level
func (pl *PriceLevel) IsEmpty() bool {
	return len(pl.Orders) == 0
}

// levelItem wraps a price level for use in btree
type levelItem struct {
	price math.LegacyDec
	level *PriceLevel
}

// Less implements btree.Item - ascending order by price
func (a *levelItem) Less(b btree.Item) bool {
	return a.price.LT(b.(*levelItem).price)
}

// bookSide is one side of the order book (bids or asks)
type bookSide struct {
	tree *btree.BTree
	desc bool // true for bids (best = Max), false for asks (best = Min)
}

func newBookSide(desc bool) *bookSide {
	return &bookSide{
		tree: btree.New(btreeDegree),
		desc: desc,
	}
}

func (s *bookSide) Get(price math.LegacyDec) *PriceLevel {
	item := s.tree.Get(&levelItem{price: price})
	if item == nil {
		return nil
	}
	return item.(*levelItem).level
}

func (s *bookSide) GetOrCreate(price math.LegacyDec) *PriceLevel {
	level := s.Get(price)
	if level == nil {
		level = NewPriceLevel(price)
		s.tree.ReplaceOrInsert(&levelItem{price: price, level: level})
	}
	return level
}

func (s *bookSide) Remove(price math.LegacyDec) {
	s.tree.Delete(&levelItem{price: price})
}

// Best returns the best price level: highest for bids, lowest for asks
func (s *bookSide) Best() *PriceLevel {
	var item btree.Item
	if s.desc {
		item = s.tree.Max()
	} else {
		item = s.tree.Min()
	}
	if item == nil {
		return nil
	}
	return item.(*levelItem).level
}

func (s *bookSide) Len() int {
	return s.tree.Len()
}

// Iterate walks price levels best-first
func (s *bookSide) Iterate(fn func(*PriceLevel) bool) {
	if s.desc {
		s.tree.Descend(func(item btree.Item) bool {
			return fn(item.(*levelItem).level)
		})
	} else {
		s.tree.Ascend(func(item btree.Item) bool {
			return fn(item.(*levelItem).level)
		})
	}
}

// Book is a single-symbol limit order book backed by B-trees of FIFO
// price levels. It is not safe for concurrent use; the matching engine
// serializes access per symbol.
type Book struct {
	Symbol string
	bids   *bookSide
	asks   *bookSide
	orders map[uuid.UUID]*types.Order // O(1) lookup for cancel
	seq    uint64                     // arrival order within this book
}

// New creates an empty order book for symbol
func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		bids:   newBookSide(true),
		asks:   newBookSide(false),
		orders: make(map[uuid.UUID]*types.Order),
	}
}

func (b *Book) side(s types.Side) *bookSide {
	if s == types.SideBuy {
		return b.bids
	}
	return b.asks
}

// NextSequence returns the next arrival sequence number. Assigned at
// admission so time priority survives re-insertion after partial fills.
func (b *Book) NextSequence() uint64 {
	b.seq++
	return b.seq
}

// Sequence returns the last assigned arrival sequence. Book snapshots
// are tagged with it so consumers can order them.
func (b *Book) Sequence() uint64 {
	return b.seq
}

// RestoreSequence advances the arrival counter after a rebuild so new
// admissions sort behind recovered orders.
func (b *Book) RestoreSequence(seq uint64) {
	if seq > b.seq {
		b.seq = seq
	}
}

// Add rests an order on the book - O(log n)
func (b *Book) Add(order *types.Order) {
	b.side(order.Side).GetOrCreate(order.Price).AddOrder(order)
	b.orders[order.ID] = order
}

// Remove takes an order off the book by ID - O(log n)
func (b *Book) Remove(orderID uuid.UUID) *types.Order {
	order, ok := b.orders[orderID]
	if !ok {
		return nil
	}
	delete(b.orders, orderID)

	side := b.side(order.Side)
	level := side.Get(order.Price)
	if level == nil {
		return nil
	}
	removed := level.RemoveOrder(orderID)
	if level.IsEmpty() {
		side.Remove(order.Price)
	}
	return removed
}

// Get returns a resting order by ID, or nil
func (b *Book) Get(orderID uuid.UUID) *types.Order {
	return b.orders[orderID]
}

// Contains reports whether the order rests on the book
func (b *Book) Contains(orderID uuid.UUID) bool {
	_, ok := b.orders[orderID]
	return ok
}

// BestLevel returns the best price level opposite to an incoming side:
// best ask for a buy, best bid for a sell.
func (b *Book) BestLevel(incoming types.Side) *PriceLevel {
	return b.side(incoming.Opposite()).Best()
}

// BestBid returns the highest bid level, or nil
func (b *Book) BestBid() *PriceLevel {
	return b.bids.Best()
}

// BestAsk returns the lowest ask level, or nil
func (b *Book) BestAsk() *PriceLevel {
	return b.asks.Best()
}

// PopBestOrder removes the front order of the best opposite level,
// dropping the level when it empties.
func (b *Book) PopBestOrder(incoming types.Side) *types.Order {
	side := b.side(incoming.Opposite())
	level := side.Best()
	if level == nil {
		return nil
	}
	order := level.PopFront()
	if order != nil {
		delete(b.orders, order.ID)
	}
	if level.IsEmpty() {
		side.Remove(level.Price)
	}
	return order
}

// ReduceOrder shrinks a resting order's level total after a partial
// fill of qty was applied to the order.
func (b *Book) ReduceOrder(order *types.Order, qty math.LegacyDec) {
	level := b.side(order.Side).Get(order.Price)
	if level != nil {
		level.Reduce(qty)
	}
}

// Spread returns best ask minus best bid, zero when either is missing
func (b *Book) Spread() math.LegacyDec {
	bid, ask := b.bids.Best(), b.asks.Best()
	if bid == nil || ask == nil {
		return math.LegacyZeroDec()
	}
	return ask.Price.Sub(bid.Price)
}

// MidPrice returns (best bid + best ask) / 2, zero when either is missing
func (b *Book) MidPrice() math.LegacyDec {
	bid, ask := b.bids.Best(), b.asks.Best()
	if bid == nil || ask == nil {
		return math.LegacyZeroDec()
	}
	return bid.Price.Add(ask.Price).QuoInt64(2)
}

// Depth returns up to n aggregated levels per side, best-first
func (b *Book) Depth(n int) (bids, asks []types.DepthLevel) {
	collect := func(s *bookSide) []types.DepthLevel {
		out := make([]types.DepthLevel, 0, n)
		s.Iterate(func(level *PriceLevel) bool {
			if len(out) >= n {
				return false
			}
			out = append(out, types.DepthLevel{
				Price:      level.Price,
				Quantity:   level.Quantity,
				OrderCount: len(level.Orders),
			})
			return true
		})
		return out
	}
	return collect(b.bids), collect(b.asks)
}

// Levels returns the number of price levels per side
func (b *Book) Levels() (bidLevels, askLevels int) {
	return b.bids.Len(), b.asks.Len()
}

// Len returns the number of resting orders
func (b *Book) Len() int {
	return len(b.orders)
}

// IterateBids walks bid levels highest-first
func (b *Book) IterateBids(fn func(*PriceLevel) bool) {
	b.bids.Iterate(fn)
}

// IterateAsks walks ask levels lowest-first
func (b *Book) IterateAsks(fn func(*PriceLevel) bool) {
	b.asks.Iterate(fn)
}

// IterateOpposite walks levels opposite to the incoming side, best-first
func (b *Book) IterateOpposite(incoming types.Side, fn func(*PriceLevel) bool) {
	b.side(incoming.Opposite()).Iterate(fn)
}

// Orders returns all resting orders in arrival order
func (b *Book) Orders() []*types.Order {
	out := make([]*types.Order, 0, len(b.orders))
	walk := func(level *PriceLevel) bool {
		out = append(out, level.Orders...)
		return true
	}
	b.bids.Iterate(walk)
	b.asks.Iterate(walk)
	return out
}

// Clear drops all resting orders
func (b *Book) Clear() {
	b.bids = newBookSide(true)
	b.asks = newBookSide(false)
	b.orders = make(map[uuid.UUID]*types.Order)
}
