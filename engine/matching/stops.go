package matching

import (
	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/huandu/skiplist"

	"github.com/gwrxuk/FastTrading/engine/types"
)

// stopKeyAsc orders buy stops nearest-trigger-first: a buy stop fires
// when the trade price rises to its stop price, so the lowest stop
// price is checked first.
type stopKeyAsc struct{}

func (k stopKeyAsc) Compare(lhs, rhs interface{}) int {
	l := lhs.(math.LegacyDec)
	r := rhs.(math.LegacyDec)
	if l.LT(r) {
		return -1
	}
	if l.GT(r) {
		return 1
	}
	return 0
}

func (k stopKeyAsc) CalcScore(key interface{}) float64 {
	f, _ := key.(math.LegacyDec).Float64()
	return f
}

// stopKeyDesc orders sell stops nearest-trigger-first: a sell stop
// fires when the trade price falls to its stop price.
type stopKeyDesc struct{}

func (k stopKeyDesc) Compare(lhs, rhs interface{}) int {
	l := lhs.(math.LegacyDec)
	r := rhs.(math.LegacyDec)
	if l.GT(r) {
		return -1
	}
	if l.LT(r) {
		return 1
	}
	return 0
}

func (k stopKeyDesc) CalcScore(key interface{}) float64 {
	f, _ := key.(math.LegacyDec).Float64()
	return -f
}

// stopLevel is the FIFO queue of stops sharing one trigger price
type stopLevel struct {
	price  math.LegacyDec
	orders []*types.Order
}

// stopLadder holds untriggered stop orders per symbol, keyed by stop
// price and direction. Not safe for concurrent use; the engine holds
// the symbol lock.
type stopLadder struct {
	buys  *skiplist.SkipList // ascending: lowest stop price first
	sells *skiplist.SkipList // descending: highest stop price first
	index map[uuid.UUID]*types.Order
}

func newStopLadder() *stopLadder {
	return &stopLadder{
		buys:  skiplist.New(stopKeyAsc{}),
		sells: skiplist.New(stopKeyDesc{}),
		index: make(map[uuid.UUID]*types.Order),
	}
}

func (l *stopLadder) list(side types.Side) *skiplist.SkipList {
	if side == types.SideBuy {
		return l.buys
	}
	return l.sells
}

// Add queues a stop order until its trigger price is crossed
func (l *stopLadder) Add(order *types.Order) {
	list := l.list(order.Side)
	elem := list.Get(order.StopPrice)
	var level *stopLevel
	if elem != nil {
		level = elem.Value.(*stopLevel)
	} else {
		level = &stopLevel{price: order.StopPrice}
		list.Set(order.StopPrice, level)
	}
	level.orders = append(level.orders, order)
	l.index[order.ID] = order
}

// Remove takes a stop order out of the ladder, nil if absent
func (l *stopLadder) Remove(orderID uuid.UUID) *types.Order {
	order, ok := l.index[orderID]
	if !ok {
		return nil
	}
	delete(l.index, orderID)

	list := l.list(order.Side)
	elem := list.Get(order.StopPrice)
	if elem == nil {
		return order
	}
	level := elem.Value.(*stopLevel)
	for i, o := range level.orders {
		if o.ID == orderID {
			level.orders = append(level.orders[:i], level.orders[i+1:]...)
			break
		}
	}
	if len(level.orders) == 0 {
		list.Remove(order.StopPrice)
	}
	return order
}

// Get returns a queued stop order by ID, or nil
func (l *stopLadder) Get(orderID uuid.UUID) *types.Order {
	return l.index[orderID]
}

// Triggered removes and returns every stop crossed by price, in
// trigger-price then arrival order. Buy stops fire at price >= stop,
// sell stops at price <= stop.
func (l *stopLadder) Triggered(price math.LegacyDec) []*types.Order {
	var out []*types.Order

	for {
		front := l.buys.Front()
		if front == nil {
			break
		}
		level := front.Value.(*stopLevel)
		if price.LT(level.price) {
			break
		}
		l.buys.Remove(level.price)
		for _, o := range level.orders {
			delete(l.index, o.ID)
			out = append(out, o)
		}
	}

	for {
		front := l.sells.Front()
		if front == nil {
			break
		}
		level := front.Value.(*stopLevel)
		if price.GT(level.price) {
			break
		}
		l.sells.Remove(level.price)
		for _, o := range level.orders {
			delete(l.index, o.ID)
			out = append(out, o)
		}
	}

	return out
}

// All returns every queued stop order
func (l *stopLadder) All() []*types.Order {
	out := make([]*types.Order, 0, len(l.index))
	for _, list := range []*skiplist.SkipList{l.buys, l.sells} {
		for elem := list.Front(); elem != nil; elem = elem.Next() {
			out = append(out, elem.Value.(*stopLevel).orders...)
		}
	}
	return out
}

// Len returns the number of queued stops
func (l *stopLadder) Len() int {
	return len(l.index)
}
