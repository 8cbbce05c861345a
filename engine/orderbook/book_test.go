package orderbook

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
)

func limitOrder(side types.Side, price, qty int64) *types.Order {
	return types.NewOrder(uuid.New(), "", "BTC-USDT", side, types.OrderTypeLimit,
		types.TimeInForceGTC, math.LegacyNewDec(price), math.LegacyDec{}, math.LegacyNewDec(qty))
}

func TestBestBidIsHighest(t *testing.T) {
	b := New("BTC-USDT")
	for _, p := range []int64{50000, 50200, 50100} {
		b.Add(limitOrder(types.SideBuy, p, 1))
	}

	best := b.BestBid()
	if best == nil {
		t.Fatal("expected best bid")
	}
	if !best.Price.Equal(math.LegacyNewDec(50200)) {
		t.Errorf("expected best bid 50200, got %s", best.Price)
	}
}

func TestBestAskIsLowest(t *testing.T) {
	b := New("BTC-USDT")
	for _, p := range []int64{50500, 50300, 50400} {
		b.Add(limitOrder(types.SideSell, p, 1))
	}

	best := b.BestAsk()
	if best == nil {
		t.Fatal("expected best ask")
	}
	if !best.Price.Equal(math.LegacyNewDec(50300)) {
		t.Errorf("expected best ask 50300, got %s", best.Price)
	}
}

func TestFIFOWithinLevel(t *testing.T) {
	b := New("BTC-USDT")
	first := limitOrder(types.SideSell, 50000, 1)
	second := limitOrder(types.SideSell, 50000, 2)
	b.Add(first)
	b.Add(second)

	front := b.BestAsk().FirstOrder()
	if front.ID != first.ID {
		t.Errorf("expected oldest order at front of level")
	}

	popped := b.PopBestOrder(types.SideBuy)
	if popped.ID != first.ID {
		t.Errorf("expected PopBestOrder to return oldest order")
	}
	if b.BestAsk().FirstOrder().ID != second.ID {
		t.Errorf("expected second order to move to front")
	}
}

func TestRemoveDropsEmptyLevel(t *testing.T) {
	b := New("BTC-USDT")
	o := limitOrder(types.SideBuy, 50000, 3)
	b.Add(o)

	if removed := b.Remove(o.ID); removed == nil {
		t.Fatal("expected removal")
	}
	if b.BestBid() != nil {
		t.Errorf("expected empty level to be pruned")
	}
	if b.Remove(o.ID) != nil {
		t.Errorf("second removal should return nil")
	}
}

func TestDepthAggregation(t *testing.T) {
	b := New("BTC-USDT")
	b.Add(limitOrder(types.SideBuy, 50000, 1))
	b.Add(limitOrder(types.SideBuy, 50000, 2))
	b.Add(limitOrder(types.SideBuy, 49900, 5))
	b.Add(limitOrder(types.SideSell, 50100, 4))

	bids, asks := b.Depth(10)
	if len(bids) != 2 || len(asks) != 1 {
		t.Fatalf("expected 2 bid levels and 1 ask level, got %d/%d", len(bids), len(asks))
	}
	if !bids[0].Quantity.Equal(math.LegacyNewDec(3)) {
		t.Errorf("expected aggregated quantity 3 at top bid, got %s", bids[0].Quantity)
	}
	if bids[0].OrderCount != 2 {
		t.Errorf("expected 2 orders at top bid, got %d", bids[0].OrderCount)
	}
	if !bids[0].Price.GT(bids[1].Price) {
		t.Errorf("expected bids sorted best-first")
	}
}

func TestDepthLimit(t *testing.T) {
	b := New("BTC-USDT")
	for i := int64(0); i < 30; i++ {
		b.Add(limitOrder(types.SideSell, 50000+i, 1))
	}
	_, asks := b.Depth(5)
	if len(asks) != 5 {
		t.Errorf("expected 5 levels, got %d", len(asks))
	}
}

func TestSpreadAndMid(t *testing.T) {
	b := New("BTC-USDT")
	if !b.Spread().IsZero() {
		t.Errorf("empty book spread should be zero")
	}
	b.Add(limitOrder(types.SideBuy, 50000, 1))
	b.Add(limitOrder(types.SideSell, 50100, 1))

	if !b.Spread().Equal(math.LegacyNewDec(100)) {
		t.Errorf("expected spread 100, got %s", b.Spread())
	}
	if !b.MidPrice().Equal(math.LegacyNewDec(50050)) {
		t.Errorf("expected mid 50050, got %s", b.MidPrice())
	}
}
