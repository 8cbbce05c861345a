package market

import (
	"context"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/matching"
	"github.com/gwrxuk/FastTrading/engine/tradelog"
	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/pubsub"
	"github.com/gwrxuk/FastTrading/store"
	"github.com/gwrxuk/FastTrading/wallet"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	store  *store.Memory
	engine *matching.Engine
	nextID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	logger := log.NewNopLogger()
	tl, err := tradelog.Open(context.Background(), mem, logger)
	if err != nil {
		t.Fatalf("open tradelog: %v", err)
	}
	gate := wallet.NewGate(mem, logger)
	eng := matching.New(mem, gate, tl, pubsub.NewMemoryBus(), logger)
	svc := NewService(eng, tl, []string{"ETH-USDT", "BTC-USDT"}, logger)
	svc.now = func() time.Time { return fixedNow }
	return &fixture{svc: svc, store: mem, engine: eng}
}

func dec(s string) math.LegacyDec {
	return math.LegacyMustNewDecFromStr(s)
}

func (f *fixture) trade(t *testing.T, symbol, price, qty string, at time.Time) {
	t.Helper()
	f.nextID++
	p, q := dec(price), dec(qty)
	err := f.store.SaveTrade(context.Background(), &types.Trade{
		ID:             uuid.New(),
		TradeID:        f.nextID,
		Symbol:         symbol,
		MakerOrderID:   uuid.New(),
		TakerOrderID:   uuid.New(),
		MakerPrincipal: uuid.New(),
		TakerPrincipal: uuid.New(),
		Side:           types.SideBuy,
		Price:          p,
		Quantity:       q,
		QuoteQuantity:  p.Mul(q),
		Commission:     math.LegacyZeroDec(),
		ExecutedAt:     at,
	})
	if err != nil {
		t.Fatalf("save trade: %v", err)
	}
}

func TestPriceUnknownSymbol(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Price(context.Background(), "DOGE-USDT"); err == nil {
		t.Fatal("expected error for unlisted symbol")
	}
}

func TestPrice24hChange(t *testing.T) {
	f := newFixture(t)
	f.trade(t, "ETH-USDT", "2000", "1", fixedNow.Add(-23*time.Hour))
	f.trade(t, "ETH-USDT", "2100", "2", fixedNow.Add(-time.Hour))

	d, err := f.svc.Price(context.Background(), "ETH-USDT")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !d.Change24h.Equal(dec("100")) {
		t.Errorf("change = %s, want 100", d.Change24h)
	}
	if !d.ChangePercent24h.Equal(dec("5")) {
		t.Errorf("change percent = %s, want 5", d.ChangePercent24h)
	}
	if !d.Volume24h.Equal(dec("3")) {
		t.Errorf("volume = %s, want 3", d.Volume24h)
	}
	if d.High24h == nil || !d.High24h.Equal(dec("2100")) {
		t.Errorf("high = %v, want 2100", d.High24h)
	}
	if d.Bid != nil || d.Ask != nil {
		t.Error("empty book should quote nil bid/ask")
	}
}

func TestPricesCoverAllSymbols(t *testing.T) {
	f := newFixture(t)
	all, err := f.svc.Prices(context.Background())
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d quotes, want 2", len(all))
	}
	// sorted listing
	if all[0].Symbol != "BTC-USDT" || all[1].Symbol != "ETH-USDT" {
		t.Errorf("unexpected order: %s, %s", all[0].Symbol, all[1].Symbol)
	}
}

func TestTickerWeightedAverage(t *testing.T) {
	f := newFixture(t)
	f.trade(t, "ETH-USDT", "2000", "1", fixedNow.Add(-2*time.Hour))
	f.trade(t, "ETH-USDT", "2200", "3", fixedNow.Add(-time.Hour))

	tk, err := f.svc.TickerFor(context.Background(), "ETH-USDT")
	if err != nil {
		t.Fatalf("ticker: %v", err)
	}
	// (2000*1 + 2200*3) / 4 = 2150
	if !tk.WeightedAvgPrice.Equal(dec("2150")) {
		t.Errorf("vwap = %s, want 2150", tk.WeightedAvgPrice)
	}
	if tk.TradeCount != 2 {
		t.Errorf("trade count = %d, want 2", tk.TradeCount)
	}
	if !tk.QuoteVolume.Equal(dec("8600")) {
		t.Errorf("quote volume = %s, want 8600", tk.QuoteVolume)
	}
}

func TestCandlesBucketing(t *testing.T) {
	f := newFixture(t)
	base := fixedNow.Add(-10 * time.Minute).Truncate(time.Minute)
	f.trade(t, "ETH-USDT", "2000", "1", base)
	f.trade(t, "ETH-USDT", "2050", "1", base.Add(30*time.Second))
	f.trade(t, "ETH-USDT", "1990", "2", base.Add(45*time.Second))
	f.trade(t, "ETH-USDT", "2010", "1", base.Add(3*time.Minute))

	candles, err := f.svc.Candles(context.Background(), "ETH-USDT", "1m", 100)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	first := candles[0]
	if !first.Open.Equal(dec("2000")) || !first.High.Equal(dec("2050")) ||
		!first.Low.Equal(dec("1990")) || !first.Close.Equal(dec("1990")) {
		t.Errorf("first candle OHLC = %s/%s/%s/%s", first.Open, first.High, first.Low, first.Close)
	}
	if !first.Volume.Equal(dec("4")) {
		t.Errorf("first candle volume = %s, want 4", first.Volume)
	}
	if first.TradeCount != 3 {
		t.Errorf("first candle count = %d, want 3", first.TradeCount)
	}
	if candles[1].TradeCount != 1 {
		t.Errorf("second candle count = %d, want 1", candles[1].TradeCount)
	}
}

func TestCandlesRejectUnknownInterval(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Candles(context.Background(), "ETH-USDT", "2m", 10); err == nil {
		t.Fatal("expected error for unknown interval")
	}
}

func TestRecentTrades(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.trade(t, "ETH-USDT", "2000", "1", fixedNow.Add(time.Duration(i-10)*time.Minute))
	}
	got, err := f.svc.RecentTrades(context.Background(), "ETH-USDT", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d trades, want 3", len(got))
	}
	// newest window, ascending ids
	if got[0].TradeID != 3 || got[2].TradeID != 5 {
		t.Errorf("window ids = %d..%d, want 3..5", got[0].TradeID, got[2].TradeID)
	}
}

func TestValidInterval(t *testing.T) {
	for _, ok := range []string{"1m", "5m", "15m", "1h", "4h", "1d"} {
		if !ValidInterval(ok) {
			t.Errorf("%s should be valid", ok)
		}
	}
	if ValidInterval("3m") {
		t.Error("3m should be invalid")
	}
}
