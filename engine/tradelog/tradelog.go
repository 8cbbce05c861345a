package tradelog

import (
	"context"
	"sync/atomic"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/store"
)

// Log appends executions and allocates globally monotonic trade ids.
// The allocator is seeded from the highest persisted id so ids never
// repeat across restarts.
type Log struct {
	trades store.TradeStore
	logger log.Logger
	nextID atomic.Int64
}

// Open seeds the allocator from the store. An unreadable seed is a
// startup failure: running with a guessed id risks duplicates.
func Open(ctx context.Context, trades store.TradeStore, logger log.Logger) (*Log, error) {
	max, err := trades.MaxTradeID(ctx)
	if err != nil {
		return nil, types.ErrStoreUnavailable.Wrapf("seed trade id allocator: %s", err)
	}
	l := &Log{
		trades: trades,
		logger: logger.With("component", "tradelog"),
	}
	l.nextID.Store(max)
	logger.Info("trade id allocator seeded", "max_trade_id", max)
	return l, nil
}

// NextID allocates the next trade id
func (l *Log) NextID() int64 {
	return l.nextID.Add(1)
}

// Recent returns the most recent trades for a symbol in id order
func (l *Log) Recent(ctx context.Context, symbol string, limit int) ([]*types.Trade, error) {
	return l.trades.TradesBySymbol(ctx, symbol, time.Time{}, limit)
}

// Since returns trades for a symbol executed at or after since
func (l *Log) Since(ctx context.Context, symbol string, since time.Time, limit int) ([]*types.Trade, error) {
	return l.trades.TradesBySymbol(ctx, symbol, since, limit)
}

// ByPrincipal returns trades where the principal was maker or taker
func (l *Log) ByPrincipal(ctx context.Context, principal uuid.UUID, since time.Time, limit int) ([]*types.Trade, error) {
	return l.trades.TradesByPrincipal(ctx, principal, since, limit)
}

// PeriodStats summarizes one symbol over a trailing window
type PeriodStats struct {
	Symbol      string
	Open        math.LegacyDec
	High        math.LegacyDec
	Low         math.LegacyDec
	Close       math.LegacyDec
	Volume      math.LegacyDec
	QuoteVolume math.LegacyDec
	TradeCount  int
}

// Stats folds the window's trades into OHLCV. Zero-valued stats are
// returned for a symbol with no trades in the window.
func (l *Log) Stats(ctx context.Context, symbol string, window time.Duration) (*PeriodStats, error) {
	trades, err := l.trades.TradesBySymbol(ctx, symbol, time.Now().UTC().Add(-window), 0)
	if err != nil {
		return nil, err
	}
	stats := &PeriodStats{
		Symbol:      symbol,
		Volume:      math.LegacyZeroDec(),
		QuoteVolume: math.LegacyZeroDec(),
	}
	for i, t := range trades {
		if i == 0 {
			stats.Open = t.Price
			stats.High = t.Price
			stats.Low = t.Price
		}
		if t.Price.GT(stats.High) {
			stats.High = t.Price
		}
		if t.Price.LT(stats.Low) {
			stats.Low = t.Price
		}
		stats.Close = t.Price
		stats.Volume = stats.Volume.Add(t.Quantity)
		stats.QuoteVolume = stats.QuoteVolume.Add(t.QuoteQuantity)
		stats.TradeCount++
	}
	return stats, nil
}
