// Package market derives quote, ticker, and candle views from the
// live books and the trade log. Everything here is a read model: the
// matching engine is the source of bid/ask, the trade log the source
// of history.
package market

import (
	"context"
	"sort"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/gwrxuk/FastTrading/engine/matching"
	"github.com/gwrxuk/FastTrading/engine/tradelog"
	"github.com/gwrxuk/FastTrading/engine/types"
)

const tickerWindow = 24 * time.Hour

// Data is the spot quote for one symbol with trailing 24h statistics
type Data struct {
	Symbol           string          `json:"symbol"`
	Bid              *math.LegacyDec `json:"bid,omitempty"`
	Ask              *math.LegacyDec `json:"ask,omitempty"`
	Last             *math.LegacyDec `json:"last,omitempty"`
	Volume24h        math.LegacyDec  `json:"volume_24h"`
	High24h          *math.LegacyDec `json:"high_24h,omitempty"`
	Low24h           *math.LegacyDec `json:"low_24h,omitempty"`
	Change24h        math.LegacyDec  `json:"change_24h"`
	ChangePercent24h math.LegacyDec  `json:"change_percent_24h"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Ticker is the full 24h rollup for one symbol
type Ticker struct {
	Symbol             string          `json:"symbol"`
	PriceChange        math.LegacyDec  `json:"price_change"`
	PriceChangePercent math.LegacyDec  `json:"price_change_percent"`
	WeightedAvgPrice   math.LegacyDec  `json:"weighted_avg_price"`
	LastPrice          *math.LegacyDec `json:"last_price,omitempty"`
	BidPrice           *math.LegacyDec `json:"bid_price,omitempty"`
	BidQuantity        *math.LegacyDec `json:"bid_quantity,omitempty"`
	AskPrice           *math.LegacyDec `json:"ask_price,omitempty"`
	AskQuantity        *math.LegacyDec `json:"ask_quantity,omitempty"`
	OpenPrice          *math.LegacyDec `json:"open_price,omitempty"`
	HighPrice          *math.LegacyDec `json:"high_price,omitempty"`
	LowPrice           *math.LegacyDec `json:"low_price,omitempty"`
	Volume             math.LegacyDec  `json:"volume"`
	QuoteVolume        math.LegacyDec  `json:"quote_volume"`
	OpenTime           time.Time       `json:"open_time"`
	CloseTime          time.Time       `json:"close_time"`
	TradeCount         int             `json:"trade_count"`
}

// Candle is one OHLCV bucket
type Candle struct {
	Symbol     string         `json:"symbol"`
	Interval   string         `json:"interval"`
	OpenTime   time.Time      `json:"open_time"`
	CloseTime  time.Time      `json:"close_time"`
	Open       math.LegacyDec `json:"open"`
	High       math.LegacyDec `json:"high"`
	Low        math.LegacyDec `json:"low"`
	Close      math.LegacyDec `json:"close"`
	Volume     math.LegacyDec `json:"volume"`
	TradeCount int            `json:"trade_count"`
}

// candleIntervals maps wire names to bucket widths
var candleIntervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// ValidInterval reports whether the wire name is a known candle width
func ValidInterval(interval string) bool {
	_, ok := candleIntervals[interval]
	return ok
}

// Service serves market read models for a fixed set of listed symbols.
type Service struct {
	engine  *matching.Engine
	trades  *tradelog.Log
	symbols []string
	logger  log.Logger
	now     func() time.Time
}

func NewService(engine *matching.Engine, trades *tradelog.Log, symbols []string, logger log.Logger) *Service {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	return &Service{
		engine:  engine,
		trades:  trades,
		symbols: sorted,
		logger:  logger.With("component", "market"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Symbols lists the tradable pairs
func (s *Service) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *Service) listed(symbol string) bool {
	for _, sym := range s.symbols {
		if sym == symbol {
			return true
		}
	}
	return false
}

func decPtr(d math.LegacyDec) *math.LegacyDec {
	if d.IsNil() {
		return nil
	}
	return &d
}

// Price returns the live quote for one symbol with 24h statistics
// folded from the trade log.
func (s *Service) Price(ctx context.Context, symbol string) (*Data, error) {
	if !s.listed(symbol) {
		return nil, types.ErrInvalidSymbol.Wrap(symbol)
	}
	last, bid, ask := s.engine.Quote(symbol)
	stats, err := s.trades.Stats(ctx, symbol, tickerWindow)
	if err != nil {
		return nil, err
	}

	d := &Data{
		Symbol:           symbol,
		Bid:              decPtr(bid),
		Ask:              decPtr(ask),
		Last:             decPtr(last),
		Volume24h:        stats.Volume,
		High24h:          decPtr(stats.High),
		Low24h:           decPtr(stats.Low),
		Change24h:        math.LegacyZeroDec(),
		ChangePercent24h: math.LegacyZeroDec(),
		Timestamp:        s.now(),
	}
	if !stats.Open.IsNil() && !stats.Close.IsNil() {
		d.Change24h = stats.Close.Sub(stats.Open)
		if stats.Open.IsPositive() {
			d.ChangePercent24h = d.Change24h.Quo(stats.Open).MulInt64(100)
		}
	}
	return d, nil
}

// Prices returns quotes for every listed symbol
func (s *Service) Prices(ctx context.Context) ([]*Data, error) {
	out := make([]*Data, 0, len(s.symbols))
	for _, symbol := range s.symbols {
		d, err := s.Price(ctx, symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// TickerFor builds the 24h rollup for one symbol, combining book-top
// quantities with the windowed trade fold.
func (s *Service) TickerFor(ctx context.Context, symbol string) (*Ticker, error) {
	if !s.listed(symbol) {
		return nil, types.ErrInvalidSymbol.Wrap(symbol)
	}
	last, _, _ := s.engine.Quote(symbol)
	bids, asks, _ := s.engine.Depth(symbol, 1)
	stats, err := s.trades.Stats(ctx, symbol, tickerWindow)
	if err != nil {
		return nil, err
	}

	now := s.now()
	t := &Ticker{
		Symbol:             symbol,
		PriceChange:        math.LegacyZeroDec(),
		PriceChangePercent: math.LegacyZeroDec(),
		WeightedAvgPrice:   math.LegacyZeroDec(),
		LastPrice:          decPtr(last),
		OpenPrice:          decPtr(stats.Open),
		HighPrice:          decPtr(stats.High),
		LowPrice:           decPtr(stats.Low),
		Volume:             stats.Volume,
		QuoteVolume:        stats.QuoteVolume,
		OpenTime:           now.Add(-tickerWindow),
		CloseTime:          now,
		TradeCount:         stats.TradeCount,
	}
	if len(bids) > 0 {
		t.BidPrice = decPtr(bids[0].Price)
		t.BidQuantity = decPtr(bids[0].Quantity)
	}
	if len(asks) > 0 {
		t.AskPrice = decPtr(asks[0].Price)
		t.AskQuantity = decPtr(asks[0].Quantity)
	}
	if !stats.Open.IsNil() && !stats.Close.IsNil() {
		t.PriceChange = stats.Close.Sub(stats.Open)
		if stats.Open.IsPositive() {
			t.PriceChangePercent = t.PriceChange.Quo(stats.Open).MulInt64(100)
		}
	}
	if stats.Volume.IsPositive() {
		t.WeightedAvgPrice = stats.QuoteVolume.Quo(stats.Volume)
	}
	return t, nil
}

// Tickers returns the 24h rollup for every listed symbol
func (s *Service) Tickers(ctx context.Context) ([]*Ticker, error) {
	out := make([]*Ticker, 0, len(s.symbols))
	for _, symbol := range s.symbols {
		t, err := s.TickerFor(ctx, symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Candles buckets the symbol's trades into OHLCV bars of the given
// interval, newest last, at most limit bars back from now. Empty
// buckets are omitted.
func (s *Service) Candles(ctx context.Context, symbol, interval string, limit int) ([]*Candle, error) {
	if !s.listed(symbol) {
		return nil, types.ErrInvalidSymbol.Wrap(symbol)
	}
	width, ok := candleIntervals[interval]
	if !ok {
		return nil, types.ErrInvalidOrder.Wrapf("unknown candle interval %q", interval)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	since := s.now().Truncate(width).Add(-time.Duration(limit-1) * width)
	trades, err := s.trades.Since(ctx, symbol, since, 0)
	if err != nil {
		return nil, err
	}

	var out []*Candle
	var current *Candle
	for _, t := range trades {
		open := t.ExecutedAt.Truncate(width)
		if current == nil || !current.OpenTime.Equal(open) {
			current = &Candle{
				Symbol:    symbol,
				Interval:  interval,
				OpenTime:  open,
				CloseTime: open.Add(width),
				Open:      t.Price,
				High:      t.Price,
				Low:       t.Price,
				Close:     t.Price,
				Volume:    math.LegacyZeroDec(),
			}
			out = append(out, current)
		}
		if t.Price.GT(current.High) {
			current.High = t.Price
		}
		if t.Price.LT(current.Low) {
			current.Low = t.Price
		}
		current.Close = t.Price
		current.Volume = current.Volume.Add(t.Quantity)
		current.TradeCount++
	}
	return out, nil
}

// RecentTrades returns the latest executions for a symbol
func (s *Service) RecentTrades(ctx context.Context, symbol string, limit int) ([]*types.Trade, error) {
	if !s.listed(symbol) {
		return nil, types.ErrInvalidSymbol.Wrap(symbol)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.trades.Recent(ctx, symbol, limit)
}
