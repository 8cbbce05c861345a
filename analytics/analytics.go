// Package analytics derives risk scores, anomaly flags, portfolio
// breakdowns, price forecasts, and sentiment from the trade log. All
// derivations are pure reads: nothing here mutates engine or store
// state, so every output is recomputable from the same window.
package analytics

import (
	"math"
	"sort"
	"time"

	"cosmossdk.io/log"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/tradelog"
	"github.com/gwrxuk/FastTrading/engine/types"
)

const (
	// volumeSpikeK flags hourly bins above mean + K stdev.
	volumeSpikeK = 3.0
	// largeTradePercentile flags trades above this quantity percentile.
	largeTradePercentile = 95
	// rapidTradeThreshold flags principals above this many trades per minute.
	rapidTradeThreshold = 10
	// washMatchRatio flags principals whose buy/sell volumes match closer than this.
	washMatchRatio = 0.9
	// washMinVolume is the smallest matched volume worth flagging.
	washMinVolume = 100.0

	// predictionMinTrades is the floor below which forecasts are neutral.
	predictionMinTrades = 50
	rsiPeriod           = 14

	defaultLookback = 24 * time.Hour
	riskWindow      = 30 * 24 * time.Hour
)

// Service computes read-only analytics over the trade log.
type Service struct {
	trades *tradelog.Log
	logger log.Logger
	now    func() time.Time
}

func NewService(trades *tradelog.Log, logger log.Logger) *Service {
	return &Service{
		trades: trades,
		logger: logger.With("component", "analytics"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// sideFor maps a trade onto one principal's perspective. The taker
// side is recorded on the trade; the maker took the opposite side.
func sideFor(t *types.Trade, principal uuid.UUID) (types.Side, bool) {
	switch {
	case t.TakerPrincipal == principal:
		return t.Side, true
	case t.MakerPrincipal == principal:
		return t.Side.Opposite(), true
	default:
		return types.SideUnspecified, false
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev is the sample standard deviation; zero for fewer than two values.
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// percentile returns the p-th percentile by rank over a copy of xs.
func percentile(xs []float64, p int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
