package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
)

// AnomalyType labels the detector that raised an alert
type AnomalyType string

const (
	AnomalyVolumeSpike  AnomalyType = "volume_spike"
	AnomalyLargeTrade   AnomalyType = "large_trade"
	AnomalyRapidTrading AnomalyType = "rapid_trading"
	AnomalyWashTrading  AnomalyType = "wash_trading"
)

// Anomaly is one flagged observation in the trade stream. Severity is
// on a 1..10 scale; Principal is zero when the alert is market-wide.
type Anomaly struct {
	ID             string             `json:"id"`
	Type           AnomalyType        `json:"type"`
	Symbol         string             `json:"symbol"`
	Principal      uuid.UUID          `json:"principal,omitempty"`
	Severity       float64            `json:"severity"`
	Description    string             `json:"description"`
	DetectedAt     time.Time          `json:"detected_at"`
	Metrics        map[string]float64 `json:"metrics"`
	Recommendation string             `json:"recommendation"`
}

// Anomalies scans the last lookback of a symbol's trades with four
// detectors: hourly volume spikes, outsized trades, per-principal
// rapid trading, and matched buy/sell volume suggestive of wash
// trading. Lookback is clamped to 1h..168h. Results are ordered by
// severity, then recency.
func (s *Service) Anomalies(ctx context.Context, symbol string, lookback time.Duration) ([]*Anomaly, error) {
	if lookback < time.Hour {
		lookback = time.Hour
	}
	if lookback > 168*time.Hour {
		lookback = 168 * time.Hour
	}
	trades, err := s.trades.Since(ctx, symbol, s.now().Add(-lookback), 0)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, nil
	}

	var out []*Anomaly
	out = append(out, detectVolumeSpikes(symbol, trades)...)
	out = append(out, detectLargeTrades(symbol, trades)...)
	out = append(out, detectRapidTrading(symbol, trades)...)
	out = append(out, s.detectWashTrading(symbol, trades)...)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out, nil
}

// detectVolumeSpikes bins trades into 1-hour buckets and flags any
// bucket whose volume exceeds mean + k*stdev across buckets. Needs at
// least ten trades spread over three buckets to be meaningful.
func detectVolumeSpikes(symbol string, trades []*types.Trade) []*Anomaly {
	if len(trades) < 10 {
		return nil
	}
	bins := make(map[int64]float64)
	for _, t := range trades {
		bins[t.ExecutedAt.Unix()/3600] += t.Quantity.MustFloat64()
	}
	if len(bins) < 3 {
		return nil
	}
	volumes := make([]float64, 0, len(bins))
	for _, v := range bins {
		volumes = append(volumes, v)
	}
	meanVol := mean(volumes)
	threshold := meanVol + volumeSpikeK*stdev(volumes)

	var out []*Anomaly
	for hour, vol := range bins {
		if vol <= threshold || meanVol <= 0 {
			continue
		}
		ratio := vol / meanVol
		out = append(out, &Anomaly{
			ID:          fmt.Sprintf("vol_%s_%d", symbol, hour),
			Type:        AnomalyVolumeSpike,
			Symbol:      symbol,
			Severity:    clip(ratio*2, 1, 10),
			Description: fmt.Sprintf("Volume spike detected: %.1fx average volume", ratio),
			DetectedAt:  time.Unix(hour*3600, 0).UTC(),
			Metrics: map[string]float64{
				"volume":         vol,
				"average_volume": meanVol,
				"spike_ratio":    ratio,
			},
			Recommendation: "Monitor for potential market manipulation or significant news event",
		})
	}
	return out
}

// detectLargeTrades flags trades above the 95th quantity percentile.
func detectLargeTrades(symbol string, trades []*types.Trade) []*Anomaly {
	if len(trades) < 10 {
		return nil
	}
	quantities := make([]float64, len(trades))
	for i, t := range trades {
		quantities[i] = t.Quantity.MustFloat64()
	}
	threshold := percentile(quantities, largeTradePercentile)
	avg := mean(quantities)

	var out []*Anomaly
	for _, t := range trades {
		qty := t.Quantity.MustFloat64()
		if qty <= threshold || avg <= 0 {
			continue
		}
		ratio := qty / avg
		out = append(out, &Anomaly{
			ID:          fmt.Sprintf("whale_%d", t.TradeID),
			Type:        AnomalyLargeTrade,
			Symbol:      symbol,
			Principal:   t.TakerPrincipal,
			Severity:    clip(ratio, 1, 10),
			Description: fmt.Sprintf("Large trade detected: %.1fx average size", ratio),
			DetectedAt:  t.ExecutedAt,
			Metrics: map[string]float64{
				"trade_size":   qty,
				"average_size": avg,
				"trade_value":  t.QuoteQuantity.MustFloat64(),
			},
			Recommendation: "Review for market impact and potential whale activity",
		})
	}
	return out
}

// detectRapidTrading counts trades per (principal, minute), crediting
// both sides of each execution, and flags counts above the per-minute
// threshold.
func detectRapidTrading(symbol string, trades []*types.Trade) []*Anomaly {
	type key struct {
		principal uuid.UUID
		minute    int64
	}
	counts := make(map[key]int)
	for _, t := range trades {
		minute := t.ExecutedAt.Unix() / 60
		counts[key{t.TakerPrincipal, minute}]++
		if t.MakerPrincipal != t.TakerPrincipal {
			counts[key{t.MakerPrincipal, minute}]++
		}
	}

	var out []*Anomaly
	for k, count := range counts {
		if count <= rapidTradeThreshold {
			continue
		}
		out = append(out, &Anomaly{
			ID:          fmt.Sprintf("rapid_%s_%d", k.principal, k.minute),
			Type:        AnomalyRapidTrading,
			Symbol:      symbol,
			Principal:   k.principal,
			Severity:    clip(float64(count)/rapidTradeThreshold, 1, 10),
			Description: fmt.Sprintf("Rapid trading: %d trades in 1 minute", count),
			DetectedAt:  time.Unix(k.minute*60, 0).UTC(),
			Metrics: map[string]float64{
				"trades_per_minute": float64(count),
				"threshold":         rapidTradeThreshold,
			},
			Recommendation: "Review for automated trading or potential market manipulation",
		})
	}
	return out
}

// detectWashTrading flags principals whose buy and sell volumes on
// the symbol match within 10% at significant size.
func (s *Service) detectWashTrading(symbol string, trades []*types.Trade) []*Anomaly {
	type flow struct{ buy, sell float64 }
	flows := make(map[uuid.UUID]*flow)
	add := func(p uuid.UUID, side types.Side, qty float64) {
		f := flows[p]
		if f == nil {
			f = &flow{}
			flows[p] = f
		}
		if side == types.SideBuy {
			f.buy += qty
		} else {
			f.sell += qty
		}
	}
	for _, t := range trades {
		qty := t.Quantity.MustFloat64()
		add(t.TakerPrincipal, t.Side, qty)
		add(t.MakerPrincipal, t.Side.Opposite(), qty)
	}

	var out []*Anomaly
	for principal, f := range flows {
		if f.buy <= 0 || f.sell <= 0 {
			continue
		}
		minVol, maxVol := f.buy, f.sell
		if minVol > maxVol {
			minVol, maxVol = maxVol, minVol
		}
		ratio := minVol / maxVol
		if ratio <= washMatchRatio || minVol <= washMinVolume {
			continue
		}
		out = append(out, &Anomaly{
			ID:          fmt.Sprintf("wash_%s_%s", principal, symbol),
			Type:        AnomalyWashTrading,
			Symbol:      symbol,
			Principal:   principal,
			Severity:    8,
			Description: fmt.Sprintf("Potential wash trading: buy/sell ratio %.0f%%", ratio*100),
			DetectedAt:  s.now(),
			Metrics: map[string]float64{
				"buy_volume":  f.buy,
				"sell_volume": f.sell,
				"match_ratio": ratio,
			},
			Recommendation: "Investigate for potential wash trading or self-dealing",
		})
	}
	return out
}
