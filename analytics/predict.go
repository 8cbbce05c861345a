package analytics

import (
	"context"
	"time"
)

// Direction labels a forecast
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Prediction is a short-horizon price forecast built from trend and
// momentum indicators over the last 24h of executions.
type Prediction struct {
	Symbol         string             `json:"symbol"`
	CurrentPrice   float64            `json:"current_price"`
	PredictedPrice float64            `json:"predicted_price"`
	Confidence     float64            `json:"confidence"`
	Direction      Direction          `json:"direction"`
	HorizonMinutes int                `json:"horizon_minutes"`
	Factors        map[string]float64 `json:"factors"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

// PredictPrice combines SMA crossover, RSI, momentum, volume trend,
// and Bollinger width into a single signal and projects it over the
// horizon. Fewer than 50 trades in the window yields a neutral
// zero-confidence forecast rather than an error.
func (s *Service) PredictPrice(ctx context.Context, symbol string, horizonMinutes int) (*Prediction, error) {
	if horizonMinutes <= 0 {
		horizonMinutes = 60
	}
	trades, err := s.trades.Since(ctx, symbol, s.now().Add(-defaultLookback), 0)
	if err != nil {
		return nil, err
	}
	p := &Prediction{
		Symbol:         symbol,
		Direction:      DirectionNeutral,
		HorizonMinutes: horizonMinutes,
		Factors:        map[string]float64{},
		GeneratedAt:    s.now(),
	}
	if len(trades) < predictionMinTrades {
		return p, nil
	}

	prices := make([]float64, len(trades))
	volumes := make([]float64, len(trades))
	for i, t := range trades {
		prices[i] = t.Price.MustFloat64()
		volumes[i] = t.Quantity.MustFloat64()
	}
	current := prices[len(prices)-1]

	sma20 := mean(prices[len(prices)-20:])
	sma50 := mean(prices[len(prices)-50:])
	p.Factors["sma_20"] = sma20
	p.Factors["sma_50"] = sma50

	rsi := wilderRSI(prices, rsiPeriod)
	p.Factors["rsi"] = rsi

	momentum := (prices[len(prices)-1] - prices[len(prices)-10]) / prices[len(prices)-10] * 100
	p.Factors["momentum"] = momentum

	recentVol := mean(volumes[len(volumes)-10:])
	olderVol := mean(volumes[len(volumes)-50 : len(volumes)-10])
	volumeTrend := 1.0
	if olderVol > 0 {
		volumeTrend = recentVol / olderVol
	}
	p.Factors["volume_trend"] = volumeTrend

	bbWidth := 0.0
	if sma20 > 0 {
		bbWidth = stdev(prices[len(prices)-20:]) * 2 / sma20 * 100
	}
	p.Factors["bollinger_width"] = bbWidth

	var signal float64
	if sma20 > sma50 {
		signal += 0.2
	} else {
		signal -= 0.2
	}
	switch {
	case rsi < 30:
		signal += 0.3
	case rsi > 70:
		signal -= 0.3
	}
	signal += clip(momentum/10, -0.3, 0.3)
	if volumeTrend > 1.5 {
		if momentum > 0 {
			signal += 0.1
		} else {
			signal -= 0.1
		}
	}
	signal = clip(signal, -1, 1)
	p.Factors["signal"] = signal

	change := signal * (float64(horizonMinutes) / 60) * 0.5
	p.CurrentPrice = current
	p.PredictedPrice = current * (1 + change/100)

	switch {
	case signal > 0.2:
		p.Direction = DirectionBullish
		p.Confidence = clip(0.5+signal, 0, 0.85)
	case signal < -0.2:
		p.Direction = DirectionBearish
		p.Confidence = clip(0.5-signal, 0, 0.85)
	default:
		p.Direction = DirectionNeutral
		p.Confidence = 0.5
	}
	return p, nil
}

// wilderRSI computes RSI with Wilder smoothing: seed averages from
// the first period deltas, then fold the remainder with weight
// 1/period. Returns 50 with insufficient data or a flat series and
// 100 when the window gains without losses.
func wilderRSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgGain == 0 && avgLoss == 0 {
		// Flat series carries no directional signal
		return 50
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
