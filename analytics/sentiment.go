package analytics

import (
	"context"
	"time"

	"github.com/gwrxuk/FastTrading/engine/types"
)

// Sentiment summarizes taker flow for a symbol over the last 24h.
// Score is 0..100 with 50 neutral; pressure figures are percentages
// of taker volume.
type Sentiment struct {
	Symbol       string    `json:"symbol"`
	Sentiment    string    `json:"sentiment"`
	Score        int       `json:"score"`
	BuyPressure  float64   `json:"buy_pressure"`
	SellPressure float64   `json:"sell_pressure"`
	VolumeTrend  string    `json:"volume_trend"`
	PriceTrend   string    `json:"price_trend"`
	AnalyzedAt   time.Time `json:"analyzed_at"`
}

// MarketSentiment scores buy pressure by taker side, reads the price
// trend off first-half vs second-half mean prices, and the volume
// trend off first-half vs second-half trade counts.
func (s *Service) MarketSentiment(ctx context.Context, symbol string) (*Sentiment, error) {
	trades, err := s.trades.Since(ctx, symbol, s.now().Add(-defaultLookback), 0)
	if err != nil {
		return nil, err
	}
	out := &Sentiment{
		Symbol:       symbol,
		Sentiment:    "neutral",
		Score:        50,
		BuyPressure:  50,
		SellPressure: 50,
		VolumeTrend:  "stable",
		PriceTrend:   "sideways",
		AnalyzedAt:   s.now(),
	}
	if len(trades) == 0 {
		return out, nil
	}

	var buyVolume, sellVolume float64
	for _, t := range trades {
		if t.Side == types.SideBuy {
			buyVolume += t.Quantity.MustFloat64()
		} else {
			sellVolume += t.Quantity.MustFloat64()
		}
	}
	if total := buyVolume + sellVolume; total > 0 {
		out.BuyPressure = buyVolume / total * 100
		out.SellPressure = sellVolume / total * 100
	}
	out.Score = int(out.BuyPressure)

	switch {
	case out.Score > 65:
		out.Sentiment = "bullish"
	case out.Score > 55:
		out.Sentiment = "slightly_bullish"
	case out.Score < 35:
		out.Sentiment = "bearish"
	case out.Score < 45:
		out.Sentiment = "slightly_bearish"
	}

	if len(trades) >= 10 {
		prices := make([]float64, len(trades))
		for i, t := range trades {
			prices[i] = t.Price.MustFloat64()
		}
		half := len(prices) / 2
		early, late := mean(prices[:half]), mean(prices[half:])
		if early > 0 {
			change := (late - early) / early * 100
			switch {
			case change > 2:
				out.PriceTrend = "uptrend"
			case change < -2:
				out.PriceTrend = "downtrend"
			}
		}
	}

	if len(trades) >= 20 {
		// halve the window by time, not by index, so a burst of
		// recent activity actually registers
		mid := trades[0].ExecutedAt.Add(trades[len(trades)-1].ExecutedAt.Sub(trades[0].ExecutedAt) / 2)
		var early, late float64
		for _, t := range trades {
			if t.ExecutedAt.Before(mid) {
				early++
			} else {
				late++
			}
		}
		switch {
		case late > early*1.5:
			out.VolumeTrend = "increasing"
		case late < early*0.6:
			out.VolumeTrend = "decreasing"
		}
	}
	return out, nil
}
