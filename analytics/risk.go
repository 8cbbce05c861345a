package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RiskLevel buckets an overall risk score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func levelFor(score float64) RiskLevel {
	switch {
	case score < 3:
		return RiskLow
	case score < 5:
		return RiskMedium
	case score < 7:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// RiskScore grades one principal's trading over the scoring window.
// Factors are each on a 0..10 scale before weighting.
type RiskScore struct {
	Principal       uuid.UUID          `json:"principal"`
	OverallScore    float64            `json:"overall_score"`
	Level           RiskLevel          `json:"level"`
	Factors         map[string]float64 `json:"factors"`
	Recommendations []string           `json:"recommendations"`
	CalculatedAt    time.Time          `json:"calculated_at"`
	Metrics         map[string]float64 `json:"metrics"`
}

// riskWeights must sum to 1.
var riskWeights = map[string]float64{
	"trading_volume":    0.25,
	"trading_frequency": 0.20,
	"concentration":     0.30,
	"volatility":        0.25,
}

// UserRiskScore weighs a principal's last 30 days of executions into
// a single 0..10 score: quote volume, trade frequency, single-symbol
// concentration, and trade-size volatility. Principals with fewer
// than ten trades get a default medium volatility factor.
func (s *Service) UserRiskScore(ctx context.Context, principal uuid.UUID) (*RiskScore, error) {
	trades, err := s.trades.ByPrincipal(ctx, principal, s.now().Add(-riskWindow), 0)
	if err != nil {
		return nil, err
	}

	factors := make(map[string]float64, len(riskWeights))

	var totalVolume float64
	values := make([]float64, 0, len(trades))
	symbolVolumes := make(map[string]float64)
	for _, t := range trades {
		v := t.QuoteQuantity.MustFloat64()
		totalVolume += v
		values = append(values, v)
		symbolVolumes[t.Symbol] += v
	}
	factors["trading_volume"] = clip(totalVolume/100000, 0, 10)

	tradesPerDay := float64(len(trades)) / 30
	factors["trading_frequency"] = clip(tradesPerDay/10, 0, 10)

	var maxShare float64
	if totalVolume > 0 {
		for _, v := range symbolVolumes {
			if share := v / totalVolume; share > maxShare {
				maxShare = share
			}
		}
	}
	factors["concentration"] = clip(maxShare*10, 0, 10)

	if len(trades) >= 10 && mean(values) > 0 {
		factors["volatility"] = clip(stdev(values)/mean(values)*10, 0, 10)
	} else {
		factors["volatility"] = 5
	}

	var overall float64
	for factor, weight := range riskWeights {
		overall += factors[factor] * weight
	}

	var recs []string
	if factors["concentration"] > 6 {
		recs = append(recs, "Diversify portfolio to reduce concentration risk")
	}
	if factors["trading_frequency"] > 7 {
		recs = append(recs, "Consider reducing trading frequency to manage risk")
	}
	if factors["volatility"] > 7 {
		recs = append(recs, "Implement stop-loss orders to manage volatility")
	}

	return &RiskScore{
		Principal:       principal,
		OverallScore:    overall,
		Level:           levelFor(overall),
		Factors:         factors,
		Recommendations: recs,
		CalculatedAt:    s.now(),
		Metrics: map[string]float64{
			"total_trades":   float64(len(trades)),
			"total_volume":   totalVolume,
			"unique_symbols": float64(len(symbolVolumes)),
		},
	}, nil
}
