package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const summaryMaxSymbols = 5

// Summary is the dashboard rollup: one principal's risk and insights
// paired with per-symbol forecasts and sentiment.
type Summary struct {
	RiskScore       *RiskScore             `json:"risk_score"`
	RecentAnomalies []*Anomaly             `json:"recent_anomalies"`
	Predictions     map[string]*Prediction `json:"predictions"`
	Sentiment       map[string]*Sentiment  `json:"sentiment"`
	Insights        []*Insight             `json:"insights"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// Summarize builds the rollup for a principal across the given
// symbols, at most five. A symbol whose derivation fails is skipped
// rather than failing the whole summary.
func (s *Service) Summarize(ctx context.Context, principal uuid.UUID, symbols []string) (*Summary, error) {
	risk, err := s.UserRiskScore(ctx, principal)
	if err != nil {
		return nil, err
	}
	portfolio, err := s.Portfolio(ctx, principal)
	if err != nil {
		return nil, err
	}

	out := &Summary{
		RiskScore:   risk,
		Predictions: make(map[string]*Prediction),
		Sentiment:   make(map[string]*Sentiment),
		Insights:    portfolio.Insights,
		GeneratedAt: s.now(),
	}

	if len(symbols) > summaryMaxSymbols {
		symbols = symbols[:summaryMaxSymbols]
	}
	for _, symbol := range symbols {
		anomalies, err := s.Anomalies(ctx, symbol, defaultLookback)
		if err != nil {
			s.logger.Debug("summary anomaly scan failed", "symbol", symbol, "err", err)
			continue
		}
		out.RecentAnomalies = append(out.RecentAnomalies, anomalies...)

		if p, err := s.PredictPrice(ctx, symbol, 60); err == nil {
			out.Predictions[symbol] = p
		}
		if sent, err := s.MarketSentiment(ctx, symbol); err == nil {
			out.Sentiment[symbol] = sent
		}
	}
	if len(out.RecentAnomalies) > 10 {
		out.RecentAnomalies = out.RecentAnomalies[:10]
	}
	return out, nil
}
