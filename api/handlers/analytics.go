package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gwrxuk/FastTrading/analytics"
	"github.com/gwrxuk/FastTrading/api/middleware"
	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/market"
)

// AnalyticsHandler serves anomaly, risk, prediction, and portfolio queries
type AnalyticsHandler struct {
	analytics *analytics.Service
	market    *market.Service
}

func NewAnalyticsHandler(svc *analytics.Service, mkt *market.Service) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: svc, market: mkt}
}

// HandleAnomalies serves GET /api/v1/analytics/anomalies?symbol=&hours=
func (h *AnalyticsHandler) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	query := r.URL.Query()
	symbol := strings.ToUpper(query.Get("symbol"))
	if symbol != "" && !types.ValidSymbol(symbol) {
		writeError(w, http.StatusBadRequest, "invalid_symbol", "Symbol must be BASE-QUOTE")
		return
	}
	lookback := 24 * time.Hour
	if hrs := query.Get("hours"); hrs != "" {
		n, err := strconv.Atoi(hrs)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_hours", "hours must be a positive integer")
			return
		}
		lookback = time.Duration(n) * time.Hour
	}

	var anomalies []*analytics.Anomaly
	if symbol != "" {
		found, err := h.analytics.Anomalies(r.Context(), symbol, lookback)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		anomalies = found
	} else {
		for _, sym := range h.market.Symbols() {
			found, err := h.analytics.Anomalies(r.Context(), sym, lookback)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			anomalies = append(anomalies, found...)
		}
		sort.Slice(anomalies, func(i, j int) bool {
			if anomalies[i].Severity != anomalies[j].Severity {
				return anomalies[i].Severity > anomalies[j].Severity
			}
			return anomalies[i].DetectedAt.After(anomalies[j].DetectedAt)
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

// HandleUserRisk serves GET /api/v1/analytics/risk/user
func (h *AnalyticsHandler) HandleUserRisk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	score, err := h.analytics.UserRiskScore(r.Context(), principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// HandlePrediction serves GET /api/v1/analytics/predictions/{symbol}?horizon=
func (h *AnalyticsHandler) HandlePrediction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/v1/analytics/predictions/"))
	if !types.ValidSymbol(symbol) {
		writeError(w, http.StatusBadRequest, "invalid_symbol", "Symbol must be BASE-QUOTE")
		return
	}
	horizon := 0
	if hm := r.URL.Query().Get("horizon"); hm != "" {
		n, err := strconv.Atoi(hm)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_horizon", "horizon must be minutes as a positive integer")
			return
		}
		horizon = n
	}

	prediction, err := h.analytics.PredictPrice(r.Context(), symbol, horizon)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

// HandlePortfolio serves GET /api/v1/analytics/portfolio
func (h *AnalyticsHandler) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	portfolio, err := h.analytics.Portfolio(r.Context(), principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, portfolio)
}

// HandleSentiment serves GET /api/v1/analytics/sentiment/{symbol}
func (h *AnalyticsHandler) HandleSentiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/v1/analytics/sentiment/"))
	if !types.ValidSymbol(symbol) {
		writeError(w, http.StatusBadRequest, "invalid_symbol", "Symbol must be BASE-QUOTE")
		return
	}
	sentiment, err := h.analytics.MarketSentiment(r.Context(), symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sentiment)
}

// HandleSummary serves GET /api/v1/analytics/summary
func (h *AnalyticsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	summary, err := h.analytics.Summarize(r.Context(), principal, h.market.Symbols())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleInsights serves GET /api/v1/analytics/insights
func (h *AnalyticsHandler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	portfolio, err := h.analytics.Portfolio(r.Context(), principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"insights": portfolio.Insights})
}

// HandleMetrics serves GET /api/v1/analytics/metrics
func (h *AnalyticsHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	portfolio, err := h.analytics.Portfolio(r.Context(), principal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": portfolio.Metrics})
}
