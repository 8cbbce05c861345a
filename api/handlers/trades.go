package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gwrxuk/FastTrading/api/middleware"
	"github.com/gwrxuk/FastTrading/engine/tradelog"
	"github.com/gwrxuk/FastTrading/engine/types"
)

// TradeHandler serves trade history and period statistics
type TradeHandler struct {
	trades *tradelog.Log
}

func NewTradeHandler(trades *tradelog.Log) *TradeHandler {
	return &TradeHandler{trades: trades}
}

var statsPeriods = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// HandleTrades serves GET /api/v1/trades
func (h *TradeHandler) HandleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	query := r.URL.Query()
	limit := 100
	if l := query.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	var since time.Time
	if s := query.Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since", "since must be RFC3339")
			return
		}
		since = parsed
	}

	trades, err := h.trades.ByPrincipal(r.Context(), principal, since, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if symbol := strings.ToUpper(query.Get("symbol")); symbol != "" {
		filtered := trades[:0]
		for _, t := range trades {
			if t.Symbol == symbol {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": tradeViews(trades)})
}

// HandleStats serves GET /api/v1/trades/stats?symbol=&period=
func (h *TradeHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	query := r.URL.Query()
	symbol := strings.ToUpper(query.Get("symbol"))
	if !types.ValidSymbol(symbol) {
		writeError(w, http.StatusBadRequest, "invalid_symbol", "Symbol must be BASE-QUOTE")
		return
	}
	period := query.Get("period")
	if period == "" {
		period = "24h"
	}
	window, ok := statsPeriods[period]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_period", "period must be one of 1h, 24h, 7d, 30d")
		return
	}

	stats, err := h.trades.Stats(r.Context(), symbol, window)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":       stats.Symbol,
		"period":       period,
		"open":         decString(stats.Open),
		"high":         decString(stats.High),
		"low":          decString(stats.Low),
		"close":        decString(stats.Close),
		"volume":       decString(stats.Volume),
		"quote_volume": decString(stats.QuoteVolume),
		"trade_count":  stats.TradeCount,
	})
}

// HandleRecent serves GET /api/v1/trades/recent/{symbol} (public)
func (h *TradeHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/v1/trades/recent/"))
	if !types.ValidSymbol(symbol) {
		writeError(w, http.StatusBadRequest, "invalid_symbol", "Symbol must be BASE-QUOTE")
		return
	}
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	trades, err := h.trades.Recent(r.Context(), symbol, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"trades": tradeViews(trades),
	})
}
