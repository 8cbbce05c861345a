package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gwrxuk/FastTrading/market"
)

// MarketHandler serves public market data derived from the trade log
type MarketHandler struct {
	market *market.Service
}

func NewMarketHandler(svc *market.Service) *MarketHandler {
	return &MarketHandler{market: svc}
}

// HandlePrice serves GET /api/v1/market/price/{symbol}
func (h *MarketHandler) HandlePrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/v1/market/price/"))
	data, err := h.market.Price(r.Context(), symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// HandlePrices serves GET /api/v1/market/prices
func (h *MarketHandler) HandlePrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	prices, err := h.market.Prices(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"prices": prices})
}

// HandleTicker serves GET /api/v1/market/ticker/{symbol}
func (h *MarketHandler) HandleTicker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/v1/market/ticker/"))
	ticker, err := h.market.TickerFor(r.Context(), symbol)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticker)
}

// HandleTickers serves GET /api/v1/market/tickers
func (h *MarketHandler) HandleTickers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	tickers, err := h.market.Tickers(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickers": tickers})
}

// HandleCandles serves GET /api/v1/market/candles/{symbol}?interval=&limit=
func (h *MarketHandler) HandleCandles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/v1/market/candles/"))
	query := r.URL.Query()
	interval := query.Get("interval")
	if interval == "" {
		interval = "1h"
	}
	if !market.ValidInterval(interval) {
		writeError(w, http.StatusBadRequest, "invalid_interval", "interval must be one of 1m, 5m, 15m, 1h, 4h, 1d")
		return
	}
	limit := 0
	if l := query.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
	}

	candles, err := h.market.Candles(r.Context(), symbol, interval, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"candles":  candles,
	})
}

// HandleSymbols serves GET /api/v1/market/symbols
func (h *MarketHandler) HandleSymbols(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbols": h.market.Symbols()})
}
