package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/api/middleware"
	"github.com/gwrxuk/FastTrading/engine/matching"
	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/metrics"
	"github.com/gwrxuk/FastTrading/store"
)

// TradeCapChecker enforces a principal's daily quote turnover limit
type TradeCapChecker interface {
	CheckDailyTradeCap(ctx context.Context, principal uuid.UUID, orderValue math.LegacyDec) error
}

// OrderHandler serves order placement, cancellation, and book depth
type OrderHandler struct {
	engine   *matching.Engine
	orders   store.OrderStore
	tradeCap TradeCapChecker
}

func NewOrderHandler(engine *matching.Engine, orders store.OrderStore, tradeCap TradeCapChecker) *OrderHandler {
	return &OrderHandler{engine: engine, orders: orders, tradeCap: tradeCap}
}

// PlaceOrderRequest is the POST /orders body
type PlaceOrderRequest struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force,omitempty"`
	Price         string `json:"price,omitempty"`
	StopPrice     string `json:"stop_price,omitempty"`
	Quantity      string `json:"quantity"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"` // RFC3339, gtd only
}

// PlaceOrderResponse pairs the accepted order with its executions
type PlaceOrderResponse struct {
	Order  *OrderView   `json:"order"`
	Trades []*TradeView `json:"trades"`
}

// HandleOrders serves /api/v1/orders (GET list, POST place)
func (h *OrderHandler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listOrders(w, r)
	case http.MethodPost:
		h.placeOrder(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

// HandleOrder serves /api/v1/orders/{id} (GET, DELETE)
func (h *OrderHandler) HandleOrder(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/orders/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "missing_order_id", "Order ID is required")
		return
	}
	orderID, err := uuid.Parse(rest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_order_id", "Order ID must be a UUID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getOrder(w, r, orderID)
	case http.MethodDelete:
		h.cancelOrder(w, r, orderID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	}
}

func (h *OrderHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if req.Symbol == "" || req.Side == "" || req.Type == "" || req.Quantity == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "symbol, side, type, and quantity are required")
		return
	}

	qty, err := parseDec(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
		return
	}
	var price, stopPrice math.LegacyDec
	if req.Price != "" {
		if price, err = parseDec(req.Price); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_price", err.Error())
			return
		}
	}
	if req.StopPrice != "" {
		if stopPrice, err = parseDec(req.StopPrice); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_stop_price", err.Error())
			return
		}
	}

	tif := types.TimeInForceFromString(req.TimeInForce)
	if req.TimeInForce == "" {
		tif = types.TimeInForceGTC
	}

	order := types.NewOrder(
		principal,
		req.ClientOrderID,
		strings.ToUpper(req.Symbol),
		types.SideFromString(req.Side),
		types.OrderTypeFromString(req.Type),
		tif,
		price,
		stopPrice,
		qty,
	)
	if req.ExpiresAt != "" {
		expires, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_expires_at", "expires_at must be RFC3339")
			return
		}
		order.ExpiresAt = &expires
	}

	// The daily cap is checked on notional value. Market orders carry
	// no price, so their notional is estimated from the last trade or
	// the best resting quote they would cross.
	if h.tradeCap != nil {
		capPrice := price
		if capPrice.IsNil() {
			capPrice = h.referencePrice(order)
		}
		if !capPrice.IsNil() && capPrice.IsPositive() {
			if err := h.tradeCap.CheckDailyTradeCap(r.Context(), principal, capPrice.Mul(qty)); err != nil {
				metrics.GetCollector().RecordOrderReject(order.Symbol, "daily_cap")
				writeDomainError(w, err)
				return
			}
		}
	}

	timer := metrics.NewTimer()
	result, err := h.engine.PlaceOrder(r.Context(), order)
	if err != nil {
		metrics.GetCollector().RecordOrderReject(order.Symbol, "engine")
		writeDomainError(w, err)
		return
	}
	collector := metrics.GetCollector()
	collector.RecordOrder(order.Symbol, order.Side.String(), order.Type.String(), result.Order.Status.String())
	collector.RecordOrderLatency(order.Symbol, order.Type.String(), timer.ElapsedMs())
	writeJSON(w, http.StatusCreated, &PlaceOrderResponse{
		Order:  orderView(result.Order),
		Trades: tradeViews(result.Trades),
	})
}

// referencePrice estimates a market order's execution price from the
// last trade, falling back to the best resting quote it would cross.
func (h *OrderHandler) referencePrice(order *types.Order) math.LegacyDec {
	last, bid, ask := h.engine.Quote(order.Symbol)
	if !last.IsNil() && last.IsPositive() {
		return last
	}
	if order.Side == types.SideBuy {
		return ask
	}
	return bid
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request, orderID uuid.UUID) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	order, err := h.engine.Cancel(r.Context(), principal, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order": orderView(order)})
}

// HandleCancelAll serves POST /api/v1/orders/cancel-all
func (h *OrderHandler) HandleCancelAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req struct {
		Symbol string `json:"symbol,omitempty"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	count, err := h.engine.CancelAll(r.Context(), principal, strings.ToUpper(req.Symbol))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": count})
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request, orderID uuid.UUID) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}
	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if order.Principal != principal {
		writeError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order": orderView(order)})
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
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

	orders, err := h.orders.OrdersByPrincipal(r.Context(), principal, strings.ToUpper(query.Get("symbol")), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orderViews(orders)})
}

// HandleBook serves GET /api/v1/orders/book/{symbol}?levels=
func (h *OrderHandler) HandleBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	symbol := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/v1/orders/book/"))
	if !types.ValidSymbol(symbol) {
		writeError(w, http.StatusBadRequest, "invalid_symbol", "Symbol must be BASE-QUOTE")
		return
	}
	levels := 20
	if l := r.URL.Query().Get("levels"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			levels = n
		}
	}

	bids, asks, seq := h.engine.Depth(symbol, levels)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"sequence": seq,
		"bids":     depthViews(bids),
		"asks":     depthViews(asks),
	})
}
