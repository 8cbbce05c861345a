// Package handlers implements the HTTP endpoints of the trading API.
// Handlers decode and validate requests, delegate to the domain
// services, and map domain errors onto HTTP status codes.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cosmossdk.io/math"

	"github.com/gwrxuk/FastTrading/engine/types"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// writeDomainError maps a domain error to its HTTP status
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrOrderNotFound),
		errors.Is(err, types.ErrWalletNotFound),
		errors.Is(err, types.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, types.ErrUnauthorized),
		errors.Is(err, types.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, types.ErrDuplicateClientOrder):
		writeError(w, http.StatusConflict, "duplicate_client_order", err.Error())
	case errors.Is(err, types.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, types.ErrSymbolHalted),
		errors.Is(err, types.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	}
}

// parseDec parses a required positive decimal request field
func parseDec(s string) (math.LegacyDec, error) {
	d, err := math.LegacyNewDecFromStr(s)
	if err != nil {
		return math.LegacyDec{}, err
	}
	return d, nil
}

func decString(d math.LegacyDec) string {
	if d.IsNil() {
		return ""
	}
	return d.String()
}

// OrderView is the wire representation of an order
type OrderView struct {
	ID            string     `json:"id"`
	ClientOrderID string     `json:"client_order_id,omitempty"`
	Symbol        string     `json:"symbol"`
	Side          string     `json:"side"`
	Type          string     `json:"type"`
	TimeInForce   string     `json:"time_in_force"`
	Price         string     `json:"price,omitempty"`
	StopPrice     string     `json:"stop_price,omitempty"`
	Quantity      string     `json:"quantity"`
	FilledQty     string     `json:"filled_quantity"`
	RemainingQty  string     `json:"remaining_quantity"`
	AvgFillPrice  string     `json:"avg_fill_price,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func orderView(o *types.Order) *OrderView {
	return &OrderView{
		ID:            o.ID.String(),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side.String(),
		Type:          o.Type.String(),
		TimeInForce:   o.TimeInForce.String(),
		Price:         decString(o.Price),
		StopPrice:     decString(o.StopPrice),
		Quantity:      decString(o.Quantity),
		FilledQty:     decString(o.FilledQty),
		RemainingQty:  decString(o.RemainingQty),
		AvgFillPrice:  decString(o.AvgFillPrice),
		Status:        o.Status.String(),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		ExpiresAt:     o.ExpiresAt,
	}
}

func orderViews(orders []*types.Order) []*OrderView {
	out := make([]*OrderView, len(orders))
	for i, o := range orders {
		out[i] = orderView(o)
	}
	return out
}

// TradeView is the wire representation of an execution
type TradeView struct {
	TradeID         int64     `json:"trade_id"`
	Symbol          string    `json:"symbol"`
	Price           string    `json:"price"`
	Quantity        string    `json:"quantity"`
	QuoteQuantity   string    `json:"quote_quantity"`
	Side            string    `json:"side"`
	Commission      string    `json:"commission,omitempty"`
	CommissionAsset string    `json:"commission_asset,omitempty"`
	ExecutedAt      time.Time `json:"executed_at"`
}

func tradeView(t *types.Trade) *TradeView {
	return &TradeView{
		TradeID:         t.TradeID,
		Symbol:          t.Symbol,
		Price:           decString(t.Price),
		Quantity:        decString(t.Quantity),
		QuoteQuantity:   decString(t.QuoteQuantity),
		Side:            t.Side.String(),
		Commission:      decString(t.Commission),
		CommissionAsset: t.CommissionAsset,
		ExecutedAt:      t.ExecutedAt,
	}
}

func tradeViews(trades []*types.Trade) []*TradeView {
	out := make([]*TradeView, len(trades))
	for i, t := range trades {
		out[i] = tradeView(t)
	}
	return out
}

// DepthView is one aggregated book row
type DepthView struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Orders   int    `json:"orders"`
}

func depthViews(levels []types.DepthLevel) []DepthView {
	out := make([]DepthView, len(levels))
	for i, l := range levels {
		out[i] = DepthView{
			Price:    decString(l.Price),
			Quantity: decString(l.Quantity),
			Orders:   l.OrderCount,
		}
	}
	return out
}
