package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/api/middleware"
	"github.com/gwrxuk/FastTrading/auth"
	"github.com/gwrxuk/FastTrading/engine/matching"
	"github.com/gwrxuk/FastTrading/engine/tradelog"
	"github.com/gwrxuk/FastTrading/pubsub"
	"github.com/gwrxuk/FastTrading/store"
	"github.com/gwrxuk/FastTrading/wallet"
)

type apiFixture struct {
	store  *store.Memory
	gate   *wallet.Gate
	engine *matching.Engine
	auth   *auth.Service
	orders *OrderHandler
	users  *AuthHandler
	trades *TradeHandler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mem := store.NewMemory()
	gate := wallet.NewGate(mem, log.NewNopLogger())
	trades, err := tradelog.Open(context.Background(), mem, log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	bus := pubsub.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })
	engine := matching.New(mem, gate, trades, bus, log.NewNopLogger())
	authSvc := auth.NewService(mem, []byte("handlers-test-secret"), log.NewNopLogger())
	return &apiFixture{
		store:  mem,
		gate:   gate,
		engine: engine,
		auth:   authSvc,
		orders: NewOrderHandler(engine, mem, wallet.NewService(mem, gate, log.NewNopLogger())),
		users:  NewAuthHandler(authSvc),
		trades: NewTradeHandler(trades),
	}
}

// register creates an account, funds it, and returns its principal
// with a request decorator that injects the authenticated context.
func (f *apiFixture) register(t *testing.T, email string) (uuid.UUID, func(*http.Request) *http.Request) {
	t.Helper()
	user, err := f.auth.Register(context.Background(), email, "str0ng-passw0rd")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, asset := range []string{"BTC", "USDT"} {
		if err := f.gate.Deposit(context.Background(), user.ID, asset, math.LegacyNewDec(1000000)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	principal := user.ID
	return principal, func(r *http.Request) *http.Request {
		return r.WithContext(middleware.WithPrincipal(r.Context(), principal))
	}
}

func postJSON(t *testing.T, path string, body interface{}) *http.Request {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestPlaceOrderAccepted(t *testing.T) {
	f := newAPIFixture(t)
	_, asUser := f.register(t, "maker@example.com")

	req := asUser(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol:   "btc-usdt",
		Side:     "buy",
		Type:     "limit",
		Price:    "50000",
		Quantity: "0.5",
	}))
	rec := httptest.NewRecorder()
	f.orders.HandleOrders(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp PlaceOrderResponse
	decodeBody(t, rec, &resp)
	if resp.Order.Symbol != "BTC-USDT" {
		t.Errorf("symbol = %q, want BTC-USDT", resp.Order.Symbol)
	}
	if resp.Order.Status != "open" {
		t.Errorf("status = %q, want open", resp.Order.Status)
	}
	if len(resp.Trades) != 0 {
		t.Errorf("trades = %d, want 0", len(resp.Trades))
	}
}

func TestPlaceOrderRequiresAuth(t *testing.T) {
	f := newAPIFixture(t)
	req := postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "buy", Type: "limit", Price: "1", Quantity: "1",
	})
	rec := httptest.NewRecorder()
	f.orders.HandleOrders(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPlaceOrderMissingFields(t *testing.T) {
	f := newAPIFixture(t)
	_, asUser := f.register(t, "maker@example.com")

	req := asUser(postJSON(t, "/api/v1/orders", PlaceOrderRequest{Symbol: "BTC-USDT"}))
	rec := httptest.NewRecorder()
	f.orders.HandleOrders(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPlaceOrderInsufficientFunds(t *testing.T) {
	f := newAPIFixture(t)
	user, err := f.auth.Register(context.Background(), "poor@example.com", "str0ng-passw0rd")
	if err != nil {
		t.Fatal(err)
	}

	req := postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "buy", Type: "limit", Price: "50000", Quantity: "1",
	})
	req = req.WithContext(middleware.WithPrincipal(req.Context(), user.ID))
	rec := httptest.NewRecorder()
	f.orders.HandleOrders(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestPlaceOrderDailyCapExceeded(t *testing.T) {
	f := newAPIFixture(t)
	_, asUser := f.register(t, "whale@example.com")

	// Default daily trade limit is 1,000,000 quote units.
	req := asUser(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "buy", Type: "limit", Price: "50000", Quantity: "100",
	}))
	rec := httptest.NewRecorder()
	f.orders.HandleOrders(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Message string `json:"message"`
	}
	decodeBody(t, rec, &resp)
	if !strings.Contains(resp.Message, "daily trade limit") {
		t.Errorf("message = %q, want daily trade limit rejection", resp.Message)
	}
}

func TestMarketOrderDailyCapExceeded(t *testing.T) {
	f := newAPIFixture(t)
	_, asMaker := f.register(t, "maker@example.com")
	_, asTaker := f.register(t, "taker@example.com")
	_, asWhale := f.register(t, "whale@example.com")

	// Establish a last trade price of 50000 for the notional estimate.
	rec := httptest.NewRecorder()
	f.orders.HandleOrders(rec, asMaker(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "sell", Type: "limit", Price: "50000", Quantity: "1",
	})))
	if rec.Code != http.StatusCreated {
		t.Fatalf("maker status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	f.orders.HandleOrders(rec, asTaker(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "buy", Type: "limit", Price: "50000", Quantity: "1",
	})))
	if rec.Code != http.StatusCreated {
		t.Fatalf("taker status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// 100 at the 50000 reference price is well over the 1,000,000 cap.
	rec = httptest.NewRecorder()
	f.orders.HandleOrders(rec, asWhale(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "buy", Type: "market", Quantity: "100",
	})))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
	}
	decodeBody(t, rec, &resp)
	if !strings.Contains(resp.Message, "daily trade limit") {
		t.Errorf("message = %q, want daily trade limit rejection", resp.Message)
	}
}

func TestPlaceThenMatchReportsTrades(t *testing.T) {
	f := newAPIFixture(t)
	_, asMaker := f.register(t, "maker@example.com")
	_, asTaker := f.register(t, "taker@example.com")

	rec := httptest.NewRecorder()
	f.orders.HandleOrders(rec, asMaker(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "sell", Type: "limit", Price: "50000", Quantity: "1",
	})))
	if rec.Code != http.StatusCreated {
		t.Fatalf("maker status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	f.orders.HandleOrders(rec, asTaker(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "buy", Type: "limit", Price: "50000", Quantity: "1",
	})))
	if rec.Code != http.StatusCreated {
		t.Fatalf("taker status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp PlaceOrderResponse
	decodeBody(t, rec, &resp)
	if resp.Order.Status != "filled" {
		t.Errorf("taker status = %q, want filled", resp.Order.Status)
	}
	if len(resp.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(resp.Trades))
	}
	if resp.Trades[0].Price != "50000.000000000000000000" {
		t.Errorf("trade price = %q", resp.Trades[0].Price)
	}
}

func TestCancelOrder(t *testing.T) {
	f := newAPIFixture(t)
	_, asUser := f.register(t, "maker@example.com")

	rec := httptest.NewRecorder()
	f.orders.HandleOrders(rec, asUser(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "buy", Type: "limit", Price: "50000", Quantity: "1",
	})))
	var placed PlaceOrderResponse
	decodeBody(t, rec, &placed)

	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/orders/"+placed.Order.ID, nil))
	rec = httptest.NewRecorder()
	f.orders.HandleOrder(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Order *OrderView `json:"order"`
	}
	decodeBody(t, rec, &resp)
	if resp.Order.Status != "cancelled" {
		t.Errorf("status = %q, want cancelled", resp.Order.Status)
	}
}

func TestGetForeignOrderHidden(t *testing.T) {
	f := newAPIFixture(t)
	_, asOwner := f.register(t, "owner@example.com")
	_, asOther := f.register(t, "other@example.com")

	rec := httptest.NewRecorder()
	f.orders.HandleOrders(rec, asOwner(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "buy", Type: "limit", Price: "50000", Quantity: "1",
	})))
	var placed PlaceOrderResponse
	decodeBody(t, rec, &placed)

	req := asOther(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+placed.Order.ID, nil))
	rec = httptest.NewRecorder()
	f.orders.HandleOrder(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBookDepth(t *testing.T) {
	f := newAPIFixture(t)
	_, asUser := f.register(t, "maker@example.com")

	for _, price := range []string{"49000", "49500", "49900"} {
		rec := httptest.NewRecorder()
		f.orders.HandleOrders(rec, asUser(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
			Symbol: "BTC-USDT", Side: "buy", Type: "limit", Price: price, Quantity: "1",
		})))
		if rec.Code != http.StatusCreated {
			t.Fatalf("place at %s: %d", price, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/book/BTC-USDT?levels=2", nil)
	rec := httptest.NewRecorder()
	f.orders.HandleBook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Symbol string      `json:"symbol"`
		Bids   []DepthView `json:"bids"`
		Asks   []DepthView `json:"asks"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Bids) != 2 {
		t.Fatalf("bids = %d, want 2", len(resp.Bids))
	}
	if resp.Bids[0].Price != "49900.000000000000000000" {
		t.Errorf("best bid = %q", resp.Bids[0].Price)
	}
	if len(resp.Asks) != 0 {
		t.Errorf("asks = %d, want 0", len(resp.Asks))
	}
}

func TestBookRejectsBadSymbol(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/book/BTCUSDT", nil)
	rec := httptest.NewRecorder()
	f.orders.HandleBook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRegisterAndLoginRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	rec := httptest.NewRecorder()
	f.users.HandleRegister(rec, postJSON(t, "/api/v1/auth/register", credentialsRequest{
		Email: "alice@example.com", Password: "str0ng-passw0rd",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	f.users.HandleLogin(rec, postJSON(t, "/api/v1/auth/login", credentialsRequest{
		Email: "alice@example.com", Password: "str0ng-passw0rd",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decodeBody(t, rec, &tok)
	if tok.AccessToken == "" {
		t.Fatal("empty access token")
	}
	if tok.TokenType != "bearer" {
		t.Errorf("token type = %q, want bearer", tok.TokenType)
	}

	principal, err := f.auth.Authenticate(tok.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal == uuid.Nil {
		t.Fatal("nil principal from token")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice@example.com")

	rec := httptest.NewRecorder()
	f.users.HandleLogin(rec, postJSON(t, "/api/v1/auth/login", credentialsRequest{
		Email: "alice@example.com", Password: "wrong",
	}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRecentTradesPublic(t *testing.T) {
	f := newAPIFixture(t)
	_, asMaker := f.register(t, "maker@example.com")
	_, asTaker := f.register(t, "taker@example.com")

	rec := httptest.NewRecorder()
	f.orders.HandleOrders(rec, asMaker(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "sell", Type: "limit", Price: "50000", Quantity: "1",
	})))
	rec = httptest.NewRecorder()
	f.orders.HandleOrders(rec, asTaker(postJSON(t, "/api/v1/orders", PlaceOrderRequest{
		Symbol: "BTC-USDT", Side: "buy", Type: "limit", Price: "50000", Quantity: "1",
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trades/recent/BTC-USDT", nil)
	rec = httptest.NewRecorder()
	f.trades.HandleRecent(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Symbol string       `json:"symbol"`
		Trades []*TradeView `json:"trades"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(resp.Trades))
	}
	if resp.Trades[0].Symbol != "BTC-USDT" {
		t.Errorf("symbol = %q", resp.Trades[0].Symbol)
	}
}
