// Package api is the HTTP and WebSocket surface of the exchange
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"cosmossdk.io/log"

	"github.com/gwrxuk/FastTrading/analytics"
	"github.com/gwrxuk/FastTrading/api/handlers"
	"github.com/gwrxuk/FastTrading/api/middleware"
	"github.com/gwrxuk/FastTrading/api/websocket"
	"github.com/gwrxuk/FastTrading/auth"
	"github.com/gwrxuk/FastTrading/engine/matching"
	"github.com/gwrxuk/FastTrading/engine/tradelog"
	"github.com/gwrxuk/FastTrading/market"
	"github.com/gwrxuk/FastTrading/metrics"
	"github.com/gwrxuk/FastTrading/pubsub"
	"github.com/gwrxuk/FastTrading/store"
	"github.com/gwrxuk/FastTrading/wallet"
)

// Config contains server configuration
type Config struct {
	Host             string
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	DisableRateLimit bool // For testing purposes
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Deps are the wired services the server fronts
type Deps struct {
	Engine    *matching.Engine
	Trades    *tradelog.Log
	Store     store.Store
	Bus       pubsub.Bus
	Auth      *auth.Service
	Wallets   *wallet.Service
	Market    *market.Service
	Analytics *analytics.Service
	Logger    log.Logger
}

// Server is the API server
type Server struct {
	httpServer *http.Server
	config     *Config
	deps       Deps
	logger     log.Logger

	hub         *Hub
	rateLimiter *middleware.RateLimiter

	authHandler      *handlers.AuthHandler
	orderHandler     *handlers.OrderHandler
	tradeHandler     *handlers.TradeHandler
	marketHandler    *handlers.MarketHandler
	analyticsHandler *handlers.AnalyticsHandler
	walletHandler    *handlers.WalletHandler
}

// Hub aliases the websocket hub so callers need only the api package
type Hub = websocket.Hub

// NewServer wires the handler set around the given services
func NewServer(config *Config, deps Deps) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config:      config,
		deps:        deps,
		logger:      deps.Logger.With("component", "api"),
		hub:         websocket.NewHub(deps.Bus, deps.Auth, deps.Market.Symbols(), deps.Logger),
		rateLimiter: middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
	}

	s.authHandler = handlers.NewAuthHandler(deps.Auth)
	s.orderHandler = handlers.NewOrderHandler(deps.Engine, deps.Store, deps.Wallets)
	s.tradeHandler = handlers.NewTradeHandler(deps.Trades)
	s.marketHandler = handlers.NewMarketHandler(deps.Market)
	s.analyticsHandler = handlers.NewAnalyticsHandler(deps.Analytics, deps.Market)
	s.walletHandler = handlers.NewWalletHandler(deps.Wallets, deps.Store, deps.Store)

	return s
}

// WebSocketHub exposes the session hub so callers can run it
func (s *Server) WebSocketHub() *Hub {
	return s.hub
}

// Start blocks serving HTTP until the listener fails or Stop is called
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Public, unauthenticated
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/v1/auth/register", s.authHandler.HandleRegister)
	mux.HandleFunc("/api/v1/auth/login", s.authHandler.HandleLogin)

	mux.HandleFunc("/api/v1/trades/recent/", s.tradeHandler.HandleRecent)
	mux.HandleFunc("/api/v1/trades/stats", s.tradeHandler.HandleStats)

	mux.HandleFunc("/api/v1/market/price/", s.marketHandler.HandlePrice)
	mux.HandleFunc("/api/v1/market/prices", s.marketHandler.HandlePrices)
	mux.HandleFunc("/api/v1/market/ticker/", s.marketHandler.HandleTicker)
	mux.HandleFunc("/api/v1/market/tickers", s.marketHandler.HandleTickers)
	mux.HandleFunc("/api/v1/market/candles/", s.marketHandler.HandleCandles)
	mux.HandleFunc("/api/v1/market/symbols", s.marketHandler.HandleSymbols)

	mux.HandleFunc("/api/v1/orders/book/", s.orderHandler.HandleBook)

	// Authenticated
	mux.Handle("/api/v1/auth/me", middleware.RequireAuth(http.HandlerFunc(s.authHandler.HandleMe)))
	mux.Handle("/api/v1/auth/refresh", middleware.RequireAuth(http.HandlerFunc(s.authHandler.HandleRefresh)))

	mux.Handle("/api/v1/orders", middleware.RequireAuth(s.orderRoute()))
	mux.Handle("/api/v1/orders/cancel-all", middleware.RequireAuth(http.HandlerFunc(s.orderHandler.HandleCancelAll)))
	mux.Handle("/api/v1/orders/", middleware.RequireAuth(http.HandlerFunc(s.orderHandler.HandleOrder)))

	mux.Handle("/api/v1/trades", middleware.RequireAuth(http.HandlerFunc(s.tradeHandler.HandleTrades)))

	mux.Handle("/api/v1/analytics/anomalies", middleware.RequireAuth(http.HandlerFunc(s.analyticsHandler.HandleAnomalies)))
	mux.Handle("/api/v1/analytics/risk/user", middleware.RequireAuth(http.HandlerFunc(s.analyticsHandler.HandleUserRisk)))
	mux.Handle("/api/v1/analytics/predictions/", middleware.RequireAuth(http.HandlerFunc(s.analyticsHandler.HandlePrediction)))
	mux.Handle("/api/v1/analytics/portfolio", middleware.RequireAuth(http.HandlerFunc(s.analyticsHandler.HandlePortfolio)))
	mux.Handle("/api/v1/analytics/sentiment/", middleware.RequireAuth(http.HandlerFunc(s.analyticsHandler.HandleSentiment)))
	mux.Handle("/api/v1/analytics/summary", middleware.RequireAuth(http.HandlerFunc(s.analyticsHandler.HandleSummary)))
	mux.Handle("/api/v1/analytics/insights", middleware.RequireAuth(http.HandlerFunc(s.analyticsHandler.HandleInsights)))
	mux.Handle("/api/v1/analytics/metrics", middleware.RequireAuth(http.HandlerFunc(s.analyticsHandler.HandleMetrics)))

	mux.Handle("/api/v1/wallets/sign-message", middleware.RequireAuth(http.HandlerFunc(s.walletHandler.HandleSignMessage)))
	mux.Handle("/api/v1/wallets/bind", middleware.RequireAuth(http.HandlerFunc(s.walletHandler.HandleBind)))
	mux.Handle("/api/v1/wallets/balances", middleware.RequireAuth(http.HandlerFunc(s.walletHandler.HandleBalances)))
	mux.Handle("/api/v1/wallets/withdraw", middleware.RequireAuth(http.HandlerFunc(s.walletHandler.HandleWithdraw)))
	mux.Handle("/api/v1/wallets/transactions", middleware.RequireAuth(http.HandlerFunc(s.walletHandler.HandleTransactions)))
	mux.Handle("/api/v1/wallets", middleware.RequireAuth(http.HandlerFunc(s.walletHandler.HandleWallets)))

	// WebSocket upgrade authenticates from its own token parameter
	mux.HandleFunc("/ws", s.hub.ServeWS)

	// Middleware chain: CORS -> RateLimit -> Auth -> Handler
	var handler http.Handler = middleware.AuthMiddleware(s.deps.Auth)(mux)
	if !s.config.DisableRateLimit {
		handler = middleware.RateLimitMiddleware(s.rateLimiter)(handler)
	}
	handler = corsMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("api server starting", "addr", addr, "rate_limit", !s.config.DisableRateLimit)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// orderRoute applies the per-principal order budget to placements only
func (s *Server) orderRoute() http.Handler {
	base := http.HandlerFunc(s.orderHandler.HandleOrders)
	limited := middleware.OrderRateLimitMiddleware(s.rateLimiter)(base)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && !s.config.DisableRateLimit {
			limited.ServeHTTP(w, r)
			return
		}
		base.ServeHTTP(w, r)
	})
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		s.logger.Error("store ping failed", "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q,"timestamp":%d,"sessions":%d}`, status, time.Now().Unix(), s.hub.ClientCount())
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
