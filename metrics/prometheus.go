package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Singleton collector
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds all exchange metrics
type Collector struct {
	// Order metrics
	OrdersTotal   *prometheus.CounterVec
	OrdersActive  *prometheus.GaugeVec
	OrderLatency  *prometheus.HistogramVec
	OrderRejects  *prometheus.CounterVec

	// Matching engine metrics
	MatchingLatency *prometheus.HistogramVec
	OrderbookDepth  *prometheus.GaugeVec
	SpreadBps       *prometheus.GaugeVec

	// Trade metrics
	TradesTotal *prometheus.CounterVec
	TradeVolume *prometheus.CounterVec
	TradeValue  *prometheus.CounterVec

	// Wallet metrics
	WithdrawalsTotal *prometheus.CounterVec
	WithdrawalValue  *prometheus.CounterVec
	BalanceReserves  *prometheus.GaugeVec

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec
	WSSubscriptions     *prometheus.GaugeVec

	// API metrics
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	APIErrorsTotal    *prometheus.CounterVec
	RateLimitHits     *prometheus.CounterVec

	// System metrics
	ActiveUsers prometheus.Gauge
}

// GetCollector returns the singleton metrics collector
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{}

	c.OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Total number of orders submitted",
		},
		[]string{"symbol", "side", "type", "status"},
	)

	c.OrdersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fasttrading",
			Subsystem: "orders",
			Name:      "active",
			Help:      "Number of resting orders",
		},
		[]string{"symbol", "side"},
	)

	c.OrderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fasttrading",
			Subsystem: "orders",
			Name:      "latency_ms",
			Help:      "Order processing latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"symbol", "type"},
	)

	c.OrderRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "orders",
			Name:      "rejects_total",
			Help:      "Orders rejected before reaching the book",
		},
		[]string{"symbol", "reason"},
	)

	c.MatchingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fasttrading",
			Subsystem: "matching",
			Name:      "latency_ms",
			Help:      "Matching engine latency in milliseconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50},
		},
		[]string{"symbol"},
	)

	c.OrderbookDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fasttrading",
			Subsystem: "orderbook",
			Name:      "depth",
			Help:      "Orderbook depth (number of price levels)",
		},
		[]string{"symbol", "side"},
	)

	c.SpreadBps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fasttrading",
			Subsystem: "orderbook",
			Name:      "spread_bps",
			Help:      "Bid-ask spread in basis points",
		},
		[]string{"symbol"},
	)

	c.TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "trades",
			Name:      "total",
			Help:      "Total number of trades executed",
		},
		[]string{"symbol"},
	)

	c.TradeVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "trades",
			Name:      "volume",
			Help:      "Total trading volume in the base asset",
		},
		[]string{"symbol"},
	)

	c.TradeValue = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "trades",
			Name:      "quote_volume",
			Help:      "Total trading value in the quote asset",
		},
		[]string{"symbol"},
	)

	c.WithdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "wallets",
			Name:      "withdrawals_total",
			Help:      "Total withdrawal requests",
		},
		[]string{"currency", "status"},
	)

	c.WithdrawalValue = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "wallets",
			Name:      "withdrawal_value",
			Help:      "Total withdrawn value per currency",
		},
		[]string{"currency"},
	)

	c.BalanceReserves = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fasttrading",
			Subsystem: "wallets",
			Name:      "locked_balance",
			Help:      "Locked balance per asset across all principals",
		},
		[]string{"asset"},
	)

	c.WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fasttrading",
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of active WebSocket sessions",
		},
	)

	c.WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "Total WebSocket frames sent",
		},
		[]string{"channel"},
	)

	c.WSSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fasttrading",
			Subsystem: "websocket",
			Name:      "subscriptions",
			Help:      "Active subscriptions per channel prefix",
		},
		[]string{"channel"},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total API requests",
		},
		[]string{"method", "path", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fasttrading",
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "API request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "path"},
	)

	c.APIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Total API errors",
		},
		[]string{"method", "path", "error_type"},
	)

	c.RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fasttrading",
			Subsystem: "api",
			Name:      "rate_limit_hits",
			Help:      "Total rate limit hits",
		},
		[]string{"limit_type"},
	)

	c.ActiveUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fasttrading",
			Subsystem: "system",
			Name:      "active_users",
			Help:      "Principals with at least one session or open order",
		},
	)

	c.registerAll()
	return c
}

func (c *Collector) registerAll() {
	prometheus.MustRegister(c.OrdersTotal)
	prometheus.MustRegister(c.OrdersActive)
	prometheus.MustRegister(c.OrderLatency)
	prometheus.MustRegister(c.OrderRejects)

	prometheus.MustRegister(c.MatchingLatency)
	prometheus.MustRegister(c.OrderbookDepth)
	prometheus.MustRegister(c.SpreadBps)

	prometheus.MustRegister(c.TradesTotal)
	prometheus.MustRegister(c.TradeVolume)
	prometheus.MustRegister(c.TradeValue)

	prometheus.MustRegister(c.WithdrawalsTotal)
	prometheus.MustRegister(c.WithdrawalValue)
	prometheus.MustRegister(c.BalanceReserves)

	prometheus.MustRegister(c.WSConnectionsActive)
	prometheus.MustRegister(c.WSMessagesTotal)
	prometheus.MustRegister(c.WSSubscriptions)

	prometheus.MustRegister(c.APIRequestsTotal)
	prometheus.MustRegister(c.APIRequestLatency)
	prometheus.MustRegister(c.APIErrorsTotal)
	prometheus.MustRegister(c.RateLimitHits)

	prometheus.MustRegister(c.ActiveUsers)
}

// ============ Recording Helpers ============

// RecordOrder records an order event
func (c *Collector) RecordOrder(symbol, side, orderType, status string) {
	c.OrdersTotal.WithLabelValues(symbol, side, orderType, status).Inc()
}

// RecordOrderLatency records order processing latency
func (c *Collector) RecordOrderLatency(symbol, orderType string, latencyMs float64) {
	c.OrderLatency.WithLabelValues(symbol, orderType).Observe(latencyMs)
}

// RecordOrderReject records a pre-book rejection
func (c *Collector) RecordOrderReject(symbol, reason string) {
	c.OrderRejects.WithLabelValues(symbol, reason).Inc()
}

// RecordTrade records a trade event
func (c *Collector) RecordTrade(symbol string, volume, quoteVolume float64) {
	c.TradesTotal.WithLabelValues(symbol).Inc()
	c.TradeVolume.WithLabelValues(symbol).Add(volume)
	c.TradeValue.WithLabelValues(symbol).Add(quoteVolume)
}

// RecordMatchingLatency records matching engine latency
func (c *Collector) RecordMatchingLatency(symbol string, latencyMs float64) {
	c.MatchingLatency.WithLabelValues(symbol).Observe(latencyMs)
}

// RecordWithdrawal records a withdrawal request
func (c *Collector) RecordWithdrawal(currency, status string, value float64) {
	c.WithdrawalsTotal.WithLabelValues(currency, status).Inc()
	c.WithdrawalValue.WithLabelValues(currency).Add(value)
}

// RecordAPIRequest records an API request
func (c *Collector) RecordAPIRequest(method, path, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, path).Observe(latencyMs)
}

// RecordRateLimitHit records a throttled request
func (c *Collector) RecordRateLimitHit(limitType string) {
	c.RateLimitHits.WithLabelValues(limitType).Inc()
}

// RecordWSConnection records session count changes
func (c *Collector) RecordWSConnection(delta int) {
	c.WSConnectionsActive.Add(float64(delta))
}

// RecordWSMessage records a WebSocket frame
func (c *Collector) RecordWSMessage(channel string) {
	c.WSMessagesTotal.WithLabelValues(channel).Inc()
}

// ============ HTTP Handler ============

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for measuring latency
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
