package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gwrxuk/FastTrading/metrics"
)

// RateLimiter implements token bucket rate limiting keyed by client
// IP for anonymous traffic and by principal for order flow.
type RateLimiter struct {
	config *RateLimitConfig

	buckets   map[string]*bucket
	bucketsMu sync.RWMutex

	orderBuckets   map[string]*bucket
	orderBucketsMu sync.RWMutex

	dailyCounters   map[string]*dailyCounter
	dailyCountersMu sync.RWMutex

	cleanupTicker *time.Ticker
	stopCh        chan struct{}
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	IPRequestsPerSecond int
	IPBurst             int
	IPBlockDuration     time.Duration

	PrincipalRequestsPerSecond int
	PrincipalBurst             int

	OrdersPerSecond int
	OrdersPerDay    int
	OrderBurst      int

	CleanupInterval time.Duration
	BucketTTL       time.Duration
}

// DefaultRateLimitConfig returns default configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		IPRequestsPerSecond: 100,
		IPBurst:             200,
		IPBlockDuration:     time.Minute,

		PrincipalRequestsPerSecond: 200,
		PrincipalBurst:             400,

		OrdersPerSecond: 10,
		OrdersPerDay:    10000,
		OrderBurst:      20,

		CleanupInterval: 5 * time.Minute,
		BucketTTL:       time.Hour,
	}
}

type bucket struct {
	tokens       float64
	maxTokens    float64
	refillRate   float64
	lastUpdate   time.Time
	blocked      bool
	blockedUntil time.Time
	mu           sync.Mutex
}

type dailyCounter struct {
	count int
	limit int
	mu    sync.Mutex
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	rl := &RateLimiter{
		config:        config,
		buckets:       make(map[string]*bucket),
		orderBuckets:  make(map[string]*bucket),
		dailyCounters: make(map[string]*dailyCounter),
		cleanupTicker: time.NewTicker(config.CleanupInterval),
		stopCh:        make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop stops the cleanup loop
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
	rl.cleanupTicker.Stop()
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	threshold := time.Now().Add(-rl.config.BucketTTL)

	rl.bucketsMu.Lock()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if b.lastUpdate.Before(threshold) {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
	rl.bucketsMu.Unlock()

	rl.orderBucketsMu.Lock()
	for key, b := range rl.orderBuckets {
		b.mu.Lock()
		if b.lastUpdate.Before(threshold) {
			delete(rl.orderBuckets, key)
		}
		b.mu.Unlock()
	}
	rl.orderBucketsMu.Unlock()
}

func (rl *RateLimiter) getBucket(key string, maxTokens, refillRate float64) *bucket {
	rl.bucketsMu.RLock()
	b, ok := rl.buckets[key]
	rl.bucketsMu.RUnlock()
	if ok {
		return b
	}

	rl.bucketsMu.Lock()
	defer rl.bucketsMu.Unlock()
	if b, ok := rl.buckets[key]; ok {
		return b
	}
	b = &bucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastUpdate: time.Now(),
	}
	rl.buckets[key] = b
	return b
}

func (rl *RateLimiter) getOrderBucket(key string) *bucket {
	rl.orderBucketsMu.RLock()
	b, ok := rl.orderBuckets[key]
	rl.orderBucketsMu.RUnlock()
	if ok {
		return b
	}

	rl.orderBucketsMu.Lock()
	defer rl.orderBucketsMu.Unlock()
	if b, ok := rl.orderBuckets[key]; ok {
		return b
	}
	b = &bucket{
		tokens:     float64(rl.config.OrderBurst),
		maxTokens:  float64(rl.config.OrderBurst),
		refillRate: float64(rl.config.OrdersPerSecond),
		lastUpdate: time.Now(),
	}
	rl.orderBuckets[key] = b
	return b
}

func (rl *RateLimiter) getDailyCounter(key string, limit int) *dailyCounter {
	counterKey := key + ":" + time.Now().UTC().Format("2006-01-02")

	rl.dailyCountersMu.RLock()
	c, ok := rl.dailyCounters[counterKey]
	rl.dailyCountersMu.RUnlock()
	if ok {
		return c
	}

	rl.dailyCountersMu.Lock()
	defer rl.dailyCountersMu.Unlock()
	if c, ok := rl.dailyCounters[counterKey]; ok {
		return c
	}
	c = &dailyCounter{limit: limit}
	rl.dailyCounters[counterKey] = c
	return c
}

// AllowIP checks if a request from an IP is allowed
func (rl *RateLimiter) AllowIP(ip string) (bool, *RateLimitInfo) {
	b := rl.getBucket("ip:"+ip, float64(rl.config.IPBurst), float64(rl.config.IPRequestsPerSecond))
	return rl.tryConsume(b, 1)
}

// AllowPrincipal checks if a request from a principal is allowed
func (rl *RateLimiter) AllowPrincipal(principal string) (bool, *RateLimitInfo) {
	b := rl.getBucket("principal:"+principal, float64(rl.config.PrincipalBurst), float64(rl.config.PrincipalRequestsPerSecond))
	return rl.tryConsume(b, 1)
}

// AllowOrder checks if an order submission is allowed. Both the
// per-second bucket and the per-day counter must pass.
func (rl *RateLimiter) AllowOrder(principal string) (bool, *RateLimitInfo) {
	b := rl.getOrderBucket("order:" + principal)
	allowed, info := rl.tryConsume(b, 1)
	if !allowed {
		return false, info
	}

	c := rl.getDailyCounter("order:"+principal, rl.config.OrdersPerDay)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count >= c.limit {
		return false, &RateLimitInfo{
			Remaining:  0,
			Limit:      c.limit,
			RetryAfter: secondsUntilMidnight(),
			LimitType:  "daily",
		}
	}
	c.count++
	return true, &RateLimitInfo{
		Allowed:   true,
		Remaining: c.limit - c.count,
		Limit:     c.limit,
		LimitType: "daily",
	}
}

func (rl *RateLimiter) tryConsume(b *bucket, tokens float64) (bool, *RateLimitInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.blocked && now.Before(b.blockedUntil) {
		return false, &RateLimitInfo{
			Limit:      int(b.maxTokens),
			RetryAfter: int(b.blockedUntil.Sub(now).Seconds()) + 1,
			LimitType:  "blocked",
		}
	}
	b.blocked = false

	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastUpdate = now

	if b.tokens >= tokens {
		b.tokens -= tokens
		return true, &RateLimitInfo{
			Allowed:   true,
			Remaining: int(b.tokens),
			Limit:     int(b.maxTokens),
			LimitType: "rate",
		}
	}

	b.blocked = true
	b.blockedUntil = now.Add(rl.config.IPBlockDuration)
	return false, &RateLimitInfo{
		Limit:      int(b.maxTokens),
		RetryAfter: int((tokens-b.tokens)/b.refillRate) + 1,
		LimitType:  "rate",
	}
}

func secondsUntilMidnight() int {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return int(midnight.Sub(now).Seconds())
}

// RateLimitInfo carries the outcome of a limit check
type RateLimitInfo struct {
	Allowed    bool   `json:"allowed"`
	Remaining  int    `json:"remaining"`
	Limit      int    `json:"limit"`
	RetryAfter int    `json:"retry_after,omitempty"`
	LimitType  string `json:"limit_type"`
}

// RateLimitMiddleware applies the IP and principal limits to every
// request.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, info := rl.AllowIP(ClientIP(r))
			if !allowed {
				writeLimitExceeded(w, "Too many requests, please slow down", info)
				return
			}
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))

			if principal, ok := PrincipalFromContext(r.Context()); ok {
				allowed, pInfo := rl.AllowPrincipal(principal.String())
				if !allowed {
					writeLimitExceeded(w, "Principal rate limit exceeded", pInfo)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OrderRateLimitMiddleware applies the stricter order submission
// limits. It must run after authentication.
func OrderRateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthorized",
					"message": "Authentication required for order submission",
				})
				return
			}

			allowed, info := rl.AllowOrder(principal.String())
			if !allowed {
				writeLimitExceeded(w, fmt.Sprintf("Order %s limit exceeded", info.LimitType), info)
				return
			}
			w.Header().Set("X-RateLimit-Order-Remaining", fmt.Sprintf("%d", info.Remaining))
			next.ServeHTTP(w, r)
		})
	}
}

func writeLimitExceeded(w http.ResponseWriter, message string, info *RateLimitInfo) {
	metrics.GetCollector().RecordRateLimitHit(info.LimitType)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
	if info.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", info.RetryAfter))
	}
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":       "rate_limit_exceeded",
		"message":     message,
		"retry_after": info.RetryAfter,
	})
}

// ClientIP extracts the client IP, preferring forwarding headers
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	for i := len(ip) - 1; i >= 0; i-- {
		if ip[i] == ':' {
			return ip[:i]
		}
	}
	return ip
}
