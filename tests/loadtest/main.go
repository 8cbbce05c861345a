// Load test for the order placement API.
//
// Registers a pool of trader accounts, then hammers POST /api/v1/orders
// from concurrent workers and reports throughput and latency percentiles.
// Unfunded traders exercise the balance-gate reject path; the status code
// distribution separates fills from rejects.
//
// Run the server with FASTTRADING_HTTP_DISABLE_RATE_LIMIT=true when
// measuring raw throughput, otherwise per-principal limits cap each
// trader at the configured order rate.
//
// Usage:
//
//	go run ./tests/loadtest -url http://localhost:8080 -c 50 -d 60s
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RampUp      time.Duration
	Symbols     []string
	TraderCount int
}

type Results struct {
	TotalRequests     int64
	SuccessRequests   int64
	FailedRequests    int64
	TotalLatency      int64 // microseconds
	MinLatency        int64
	MaxLatency        int64
	Latencies         []int64
	StatusCodes       map[int]int64
	Errors            map[string]int64
	StartTime         time.Time
	EndTime           time.Time
	RequestsPerSecond float64
	mu                sync.Mutex
}

type placeOrderRequest struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force,omitempty"`
	Price       string `json:"price,omitempty"`
	Quantity    string `json:"quantity"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type trader struct {
	email string
	token string
}

type LoadTester struct {
	config  *Config
	results *Results
	client  *http.Client
	traders []*trader
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

func NewLoadTester(config *Config) *LoadTester {
	return &LoadTester{
		config: config,
		results: &Results{
			MinLatency:  int64(^uint64(0) >> 1),
			StatusCodes: make(map[int]int64),
			Errors:      make(map[string]int64),
		},
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        1000,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		stopCh: make(chan struct{}),
	}
}

func (lt *LoadTester) Run() error {
	fmt.Println("FastTrading API load test - order placement")
	fmt.Println()
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Base URL:     %s\n", lt.config.BaseURL)
	fmt.Printf("  Concurrency:  %d workers\n", lt.config.Concurrency)
	fmt.Printf("  Duration:     %v\n", lt.config.Duration)
	fmt.Printf("  Ramp-up:      %v\n", lt.config.RampUp)
	fmt.Printf("  Symbols:      %v\n", lt.config.Symbols)
	fmt.Printf("  Traders:      %d\n", lt.config.TraderCount)
	fmt.Println()

	fmt.Print("Checking server health... ")
	if err := lt.checkHealth(); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		return err
	}
	fmt.Println("OK")

	fmt.Printf("Registering %d trader accounts... ", lt.config.TraderCount)
	if err := lt.setupTraders(); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		return err
	}
	fmt.Println("OK")
	fmt.Println()

	fmt.Println("Starting load test...")
	lt.results.StartTime = time.Now()

	workersPerInterval := lt.config.Concurrency / 10
	if workersPerInterval < 1 {
		workersPerInterval = 1
	}
	rampUpInterval := lt.config.RampUp / 10

	currentWorkers := 0
	for currentWorkers < lt.config.Concurrency {
		toAdd := workersPerInterval
		if currentWorkers+toAdd > lt.config.Concurrency {
			toAdd = lt.config.Concurrency - currentWorkers
		}
		for i := 0; i < toAdd; i++ {
			lt.wg.Add(1)
			go lt.worker()
		}
		currentWorkers += toAdd
		fmt.Printf("\r  Workers: %d/%d", currentWorkers, lt.config.Concurrency)
		if currentWorkers < lt.config.Concurrency {
			time.Sleep(rampUpInterval)
		}
	}
	fmt.Println()
	fmt.Println()

	go lt.reportProgress()

	time.Sleep(lt.config.Duration)

	close(lt.stopCh)
	lt.wg.Wait()
	lt.results.EndTime = time.Now()

	lt.calculateMetrics()
	lt.printResults()
	return nil
}

func (lt *LoadTester) checkHealth() error {
	resp, err := lt.client.Get(lt.config.BaseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
	}
	return nil
}

// setupTraders registers fresh accounts and collects their bearer tokens.
// Registering through the real auth flow keeps the test path identical to
// production traffic, token validation included.
func (lt *LoadTester) setupTraders() error {
	run := time.Now().UnixNano()
	lt.traders = make([]*trader, 0, lt.config.TraderCount)
	for i := 0; i < lt.config.TraderCount; i++ {
		tr := &trader{email: fmt.Sprintf("loadtest-%d-%04d@example.com", run, i)}
		creds := credentialsRequest{Email: tr.email, Password: "loadtest-secret-1"}
		body, _ := json.Marshal(creds)

		resp, err := lt.client.Post(lt.config.BaseURL+"/api/v1/auth/register", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("register %s: %w", tr.email, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("register %s: status %d", tr.email, resp.StatusCode)
		}

		resp, err = lt.client.Post(lt.config.BaseURL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("login %s: %w", tr.email, err)
		}
		var tok tokenResponse
		err = json.NewDecoder(resp.Body).Decode(&tok)
		resp.Body.Close()
		if err != nil || tok.AccessToken == "" {
			return fmt.Errorf("login %s: no token", tr.email)
		}
		tr.token = tok.AccessToken
		lt.traders = append(lt.traders, tr)
	}
	return nil
}

func (lt *LoadTester) worker() {
	defer lt.wg.Done()
	for {
		select {
		case <-lt.stopCh:
			return
		default:
			lt.placeOrder(lt.traders[rand.Intn(len(lt.traders))])
			time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
		}
	}
}

func (lt *LoadTester) placeOrder(tr *trader) {
	symbol := lt.config.Symbols[rand.Intn(len(lt.config.Symbols))]

	side := "buy"
	if rand.Float32() > 0.5 {
		side = "sell"
	}
	orderType := "limit"
	if rand.Float32() > 0.8 {
		orderType = "market"
	}

	basePrice := basePriceFor(symbol)
	priceVar := basePrice * (0.98 + rand.Float64()*0.04)
	quantity := fmt.Sprintf("%.4f", rand.Float64()*0.5+0.001)

	req := placeOrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     orderType,
		Quantity: quantity,
	}
	if orderType == "limit" {
		req.Price = fmt.Sprintf("%.2f", priceVar)
	}

	body, _ := json.Marshal(req)

	start := time.Now()
	httpReq, err := http.NewRequest(http.MethodPost, lt.config.BaseURL+"/api/v1/orders", bytes.NewReader(body))
	if err != nil {
		lt.recordError("create_request_error")
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+tr.token)

	resp, err := lt.client.Do(httpReq)
	latency := time.Since(start).Microseconds()
	if err != nil {
		lt.recordError("network_error")
		lt.recordLatency(latency, false, 0)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	success := resp.StatusCode == http.StatusCreated
	lt.recordLatency(latency, success, resp.StatusCode)
}

func basePriceFor(symbol string) float64 {
	switch {
	case strings.HasPrefix(symbol, "BTC"):
		return 50000
	case strings.HasPrefix(symbol, "ETH"):
		return 3000
	case strings.HasPrefix(symbol, "SOL"):
		return 100
	default:
		return 1000
	}
}

func (lt *LoadTester) recordLatency(latency int64, success bool, statusCode int) {
	atomic.AddInt64(&lt.results.TotalRequests, 1)
	atomic.AddInt64(&lt.results.TotalLatency, latency)
	if success {
		atomic.AddInt64(&lt.results.SuccessRequests, 1)
	} else {
		atomic.AddInt64(&lt.results.FailedRequests, 1)
	}

	lt.results.mu.Lock()
	lt.results.Latencies = append(lt.results.Latencies, latency)
	if latency < lt.results.MinLatency {
		lt.results.MinLatency = latency
	}
	if latency > lt.results.MaxLatency {
		lt.results.MaxLatency = latency
	}
	lt.results.StatusCodes[statusCode]++
	lt.results.mu.Unlock()
}

func (lt *LoadTester) recordError(errType string) {
	lt.results.mu.Lock()
	lt.results.Errors[errType]++
	lt.results.mu.Unlock()
}

func (lt *LoadTester) reportProgress() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-lt.stopCh:
			return
		case <-ticker.C:
			total := atomic.LoadInt64(&lt.results.TotalRequests)
			success := atomic.LoadInt64(&lt.results.SuccessRequests)
			failed := atomic.LoadInt64(&lt.results.FailedRequests)
			elapsed := time.Since(lt.results.StartTime).Seconds()
			rps := float64(total) / elapsed
			fmt.Printf("\r  Progress: %d requests (%.0f/s), Accepted: %d, Other: %d",
				total, rps, success, failed)
		}
	}
}

func (lt *LoadTester) calculateMetrics() {
	elapsed := lt.results.EndTime.Sub(lt.results.StartTime).Seconds()
	lt.results.RequestsPerSecond = float64(lt.results.TotalRequests) / elapsed
	sort.Slice(lt.results.Latencies, func(i, j int) bool {
		return lt.results.Latencies[i] < lt.results.Latencies[j]
	})
}

func (lt *LoadTester) getPercentile(p float64) float64 {
	if len(lt.results.Latencies) == 0 {
		return 0
	}
	index := int(float64(len(lt.results.Latencies)) * p)
	if index >= len(lt.results.Latencies) {
		index = len(lt.results.Latencies) - 1
	}
	return float64(lt.results.Latencies[index]) / 1000 // ms
}

func (lt *LoadTester) printResults() {
	fmt.Println()
	fmt.Println()
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println()

	elapsed := lt.results.EndTime.Sub(lt.results.StartTime)
	avgLatency := float64(0)
	if lt.results.TotalRequests > 0 {
		avgLatency = float64(lt.results.TotalLatency) / float64(lt.results.TotalRequests) / 1000
	}
	acceptRate := float64(0)
	if lt.results.TotalRequests > 0 {
		acceptRate = float64(lt.results.SuccessRequests) / float64(lt.results.TotalRequests) * 100
	}

	fmt.Printf("Test Duration:        %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Concurrency:          %d workers\n", lt.config.Concurrency)
	fmt.Println()

	fmt.Println("-- Request Statistics ------------------------------------------")
	fmt.Printf("  Total Requests:     %d\n", lt.results.TotalRequests)
	fmt.Printf("  Accepted (201):     %d (%.2f%%)\n", lt.results.SuccessRequests, acceptRate)
	fmt.Printf("  Other:              %d (%.2f%%)\n", lt.results.FailedRequests, 100-acceptRate)
	fmt.Printf("  Requests/Second:    %.2f\n", lt.results.RequestsPerSecond)
	fmt.Println()

	fmt.Println("-- Latency Statistics (ms) -------------------------------------")
	fmt.Printf("  Min:                %.2f ms\n", float64(lt.results.MinLatency)/1000)
	fmt.Printf("  Max:                %.2f ms\n", float64(lt.results.MaxLatency)/1000)
	fmt.Printf("  Average:            %.2f ms\n", avgLatency)
	fmt.Printf("  P50 (Median):       %.2f ms\n", lt.getPercentile(0.50))
	fmt.Printf("  P90:                %.2f ms\n", lt.getPercentile(0.90))
	fmt.Printf("  P95:                %.2f ms\n", lt.getPercentile(0.95))
	fmt.Printf("  P99:                %.2f ms\n", lt.getPercentile(0.99))
	fmt.Println()

	fmt.Println("-- Status Code Distribution ------------------------------------")
	for code, count := range lt.results.StatusCodes {
		percentage := float64(count) / float64(lt.results.TotalRequests) * 100
		fmt.Printf("  HTTP %d:           %d (%.2f%%)\n", code, count, percentage)
	}
	fmt.Println()

	if len(lt.results.Errors) > 0 {
		fmt.Println("-- Error Distribution ------------------------------------------")
		for errType, count := range lt.results.Errors {
			fmt.Printf("  %s: %d\n", errType, count)
		}
		fmt.Println()
	}
}

func (lt *LoadTester) SaveReport(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	elapsed := lt.results.EndTime.Sub(lt.results.StartTime)
	avgLatency := float64(0)
	if lt.results.TotalRequests > 0 {
		avgLatency = float64(lt.results.TotalLatency) / float64(lt.results.TotalRequests) / 1000
	}
	acceptRate := float64(0)
	if lt.results.TotalRequests > 0 {
		acceptRate = float64(lt.results.SuccessRequests) / float64(lt.results.TotalRequests) * 100
	}

	report := map[string]interface{}{
		"test_config": map[string]interface{}{
			"base_url":     lt.config.BaseURL,
			"concurrency":  lt.config.Concurrency,
			"duration":     lt.config.Duration.String(),
			"symbols":      lt.config.Symbols,
			"trader_count": lt.config.TraderCount,
		},
		"summary": map[string]interface{}{
			"test_duration":       elapsed.String(),
			"total_requests":      lt.results.TotalRequests,
			"accepted_requests":   lt.results.SuccessRequests,
			"other_requests":      lt.results.FailedRequests,
			"accept_rate":         fmt.Sprintf("%.2f%%", acceptRate),
			"requests_per_second": lt.results.RequestsPerSecond,
		},
		"latency": map[string]interface{}{
			"min_ms": float64(lt.results.MinLatency) / 1000,
			"max_ms": float64(lt.results.MaxLatency) / 1000,
			"avg_ms": avgLatency,
			"p50_ms": lt.getPercentile(0.50),
			"p90_ms": lt.getPercentile(0.90),
			"p95_ms": lt.getPercentile(0.95),
			"p99_ms": lt.getPercentile(0.99),
		},
		"status_codes": lt.results.StatusCodes,
		"errors":       lt.results.Errors,
		"timestamp":    time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "API base URL")
	concurrency := flag.Int("c", 50, "Number of concurrent workers")
	duration := flag.Duration("d", 60*time.Second, "Test duration")
	rampUp := flag.Duration("ramp", 5*time.Second, "Ramp-up time")
	symbols := flag.String("symbols", "BTC-USDT,ETH-USDT", "Comma-separated trading symbols")
	traders := flag.Int("traders", 100, "Number of trader accounts")
	outputFile := flag.String("o", "", "Output JSON report file")
	flag.Parse()

	config := &Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		RampUp:      *rampUp,
		Symbols:     strings.Split(*symbols, ","),
		TraderCount: *traders,
	}

	tester := NewLoadTester(config)
	if err := tester.Run(); err != nil {
		os.Exit(1)
	}

	if *outputFile != "" {
		if err := tester.SaveReport(*outputFile); err != nil {
			fmt.Printf("Failed to save report: %v\n", err)
		} else {
			fmt.Printf("\nReport saved to: %s\n", *outputFile)
		}
	}
}
