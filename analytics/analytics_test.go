package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/tradelog"
	"github.com/gwrxuk/FastTrading/engine/types"
	"github.com/gwrxuk/FastTrading/store"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	store  *store.Memory
	nextID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	tl, err := tradelog.Open(context.Background(), mem, log.NewNopLogger())
	if err != nil {
		t.Fatalf("open tradelog: %v", err)
	}
	svc := NewService(tl, log.NewNopLogger())
	svc.now = func() time.Time { return fixedNow }
	return &fixture{svc: svc, store: mem}
}

func dec(s string) math.LegacyDec {
	return math.LegacyMustNewDecFromStr(s)
}

func (f *fixture) trade(t *testing.T, symbol string, taker, maker uuid.UUID, side types.Side, price, qty string, at time.Time) {
	t.Helper()
	f.nextID++
	p, q := dec(price), dec(qty)
	err := f.store.SaveTrade(context.Background(), &types.Trade{
		ID:             uuid.New(),
		TradeID:        f.nextID,
		Symbol:         symbol,
		MakerOrderID:   uuid.New(),
		TakerOrderID:   uuid.New(),
		MakerPrincipal: maker,
		TakerPrincipal: taker,
		Side:           side,
		Price:          p,
		Quantity:       q,
		QuoteQuantity:  p.Mul(q),
		Commission:     math.LegacyZeroDec(),
		ExecutedAt:     at,
	})
	if err != nil {
		t.Fatalf("save trade: %v", err)
	}
}

func TestWilderRSIBoundaries(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}
	if got := wilderRSI(up, 14); got != 100 {
		t.Errorf("all gains RSI = %v, want 100", got)
	}
	if got := wilderRSI(down, 14); got > 0.01 {
		t.Errorf("all losses RSI = %v, want 0", got)
	}
	if got := wilderRSI([]float64{1, 2, 3}, 14); got != 50 {
		t.Errorf("short series RSI = %v, want 50", got)
	}
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	if got := wilderRSI(flat, 14); got != 50 {
		t.Errorf("flat series RSI = %v, want 50", got)
	}
}

func TestWilderRSIMixed(t *testing.T) {
	prices := make([]float64, 0, 40)
	p := 100.0
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			p += 2
		} else {
			p -= 1
		}
		prices = append(prices, p)
	}
	rsi := wilderRSI(prices, 14)
	if rsi <= 50 || rsi >= 100 {
		t.Errorf("uptrending mixed series RSI = %v, want between 50 and 100", rsi)
	}
}

func TestAnomaliesRapidTrading(t *testing.T) {
	f := newFixture(t)
	bot := uuid.New()
	counterparty := uuid.New()
	at := fixedNow.Add(-time.Hour)
	for i := 0; i < 11; i++ {
		f.trade(t, "ETH-USDT", bot, counterparty, types.SideBuy, "2000", "0.1", at.Add(time.Duration(i)*time.Second))
	}

	anomalies, err := f.svc.Anomalies(context.Background(), "ETH-USDT", 24*time.Hour)
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	var found *Anomaly
	for _, a := range anomalies {
		if a.Type == AnomalyRapidTrading && a.Principal == bot {
			found = a
		}
	}
	if found == nil {
		t.Fatal("expected rapid trading anomaly for bot principal")
	}
	if found.Severity != 1.1 {
		t.Errorf("severity = %v, want 1.1", found.Severity)
	}
	if found.Metrics["trades_per_minute"] != 11 {
		t.Errorf("trades_per_minute = %v, want 11", found.Metrics["trades_per_minute"])
	}
}

func TestAnomaliesWashTrading(t *testing.T) {
	f := newFixture(t)
	washer := uuid.New()
	other := uuid.New()
	at := fixedNow.Add(-2 * time.Hour)
	// spread across minutes so rapid trading stays quiet
	for i := 0; i < 10; i++ {
		f.trade(t, "ABC-USDT", washer, other, types.SideBuy, "1", "15", at.Add(time.Duration(i)*5*time.Minute))
		f.trade(t, "ABC-USDT", washer, other, types.SideSell, "1", "14.5", at.Add(time.Duration(i)*5*time.Minute+2*time.Minute))
	}

	anomalies, err := f.svc.Anomalies(context.Background(), "ABC-USDT", 24*time.Hour)
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	var washerFlagged, otherFlagged bool
	for _, a := range anomalies {
		if a.Type != AnomalyWashTrading {
			continue
		}
		if a.Principal == washer {
			washerFlagged = true
			if a.Severity != 8 {
				t.Errorf("wash severity = %v, want 8", a.Severity)
			}
		}
		if a.Principal == other {
			otherFlagged = true
		}
	}
	if !washerFlagged {
		t.Error("expected wash trading anomaly for washer")
	}
	// the counterparty mirrors the flow so it is flagged too
	if !otherFlagged {
		t.Error("expected wash trading anomaly for counterparty")
	}
}

func TestAnomaliesVolumeSpike(t *testing.T) {
	f := newFixture(t)
	a, b := uuid.New(), uuid.New()
	base := fixedNow.Add(-13 * time.Hour)
	// steady background volume, then one loud hour
	for hour := 0; hour < 12; hour++ {
		qty := "1"
		if hour == 5 {
			qty = "100"
		}
		for i := 0; i < 2; i++ {
			f.trade(t, "ETH-USDT", a, b, types.SideBuy, "2000", qty, base.Add(time.Duration(hour)*time.Hour+time.Duration(i)*time.Minute))
		}
	}

	anomalies, err := f.svc.Anomalies(context.Background(), "ETH-USDT", 24*time.Hour)
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	var spike *Anomaly
	for _, an := range anomalies {
		if an.Type == AnomalyVolumeSpike {
			spike = an
		}
	}
	if spike == nil {
		t.Fatal("expected volume spike anomaly")
	}
	if spike.Severity != 10 {
		t.Errorf("spike severity = %v, want clipped to 10", spike.Severity)
	}
}

func TestAnomaliesEmptyWindow(t *testing.T) {
	f := newFixture(t)
	anomalies, err := f.svc.Anomalies(context.Background(), "ETH-USDT", 24*time.Hour)
	if err != nil {
		t.Fatalf("anomalies: %v", err)
	}
	if len(anomalies) != 0 {
		t.Errorf("got %d anomalies from empty window", len(anomalies))
	}
}

func TestUserRiskScoreNewPrincipal(t *testing.T) {
	f := newFixture(t)
	score, err := f.svc.UserRiskScore(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("risk score: %v", err)
	}
	// no history: only the default volatility factor contributes
	if score.Factors["volatility"] != 5 {
		t.Errorf("volatility factor = %v, want default 5", score.Factors["volatility"])
	}
	if score.OverallScore != 1.25 {
		t.Errorf("overall = %v, want 1.25", score.OverallScore)
	}
	if score.Level != RiskLow {
		t.Errorf("level = %v, want low", score.Level)
	}
}

func TestUserRiskScoreConcentration(t *testing.T) {
	f := newFixture(t)
	trader := uuid.New()
	other := uuid.New()
	at := fixedNow.Add(-24 * time.Hour)
	// all volume on a single symbol at steady size
	for i := 0; i < 20; i++ {
		f.trade(t, "BTC-USDT", trader, other, types.SideBuy, "50000", "0.1", at.Add(time.Duration(i)*time.Hour/2))
	}

	score, err := f.svc.UserRiskScore(context.Background(), trader)
	if err != nil {
		t.Fatalf("risk score: %v", err)
	}
	if score.Factors["concentration"] != 10 {
		t.Errorf("concentration = %v, want 10 for single-symbol flow", score.Factors["concentration"])
	}
	if score.Factors["volatility"] != 0 {
		t.Errorf("volatility = %v, want 0 for uniform trade sizes", score.Factors["volatility"])
	}
	if score.Metrics["unique_symbols"] != 1 {
		t.Errorf("unique_symbols = %v, want 1", score.Metrics["unique_symbols"])
	}
}

func TestPortfolioFold(t *testing.T) {
	f := newFixture(t)
	trader := uuid.New()
	other := uuid.New()
	at := fixedNow.Add(-3 * time.Hour)
	f.trade(t, "ETH-USDT", trader, other, types.SideBuy, "100", "2", at)
	f.trade(t, "ETH-USDT", trader, other, types.SideSell, "120", "1", at.Add(time.Hour))

	p, err := f.svc.Portfolio(context.Background(), trader)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(p.Positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(p.Positions))
	}
	pos := p.Positions[0]
	if !pos.Quantity.Equal(dec("1")) {
		t.Errorf("net quantity = %s, want 1", pos.Quantity)
	}
	// cost basis: 200 bought minus 120 sold
	if !pos.AvgPrice.Equal(dec("80")) {
		t.Errorf("avg price = %s, want 80", pos.AvgPrice)
	}
	if !pos.CurrentPrice.Equal(dec("120")) {
		t.Errorf("current price = %s, want 120", pos.CurrentPrice)
	}
	if !pos.UnrealizedPnL.Equal(dec("40")) {
		t.Errorf("unrealized pnl = %s, want 40", pos.UnrealizedPnL)
	}
	if !pos.PnLPercent.Equal(dec("50")) {
		t.Errorf("pnl percent = %s, want 50", pos.PnLPercent)
	}
	if !p.TotalValue.Equal(dec("120")) {
		t.Errorf("total value = %s, want 120", p.TotalValue)
	}
}

func TestPortfolioMakerPerspective(t *testing.T) {
	f := newFixture(t)
	maker := uuid.New()
	taker := uuid.New()
	at := fixedNow.Add(-time.Hour)
	// taker sells into maker's resting bid, so the maker bought
	f.trade(t, "ETH-USDT", taker, maker, types.SideSell, "2000", "1", at)

	p, err := f.svc.Portfolio(context.Background(), maker)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(p.Positions) != 1 {
		t.Fatalf("maker should hold a long position, got %d", len(p.Positions))
	}
	if !p.Positions[0].Quantity.Equal(dec("1")) {
		t.Errorf("maker quantity = %s, want 1", p.Positions[0].Quantity)
	}
}

func TestPortfolioFlatAfterRoundTrip(t *testing.T) {
	f := newFixture(t)
	trader := uuid.New()
	other := uuid.New()
	at := fixedNow.Add(-3 * time.Hour)
	f.trade(t, "ETH-USDT", trader, other, types.SideBuy, "100", "2", at)
	f.trade(t, "ETH-USDT", trader, other, types.SideSell, "110", "2", at.Add(time.Hour))

	p, err := f.svc.Portfolio(context.Background(), trader)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(p.Positions) != 0 {
		t.Errorf("flat book should report no positions, got %d", len(p.Positions))
	}
	if p.Metrics.WinningTrades != 1 {
		t.Errorf("winning trades = %d, want 1", p.Metrics.WinningTrades)
	}
	if p.Metrics.WinRate != 100 {
		t.Errorf("win rate = %v, want 100", p.Metrics.WinRate)
	}
}

func TestPredictInsufficientData(t *testing.T) {
	f := newFixture(t)
	trader, other := uuid.New(), uuid.New()
	at := fixedNow.Add(-time.Hour)
	for i := 0; i < 10; i++ {
		f.trade(t, "ETH-USDT", trader, other, types.SideBuy, "2000", "1", at.Add(time.Duration(i)*time.Minute))
	}

	p, err := f.svc.PredictPrice(context.Background(), "ETH-USDT", 60)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if p.Direction != DirectionNeutral {
		t.Errorf("direction = %s, want neutral", p.Direction)
	}
	if p.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", p.Confidence)
	}
}

func TestPredictUptrend(t *testing.T) {
	f := newFixture(t)
	trader, other := uuid.New(), uuid.New()
	at := fixedNow.Add(-12 * time.Hour)
	for i := 0; i < 60; i++ {
		price := fmt.Sprintf("%d", 2000+i*10)
		f.trade(t, "ETH-USDT", trader, other, types.SideBuy, price, "1", at.Add(time.Duration(i)*time.Minute))
	}

	p, err := f.svc.PredictPrice(context.Background(), "ETH-USDT", 60)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if p.Direction != DirectionBullish {
		t.Errorf("direction = %s, want bullish (signal %v)", p.Direction, p.Factors["signal"])
	}
	if p.PredictedPrice <= p.CurrentPrice {
		t.Errorf("predicted %v should exceed current %v", p.PredictedPrice, p.CurrentPrice)
	}
	if p.Confidence > 0.85 {
		t.Errorf("confidence = %v, must cap at 0.85", p.Confidence)
	}
	if p.Factors["rsi"] != 100 {
		t.Errorf("monotonic rise RSI = %v, want 100", p.Factors["rsi"])
	}
}

func TestSentimentBullish(t *testing.T) {
	f := newFixture(t)
	trader, other := uuid.New(), uuid.New()
	at := fixedNow.Add(-6 * time.Hour)
	for i := 0; i < 20; i++ {
		price := fmt.Sprintf("%d", 2000+i*20)
		f.trade(t, "ETH-USDT", trader, other, types.SideBuy, price, "1", at.Add(time.Duration(i)*10*time.Minute))
	}

	sent, err := f.svc.MarketSentiment(context.Background(), "ETH-USDT")
	if err != nil {
		t.Fatalf("sentiment: %v", err)
	}
	if sent.Sentiment != "bullish" {
		t.Errorf("sentiment = %s, want bullish", sent.Sentiment)
	}
	if sent.Score != 100 {
		t.Errorf("score = %d, want 100", sent.Score)
	}
	if sent.PriceTrend != "uptrend" {
		t.Errorf("price trend = %s, want uptrend", sent.PriceTrend)
	}
}

func TestSentimentEmptyWindow(t *testing.T) {
	f := newFixture(t)
	sent, err := f.svc.MarketSentiment(context.Background(), "NOPE-USDT")
	if err != nil {
		t.Fatalf("sentiment: %v", err)
	}
	if sent.Sentiment != "neutral" || sent.Score != 50 {
		t.Errorf("empty window sentiment = %s/%d, want neutral/50", sent.Sentiment, sent.Score)
	}
}

func TestSummarize(t *testing.T) {
	f := newFixture(t)
	trader, other := uuid.New(), uuid.New()
	at := fixedNow.Add(-2 * time.Hour)
	for i := 0; i < 5; i++ {
		f.trade(t, "ETH-USDT", trader, other, types.SideBuy, "2000", "1", at.Add(time.Duration(i)*time.Minute))
	}

	sum, err := f.svc.Summarize(context.Background(), trader, []string{"ETH-USDT"})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.RiskScore == nil {
		t.Fatal("missing risk score")
	}
	if _, ok := sum.Sentiment["ETH-USDT"]; !ok {
		t.Error("missing sentiment for requested symbol")
	}
	if _, ok := sum.Predictions["ETH-USDT"]; !ok {
		t.Error("missing prediction for requested symbol")
	}
}
