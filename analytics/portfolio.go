package analytics

import (
	"context"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/gwrxuk/FastTrading/engine/types"
)

// Position is one net-long holding reconstructed from fills
type Position struct {
	Symbol        string         `json:"symbol"`
	Quantity      math.LegacyDec `json:"quantity"`
	AvgPrice      math.LegacyDec `json:"avg_price"`
	CurrentPrice  math.LegacyDec `json:"current_price"`
	Value         math.LegacyDec `json:"value"`
	UnrealizedPnL math.LegacyDec `json:"unrealized_pnl"`
	PnLPercent    math.LegacyDec `json:"unrealized_pnl_percent"`
}

// TradingMetrics summarizes realized performance across round trips
type TradingMetrics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	AvgProfit     float64 `json:"avg_profit"`
	AvgLoss       float64 `json:"avg_loss"`
	ProfitFactor  float64 `json:"profit_factor"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	MaxDrawdown   float64 `json:"max_drawdown"`
}

// Insight is one generated observation on a portfolio
type Insight struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Importance  string `json:"importance"`
	Action      string `json:"action"`
}

// Portfolio is the full reconstruction for one principal
type Portfolio struct {
	Principal       uuid.UUID      `json:"principal"`
	TotalValue      math.LegacyDec `json:"total_value"`
	TotalPnL        math.LegacyDec `json:"total_pnl"`
	TotalPnLPercent math.LegacyDec `json:"total_pnl_percent"`
	Positions       []*Position    `json:"positions"`
	Metrics         TradingMetrics `json:"metrics"`
	Insights        []*Insight     `json:"insights"`
	AnalyzedAt      time.Time      `json:"analyzed_at"`
}

// Portfolio folds a principal's full trade history into net positions:
// buys add quantity and cost, sells subtract both. Only net-long
// positions are reported, marked at the symbol's latest trade price.
func (s *Service) Portfolio(ctx context.Context, principal uuid.UUID) (*Portfolio, error) {
	trades, err := s.trades.ByPrincipal(ctx, principal, time.Time{}, 0)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		Principal:       principal,
		TotalValue:      math.LegacyZeroDec(),
		TotalPnL:        math.LegacyZeroDec(),
		TotalPnLPercent: math.LegacyZeroDec(),
		AnalyzedAt:      s.now(),
	}
	if len(trades) == 0 {
		return p, nil
	}

	type basis struct {
		quantity  math.LegacyDec
		cost      math.LegacyDec
		lastPrice math.LegacyDec
	}
	bySymbol := make(map[string]*basis)
	order := make([]string, 0, 4)

	for _, t := range trades {
		side, ok := sideFor(t, principal)
		if !ok {
			continue
		}
		b := bySymbol[t.Symbol]
		if b == nil {
			b = &basis{quantity: math.LegacyZeroDec(), cost: math.LegacyZeroDec()}
			bySymbol[t.Symbol] = b
			order = append(order, t.Symbol)
		}
		if side == types.SideBuy {
			b.quantity = b.quantity.Add(t.Quantity)
			b.cost = b.cost.Add(t.QuoteQuantity)
		} else {
			b.quantity = b.quantity.Sub(t.Quantity)
			b.cost = b.cost.Sub(t.QuoteQuantity)
		}
		b.lastPrice = t.Price
	}

	totalCost := math.LegacyZeroDec()
	for _, symbol := range order {
		b := bySymbol[symbol]
		if !b.quantity.IsPositive() {
			continue
		}
		value := b.quantity.Mul(b.lastPrice)
		pnl := value.Sub(b.cost)
		pct := math.LegacyZeroDec()
		if b.cost.IsPositive() {
			pct = pnl.Quo(b.cost).MulInt64(100)
		}
		p.Positions = append(p.Positions, &Position{
			Symbol:        symbol,
			Quantity:      b.quantity,
			AvgPrice:      b.cost.Quo(b.quantity),
			CurrentPrice:  b.lastPrice,
			Value:         value,
			UnrealizedPnL: pnl,
			PnLPercent:    pct,
		})
		p.TotalValue = p.TotalValue.Add(value)
		totalCost = totalCost.Add(b.cost)
	}

	p.TotalPnL = p.TotalValue.Sub(totalCost)
	if totalCost.IsPositive() {
		p.TotalPnLPercent = p.TotalPnL.Quo(totalCost).MulInt64(100)
	}
	p.Metrics = tradingMetrics(trades, principal)
	p.Insights = generateInsights(p.Positions, p.Metrics)
	return p, nil
}

// tradingMetrics pairs consecutive opposite-side fills on the same
// symbol into round trips and derives win rate, profit factor, a
// simplified Sharpe ratio, and max drawdown on the cumulative P&L
// curve.
func tradingMetrics(trades []*types.Trade, principal uuid.UUID) TradingMetrics {
	m := TradingMetrics{TotalTrades: len(trades)}
	if len(trades) < 2 {
		return m
	}

	var profits, losses []float64
	for i := 1; i < len(trades); i++ {
		prev, curr := trades[i-1], trades[i]
		if prev.Symbol != curr.Symbol {
			continue
		}
		prevSide, ok1 := sideFor(prev, principal)
		currSide, ok2 := sideFor(curr, principal)
		if !ok1 || !ok2 || prevSide == currSide {
			continue
		}
		qty := prev.Quantity
		if curr.Quantity.LT(qty) {
			qty = curr.Quantity
		}
		var pnl float64
		if prevSide == types.SideBuy {
			pnl = curr.Price.Sub(prev.Price).Mul(qty).MustFloat64()
		} else {
			pnl = prev.Price.Sub(curr.Price).Mul(qty).MustFloat64()
		}
		if pnl > 0 {
			profits = append(profits, pnl)
		} else {
			losses = append(losses, -pnl)
		}
	}

	m.WinningTrades = len(profits)
	m.LosingTrades = len(losses)
	if rounds := m.WinningTrades + m.LosingTrades; rounds > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(rounds) * 100
	}
	m.AvgProfit = mean(profits)
	m.AvgLoss = mean(losses)

	var totalProfit, totalLoss float64
	for _, p := range profits {
		totalProfit += p
	}
	for _, l := range losses {
		totalLoss += l
	}
	if totalLoss > 0 {
		m.ProfitFactor = totalProfit / totalLoss
	} else if totalProfit > 0 {
		m.ProfitFactor = totalProfit
	}

	returns := make([]float64, 0, len(profits)+len(losses))
	returns = append(returns, profits...)
	for _, l := range losses {
		returns = append(returns, -l)
	}
	if sd := stdev(returns); sd > 0 {
		m.SharpeRatio = mean(returns) / sd
	}

	equity, peak, maxDD := 0.0, 0.0, 0.0
	for _, r := range returns {
		equity += r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	m.MaxDrawdown = maxDD * 100
	return m
}

func generateInsights(positions []*Position, m TradingMetrics) []*Insight {
	var out []*Insight

	if m.WinningTrades+m.LosingTrades > 0 {
		if m.WinRate < 40 {
			out = append(out, &Insight{
				Type:        "performance",
				Title:       "Low Win Rate Detected",
				Description: fmt.Sprintf("Your win rate of %.1f%% is below optimal. Consider refining your entry criteria.", m.WinRate),
				Importance:  "high",
				Action:      "Review losing trades to identify patterns and improve entry timing",
			})
		} else if m.WinRate > 60 {
			out = append(out, &Insight{
				Type:        "performance",
				Title:       "Strong Win Rate",
				Description: fmt.Sprintf("Your win rate of %.1f%% indicates good trade selection.", m.WinRate),
				Importance:  "low",
				Action:      "Maintain current strategy while monitoring for market changes",
			})
		}
		if m.ProfitFactor < 1 {
			out = append(out, &Insight{
				Type:        "risk",
				Title:       "Negative Expectancy",
				Description: "Your profit factor is below 1, indicating losses outweigh gains on average.",
				Importance:  "critical",
				Action:      "Review position sizing and stop-loss placement immediately",
			})
		}
	}

	if len(positions) > 0 {
		var total float64
		largest := positions[0]
		for _, p := range positions {
			v := p.Value.MustFloat64()
			total += v
			if v > largest.Value.MustFloat64() {
				largest = p
			}
		}
		if total > 0 {
			share := largest.Value.MustFloat64() / total
			if share > 0.5 {
				out = append(out, &Insight{
					Type:        "risk",
					Title:       "High Concentration Risk",
					Description: fmt.Sprintf("%s represents %.0f%% of your portfolio.", largest.Symbol, share*100),
					Importance:  "high",
					Action:      fmt.Sprintf("Consider reducing %s position to improve diversification", largest.Symbol),
				})
			}
		}
		for _, p := range positions {
			pct := p.PnLPercent.MustFloat64()
			if pct > 50 {
				out = append(out, &Insight{
					Type:        "opportunity",
					Title:       "Large Unrealized Gain",
					Description: fmt.Sprintf("%s has %.1f%% unrealized gain.", p.Symbol, pct),
					Importance:  "medium",
					Action:      "Consider taking partial profits to lock in gains",
				})
			} else if pct < -30 {
				out = append(out, &Insight{
					Type:        "risk",
					Title:       "Large Unrealized Loss",
					Description: fmt.Sprintf("%s has %.1f%% unrealized loss.", p.Symbol, pct),
					Importance:  "high",
					Action:      "Review position thesis and consider stop-loss placement",
				})
			}
		}
	}

	if m.MaxDrawdown > 20 {
		out = append(out, &Insight{
			Type:        "risk",
			Title:       "High Maximum Drawdown",
			Description: fmt.Sprintf("Your maximum drawdown of %.1f%% indicates significant risk exposure.", m.MaxDrawdown),
			Importance:  "high",
			Action:      "Implement stricter risk management rules to limit drawdowns",
		})
	}
	return out
}
