// Package metrics aggregates closed trades into the summary statistics
// reported for a run: win rate, TP1/BE rates, profit factor, drawdown,
// streaks, expectancy, and a weighted 0-100 score with an S/A/B/C/D grade.
package metrics

import (
	"math"

	"github.com/algoforge/backtest/pkg/types"
)

// Calculate aggregates trades (closed, in entry order) into a Metrics
// record. An empty trade list returns the all-zero record with grade D.
func Calculate(trades []types.Trade) types.Metrics {
	n := len(trades)
	if n == 0 {
		return types.Metrics{Grade: "D"}
	}

	var (
		winning, losing             int
		tp1Count, beCount           int
		totalPnL                    float64
		positivePnL, nonPositivePnL float64
		curWinStreak, curLossStreak int
		maxWinStreak, maxLossStreak int
		sumWins, sumLosses          float64
	)

	for _, t := range trades {
		pnl := t.TotalPnL()
		totalPnL += pnl
		if pnl > 0 {
			winning++
			positivePnL += pnl
			sumWins += pnl
			curWinStreak++
			curLossStreak = 0
		} else {
			losing++
			nonPositivePnL += pnl
			sumLosses += -pnl
			curLossStreak++
			curWinStreak = 0
		}
		if curWinStreak > maxWinStreak {
			maxWinStreak = curWinStreak
		}
		if curLossStreak > maxLossStreak {
			maxLossStreak = curLossStreak
		}
		if t.HasTP1Leg() {
			tp1Count++
		}
		if t.HasBELeg() {
			beCount++
		}
	}

	winRate := float64(winning) / float64(n)
	tp1Rate := float64(tp1Count) / float64(n)
	beRate := float64(beCount) / float64(n)
	avgPnL := totalPnL / float64(n)

	var profitFactor float64
	if math.Abs(nonPositivePnL) > 0 {
		profitFactor = positivePnL / math.Abs(nonPositivePnL)
	}

	maxDrawdown := calculateMaxDrawdown(trades)

	lossRate := float64(losing) / float64(n)
	avgWin := 0.0
	if winning > 0 {
		avgWin = sumWins / float64(winning)
	}
	avgLoss := 0.0
	if losing > 0 {
		avgLoss = sumLosses / float64(losing)
	}
	expectancy := winRate*avgWin - lossRate*avgLoss

	score := calculateScore(winRate, tp1Rate, profitFactor, maxDrawdown)
	grade := gradeFor(score)

	return types.Metrics{
		TradesCount:          n,
		WinningTrades:        winning,
		LosingTrades:         losing,
		WinRate:              winRate,
		TP1HitRate:           tp1Rate,
		BEExitRate:           beRate,
		TotalPnL:             totalPnL,
		AveragePnL:           avgPnL,
		ProfitFactor:         profitFactor,
		MaxDrawdown:          maxDrawdown,
		MaxConsecutiveWins:   maxWinStreak,
		MaxConsecutiveLosses: maxLossStreak,
		Expectancy:           expectancy,
		Score:                score,
		Grade:                grade,
	}
}

// calculateMaxDrawdown walks cumulative PnL in entry order, tracking the
// running peak, and reports the largest peak-to-trough drop as a
// non-negative absolute amount.
func calculateMaxDrawdown(trades []types.Trade) float64 {
	var cumPnL, peak, maxDD float64
	for _, t := range trades {
		cumPnL += t.TotalPnL()
		if cumPnL > peak {
			peak = cumPnL
		}
		if dd := peak - cumPnL; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func calculateScore(winRate, tp1Rate, profitFactor, maxDrawdown float64) float64 {
	score := 0.30*(winRate*100) +
		0.20*(tp1Rate*100) +
		0.30*math.Min(profitFactor*20, 100) +
		0.20*math.Max(100-maxDrawdown/10, 0)
	return math.Round(score*100) / 100
}

func gradeFor(score float64) string {
	switch {
	case score >= 85:
		return "S"
	case score >= 70:
		return "A"
	case score >= 55:
		return "B"
	case score >= 40:
		return "C"
	default:
		return "D"
	}
}
