// Package proptest generates random monotone bar sequences and random
// AND-tree strategies to exercise the engine's invariants across inputs
// no hand-written seed scenario would cover.
package proptest

import (
	"math/rand"
	"time"

	"github.com/algoforge/backtest/pkg/indicators"
	"github.com/algoforge/backtest/pkg/strategydsl"
	"github.com/algoforge/backtest/pkg/types"
)

// GenerateBars builds n bars with strictly ascending one-minute timestamps
// and OHLC fields that satisfy Bar.Validate: low is the true minimum of
// open/high/low/close, and a mild random walk keeps prices positive.
func GenerateBars(rng *rand.Rand, n int, startPrice float64) []types.Bar {
	bars := make([]types.Bar, n)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := startPrice
	for i := 0; i < n; i++ {
		open := price
		move := (rng.Float64() - 0.5) * 4
		closeVal := open + move
		if closeVal <= 0.5 {
			closeVal = 0.5
		}
		spread := rng.Float64()*3 + 0.1
		high := max2(open, closeVal) + rng.Float64()*spread
		low := min2(open, closeVal) - rng.Float64()*spread
		if low <= 0 {
			low = 0.01
		}
		direction := 0
		switch {
		case closeVal > open:
			direction = 1
		case closeVal < open:
			direction = -1
		}
		bars[i] = types.Bar{
			Timestamp:    ts.Add(time.Duration(i) * time.Minute),
			Open:         open,
			High:         high,
			Low:          low,
			Close:        closeVal,
			Volume:       rng.Float64()*1000 + 1,
			BarDirection: direction,
		}
		price = closeVal
	}
	return bars
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// GenerateStrategy builds a random AND-tree strategy over an SMA and the
// close price: a single comparison node per side, with a fixed_points
// stop loss. Using a single condition per side keeps the entry rate high
// enough for generated runs to actually open trades.
func GenerateStrategy(rng *rand.Rand) strategydsl.Strategy {
	period := 3 + rng.Intn(5)
	return strategydsl.Strategy{
		Indicators: []indicators.IndicatorDef{
			{ID: "sma_fast", Type: "sma", Source: "close", Params: map[string]float64{"period": float64(period)}},
		},
		EntryLong: []strategydsl.ConditionNode{
			{Left: strategydsl.Operand{Price: "C"}, Op: strategydsl.OpCrossAbove, Right: strategydsl.Operand{Ref: "sma_fast"}},
		},
		EntryShort: []strategydsl.ConditionNode{
			{Left: strategydsl.Operand{Price: "C"}, Op: strategydsl.OpCrossBelow, Right: strategydsl.Operand{Ref: "sma_fast"}},
		},
		StopLoss: strategydsl.StopLossRule{Kind: strategydsl.StopFixedPoints, Points: 1 + rng.Float64()*3},
	}
}
