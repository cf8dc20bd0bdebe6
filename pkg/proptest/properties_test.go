package proptest

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/algoforge/backtest/pkg/engine"
	"github.com/algoforge/backtest/pkg/indicators"
	"github.com/algoforge/backtest/pkg/leverage"
	"github.com/algoforge/backtest/pkg/metrics"
	"github.com/algoforge/backtest/pkg/risk"
	"github.com/algoforge/backtest/pkg/strategydsl"
	"github.com/algoforge/backtest/pkg/types"
)

const numSeeds = 30
const barsPerRun = 120

func sampleTable(t *testing.T) *leverage.Table {
	t.Helper()
	tbl, err := leverage.NewTable([]types.LeverageBracket{
		{BracketMin: 0, BracketMax: 50_000, MaxLeverage: 20},
		{BracketMin: 50_000, BracketMax: 1_000_000, MaxLeverage: 5},
	})
	if err != nil {
		t.Fatalf("building leverage table: %v", err)
	}
	return tbl
}

func runOnce(t *testing.T, bars []types.Bar, strat strategydsl.Strategy) engine.Result {
	t.Helper()
	frame := indicators.NewFrame(bars)
	eval, err := strategydsl.Compile(strat, frame, bars)
	if err != nil {
		t.Fatalf("compiling strategy: %v", err)
	}
	rm, err := risk.NewManager(10000, 0.02, 1.5, sampleTable(t))
	if err != nil {
		t.Fatalf("building risk manager: %v", err)
	}
	eng, err := engine.New(engine.Options{
		Config: types.RunConfig{
			InitialBalance:    10000,
			RiskPercent:       0.02,
			RiskRewardRatio:   1.5,
			RebalanceInterval: 5,
		},
		Risk:     rm,
		Strategy: eval,
	})
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	result, err := eng.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("running engine: %v", err)
	}
	return result
}

func forEachSeed(t *testing.T, f func(t *testing.T, seed int64, bars []types.Bar, strat strategydsl.Strategy, result engine.Result)) {
	t.Helper()
	for seed := int64(0); seed < numSeeds; seed++ {
		rng := rand.New(rand.NewSource(seed))
		bars := GenerateBars(rng, barsPerRun, 100+rng.Float64()*50)
		strat := GenerateStrategy(rng)
		result := runOnce(t, bars, strat)
		f(t, seed, bars, strat, result)
	}
}

// Property 1: determinism.
func TestPropertyDeterminism(t *testing.T) {
	for seed := int64(0); seed < numSeeds; seed++ {
		rng := rand.New(rand.NewSource(seed))
		bars := GenerateBars(rng, barsPerRun, 100+rng.Float64()*50)
		strat := GenerateStrategy(rng)

		r1 := runOnce(t, bars, strat)
		r2 := runOnce(t, bars, strat)

		if len(r1.Trades) != len(r2.Trades) {
			t.Fatalf("seed %d: trade count differs across identical runs: %d vs %d", seed, len(r1.Trades), len(r2.Trades))
		}
		for i := range r1.Trades {
			a, b := r1.Trades[i], r2.Trades[i]
			if a.TotalPnL() != b.TotalPnL() || len(a.Legs) != len(b.Legs) {
				t.Fatalf("seed %d: trade %d differs across identical runs", seed, i)
			}
		}
	}
}

// Property 2: trade id monotonicity.
func TestPropertyTradeIDMonotonicity(t *testing.T) {
	forEachSeed(t, func(t *testing.T, seed int64, bars []types.Bar, strat strategydsl.Strategy, result engine.Result) {
		for i, trade := range result.Trades {
			if trade.TradeID != i+1 {
				t.Errorf("seed %d: trade at index %d has id %d, want %d", seed, i, trade.TradeID, i+1)
			}
		}
	})
}

// Property 3: leg count/structure.
func TestPropertyLegStructure(t *testing.T) {
	forEachSeed(t, func(t *testing.T, seed int64, bars []types.Bar, strat strategydsl.Strategy, result engine.Result) {
		for _, trade := range result.Trades {
			if !trade.IsClosed {
				continue
			}
			if len(trade.Legs) != 1 && len(trade.Legs) != 2 {
				t.Fatalf("seed %d trade %d: expected 1 or 2 legs, got %d", seed, trade.TradeID, len(trade.Legs))
			}
			if len(trade.Legs) == 2 {
				if trade.Legs[0].ExitType != types.ExitTP1 {
					t.Errorf("seed %d trade %d: first of 2 legs should be TP1, got %s", seed, trade.TradeID, trade.Legs[0].ExitType)
				}
				if math.Abs(trade.Legs[0].QtyRatio-0.5) > 1e-9 {
					t.Errorf("seed %d trade %d: TP1 leg qty_ratio should be 0.5, got %v", seed, trade.TradeID, trade.Legs[0].QtyRatio)
				}
			}
			var sum float64
			for _, leg := range trade.Legs {
				sum += leg.QtyRatio
			}
			if math.Abs(sum-1.0) > 1e-9 {
				t.Errorf("seed %d trade %d: qty_ratio sum = %v, want 1.0", seed, trade.TradeID, sum)
			}
		}
	})
}

// Property 4: time monotonicity.
func TestPropertyTimeMonotonicity(t *testing.T) {
	forEachSeed(t, func(t *testing.T, seed int64, bars []types.Bar, strat strategydsl.Strategy, result engine.Result) {
		for _, trade := range result.Trades {
			if len(trade.Legs) == 0 {
				continue
			}
			if !trade.EntryTimestamp.Before(trade.Legs[0].ExitTimestamp) {
				t.Errorf("seed %d trade %d: entry %s not before first exit %s", seed, trade.TradeID, trade.EntryTimestamp, trade.Legs[0].ExitTimestamp)
			}
			if len(trade.Legs) == 2 && trade.Legs[1].ExitTimestamp.Before(trade.Legs[0].ExitTimestamp) {
				t.Errorf("seed %d trade %d: second leg exit before first leg exit", seed, trade.TradeID)
			}
		}
	})
}

// Property 6: TP1 bar immunity — a TP1 leg's timestamp never coincides
// with a REVERSE or BE leg's timestamp on the same trade.
func TestPropertyTP1BarImmunity(t *testing.T) {
	forEachSeed(t, func(t *testing.T, seed int64, bars []types.Bar, strat strategydsl.Strategy, result engine.Result) {
		for _, trade := range result.Trades {
			if len(trade.Legs) != 2 {
				continue
			}
			if trade.Legs[0].ExitType != types.ExitTP1 {
				continue
			}
			if trade.Legs[0].ExitTimestamp.Equal(trade.Legs[1].ExitTimestamp) {
				t.Errorf("seed %d trade %d: second leg fired on the same bar as TP1", seed, trade.TradeID)
			}
		}
	})
}

// Property 7: no overlap — at most one open position at any bar boundary,
// verified indirectly: every trade but the last has its final exit at or
// before the next trade's entry.
func TestPropertyNoOverlap(t *testing.T) {
	forEachSeed(t, func(t *testing.T, seed int64, bars []types.Bar, strat strategydsl.Strategy, result engine.Result) {
		for i := 1; i < len(result.Trades); i++ {
			prev := result.Trades[i-1]
			cur := result.Trades[i]
			if len(prev.Legs) == 0 {
				continue
			}
			lastLeg := prev.Legs[len(prev.Legs)-1]
			if cur.EntryTimestamp.Before(lastLeg.ExitTimestamp) {
				t.Errorf("seed %d: trade %d opened before trade %d's last exit", seed, cur.TradeID, prev.TradeID)
			}
		}
	})
}

// Property 8: leverage bound.
func TestPropertyLeverageBound(t *testing.T) {
	tbl := sampleTable(t)
	forEachSeed(t, func(t *testing.T, seed int64, bars []types.Bar, strat strategydsl.Strategy, result engine.Result) {
		for _, trade := range result.Trades {
			notional := float64(trade.PositionSize) * trade.EntryPrice
			if notional > trade.BalanceAtEntry*float64(trade.Leverage)+1e-6 {
				t.Errorf("seed %d trade %d: notional %v exceeds balance*leverage %v", seed, trade.TradeID, notional, trade.BalanceAtEntry*float64(trade.Leverage))
			}
			if trade.Leverage > tbl.MaxLeverageFor(notional) {
				t.Errorf("seed %d trade %d: leverage %d exceeds table max %d for notional %v", seed, trade.TradeID, trade.Leverage, tbl.MaxLeverageFor(notional), notional)
			}
		}
	})
}

// Property 9: PnL law.
func TestPropertyPnLLaw(t *testing.T) {
	forEachSeed(t, func(t *testing.T, seed int64, bars []types.Bar, strat strategydsl.Strategy, result engine.Result) {
		for _, trade := range result.Trades {
			for _, leg := range trade.Legs {
				var want float64
				if trade.Direction == types.Long {
					want = (leg.ExitPrice - trade.EntryPrice) * float64(trade.PositionSize) * leg.QtyRatio
				} else {
					want = (trade.EntryPrice - leg.ExitPrice) * float64(trade.PositionSize) * leg.QtyRatio
				}
				if math.Abs(want) > 1e-6 {
					if math.Abs(leg.PnL-want)/math.Abs(want) > 1e-6 {
						t.Errorf("seed %d trade %d: leg pnl %v, want %v", seed, trade.TradeID, leg.PnL, want)
					}
				} else if math.Abs(leg.PnL-want) > 1e-6 {
					t.Errorf("seed %d trade %d: leg pnl %v, want %v", seed, trade.TradeID, leg.PnL, want)
				}
			}
		}
	})
}

// Property 10: metrics laws.
func TestPropertyMetricsLaws(t *testing.T) {
	forEachSeed(t, func(t *testing.T, seed int64, bars []types.Bar, strat strategydsl.Strategy, result engine.Result) {
		m := metrics.Calculate(result.Trades)
		if m.WinningTrades+m.LosingTrades != m.TradesCount {
			t.Errorf("seed %d: winning+losing (%d+%d) != trades_count %d", seed, m.WinningTrades, m.LosingTrades, m.TradesCount)
		}
		var total float64
		for _, trade := range result.Trades {
			total += trade.TotalPnL()
		}
		if math.Abs(m.TotalPnL-total) > 1e-6 {
			t.Errorf("seed %d: total_pnl %v != sum of trade pnl %v", seed, m.TotalPnL, total)
		}
		if m.MaxDrawdown < 0 {
			t.Errorf("seed %d: max_drawdown %v is negative", seed, m.MaxDrawdown)
		}
		if m.Score < 0 || m.Score > 100 {
			t.Errorf("seed %d: score %v out of [0,100]", seed, m.Score)
		}
	})
}
