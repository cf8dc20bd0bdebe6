package risk

import (
	"errors"
	"testing"

	"github.com/algoforge/backtest/pkg/leverage"
	"github.com/algoforge/backtest/pkg/types"
)

func TestNewManagerValidatesArguments(t *testing.T) {
	cases := []struct {
		name    string
		balance float64
		percent float64
		rrr     float64
	}{
		{"non-positive balance", 0, 0.02, 1.5},
		{"zero risk percent", 10000, 0, 1.5},
		{"risk percent over 1", 10000, 1.1, 1.5},
		{"non-positive rrr", 10000, 0.02, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewManager(c.balance, c.percent, c.rrr, nil)
			if !errors.Is(err, types.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestCalculatePositionSizeUnlevered(t *testing.T) {
	mgr, err := NewManager(10000, 0.02, 1.5, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	size, initialRisk, used := mgr.CalculatePositionSize(100, 95)
	if size != 40 {
		t.Errorf("expected size 40 (200 risk / 5 per-unit), got %d", size)
	}
	if initialRisk != 5 {
		t.Errorf("expected initial_risk 5, got %v", initialRisk)
	}
	if used != 1 {
		t.Errorf("expected unlevered usedLeverage 1, got %d", used)
	}
}

func TestCalculatePositionSizeZeroRiskReturnsZeroSize(t *testing.T) {
	mgr, _ := NewManager(10000, 0.02, 1.5, nil)
	size, initialRisk, used := mgr.CalculatePositionSize(100, 100)
	if size != 0 || initialRisk != 0 || used != 1 {
		t.Errorf("expected (0,0,1) for zero risk, got (%d,%v,%d)", size, initialRisk, used)
	}
}

func TestCalculatePositionSizeRoundsHalfAwayFromZero(t *testing.T) {
	// balance*percent/risk = 10000*0.015/3 = 50.0 exactly -> no rounding
	// ambiguity; use a case landing on x.5 to exercise rounding.
	mgr, _ := NewManager(10000, 0.0225, 1.5, nil) // 225/10 = 22.5
	size, _, _ := mgr.CalculatePositionSize(110, 100)
	if size != 23 {
		t.Errorf("expected half-away-from-zero rounding of 22.5 to 23, got %d", size)
	}
}

func TestCalculatePositionSizeClipsToLeverageTable(t *testing.T) {
	tbl, err := leverage.NewTable([]types.LeverageBracket{
		{BracketMin: 0, BracketMax: 1_000_000, MaxLeverage: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error building table: %v", err)
	}
	mgr, err := NewManager(1000, 1.0, 1.5, tbl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Unlevered raw size would be 2000 units (risk-based), but at 1x max
	// leverage notional cannot exceed the 1000 balance, so size clips to 1000.
	size, _, used := mgr.CalculatePositionSize(1, 0.5)
	if size != 1000 {
		t.Errorf("expected size clipped to 1000 (balance*1x / entry), got %d", size)
	}
	if used != 1 {
		t.Errorf("expected usedLeverage 1, got %d", used)
	}
}

func TestCalculateTP1Price(t *testing.T) {
	mgr, _ := NewManager(10000, 0.02, 2.0, nil)
	if got := mgr.CalculateTP1Price(100, 95, types.Long); got != 110 {
		t.Errorf("expected LONG tp1 110 (entry + risk*rrr), got %v", got)
	}
	if got := mgr.CalculateTP1Price(100, 105, types.Short); got != 90 {
		t.Errorf("expected SHORT tp1 90 (entry - risk*rrr), got %v", got)
	}
}

func TestMoveStopToBreakeven(t *testing.T) {
	mgr, _ := NewManager(10000, 0.02, 1.5, nil)
	pos := &types.Position{Direction: types.Long, EntryPrice: 100, StopLoss: 95}
	mgr.MoveStopToBreakeven(pos)
	if !pos.TP1Hit {
		t.Error("expected TP1Hit true")
	}
	if pos.StopLoss != 100 {
		t.Errorf("expected stop loss moved to entry price 100, got %v", pos.StopLoss)
	}
}

func TestUpdateBalance(t *testing.T) {
	mgr, _ := NewManager(10000, 0.02, 1.5, nil)
	mgr.UpdateBalance(12000)
	if mgr.CurrentBalance() != 12000 {
		t.Errorf("expected balance 12000, got %v", mgr.CurrentBalance())
	}
}

// TestUpdateBalanceGrowsPositionSize asserts property 11: rebalancing the
// sizing basis upward after a winning streak increases the position size
// CalculatePositionSize returns for the same entry/stop geometry, since
// risk_amount (balance*riskPercent) scales with balance while the stop
// distance stays fixed.
func TestUpdateBalanceGrowsPositionSize(t *testing.T) {
	mgr, _ := NewManager(10000, 0.02, 1.5, nil)

	sizeBefore, _, _ := mgr.CalculatePositionSize(100, 95)
	if sizeBefore <= 0 {
		t.Fatalf("expected a positive initial position size, got %d", sizeBefore)
	}

	// Simulate the balance a winning streak would produce: closedCount
	// winning trades, each realizing a profit, rebalanced via UpdateBalance
	// exactly as pkg/engine's closeTrade does every RebalanceInterval.
	mgr.UpdateBalance(10000 + 50*400) // 50 wins of 400 pnl each

	sizeAfter, _, _ := mgr.CalculatePositionSize(100, 95)
	if sizeAfter <= sizeBefore {
		t.Errorf("expected position size to grow after balance increased, got %d -> %d", sizeBefore, sizeAfter)
	}
}
