package leverage

import (
	"errors"
	"testing"

	"github.com/algoforge/backtest/pkg/types"
)

func sampleBrackets() []types.LeverageBracket {
	return []types.LeverageBracket{
		{BracketMin: 0, BracketMax: 50000, MaxLeverage: 125},
		{BracketMin: 50000, BracketMax: 250000, MaxLeverage: 100},
		{BracketMin: 250000, BracketMax: 1000000, MaxLeverage: 50},
	}
}

func TestNewTableValid(t *testing.T) {
	tbl, err := NewTable(sampleBrackets())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tbl.Brackets()) != 3 {
		t.Fatalf("expected 3 brackets, got %d", len(tbl.Brackets()))
	}
}

func TestNewTableEmpty(t *testing.T) {
	_, err := NewTable(nil)
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewTableRejectsOverlap(t *testing.T) {
	brackets := []types.LeverageBracket{
		{BracketMin: 0, BracketMax: 50000, MaxLeverage: 125},
		{BracketMin: 40000, BracketMax: 100000, MaxLeverage: 100},
	}
	_, err := NewTable(brackets)
	if !errors.Is(err, types.ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
}

func TestNewTableRejectsGap(t *testing.T) {
	brackets := []types.LeverageBracket{
		{BracketMin: 0, BracketMax: 50000, MaxLeverage: 125},
		{BracketMin: 60000, BracketMax: 100000, MaxLeverage: 100},
	}
	_, err := NewTable(brackets)
	if !errors.Is(err, types.ErrGap) {
		t.Fatalf("expected ErrGap, got %v", err)
	}
}

func TestNewTableRejectsInvertedRange(t *testing.T) {
	brackets := []types.LeverageBracket{
		{BracketMin: 100, BracketMax: 50, MaxLeverage: 10},
	}
	_, err := NewTable(brackets)
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewTableRejectsSubOneLeverage(t *testing.T) {
	brackets := []types.LeverageBracket{
		{BracketMin: 0, BracketMax: 50000, MaxLeverage: 0},
	}
	_, err := NewTable(brackets)
	if !errors.Is(err, types.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestMaxLeverageForWithinBracket(t *testing.T) {
	tbl, _ := NewTable(sampleBrackets())
	if got := tbl.MaxLeverageFor(10000); got != 125 {
		t.Errorf("expected 125, got %d", got)
	}
	if got := tbl.MaxLeverageFor(50000); got != 100 {
		t.Errorf("bracket boundary should belong to the upper bracket, got %d", got)
	}
	if got := tbl.MaxLeverageFor(500000); got != 50 {
		t.Errorf("expected 50, got %d", got)
	}
}

func TestMaxLeverageForClampsAboveRange(t *testing.T) {
	tbl, _ := NewTable(sampleBrackets())
	if got := tbl.MaxLeverageFor(10_000_000); got != 50 {
		t.Errorf("expected clamp to last bracket's leverage 50, got %d", got)
	}
}

func TestMaxLeverageForNonPositiveNotional(t *testing.T) {
	tbl, _ := NewTable(sampleBrackets())
	if got := tbl.MaxLeverageFor(0); got != 125 {
		t.Errorf("expected first bracket's leverage for non-positive notional, got %d", got)
	}
	if got := tbl.MaxLeverageFor(-100); got != 125 {
		t.Errorf("expected first bracket's leverage for negative notional, got %d", got)
	}
}

func TestRequiredMargin(t *testing.T) {
	tbl, _ := NewTable(sampleBrackets())
	margin := tbl.RequiredMargin(10, 100, 10)
	if margin != 100 {
		t.Errorf("expected margin 100 (notional 1000 / leverage 10), got %v", margin)
	}
}

func TestRequiredMarginFloorsSubOneLeverage(t *testing.T) {
	tbl, _ := NewTable(sampleBrackets())
	margin := tbl.RequiredMargin(10, 100, 0)
	if margin != 1000 {
		t.Errorf("expected leverage clamped to 1 (margin == full notional), got %v", margin)
	}
}

func TestRequiredMarginUsesAbsoluteNotional(t *testing.T) {
	tbl, _ := NewTable(sampleBrackets())
	margin := tbl.RequiredMargin(-10, 100, 10)
	if margin != 100 {
		t.Errorf("expected absolute notional, got %v", margin)
	}
}
