// Package leverage implements the exchange leverage bracket table: an
// ordered, half-open partition of notional ranges, each capped at a
// maximum leverage and carrying maintenance margin parameters.
package leverage

import (
	"fmt"
	"math"

	"github.com/algoforge/backtest/pkg/types"
)

// Table is an ordered, validated list of leverage brackets covering
// [brackets[0].BracketMin, brackets[len-1].BracketMax) with no gaps or
// overlaps.
type Table struct {
	brackets []types.LeverageBracket
}

// NewTable validates brackets and returns a Table. Brackets must be sorted
// ascending by BracketMin, contiguous (bracket[i].BracketMax == bracket[i+1].BracketMin),
// and non-overlapping; any violation returns ErrGap or ErrOverlap.
func NewTable(brackets []types.LeverageBracket) (*Table, error) {
	if len(brackets) == 0 {
		return nil, fmt.Errorf("%w: empty bracket list", types.ErrInvalidConfig)
	}
	sorted := make([]types.LeverageBracket, len(brackets))
	copy(sorted, brackets)

	for i, b := range sorted {
		if b.BracketMax <= b.BracketMin {
			return nil, fmt.Errorf("%w: bracket %d has max %.2f <= min %.2f", types.ErrInvalidConfig, i, b.BracketMax, b.BracketMin)
		}
		if b.MaxLeverage < 1 {
			return nil, fmt.Errorf("%w: bracket %d has max_leverage %d < 1", types.ErrInvalidConfig, i, b.MaxLeverage)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		switch {
		case b.BracketMin < prev.BracketMax:
			return nil, fmt.Errorf("%w: bracket %d [%.2f,%.2f) overlaps bracket %d [%.2f,%.2f)",
				types.ErrOverlap, i, b.BracketMin, b.BracketMax, i-1, prev.BracketMin, prev.BracketMax)
		case b.BracketMin > prev.BracketMax:
			return nil, fmt.Errorf("%w: gap between bracket %d (max %.2f) and bracket %d (min %.2f)",
				types.ErrGap, i-1, prev.BracketMax, i, b.BracketMin)
		}
	}
	return &Table{brackets: sorted}, nil
}

// MaxLeverageFor returns the integer-floored maximum leverage allowed for
// the given notional. Notionals at or beyond the last bracket's max clamp
// to the last bracket's leverage.
func (t *Table) MaxLeverageFor(notional float64) int {
	if notional <= 0 {
		return t.brackets[0].MaxLeverage
	}
	for _, b := range t.brackets {
		if notional >= b.BracketMin && notional < b.BracketMax {
			return b.MaxLeverage
		}
	}
	return t.brackets[len(t.brackets)-1].MaxLeverage
}

// RequiredMargin returns the margin an exchange would require to hold
// size contracts at price with the given leverage: notional / leverage.
func (t *Table) RequiredMargin(size, price float64, leverage int) float64 {
	if leverage < 1 {
		leverage = 1
	}
	notional := math.Abs(size * price)
	return notional / float64(leverage)
}

// Brackets returns a copy of the underlying ordered bracket list.
func (t *Table) Brackets() []types.LeverageBracket {
	out := make([]types.LeverageBracket, len(t.brackets))
	copy(out, t.brackets)
	return out
}
