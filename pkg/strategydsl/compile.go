package strategydsl

import (
	"fmt"
	"math"

	"github.com/algoforge/backtest/pkg/indicators"
	"github.com/algoforge/backtest/pkg/types"
)

// Signal is an entry signal: a direction plus the stop loss computed for
// it at the firing bar.
type Signal struct {
	Direction types.Direction
	StopLoss  float64
}

// Evaluator is a compiled Strategy bound to an indicator frame and bar
// series, exposing the pure per-bar predicates the engine drives.
type Evaluator struct {
	frame    *indicators.Frame
	bars     []types.Bar
	strategy Strategy
}

// Compile computes every declared indicator on frame, then returns an
// Evaluator ready to answer per-bar entry/exit/trailing queries. frame
// must already be seeded from bars via indicators.NewFrame.
func Compile(s Strategy, frame *indicators.Frame, bars []types.Bar) (*Evaluator, error) {
	for _, def := range s.Indicators {
		if err := frame.CalculateIndicator(def); err != nil {
			return nil, fmt.Errorf("%w: indicator %q: %w", types.ErrInvalidStrategy, def.ID, err)
		}
	}
	if err := validateStrategy(s); err != nil {
		return nil, err
	}
	return &Evaluator{frame: frame, bars: bars, strategy: s}, nil
}

func validateStrategy(s Strategy) error {
	for _, node := range s.EntryLong {
		if err := validateNode(node); err != nil {
			return err
		}
	}
	for _, node := range s.EntryShort {
		if err := validateNode(node); err != nil {
			return err
		}
	}
	for _, node := range s.ExitIndicatorLong {
		if err := validateNode(node); err != nil {
			return err
		}
	}
	for _, node := range s.ExitIndicatorShort {
		if err := validateNode(node); err != nil {
			return err
		}
	}
	switch s.StopLoss.Kind {
	case StopFixedPercent, StopFixedPoints, StopATRBased, StopIndicatorLevel:
	default:
		return fmt.Errorf("%w: unknown stop-loss kind %q", types.ErrInvalidStrategy, s.StopLoss.Kind)
	}
	return nil
}

func validateNode(n ConditionNode) error {
	switch n.Op {
	case OpGT, OpLT, OpGTE, OpLTE, OpEQ, OpCrossAbove, OpCrossBelow:
	default:
		return fmt.Errorf("%w: unknown operator %q", types.ErrInvalidStrategy, n.Op)
	}
	return nil
}

// EntrySignal evaluates both the long and short AND-trees at bar i. If
// both fire, ambiguity suppression returns no signal. If exactly one
// fires, the direction's stop-loss rule is evaluated; a rule failure
// (non-finite/missing source, direction-invariant violation) also yields
// no signal, ok=false. The result is the same as when no entry fires: the
// two cases are not told apart and no warning is recorded.
func (e *Evaluator) EntrySignal(i int) (Signal, bool) {
	longFired := evalAnd(e.strategy.EntryLong, e.frame, e.bars, i)
	shortFired := evalAnd(e.strategy.EntryShort, e.frame, e.bars, i)
	if longFired == shortFired {
		return Signal{}, false
	}
	dir := types.Long
	if shortFired {
		dir = types.Short
	}
	sl, ok := e.stopLossFor(dir, i)
	if !ok {
		return Signal{}, false
	}
	return Signal{Direction: dir, StopLoss: sl}, true
}

// ExitSignal evaluates the indicator-based exit AND-tree for direction d
// at bar i, or returns false if no indicator exit is configured.
func (e *Evaluator) ExitSignal(i int, d types.Direction) bool {
	if !e.strategy.HasIndicatorExit {
		return false
	}
	if d == types.Long {
		return evalAnd(e.strategy.ExitIndicatorLong, e.frame, e.bars, i)
	}
	return evalAnd(e.strategy.ExitIndicatorShort, e.frame, e.bars, i)
}

// ATRTrailing returns the configured ATR column and multiplier, or
// ok=false if trailing is not configured.
func (e *Evaluator) ATRTrailing() (column string, multiplier float64, ok bool) {
	if e.strategy.ATRTrailing == nil {
		return "", 0, false
	}
	return e.strategy.ATRTrailing.ATRIndicatorID, e.strategy.ATRTrailing.Multiplier, true
}

// ATRValue returns the ATR column's value at bar i, for callers (the
// engine) that already resolved the trailing config.
func (e *Evaluator) ATRValue(column string, i int) float64 {
	return e.frame.Value(column, i)
}

func (e *Evaluator) stopLossFor(d types.Direction, i int) (float64, bool) {
	close := e.bars[i].Close
	rule := e.strategy.StopLoss
	switch rule.Kind {
	case StopFixedPercent:
		p := rule.Percent / 100.0
		if d == types.Long {
			return close * (1 - p), true
		}
		return close * (1 + p), true
	case StopFixedPoints:
		if d == types.Long {
			return close - rule.Points, true
		}
		return close + rule.Points, true
	case StopATRBased:
		atrVal := e.frame.Value(rule.ATRIndicatorID, i)
		if atrVal <= 0 {
			return 0, false
		}
		offset := rule.Multiplier * atrVal
		if d == types.Long {
			return close - offset, true
		}
		return close + offset, true
	case StopIndicatorLevel:
		col := rule.LongRef
		if d == types.Short {
			col = rule.ShortRef
		}
		raw, present := e.frame.RawValue(col, i)
		if !present || math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 {
			return 0, false
		}
		if d == types.Long && raw >= close {
			return 0, false
		}
		if d == types.Short && raw <= close {
			return 0, false
		}
		return raw, true
	default:
		return 0, false
	}
}
