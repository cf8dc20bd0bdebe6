package strategydsl

import (
	"math"

	"github.com/algoforge/backtest/pkg/indicators"
	"github.com/algoforge/backtest/pkg/types"
)

const eqTolerance = 1e-9

// evalAnd evaluates a conjunction of condition nodes; an empty tree is
// false per spec.
func evalAnd(nodes []ConditionNode, frame *indicators.Frame, bars []types.Bar, i int) bool {
	if len(nodes) == 0 {
		return false
	}
	for _, n := range nodes {
		if !evalNode(n, frame, bars, i) {
			return false
		}
	}
	return true
}

func evalNode(n ConditionNode, frame *indicators.Frame, bars []types.Bar, i int) bool {
	switch n.Op {
	case OpCrossAbove:
		return evalCross(n, frame, bars, i, true)
	case OpCrossBelow:
		return evalCross(n, frame, bars, i, false)
	default:
		left, lok := resolveOperand(n.Left, frame, bars, i)
		right, rok := resolveOperand(n.Right, frame, bars, i)
		if !lok || !rok {
			return false
		}
		return compare(n.Op, left, right)
	}
}

func evalCross(n ConditionNode, frame *indicators.Frame, bars []types.Bar, i int, above bool) bool {
	if i == 0 {
		return false
	}
	leftPrev, lpok := resolveOperand(n.Left, frame, bars, i-1)
	rightPrev, rpok := resolveOperand(n.Right, frame, bars, i-1)
	leftCur, lok := resolveOperand(n.Left, frame, bars, i)
	rightCur, rok := resolveOperand(n.Right, frame, bars, i)
	if !lpok || !rpok || !lok || !rok {
		return false
	}
	if above {
		return leftPrev <= rightPrev && leftCur > rightCur
	}
	return leftPrev >= rightPrev && leftCur < rightCur
}

func compare(op Operator, left, right float64) bool {
	switch op {
	case OpGT:
		return left > right
	case OpLT:
		return left < right
	case OpGTE:
		return left >= right
	case OpLTE:
		return left <= right
	case OpEQ:
		return math.Abs(left-right) < eqTolerance
	default:
		return false
	}
}

// resolveOperand resolves a leaf operand at bar i. ok is false if the
// operand is malformed or the referenced value is unavailable.
func resolveOperand(op Operand, frame *indicators.Frame, bars []types.Bar, i int) (float64, bool) {
	switch {
	case op.Value != nil:
		return *op.Value, true
	case op.Price != "":
		return resolvePrice(op.Price, bars, i)
	case op.Ref != "":
		return resolveRef(op.Ref, frame, i)
	default:
		return 0, false
	}
}

func resolvePrice(price string, bars []types.Bar, i int) (float64, bool) {
	if i < 0 || i >= len(bars) {
		return 0, false
	}
	b := bars[i]
	switch price {
	case "O":
		return b.Open, true
	case "H":
		return b.High, true
	case "L":
		return b.Low, true
	case "C":
		return b.Close, true
	case "V":
		return b.Volume, true
	default:
		return 0, false
	}
}

// resolveRef maps "id" or "id.field" to a frame column: the bare column
// for "id" or "id" with field "main", else "id_field".
func resolveRef(ref string, frame *indicators.Frame, i int) (float64, bool) {
	id, field := splitRef(ref)
	column := id
	if field != "" && field != "main" {
		column = id + "_" + field
	}
	raw, ok := frame.RawValue(column, i)
	if !ok {
		return 0, false
	}
	if math.IsNaN(raw) {
		return frame.Value(column, i), true
	}
	return raw, true
}

func splitRef(ref string) (id, field string) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == '.' {
			return ref[:i], ref[i+1:]
		}
	}
	return ref, ""
}
