// Package strategydsl compiles a declarative strategy definition into
// per-bar entry/exit predicates bound over a precomputed indicator frame.
package strategydsl

import "github.com/algoforge/backtest/pkg/indicators"

// Operator is one of the comparison or crossing operators a ConditionNode
// may use.
type Operator string

const (
	OpGT          Operator = ">"
	OpLT          Operator = "<"
	OpGTE         Operator = ">="
	OpLTE         Operator = "<="
	OpEQ          Operator = "=="
	OpCrossAbove  Operator = "cross_above"
	OpCrossBelow  Operator = "cross_below"
)

// Operand is one leaf value in a ConditionNode: exactly one of its
// fields is populated.
type Operand struct {
	Price string // one of O, H, L, C, V
	Ref   string // "id" or "id.field"
	Value *float64
}

// ConditionNode is one comparison in an entry/exit AND-tree.
type ConditionNode struct {
	Left  Operand
	Op    Operator
	Right Operand
}

// StopLossKind selects which stop-loss formula a Strategy uses.
type StopLossKind string

const (
	StopFixedPercent   StopLossKind = "fixed_percent"
	StopFixedPoints    StopLossKind = "fixed_points"
	StopATRBased       StopLossKind = "atr_based"
	StopIndicatorLevel StopLossKind = "indicator_level"
)

// StopLossRule is the strategy's single stop-loss formula.
type StopLossRule struct {
	Kind StopLossKind
	// Percent is used by fixed_percent, expressed as e.g. 2.0 for 2%.
	Percent float64
	// Points is used by fixed_points: an absolute price offset.
	Points float64
	// ATRIndicatorID + Multiplier are used by atr_based.
	ATRIndicatorID string
	Multiplier     float64
	// LongRef / ShortRef are used by indicator_level: the column read as
	// the stop loss value for each direction.
	LongRef  string
	ShortRef string
}

// ATRTrailingConfig configures the trailing-stop update, or is absent.
type ATRTrailingConfig struct {
	ATRIndicatorID string
	Multiplier     float64
}

// Strategy is the declarative, engine-opaque strategy definition.
type Strategy struct {
	Indicators []indicators.IndicatorDef

	EntryLong  []ConditionNode
	EntryShort []ConditionNode

	ExitIndicatorLong  []ConditionNode
	ExitIndicatorShort []ConditionNode
	HasIndicatorExit   bool

	ATRTrailing   *ATRTrailingConfig
	StopLoss      StopLossRule
}
