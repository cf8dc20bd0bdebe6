package indicators

import (
	"fmt"

	"github.com/Knetic/govaluate"
	"github.com/algoforge/backtest/pkg/types"
)

// exprKernel is a custom indicator expressed as a govaluate expression
// evaluated once per bar over the frame's existing columns plus the
// indicator definition's declared params.
type exprKernel struct {
	expr   *govaluate.EvaluableExpression
	fields map[string]string // output field name -> suffix ("" for main)
}

// RegisterCustomKernel compiles expr and validates it against the
// sandbox allow-list, then registers it under typeName for later use in
// CalculateIndicator. expr must evaluate to a single numeric result; it
// is stored on the bare indicator ID (the "main" field).
func (f *Frame) RegisterCustomKernel(typeName, expr string) error {
	compiled, err := govaluate.NewEvaluableExpressionWithFunctions(expr, allowedFunctions)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrIndicatorKernelError, err)
	}
	if err := validateExpression(compiled); err != nil {
		return err
	}
	f.custom[typeName] = &exprKernel{expr: compiled}
	return nil
}

func (f *Frame) calculateCustom(def IndicatorDef, k *exprKernel) error {
	out := make([]float64, f.n)
	params := make(map[string]interface{}, len(def.Params)+5)
	for key, v := range def.Params {
		params[key] = v
	}
	for i := 0; i < f.n; i++ {
		for col, values := range f.columns {
			if i < len(values) {
				params[col] = values[i]
			}
		}
		result, err := k.expr.Evaluate(params)
		if err != nil {
			return fmt.Errorf("%w: indicator %q at bar %d: %v", types.ErrIndicatorKernelError, def.ID, i, err)
		}
		val, ok := result.(float64)
		if !ok {
			return fmt.Errorf("%w: indicator %q at bar %d did not evaluate to a number", types.ErrIndicatorKernelError, def.ID, i)
		}
		out[i] = val
	}
	f.setColumn(def.ID, out)
	return nil
}
