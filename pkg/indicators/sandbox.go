package indicators

import (
	"fmt"

	"github.com/Knetic/govaluate"
	"github.com/algoforge/backtest/pkg/types"
)

// allowedFunctions is the whitelist of govaluate built-in functions a
// custom expression may call. govaluate itself has no "import" or "eval"
// concept, so the risk surface collapses to "which identifiers/functions
// does the expression reference" — this is the Go-native analogue of the
// Python AST allow-list validator that rejects import/eval/exec/open/etc.
var allowedFunctions = map[string]govaluate.ExpressionFunction{
	"abs": func(args ...interface{}) (interface{}, error) {
		v, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("abs: argument must be numeric")
		}
		if v < 0 {
			return -v, nil
		}
		return v, nil
	},
	"max": func(args ...interface{}) (interface{}, error) {
		a, aok := args[0].(float64)
		b, bok := args[1].(float64)
		if !aok || !bok {
			return nil, fmt.Errorf("max: arguments must be numeric")
		}
		if a > b {
			return a, nil
		}
		return b, nil
	},
	"min": func(args ...interface{}) (interface{}, error) {
		a, aok := args[0].(float64)
		b, bok := args[1].(float64)
		if !aok || !bok {
			return nil, fmt.Errorf("min: arguments must be numeric")
		}
		if a < b {
			return a, nil
		}
		return b, nil
	},
}

// validateExpression rejects any function token the compiled expression
// references that is not in allowedFunctions. govaluate already refuses
// to parse a function call outside the map it was compiled with, so this
// pass is a belt-and-suspenders check against disallowed tokens reaching
// storage; it is the Go-native analogue of the Python AST allow-list scan
// that rejects import/eval/exec/open/etc at registration time rather than
// discovering them mid-run.
func validateExpression(expr *govaluate.EvaluableExpression) error {
	for _, tok := range expr.Tokens() {
		if tok.Kind != govaluate.FUNCTION {
			continue
		}
		name, ok := tok.Value.(string)
		if !ok {
			continue
		}
		if _, allowed := allowedFunctions[name]; !allowed {
			return fmt.Errorf("%w: custom indicator references disallowed function %q", types.ErrInvalidIndicatorParams, name)
		}
	}
	return nil
}
