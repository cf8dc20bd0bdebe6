// Package indicators computes indicator columns over a bar series: a
// tabular column store seeded with OHLCV, populated by built-in kernels
// (ema, sma, rsi, atr) and by custom govaluate-expression kernels
// registered at run setup.
package indicators

import (
	"fmt"
	"math"

	"github.com/algoforge/backtest/pkg/types"
)

// IndicatorDef declares one indicator instance to compute.
type IndicatorDef struct {
	ID     string
	Type   string
	Source string             // source column for ema/sma/rsi; defaults to "close"
	Params map[string]float64 // numeric params, e.g. "period"
}

// Frame is a column store aligned 1:1 with a bar series.
type Frame struct {
	columns map[string][]float64
	n       int
	custom  map[string]*exprKernel
}

// NewFrame seeds open/high/low/close/volume columns from bars.
func NewFrame(bars []types.Bar) *Frame {
	n := len(bars)
	f := &Frame{
		columns: make(map[string][]float64, 8),
		n:       n,
		custom:  make(map[string]*exprKernel),
	}
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closeCol := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range bars {
		open[i] = b.Open
		high[i] = b.High
		low[i] = b.Low
		closeCol[i] = b.Close
		volume[i] = b.Volume
	}
	f.columns["open"] = open
	f.columns["high"] = high
	f.columns["low"] = low
	f.columns["close"] = closeCol
	f.columns["volume"] = volume
	return f
}

// Len returns the number of rows in the frame.
func (f *Frame) Len() int { return f.n }

// Has reports whether a column has been computed.
func (f *Frame) Has(column string) bool {
	_, ok := f.columns[column]
	return ok
}

// Value returns a column value at i with NaN fallback: the first non-NaN
// value in the column, or 0.0 if the whole column is NaN or the column
// does not exist.
func (f *Frame) Value(column string, i int) float64 {
	col, ok := f.columns[column]
	if !ok || i < 0 || i >= len(col) {
		return 0.0
	}
	v := col[i]
	if !math.IsNaN(v) {
		return v
	}
	for _, fv := range col {
		if !math.IsNaN(fv) {
			return fv
		}
	}
	return 0.0
}

// RawValue returns a column value at i without NaN fallback, for kernels
// that need to distinguish missing data from a real 0.
func (f *Frame) RawValue(column string, i int) (float64, bool) {
	col, ok := f.columns[column]
	if !ok || i < 0 || i >= len(col) {
		return 0, false
	}
	return col[i], true
}

// setColumn installs a computed column, backfilling leading NaNs with the
// first non-NaN value so warmup holes never reach downstream predicates.
func (f *Frame) setColumn(name string, values []float64) {
	backfilled := backfillNaN(values)
	f.columns[name] = backfilled
}

func backfillNaN(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	firstValid := -1
	for i, v := range out {
		if !math.IsNaN(v) {
			firstValid = i
			break
		}
	}
	if firstValid <= 0 {
		return out
	}
	fillValue := out[firstValid]
	for i := 0; i < firstValid; i++ {
		out[i] = fillValue
	}
	return out
}

// CalculateIndicator dispatches an IndicatorDef to a built-in kernel or to
// a registered custom kernel, storing the result as one column keyed by
// the def's ID. Every kernel yields a single series; multi-field output
// (extra columns named ID plus a "_field" suffix) is not produced.
func (f *Frame) CalculateIndicator(def IndicatorDef) error {
	if def.ID == "" {
		return fmt.Errorf("%w: indicator id is required", types.ErrInvalidIndicatorParams)
	}
	switch def.Type {
	case "ema":
		return f.calculateEMA(def)
	case "sma":
		return f.calculateSMA(def)
	case "rsi":
		return f.calculateRSI(def)
	case "atr":
		return f.calculateATR(def)
	default:
		if k, ok := f.custom[def.Type]; ok {
			return f.calculateCustom(def, k)
		}
		return fmt.Errorf("%w: %q", types.ErrUnknownIndicator, def.Type)
	}
}

func sourceColumn(def IndicatorDef) string {
	if def.Source == "" {
		return "close"
	}
	return def.Source
}

func intParam(params map[string]float64, key string, def int) int {
	if v, ok := params[key]; ok {
		return int(v)
	}
	return def
}
