package indicators

import (
	"fmt"
	"math"

	"github.com/algoforge/backtest/pkg/types"
)

func (f *Frame) calculateEMA(def IndicatorDef) error {
	src := sourceColumn(def)
	col, ok := f.columns[src]
	if !ok {
		return fmt.Errorf("%w: source field %q not found", types.ErrInvalidIndicatorParams, src)
	}
	period := intParam(def.Params, "period", 20)
	if period <= 0 {
		return fmt.Errorf("%w: period must be > 0, got %d", types.ErrInvalidIndicatorParams, period)
	}
	f.setColumn(def.ID, ema(col, period))
	return nil
}

func (f *Frame) calculateSMA(def IndicatorDef) error {
	src := sourceColumn(def)
	col, ok := f.columns[src]
	if !ok {
		return fmt.Errorf("%w: source field %q not found", types.ErrInvalidIndicatorParams, src)
	}
	period := intParam(def.Params, "period", 20)
	if period <= 0 {
		return fmt.Errorf("%w: period must be > 0, got %d", types.ErrInvalidIndicatorParams, period)
	}
	f.setColumn(def.ID, sma(col, period))
	return nil
}

func (f *Frame) calculateRSI(def IndicatorDef) error {
	src := sourceColumn(def)
	col, ok := f.columns[src]
	if !ok {
		return fmt.Errorf("%w: source field %q not found", types.ErrInvalidIndicatorParams, src)
	}
	period := intParam(def.Params, "period", 14)
	if period <= 0 {
		return fmt.Errorf("%w: period must be > 0, got %d", types.ErrInvalidIndicatorParams, period)
	}
	f.setColumn(def.ID, rsi(col, period))
	return nil
}

func (f *Frame) calculateATR(def IndicatorDef) error {
	for _, col := range []string{"high", "low", "close"} {
		if _, ok := f.columns[col]; !ok {
			return fmt.Errorf("%w: atr requires column %q", types.ErrInvalidIndicatorParams, col)
		}
	}
	period := intParam(def.Params, "period", 14)
	if period <= 0 {
		return fmt.Errorf("%w: period must be > 0, got %d", types.ErrInvalidIndicatorParams, period)
	}
	f.setColumn(def.ID, atr(f.columns["high"], f.columns["low"], f.columns["close"], period))
	return nil
}

// sma is a simple rolling mean with min_periods=1: early indices average
// over however many observations are available.
func sma(src []float64, period int) []float64 {
	out := make([]float64, len(src))
	for i := range src {
		out[i] = rollingMean(src, i, period)
	}
	return out
}

func rollingMean(src []float64, i, period int) float64 {
	start := i - period + 1
	if start < 0 {
		start = 0
	}
	var sum float64
	count := 0
	for j := start; j <= i; j++ {
		sum += src[j]
		count++
	}
	return sum / float64(count)
}

// ema is the standard exponential moving average with smoothing
// factor alpha = 2/(period+1), seeded at the first observation.
func ema(src []float64, period int) []float64 {
	out := make([]float64, len(src))
	if len(src) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = src[0]
	for i := 1; i < len(src); i++ {
		out[i] = alpha*src[i] + (1-alpha)*out[i-1]
	}
	return out
}

// rsi is the classical Wilder RSI: average gain/loss over period via an
// exponential (Wilder) smoothing, seeded by the simple mean of the first
// period changes.
func rsi(src []float64, period int) []float64 {
	out := make([]float64, len(src))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(src) < 2 {
		return out
	}
	gains := make([]float64, len(src))
	losses := make([]float64, len(src))
	for i := 1; i < len(src); i++ {
		delta := src[i] - src[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	if len(src) <= period {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAvg(avgGain, avgLoss)
	for i := period + 1; i < len(src); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// atr computes the rolling mean of the true range with min_periods=1.
func atr(high, low, close []float64, period int) []float64 {
	n := len(close)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := high[i] - low[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		prevClose := close[i-1]
		hc := math.Abs(high[i] - prevClose)
		lc := math.Abs(low[i] - prevClose)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = rollingMean(tr, i, period)
	}
	return out
}
