package indicators

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/algoforge/backtest/pkg/types"
)

func testBars(closes []float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{
			Timestamp: time.Unix(int64(i*60), 0).UTC(),
			Open:      c, High: c + 1, Low: c - 1, Close: c, Volume: 1,
		}
	}
	return bars
}

func TestNewFrameSeedsOHLCV(t *testing.T) {
	f := NewFrame(testBars([]float64{10, 11, 12}))
	if f.Len() != 3 {
		t.Fatalf("expected len 3, got %d", f.Len())
	}
	for _, col := range []string{"open", "high", "low", "close", "volume"} {
		if !f.Has(col) {
			t.Errorf("expected column %q to be seeded", col)
		}
	}
	if f.Value("close", 1) != 11 {
		t.Errorf("expected close[1]=11, got %v", f.Value("close", 1))
	}
}

func TestValueOutOfRangeReturnsZero(t *testing.T) {
	f := NewFrame(testBars([]float64{10, 11}))
	if v := f.Value("close", 5); v != 0 {
		t.Errorf("expected 0 for out-of-range index, got %v", v)
	}
	if v := f.Value("nonexistent", 0); v != 0 {
		t.Errorf("expected 0 for unknown column, got %v", v)
	}
}

func TestCalculateSMA(t *testing.T) {
	f := NewFrame(testBars([]float64{10, 20, 30, 40}))
	err := f.CalculateIndicator(IndicatorDef{ID: "sma3", Type: "sma", Params: map[string]float64{"period": 3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// min_periods=1 semantics: early indices average over fewer points.
	if v := f.Value("sma3", 0); v != 10 {
		t.Errorf("sma[0] = %v, want 10", v)
	}
	if v := f.Value("sma3", 1); v != 15 {
		t.Errorf("sma[1] = %v, want 15", v)
	}
	if v := f.Value("sma3", 2); v != 20 {
		t.Errorf("sma[2] = %v, want 20", v)
	}
	if v := f.Value("sma3", 3); v != 30 {
		t.Errorf("sma[3] = %v, want 30 (avg of 20,30,40)", v)
	}
}

func TestCalculateEMASeedsFirstValue(t *testing.T) {
	f := NewFrame(testBars([]float64{10, 20}))
	err := f.CalculateIndicator(IndicatorDef{ID: "ema2", Type: "ema", Params: map[string]float64{"period": 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := f.Value("ema2", 0); v != 10 {
		t.Errorf("ema[0] = %v, want 10 (seed)", v)
	}
	// alpha = 2/3; ema[1] = 2/3*20 + 1/3*10 = 16.666...
	want := (2.0/3.0)*20 + (1.0/3.0)*10
	if got := f.Value("ema2", 1); math.Abs(got-want) > 1e-9 {
		t.Errorf("ema[1] = %v, want %v", got, want)
	}
}

func TestCalculateRSIWarmupBackfilled(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 13, 14, 12, 15, 16, 14, 17, 18, 19, 20, 21}
	f := NewFrame(testBars(closes))
	err := f.CalculateIndicator(IndicatorDef{ID: "rsi14", Type: "rsi", Params: map[string]float64{"period": 14}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Warmup bars before the first valid RSI value backfill to it, so no
	// NaN should ever reach a caller through Value.
	for i := 0; i < len(closes); i++ {
		v := f.Value("rsi14", i)
		if math.IsNaN(v) {
			t.Fatalf("rsi[%d] is NaN, expected backfilled value", i)
		}
		if v < 0 || v > 100 {
			t.Errorf("rsi[%d] = %v out of [0,100]", i, v)
		}
	}
}

func TestCalculateATR(t *testing.T) {
	f := NewFrame(testBars([]float64{10, 20, 30}))
	err := f.CalculateIndicator(IndicatorDef{ID: "atr3", Type: "atr", Params: map[string]float64{"period": 3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := f.Value("atr3", 0); v <= 0 {
		t.Errorf("atr[0] should be positive (high-low range), got %v", v)
	}
}

func TestCalculateIndicatorRequiresID(t *testing.T) {
	f := NewFrame(testBars([]float64{10}))
	err := f.CalculateIndicator(IndicatorDef{Type: "sma"})
	if !errors.Is(err, types.ErrInvalidIndicatorParams) {
		t.Fatalf("expected ErrInvalidIndicatorParams, got %v", err)
	}
}

func TestCalculateIndicatorUnknownType(t *testing.T) {
	f := NewFrame(testBars([]float64{10}))
	err := f.CalculateIndicator(IndicatorDef{ID: "x", Type: "made_up"})
	if !errors.Is(err, types.ErrUnknownIndicator) {
		t.Fatalf("expected ErrUnknownIndicator, got %v", err)
	}
}

func TestCalculateIndicatorRejectsNonPositivePeriod(t *testing.T) {
	f := NewFrame(testBars([]float64{10, 20}))
	err := f.CalculateIndicator(IndicatorDef{ID: "bad", Type: "sma", Params: map[string]float64{"period": 0}})
	if !errors.Is(err, types.ErrInvalidIndicatorParams) {
		t.Fatalf("expected ErrInvalidIndicatorParams, got %v", err)
	}
}

func TestCalculateIndicatorUnknownSource(t *testing.T) {
	f := NewFrame(testBars([]float64{10, 20}))
	err := f.CalculateIndicator(IndicatorDef{ID: "bad", Type: "sma", Source: "vwap"})
	if !errors.Is(err, types.ErrInvalidIndicatorParams) {
		t.Fatalf("expected ErrInvalidIndicatorParams, got %v", err)
	}
}

func TestRawValueDistinguishesMissingFromZero(t *testing.T) {
	f := NewFrame(testBars([]float64{0, 0}))
	v, ok := f.RawValue("close", 0)
	if !ok || v != 0 {
		t.Errorf("expected (0, true) for a real zero value, got (%v, %v)", v, ok)
	}
	_, ok = f.RawValue("missing", 0)
	if ok {
		t.Error("expected ok=false for a missing column")
	}
}
