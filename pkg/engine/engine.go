// Package engine implements the bar-by-bar simulation engine.
//
// Mirrors the Python BacktestEngine in engine/core/backtest_engine.py: a
// single open position is carried bar-to-bar, exits fire in a fixed
// priority (stop loss, TP1 partial, indicator exit, reverse signal), and
// trade_id is an arena index into an append-only trade slice rather than
// a linear search, per the ownership discipline this port follows.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/algoforge/backtest/pkg/risk"
	"github.com/algoforge/backtest/pkg/strategydsl"
	"github.com/algoforge/backtest/pkg/types"
)

// ProgressFunc is invoked between bars, rate-limited to roughly once per
// 1% of progress. Returning false requests cancellation.
type ProgressFunc func(done, total int) bool

// Options configures one Run invocation.
type Options struct {
	Config   types.RunConfig
	Risk     *risk.Manager
	Strategy *strategydsl.Evaluator
	Progress ProgressFunc
	Logger   *slog.Logger
}

// Result is the outcome of a Run call.
type Result struct {
	Trades    []types.Trade
	Warnings  []string
	Cancelled bool
}

// Engine runs one back-test over a bar series. Not safe for concurrent
// use; pkg/batch gives each parallel run its own Engine.
type Engine struct {
	opts        Options
	logger      *slog.Logger
	position    *types.Position
	trades      []types.Trade // append-only; trade_id = index+1
	warnings    []string
	closedCount int
}

// New constructs an Engine. Returns InvalidConfig if opts.Config fails
// validation.
func New(opts Options) (*Engine, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{opts: opts, logger: logger}, nil
}

// Run drives the bar loop. bars must be non-empty and strictly ascending
// in timestamp. ctx.Done() is polled once per bar alongside the Progress
// callback, per the single cooperative suspension point the engine
// exposes.
func (e *Engine) Run(ctx context.Context, bars []types.Bar) (Result, error) {
	if err := types.ValidateSeries(bars); err != nil {
		return Result{}, err
	}

	total := len(bars)
	every := progressInterval(total)

	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return e.cancelledResult(), nil
		default:
		}

		reentryBlocked := e.processBar(i, bar)

		if e.position == nil && !reentryBlocked {
			e.tryEnter(i, bar)
		}

		if e.opts.Progress != nil && shouldReport(i, total, every) {
			if !e.opts.Progress(i+1, total) {
				return e.cancelledResult(), nil
			}
		}
	}

	return Result{Trades: e.trades, Warnings: e.warnings}, nil
}

func (e *Engine) cancelledResult() Result {
	return Result{Trades: e.trades, Warnings: e.warnings, Cancelled: true}
}

func progressInterval(total int) int {
	n := (total + 99) / 100
	if n < 1 {
		n = 1
	}
	return n
}

func shouldReport(i, total, every int) bool {
	return i == total-1 || (i+1)%every == 0
}

func (e *Engine) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.warnings = append(e.warnings, msg)
	e.logger.Warn(msg)
}
