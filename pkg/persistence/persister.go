package persistence

import (
	"context"
	"io"

	"github.com/algoforge/backtest/pkg/runtracker"
	"github.com/algoforge/backtest/pkg/types"
)

// Persister is the storage surface pkg/batch and cmd/backtest depend on, so
// they can be tested against a fake without a live database.
type Persister interface {
	SaveDataset(ctx context.Context, d DatasetRecord) error
	SaveStrategy(ctx context.Context, s StrategyRecord) error
	SavePreset(ctx context.Context, p PresetRecord) error

	CreateRun(ctx context.Context, run *runtracker.Run, initialBalance float64) error
	UpdateRunStatus(ctx context.Context, run *runtracker.Run) error
	SaveTrades(ctx context.Context, runID string, trades []types.Trade) error
	SaveMetrics(ctx context.Context, runID string, m types.Metrics) error
	ClearRunResults(ctx context.Context, runID string) error

	SeedLeverageBrackets(ctx context.Context, brackets []types.LeverageBracket) error
	LoadLeverageBrackets(ctx context.Context) ([]types.LeverageBracket, error)

	io.Closer
}

var _ Persister = (*Client)(nil)
