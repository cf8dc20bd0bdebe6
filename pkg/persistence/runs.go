package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/algoforge/backtest/pkg/runtracker"
	"github.com/algoforge/backtest/pkg/types"
	"github.com/jackc/pgx/v5"
)

// DatasetRecord is the persisted form of an ingested bar series.
type DatasetRecord struct {
	DatasetID   string
	Name        string
	DatasetHash string
	FilePath    string
	BarsCount   int
	StartTS     types.Bar
	EndTS       types.Bar
	Timeframe   string
}

// StrategyRecord is the persisted form of a compiled strategy definition.
type StrategyRecord struct {
	StrategyID   string
	Name         string
	StrategyHash string
	Definition   interface{} // marshaled to definition_json
}

// PresetRecord is a named, reusable RunConfig.
type PresetRecord struct {
	PresetID string
	Name     string
	Config   types.RunConfig
	IsDefault bool
}

// SaveDataset inserts a dataset row keyed by dataset_hash; an existing row
// with the same hash is left unchanged.
func (c *Client) SaveDataset(ctx context.Context, d DatasetRecord) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO datasets (dataset_id, name, dataset_hash, file_path, bars_count, start_ts, end_ts, timeframe)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (dataset_hash) DO NOTHING`,
		d.DatasetID, d.Name, d.DatasetHash, d.FilePath, d.BarsCount,
		d.StartTS.Timestamp, d.EndTS.Timestamp, d.Timeframe,
	)
	if err != nil {
		return fmt.Errorf("saving dataset: %w", err)
	}
	return nil
}

// SaveStrategy inserts a strategy row keyed by strategy_hash; an existing
// row with the same hash is left unchanged.
func (c *Client) SaveStrategy(ctx context.Context, s StrategyRecord) error {
	defJSON, err := json.Marshal(s.Definition)
	if err != nil {
		return fmt.Errorf("marshaling strategy definition: %w", err)
	}
	_, err = c.pool.Exec(ctx,
		`INSERT INTO strategies (strategy_id, name, strategy_hash, definition_json)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (strategy_hash) DO NOTHING`,
		s.StrategyID, s.Name, s.StrategyHash, defJSON,
	)
	if err != nil {
		return fmt.Errorf("saving strategy: %w", err)
	}
	return nil
}

// SavePreset upserts a named run config preset.
func (c *Client) SavePreset(ctx context.Context, p PresetRecord) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO run_config_presets
			(preset_id, name, initial_balance, risk_percent, risk_reward_ratio, rebalance_interval, is_default, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (name) DO UPDATE SET
			initial_balance = EXCLUDED.initial_balance,
			risk_percent = EXCLUDED.risk_percent,
			risk_reward_ratio = EXCLUDED.risk_reward_ratio,
			rebalance_interval = EXCLUDED.rebalance_interval,
			is_default = EXCLUDED.is_default,
			updated_at = now()`,
		p.PresetID, p.Name, p.Config.InitialBalance, p.Config.RiskPercent,
		p.Config.RiskRewardRatio, p.Config.RebalanceInterval, p.IsDefault,
	)
	if err != nil {
		return fmt.Errorf("saving preset: %w", err)
	}
	return nil
}

// CreateRun inserts a new run row in PENDING status.
func (c *Client) CreateRun(ctx context.Context, run *runtracker.Run, initialBalance float64) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO runs (run_id, dataset_id, strategy_id, preset_id, status, engine_version,
			initial_balance, started_at, processed_bars, total_bars)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)`,
		run.RunID, run.DatasetID, run.StrategyID, run.PresetID, string(run.Status),
		run.EngineVersion, initialBalance, run.StartedAt, run.ProcessedBars, run.TotalBars,
	)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// UpdateRunStatus persists the current snapshot of a run's lifecycle state.
func (c *Client) UpdateRunStatus(ctx context.Context, run *runtracker.Run) error {
	artifacts, err := json.Marshal(map[string]interface{}{
		"warnings":     run.Warnings,
		"trades_count": run.TradesCount,
		"error":        run.ErrorMessage,
	})
	if err != nil {
		return fmt.Errorf("marshaling run artifacts: %w", err)
	}
	_, err = c.pool.Exec(ctx,
		`UPDATE runs SET status = $2, completed_at = $3, progress_percent = $4,
			processed_bars = $5, run_artifacts_json = $6
		 WHERE run_id = $1`,
		run.RunID, string(run.Status), run.CompletedAt, run.ProgressPercent(),
		run.ProcessedBars, artifacts,
	)
	if err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}
	return nil
}

// SaveTrades bulk-inserts a run's closed trades and their legs in one
// transaction, using CopyFrom for the legs since a run may produce many.
func (c *Client) SaveTrades(ctx context.Context, runID string, trades []types.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tradeIDs := make([]int64, len(trades))
	for i, t := range trades {
		err := tx.QueryRow(ctx,
			`INSERT INTO trades
				(run_id, direction, entry_timestamp, entry_price, position_size,
				 initial_risk, stop_loss, take_profit_1, balance_at_entry, leverage,
				 is_closed, total_pnl)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 RETURNING trade_id`,
			runID, string(t.Direction), t.EntryTimestamp, t.EntryPrice, t.PositionSize,
			t.InitialRisk, t.StopLoss, t.TakeProfit1, t.BalanceAtEntry, t.Leverage,
			t.IsClosed, t.TotalPnL(),
		).Scan(&tradeIDs[i])
		if err != nil {
			return fmt.Errorf("inserting trade %d: %w", t.TradeID, err)
		}
	}

	legRows := make([][]interface{}, 0)
	for i, t := range trades {
		for _, leg := range t.Legs {
			legRows = append(legRows, []interface{}{
				tradeIDs[i], string(leg.ExitType), leg.ExitTimestamp, leg.ExitPrice,
				leg.QtyRatio, leg.PnL,
			})
		}
	}
	if len(legRows) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"trade_legs"},
			[]string{"trade_id", "exit_type", "exit_timestamp", "exit_price", "qty_ratio", "pnl"},
			pgx.CopyFromRows(legRows),
		)
		if err != nil {
			return fmt.Errorf("bulk inserting trade legs: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing trades transaction: %w", err)
	}
	c.logger.Info("saved run trades", "run_id", runID, "trades", len(trades), "legs", len(legRows))
	return nil
}

// SaveMetrics upserts the aggregate metrics row for a run.
func (c *Client) SaveMetrics(ctx context.Context, runID string, m types.Metrics) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO metrics
			(run_id, trades_count, winning_trades, losing_trades, win_rate, tp1_hit_rate,
			 be_exit_rate, total_pnl, average_pnl, profit_factor, max_drawdown,
			 max_consecutive_wins, max_consecutive_losses, expectancy, score, grade)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (run_id) DO UPDATE SET
			trades_count = EXCLUDED.trades_count,
			winning_trades = EXCLUDED.winning_trades,
			losing_trades = EXCLUDED.losing_trades,
			win_rate = EXCLUDED.win_rate,
			tp1_hit_rate = EXCLUDED.tp1_hit_rate,
			be_exit_rate = EXCLUDED.be_exit_rate,
			total_pnl = EXCLUDED.total_pnl,
			average_pnl = EXCLUDED.average_pnl,
			profit_factor = EXCLUDED.profit_factor,
			max_drawdown = EXCLUDED.max_drawdown,
			max_consecutive_wins = EXCLUDED.max_consecutive_wins,
			max_consecutive_losses = EXCLUDED.max_consecutive_losses,
			expectancy = EXCLUDED.expectancy,
			score = EXCLUDED.score,
			grade = EXCLUDED.grade`,
		runID, m.TradesCount, m.WinningTrades, m.LosingTrades, m.WinRate, m.TP1HitRate,
		m.BEExitRate, m.TotalPnL, m.AveragePnL, m.ProfitFactor, m.MaxDrawdown,
		m.MaxConsecutiveWins, m.MaxConsecutiveLosses, m.Expectancy, m.Score, m.Grade,
	)
	if err != nil {
		return fmt.Errorf("saving metrics: %w", err)
	}
	return nil
}

// ClearRunResults deletes a run's trades (cascading to legs) and metrics,
// the persisted half of the rerun operation spec.md §6 describes; the
// in-memory progress/status reset is runtracker.Tracker.Rerun's job.
func (c *Client) ClearRunResults(ctx context.Context, runID string) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM metrics WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clearing metrics: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM trades WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("clearing trades: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE runs SET status = $2, completed_at = NULL, progress_percent = 0,
			processed_bars = 0, run_artifacts_json = NULL
		 WHERE run_id = $1`,
		runID, string(runtracker.StatusPending),
	); err != nil {
		return fmt.Errorf("resetting run row: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing rerun clear: %w", err)
	}
	c.logger.Info("cleared run results for rerun", "run_id", runID)
	return nil
}
