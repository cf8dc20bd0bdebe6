// Package persistence provides relational storage for datasets, strategies,
// indicators, leverage brackets, run config presets, runs, trades, trade
// legs, and metrics, over a pgx connection pool.
package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Client provides database persistence operations for backtest runs.
type Client struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// connLifetime and connIdleTime bound how long a pooled connection is kept
// around, independent of how many runs execute concurrently: long enough
// that a single-binary batch run (minutes, not hours) never churns
// connections, short enough to shed a connection wedged by a dropped
// network path before it accumulates as dead pool capacity.
const (
	connLifetime = 30 * time.Minute
	connIdleTime = 5 * time.Minute
)

// PoolSizing derives pgxpool capacity from this engine's own concurrency,
// not a fixed guess. MaxConns covers every goroutine that can hold a
// connection at once: one per pkg/batch.Runner job in flight (each job's
// SaveTrades/SaveMetrics calls), plus headroom for pkg/api's monitoring
// handlers reading run state concurrently with in-flight runs.
type PoolSizing struct {
	// MaxConcurrentRuns should match the batch.Runner's MaxConcurrency.
	MaxConcurrentRuns int
}

const apiReadHeadroom = 2

func (p PoolSizing) maxConns() int32 {
	n := int32(p.MaxConcurrentRuns) + apiReadHeadroom
	if n < apiReadHeadroom+1 {
		n = apiReadHeadroom + 1
	}
	return n
}

func (p PoolSizing) minConns() int32 {
	n := int32(p.MaxConcurrentRuns)
	if n < 1 {
		n = 1
	}
	return n
}

// NewClient creates a new database client with a connection pool sized for
// sizing.MaxConcurrentRuns concurrent runs.
func NewClient(ctx context.Context, connStr string, logger *slog.Logger, sizing PoolSizing) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	config.MaxConns = sizing.maxConns()
	config.MinConns = sizing.minConns()
	config.MaxConnLifetime = connLifetime
	config.MaxConnIdleTime = connIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("database connection pool established", "max_conns", config.MaxConns)
	return &Client{pool: pool, logger: logger}, nil
}

// Close shuts down the connection pool.
func (c *Client) Close() error {
	c.pool.Close()
	c.logger.Info("database connection pool closed")
	return nil
}

// EnsureSchema creates the tables described in spec.md §6 if they do not
// already exist. Intended for local/dev bootstrapping; production
// deployments migrate the schema separately.
func (c *Client) EnsureSchema(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS datasets (
	dataset_id   TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	dataset_hash TEXT NOT NULL UNIQUE,
	file_path    TEXT NOT NULL,
	bars_count   INTEGER NOT NULL,
	start_ts     TIMESTAMPTZ NOT NULL,
	end_ts       TIMESTAMPTZ NOT NULL,
	timeframe    TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS strategies (
	strategy_id     TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	strategy_hash   TEXT NOT NULL UNIQUE,
	definition_json JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS indicators (
	indicator_id        TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	type                TEXT NOT NULL UNIQUE,
	category            TEXT NOT NULL,
	implementation_type TEXT NOT NULL,
	code                TEXT,
	params_schema_json  JSONB,
	output_fields_json  JSONB,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leverage_brackets (
	bracket_id    SERIAL PRIMARY KEY,
	bracket_min   DOUBLE PRECISION NOT NULL,
	bracket_max   DOUBLE PRECISION NOT NULL,
	max_leverage  INTEGER NOT NULL,
	m_margin_rate DOUBLE PRECISION NOT NULL,
	m_amount      DOUBLE PRECISION NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_config_presets (
	preset_id          TEXT PRIMARY KEY,
	name               TEXT NOT NULL UNIQUE,
	initial_balance    DOUBLE PRECISION NOT NULL,
	risk_percent       DOUBLE PRECISION NOT NULL,
	risk_reward_ratio  DOUBLE PRECISION NOT NULL,
	rebalance_interval INTEGER NOT NULL,
	is_default         BOOLEAN NOT NULL DEFAULT false,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	run_id             TEXT PRIMARY KEY,
	dataset_id         TEXT NOT NULL REFERENCES datasets(dataset_id),
	strategy_id        TEXT NOT NULL REFERENCES strategies(strategy_id),
	preset_id          TEXT REFERENCES run_config_presets(preset_id),
	status             TEXT NOT NULL,
	engine_version     TEXT NOT NULL,
	initial_balance    DOUBLE PRECISION NOT NULL,
	started_at         TIMESTAMPTZ NOT NULL,
	completed_at       TIMESTAMPTZ,
	progress_percent   INTEGER NOT NULL DEFAULT 0,
	processed_bars     INTEGER NOT NULL DEFAULT 0,
	total_bars         INTEGER NOT NULL DEFAULT 0,
	run_artifacts_json JSONB
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id         BIGSERIAL PRIMARY KEY,
	run_id           TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	direction        TEXT NOT NULL,
	entry_timestamp  TIMESTAMPTZ NOT NULL,
	entry_price      DOUBLE PRECISION NOT NULL,
	position_size    INTEGER NOT NULL,
	initial_risk     DOUBLE PRECISION NOT NULL,
	stop_loss        DOUBLE PRECISION NOT NULL,
	take_profit_1    DOUBLE PRECISION NOT NULL,
	balance_at_entry DOUBLE PRECISION NOT NULL,
	leverage         INTEGER NOT NULL,
	is_closed        BOOLEAN NOT NULL DEFAULT false,
	total_pnl        DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trade_legs (
	leg_id         BIGSERIAL PRIMARY KEY,
	trade_id       BIGINT NOT NULL REFERENCES trades(trade_id) ON DELETE CASCADE,
	exit_type      TEXT NOT NULL,
	exit_timestamp TIMESTAMPTZ NOT NULL,
	exit_price     DOUBLE PRECISION NOT NULL,
	qty_ratio      DOUBLE PRECISION NOT NULL,
	pnl            DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS metrics (
	metric_id              BIGSERIAL PRIMARY KEY,
	run_id                 TEXT NOT NULL UNIQUE REFERENCES runs(run_id) ON DELETE CASCADE,
	trades_count           INTEGER NOT NULL,
	winning_trades         INTEGER NOT NULL,
	losing_trades          INTEGER NOT NULL,
	win_rate               DOUBLE PRECISION NOT NULL,
	tp1_hit_rate           DOUBLE PRECISION NOT NULL,
	be_exit_rate           DOUBLE PRECISION NOT NULL,
	total_pnl              DOUBLE PRECISION NOT NULL,
	average_pnl            DOUBLE PRECISION NOT NULL,
	profit_factor          DOUBLE PRECISION NOT NULL,
	max_drawdown           DOUBLE PRECISION NOT NULL,
	max_consecutive_wins   INTEGER NOT NULL,
	max_consecutive_losses INTEGER NOT NULL,
	expectancy             DOUBLE PRECISION NOT NULL,
	score                  DOUBLE PRECISION NOT NULL,
	grade                  TEXT NOT NULL
);
`
