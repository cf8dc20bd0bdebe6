package persistence

import (
	"context"
	"fmt"

	"github.com/algoforge/backtest/pkg/types"
)

// DefaultLeverageBrackets is the canonical notional-range leverage table
// used when no store-backed table has been migrated yet, mirroring the
// shape the original loader expects from its leverage_brackets table.
func DefaultLeverageBrackets() []types.LeverageBracket {
	return []types.LeverageBracket{
		{BracketMin: 0, BracketMax: 50_000, MaxLeverage: 125, MaintenanceMarginRate: 0.004, MaintenanceMarginFixed: 0},
		{BracketMin: 50_000, BracketMax: 250_000, MaxLeverage: 100, MaintenanceMarginRate: 0.005, MaintenanceMarginFixed: 50},
		{BracketMin: 250_000, BracketMax: 1_000_000, MaxLeverage: 50, MaintenanceMarginRate: 0.01, MaintenanceMarginFixed: 1_300},
		{BracketMin: 1_000_000, BracketMax: 5_000_000, MaxLeverage: 20, MaintenanceMarginRate: 0.025, MaintenanceMarginFixed: 16_300},
		{BracketMin: 5_000_000, BracketMax: 20_000_000, MaxLeverage: 10, MaintenanceMarginRate: 0.05, MaintenanceMarginFixed: 141_300},
		{BracketMin: 20_000_000, BracketMax: 50_000_000, MaxLeverage: 5, MaintenanceMarginRate: 0.1, MaintenanceMarginFixed: 1_141_300},
		{BracketMin: 50_000_000, BracketMax: 100_000_000, MaxLeverage: 4, MaintenanceMarginRate: 0.125, MaintenanceMarginFixed: 2_391_300},
		{BracketMin: 100_000_000, BracketMax: 200_000_000, MaxLeverage: 2, MaintenanceMarginRate: 0.25, MaintenanceMarginFixed: 14_891_300},
		{BracketMin: 200_000_000, BracketMax: 1_000_000_000, MaxLeverage: 1, MaintenanceMarginRate: 0.5, MaintenanceMarginFixed: 64_891_300},
	}
}

// SeedLeverageBrackets replaces the leverage_brackets table contents with
// brackets, in bracket_min ascending order. Mirrors the original's
// migrate_leverage_data script: wipe then bulk-insert.
func (c *Client) SeedLeverageBrackets(ctx context.Context, brackets []types.LeverageBracket) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM leverage_brackets`); err != nil {
		return fmt.Errorf("clearing leverage brackets: %w", err)
	}
	for _, b := range brackets {
		_, err := tx.Exec(ctx,
			`INSERT INTO leverage_brackets (bracket_min, bracket_max, max_leverage, m_margin_rate, m_amount)
			 VALUES ($1, $2, $3, $4, $5)`,
			b.BracketMin, b.BracketMax, b.MaxLeverage, b.MaintenanceMarginRate, b.MaintenanceMarginFixed,
		)
		if err != nil {
			return fmt.Errorf("inserting leverage bracket [%v,%v): %w", b.BracketMin, b.BracketMax, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing leverage bracket seed: %w", err)
	}
	c.logger.Info("seeded leverage brackets", "count", len(brackets))
	return nil
}

// LoadLeverageBrackets reads the leverage_brackets table ordered by
// bracket_min ascending, the ordering leverage.NewTable requires.
func (c *Client) LoadLeverageBrackets(ctx context.Context) ([]types.LeverageBracket, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT bracket_min, bracket_max, max_leverage, m_margin_rate, m_amount
		 FROM leverage_brackets ORDER BY bracket_min ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("loading leverage brackets: %w", err)
	}
	defer rows.Close()

	var brackets []types.LeverageBracket
	for rows.Next() {
		var b types.LeverageBracket
		if err := rows.Scan(&b.BracketMin, &b.BracketMax, &b.MaxLeverage, &b.MaintenanceMarginRate, &b.MaintenanceMarginFixed); err != nil {
			return nil, fmt.Errorf("scanning leverage bracket: %w", err)
		}
		brackets = append(brackets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leverage brackets: %w", err)
	}
	if len(brackets) == 0 {
		return nil, fmt.Errorf("leverage_brackets table is empty; run SeedLeverageBrackets first")
	}
	return brackets, nil
}
