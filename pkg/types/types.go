// Package types defines core data structures for the back-test engine.
//
// These types map closely to the Python equivalents in engine/core/:
//   - Bar = OHLCV row
//   - Position = open leveraged position tracked bar-by-bar
//   - Trade = a position from entry through its final exit leg
//   - LeverageBracket = one row of an exchange leverage table
package types

import (
	"fmt"
	"time"
)

// Bar represents a single OHLCV bar. BarDirection is the bar's own
// candle direction (-1/0/1), independent of any open trade's Direction.
type Bar struct {
	Timestamp    time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	BarDirection int
}

// Validate checks the invariants a Bar must satisfy before it can enter a
// run: low must not exceed open, high or close, volume must be
// non-negative, and direction must be -1, 0 or 1. High is not compared
// with open or close, so a bar whose open or close lies above its high
// passes.
func (b Bar) Validate() error {
	switch {
	case b.Low > b.Open || b.Low > b.High || b.Low > b.Close:
		return fmt.Errorf("%w: low %.8f exceeds one of open/high/close", ErrInvalidInput, b.Low)
	case b.Volume < 0:
		return fmt.Errorf("%w: negative volume %.8f", ErrInvalidInput, b.Volume)
	case b.BarDirection < -1 || b.BarDirection > 1:
		return fmt.Errorf("%w: direction %d out of {-1,0,1}", ErrInvalidInput, b.BarDirection)
	}
	return nil
}

// ValidateSeries checks that bars are strictly ascending by timestamp with
// no duplicates, and that every bar individually validates.
func ValidateSeries(bars []Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: empty bar series", ErrInvalidInput)
	}
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("bar[%d]: %w", i, err)
		}
		if i > 0 && !bars[i-1].Timestamp.Before(b.Timestamp) {
			return fmt.Errorf("%w: bars must be strictly ascending by timestamp (index %d: %s, index %d: %s)",
				ErrInvalidInput, i-1, bars[i-1].Timestamp, i, b.Timestamp)
		}
	}
	return nil
}

// Direction represents trade direction.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// ExitType tags why a trade leg closed.
type ExitType string

const (
	ExitSL      ExitType = "sl"
	ExitTP1     ExitType = "tp1"
	ExitBE      ExitType = "be"
	ExitReverse ExitType = "reverse"
)

// Position is the single open position the engine may hold at a time.
type Position struct {
	TradeID            int
	Direction          Direction
	EntryPrice         float64
	EntryTimestamp     time.Time
	PositionSize       int
	StopLoss           float64 // moves to BE after TP1, tracks trailing stop thereafter
	TakeProfit1        float64
	InitialRisk        float64 // |entry - sl| at entry, fixed for the life of the position
	TP1Hit             bool
	TP1OccurredThisBar bool
	TrailingStop       *float64 // nil until the first trailing update
}

// ApplyTP1 moves the stop loss to breakeven and marks TP1 as hit.
func (p *Position) ApplyTP1() {
	p.StopLoss = p.EntryPrice
	p.TP1Hit = true
}

// UpdateTrailingStop advances the trailing stop monotonically in the
// favorable direction and mirrors it into StopLoss when it advances.
// Reports whether the stop moved.
func (p *Position) UpdateTrailingStop(newTrail float64) bool {
	if p.TrailingStop == nil {
		entry := p.EntryPrice
		p.TrailingStop = &entry
	}
	favorable := (p.Direction == Long && newTrail > *p.TrailingStop) ||
		(p.Direction == Short && newTrail < *p.TrailingStop)
	if !favorable {
		return false
	}
	p.TrailingStop = &newTrail
	p.StopLoss = newTrail
	return true
}

// TradeLeg is one partial or final exit of a Trade.
type TradeLeg struct {
	TradeID       int
	ExitType      ExitType
	ExitTimestamp time.Time
	ExitPrice     float64
	QtyRatio      float64
	PnL           float64
}

// Trade represents a simulated position from entry through its final exit.
type Trade struct {
	TradeID        int
	Direction      Direction
	EntryPrice     float64
	EntryTimestamp time.Time
	PositionSize   int
	InitialRisk    float64
	StopLoss       float64 // stop loss as set at entry
	TakeProfit1    float64
	BalanceAtEntry float64
	Leverage       int
	Legs           []TradeLeg
	IsClosed       bool
}

// String returns a human-readable one-line summary of the trade.
func (t Trade) String() string {
	return fmt.Sprintf(
		"#%d %s entry=%.4f @ %s size=%d lev=%dx pnl=%.4f legs=%d",
		t.TradeID, t.Direction, t.EntryPrice,
		t.EntryTimestamp.Format("2006-01-02 15:04"), t.PositionSize, t.Leverage,
		t.TotalPnL(), len(t.Legs),
	)
}

// AddLeg appends an exit leg to the trade. The engine is the only caller
// and guarantees legs arrive in ascending exit-timestamp order.
func (t *Trade) AddLeg(leg TradeLeg) {
	t.Legs = append(t.Legs, leg)
}

// Close marks the trade as fully exited.
func (t *Trade) Close() {
	t.IsClosed = true
}

// TotalPnL sums the PnL of every leg recorded so far.
func (t *Trade) TotalPnL() float64 {
	var sum float64
	for _, leg := range t.Legs {
		sum += leg.PnL
	}
	return sum
}

// IsWinning reports whether the trade's total PnL is positive.
func (t *Trade) IsWinning() bool {
	return t.TotalPnL() > 0
}

// HasTP1Leg reports whether any leg of this trade was a TP1 partial exit.
func (t *Trade) HasTP1Leg() bool {
	for _, leg := range t.Legs {
		if leg.ExitType == ExitTP1 {
			return true
		}
	}
	return false
}

// HasBELeg reports whether any leg of this trade was a BE exit.
func (t *Trade) HasBELeg() bool {
	for _, leg := range t.Legs {
		if leg.ExitType == ExitBE {
			return true
		}
	}
	return false
}

// LeverageBracket is one entry in an ordered notional-range leverage table.
type LeverageBracket struct {
	BracketMin             float64
	BracketMax             float64
	MaxLeverage            int
	MaintenanceMarginRate  float64
	MaintenanceMarginFixed float64
}

// RunConfig is the sizing/leverage/rebalance preset for one engine run.
type RunConfig struct {
	InitialBalance    float64
	RiskPercent       float64
	RiskRewardRatio   float64
	RebalanceInterval int
}

// Validate checks the RunConfig invariants required before a run starts.
func (c RunConfig) Validate() error {
	switch {
	case c.InitialBalance <= 0:
		return fmt.Errorf("%w: initial_balance must be > 0", ErrInvalidConfig)
	case c.RiskPercent <= 0 || c.RiskPercent > 1:
		return fmt.Errorf("%w: risk_percent must be in (0,1]", ErrInvalidConfig)
	case c.RiskRewardRatio <= 0:
		return fmt.Errorf("%w: risk_reward_ratio must be > 0", ErrInvalidConfig)
	case c.RebalanceInterval < 1:
		return fmt.Errorf("%w: rebalance_interval must be >= 1", ErrInvalidConfig)
	}
	return nil
}

// Metrics is the aggregate performance summary over a run's closed trades.
type Metrics struct {
	TradesCount          int
	WinningTrades        int
	LosingTrades         int
	WinRate              float64
	TP1HitRate           float64
	BEExitRate           float64
	TotalPnL             float64
	AveragePnL           float64
	ProfitFactor         float64
	MaxDrawdown          float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	Expectancy           float64
	Score                float64
	Grade                string
}
