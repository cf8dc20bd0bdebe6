// Package risk implements position sizing, TP1 pricing, the SL→breakeven
// shift, and equity rebalancing for a single run.
package risk

import (
	"fmt"
	"math"

	"github.com/algoforge/backtest/pkg/leverage"
	"github.com/algoforge/backtest/pkg/types"
)

// Manager holds the mutable sizing-basis equity for one run. It is not
// safe for concurrent use; each run owns its own Manager.
type Manager struct {
	initialBalance  float64
	riskPercent     float64
	riskRewardRatio float64
	currentBalance  float64
	lev             *leverage.Table // nil: run without leverage caps
}

// NewManager validates its arguments per spec and returns a Manager seeded
// at initialBalance. lev may be nil, in which case sizing runs uncapped.
func NewManager(initialBalance, riskPercent, riskRewardRatio float64, lev *leverage.Table) (*Manager, error) {
	switch {
	case initialBalance <= 0:
		return nil, fmt.Errorf("%w: initial_balance must be > 0", types.ErrInvalidConfig)
	case riskPercent <= 0 || riskPercent > 1:
		return nil, fmt.Errorf("%w: risk_percent must be in (0,1]", types.ErrInvalidConfig)
	case riskRewardRatio <= 0:
		return nil, fmt.Errorf("%w: risk_reward_ratio must be > 0", types.ErrInvalidConfig)
	}
	return &Manager{
		initialBalance:  initialBalance,
		riskPercent:     riskPercent,
		riskRewardRatio: riskRewardRatio,
		currentBalance:  initialBalance,
		lev:             lev,
	}, nil
}

// CurrentBalance returns the sizing-basis equity as of the last rebalance.
func (m *Manager) CurrentBalance() float64 {
	return m.currentBalance
}

// CalculatePositionSize implements the iterative leverage-clip sizing
// algorithm: raw risk-based size, clipped against the leverage table to a
// fixed point in at most 10 iterations (convergence threshold 0.01), then
// rounded and re-validated so that size*entry <= balance*usedLeverage and
// usedLeverage <= the bracket's max leverage.
func (m *Manager) CalculatePositionSize(entry, sl float64) (size int, initialRisk float64, usedLeverage int) {
	risk := math.Abs(entry - sl)
	if risk == 0 {
		return 0, 0, 1
	}

	sRaw := (m.currentBalance * m.riskPercent) / risk

	if m.lev != nil {
		for i := 0; i < 10; i++ {
			notional := sRaw * entry
			maxLev := float64(m.lev.MaxLeverageFor(notional))
			capAt := (m.currentBalance * maxLev) / entry
			newSRaw := sRaw
			if sRaw > capAt {
				newSRaw = capAt
			}
			if math.Abs(newSRaw-sRaw) < 0.01 {
				sRaw = newSRaw
				break
			}
			sRaw = newSRaw
		}
	}

	sz := roundHalfAwayFromZero(sRaw)
	if sz == 0 && sRaw > 0 && m.lev != nil {
		oneNotional := entry
		maxLev := m.lev.MaxLeverageFor(oneNotional)
		if oneNotional <= m.currentBalance*float64(maxLev) {
			sz = 1
		}
	}
	if sz == 0 {
		return 0, risk, 1
	}

	used := 1
	if m.lev != nil {
		notional := float64(sz) * entry
		maxLev := m.lev.MaxLeverageFor(notional)
		used = int(math.Floor(notional / m.currentBalance))
		if used < 1 {
			used = 1
		}
		if used > maxLev {
			used = maxLev
		}
		if notional > m.currentBalance*float64(used) {
			if maxLev > used {
				used = maxLev
			}
			if notional > m.currentBalance*float64(used) {
				sz = int(math.Floor(sRaw))
				if sz > 0 {
					notional = float64(sz) * entry
					if notional > m.currentBalance*float64(used) {
						sz = int(math.Floor((m.currentBalance * float64(used)) / entry))
					}
				}
			}
		}
	}
	if sz <= 0 {
		return 0, risk, 1
	}
	return sz, risk, used
}

// CalculateTP1Price returns the single take-profit level for a position
// entering at entry with stop-loss sl in direction d.
func (m *Manager) CalculateTP1Price(entry, sl float64, d types.Direction) float64 {
	reward := math.Abs(entry-sl) * m.riskRewardRatio
	if d == types.Long {
		return entry + reward
	}
	return entry - reward
}

// MoveStopToBreakeven sets the position's stop loss to its entry price and
// marks TP1 as hit.
func (m *Manager) MoveStopToBreakeven(p *types.Position) {
	p.ApplyTP1()
}

// UpdateBalance replaces the sizing-basis equity. Negative balances are
// allowed; bankruptcy modeling is out of scope.
func (m *Manager) UpdateBalance(newBalance float64) {
	m.currentBalance = newBalance
}

func roundHalfAwayFromZero(x float64) int {
	if x >= 0 {
		return int(math.Floor(x + 0.5))
	}
	return -int(math.Floor(-x + 0.5))
}
