package engine

import (
	"github.com/algoforge/backtest/pkg/types"
)

// processBar advances the open position (if any) through one bar: trailing
// stop update, then exit evaluation in strict priority (SL, TP1, indicator
// exit, reverse). Returns true if the position closed this bar via a
// non-SL exit (BE or REVERSE), which blocks a same-bar re-entry per the
// spec's "consumed bar" rule — an SL close permits a same-bar re-entry.
func (e *Engine) processBar(i int, bar types.Bar) (reentryBlocked bool) {
	if e.position == nil {
		return false
	}
	pos := e.position
	pos.TP1OccurredThisBar = false

	if pos.TP1Hit {
		e.updateTrailingStop(pos, i, bar)
	}

	if e.checkStopLoss(pos, bar) {
		e.closeTrade(pos, i, bar, types.ExitSL)
		return false
	}

	if !pos.TP1Hit && e.checkTP1(pos, bar) {
		e.handleTP1(pos, i, bar)
	}

	if indicatorExit := e.opts.Strategy.ExitSignal(i, pos.Direction); indicatorExit {
		exitType := types.ExitReverse
		if pos.TP1Hit {
			exitType = types.ExitBE
		}
		e.closeTrade(pos, i, bar, exitType)
		return true
	}

	if !pos.TP1OccurredThisBar {
		if sig, ok := e.opts.Strategy.EntrySignal(i); ok && sig.Direction != pos.Direction {
			exitType := types.ExitReverse
			if pos.TP1Hit {
				exitType = types.ExitBE
			}
			e.closeTrade(pos, i, bar, exitType)
			return true
		}
	}

	return false
}

func (e *Engine) checkStopLoss(pos *types.Position, bar types.Bar) bool {
	if pos.Direction == types.Long {
		return bar.Low <= pos.StopLoss
	}
	return bar.High >= pos.StopLoss
}

func (e *Engine) checkTP1(pos *types.Position, bar types.Bar) bool {
	if pos.Direction == types.Long {
		return bar.High >= pos.TakeProfit1
	}
	return bar.Low <= pos.TakeProfit1
}

func (e *Engine) updateTrailingStop(pos *types.Position, i int, bar types.Bar) {
	column, multiplier, ok := e.opts.Strategy.ATRTrailing()
	if !ok {
		return
	}
	atrVal := e.opts.Strategy.ATRValue(column, i)
	if atrVal <= 0 {
		return
	}
	var newTrail float64
	if pos.Direction == types.Long {
		newTrail = bar.Close - multiplier*atrVal
	} else {
		newTrail = bar.Close + multiplier*atrVal
	}
	pos.UpdateTrailingStop(newTrail)
}

// handleTP1 emits the TP1 partial-exit leg, moves the stop to breakeven,
// and marks the bar as TP1-occurred — it does not close the trade.
func (e *Engine) handleTP1(pos *types.Position, i int, bar types.Bar) {
	const tp1Ratio = 0.5
	pnl := calcPnL(pos.Direction, pos.EntryPrice, bar.Close, pos.PositionSize, tp1Ratio)
	trade := &e.trades[pos.TradeID-1]
	trade.AddLeg(types.TradeLeg{
		TradeID:       pos.TradeID,
		ExitType:      types.ExitTP1,
		ExitTimestamp: bar.Timestamp,
		ExitPrice:     bar.Close,
		QtyRatio:      tp1Ratio,
		PnL:           pnl,
	})
	e.opts.Risk.MoveStopToBreakeven(pos)
	pos.TP1OccurredThisBar = true
}

// closeTrade emits the final leg (qty_ratio 0.5 if TP1 already hit, else
// 1.0), closes the trade, clears the open position, and runs the
// rebalance check.
func (e *Engine) closeTrade(pos *types.Position, i int, bar types.Bar, exitType types.ExitType) {
	qty := 1.0
	if pos.TP1Hit {
		qty = 0.5
	}
	pnl := calcPnL(pos.Direction, pos.EntryPrice, bar.Close, pos.PositionSize, qty)
	trade := &e.trades[pos.TradeID-1]
	trade.AddLeg(types.TradeLeg{
		TradeID:       pos.TradeID,
		ExitType:      exitType,
		ExitTimestamp: bar.Timestamp,
		ExitPrice:     bar.Close,
		QtyRatio:      qty,
		PnL:           pnl,
	})
	trade.Close()
	e.position = nil
	e.closedCount++

	if e.closedCount%e.opts.Config.RebalanceInterval == 0 {
		var totalPnL float64
		for _, t := range e.trades {
			totalPnL += t.TotalPnL()
		}
		e.opts.Risk.UpdateBalance(e.opts.Config.InitialBalance + totalPnL)
	}
}

// calcPnL implements the directional PnL law: LONG is (exit-entry)*size*q,
// SHORT is (entry-exit)*size*q.
func calcPnL(direction types.Direction, entry, exit float64, size int, qtyRatio float64) float64 {
	if direction == types.Long {
		return (exit - entry) * float64(size) * qtyRatio
	}
	return (entry - exit) * float64(size) * qtyRatio
}

// tryEnter evaluates the entry signal at bar i and, if it fires and
// passes validation/sizing, opens a new position and appends its Trade.
func (e *Engine) tryEnter(i int, bar types.Bar) {
	sig, ok := e.opts.Strategy.EntrySignal(i)
	if !ok {
		return
	}
	if sig.StopLoss <= 0 {
		e.warn("bar %d: entry signal has non-positive stop_loss %.4f, skipping", i, sig.StopLoss)
		return
	}
	if sig.Direction == types.Long && sig.StopLoss >= bar.Close {
		e.warn("bar %d: LONG stop_loss %.4f not below close %.4f, skipping", i, sig.StopLoss, bar.Close)
		return
	}
	if sig.Direction == types.Short && sig.StopLoss <= bar.Close {
		e.warn("bar %d: SHORT stop_loss %.4f not above close %.4f, skipping", i, sig.StopLoss, bar.Close)
		return
	}

	size, initialRisk, leverage := e.opts.Risk.CalculatePositionSize(bar.Close, sig.StopLoss)
	if size == 0 {
		e.warn("bar %d: position size is 0 for entry at %.4f (risk=%.4f), skipping", i, bar.Close, initialRisk)
		return
	}

	tp1 := e.opts.Risk.CalculateTP1Price(bar.Close, sig.StopLoss, sig.Direction)
	tradeID := len(e.trades) + 1

	pos := &types.Position{
		TradeID:        tradeID,
		Direction:      sig.Direction,
		EntryPrice:     bar.Close,
		EntryTimestamp: bar.Timestamp,
		PositionSize:   size,
		StopLoss:       sig.StopLoss,
		TakeProfit1:    tp1,
		InitialRisk:    initialRisk,
	}
	e.position = pos

	e.trades = append(e.trades, types.Trade{
		TradeID:        tradeID,
		Direction:      sig.Direction,
		EntryPrice:     bar.Close,
		EntryTimestamp: bar.Timestamp,
		PositionSize:   size,
		InitialRisk:    initialRisk,
		StopLoss:       sig.StopLoss,
		TakeProfit1:    tp1,
		BalanceAtEntry: e.opts.Risk.CurrentBalance(),
		Leverage:       leverage,
	})
}
