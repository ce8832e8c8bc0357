// Package policy is the thin strategic layer over the exit-plan simulator
// (spec §4.4): it takes one of the five policy shapes (already normalised
// to a types.ExitPlan by config.PolicyWire.ToExitPlan), runs the
// simulator, and folds the raw fills into a single trade outcome with
// realised PnL, stop-out flag, max adverse excursion and exposure time.
package policy

import (
	"math"

	"github.com/evdnx/backtestcore/internal/candleidx"
	"github.com/evdnx/backtestcore/internal/simulator"
	"github.com/evdnx/backtestcore/types"
)

// Execute runs one alert through one exit plan and produces its Trade
// outcome. feeBps/slippageBps are the same friction parameters the
// simulator takes directly (spec §3 "Exit Sim Result").
func Execute(candles []types.Candle, alert types.Alert, plan types.ExitPlan, feeBps, slippageBps float64) types.Trade {
	p0 := alert.AlertPrice
	res := simulator.Simulate(candles, alert.AlertTsMs, p0, plan, feeBps, slippageBps)

	exitPx := res.ExitPxVwap
	if !res.HasFills() {
		// Unfilled-at-horizon: exit at the last candle's close (spec §4.4
		// "exitPx = exitPxVwap if fills exist, else last_candle.close").
		if len(candles) > 0 {
			exitPx = candles[len(candles)-1].Close
		} else {
			exitPx = math.NaN()
		}
	}

	trade := types.Trade{
		CallID:            alert.CallID,
		EntryTsMs:         res.EntryTsMs,
		EntryPx:           p0,
		ExitTsMs:          res.ExitTsMs,
		ExitPx:            exitPx,
		ExitReason:        res.ExitReason,
		RealizedReturnBps: (exitPx - p0) / p0 * 1e4,
		StopOut:           res.ExitReason == types.ReasonStopLoss || res.ExitReason == types.ReasonTrailingStop,
		TimeExposedMs:     res.ExitTsMs - res.EntryTsMs,
	}
	trade.MaxAdverseExcursionBps = maxAdverseExcursionBps(candles, alert.AlertTsMs, p0, res.ExitTsMs)
	trade.TailCapture = tailCapture(candles, alert.AlertTsMs, p0, res.ExitTsMs, exitPx)
	return trade
}

// maxAdverseExcursionBps is the worst (most negative) unrealised return
// reached between entry and exit, in basis points of p0 — the deepest dip
// within the trade window, not the whole horizon.
func maxAdverseExcursionBps(candles []types.Candle, entryTsMs int64, p0 float64, exitTsMs int64) float64 {
	idx, found := candleidx.EntryIndex(candles, entryTsMs)
	if !found {
		return 0
	}
	worst := math.Inf(1)
	for _, c := range candles[idx:] {
		if c.TsMs > exitTsMs {
			break
		}
		if c.Low < worst {
			worst = c.Low
		}
	}
	if math.IsInf(worst, 1) {
		return 0
	}
	mae := (worst - p0) / p0 * 1e4
	if mae > 0 {
		return 0
	}
	return mae
}

// tailCapture is the ratio of the realised exit price to the peak price
// reached within the trade window — spec §9 pins this to the trade
// window, not the full horizon, preserving the reference source's
// behaviour rather than "fixing" it to use the whole horizon.
func tailCapture(candles []types.Candle, entryTsMs int64, p0 float64, exitTsMs int64, exitPx float64) float64 {
	idx, found := candleidx.EntryIndex(candles, entryTsMs)
	if !found {
		return 0
	}
	peak := p0
	for _, c := range candles[idx:] {
		if c.TsMs > exitTsMs {
			break
		}
		if c.High > peak {
			peak = c.High
		}
	}
	if peak == 0 {
		return 0
	}
	return exitPx / peak
}
