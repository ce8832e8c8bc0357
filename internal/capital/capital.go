// Package capital implements the optimizer's capital-aware variant (spec
// §4.5, §5): a sequential simulation of a shared capital pool across
// alerts processed in strict alertTsMs order, sizing each new position as
// a fraction of currently-available capital. It is grounded on the
// teacher's risk.CalcQty — a single-trade, equity-fraction position sizer
// — generalised here into a pool that tracks concurrently open positions
// across many trades instead of a single equity snapshot.
package capital

import (
	"sort"

	"github.com/evdnx/backtestcore/internal/policy"
	"github.com/evdnx/backtestcore/types"
)

// openPosition tracks capital committed to one still-open trade so it can
// be returned to the pool once that trade's exit timestamp has passed.
type openPosition struct {
	exitTsMs int64
	notional float64
	realized float64 // realizedReturnBps, applied to notional on release
}

// AlertCandles resolves the candle slice for one alert's token so the
// sequential loop doesn't need to carry a map directly.
type AlertCandles func(alert types.Alert) []types.Candle

// SimulateSequential runs one exit plan over alerts in strict alertTsMs
// order (ties broken by callId, spec §5), deploying a shared capital pool.
// An alert is skipped — contributing no Trade — if no capital is available
// or the concurrent-position limit is exceeded (spec §4.5). Returns the
// trades that were actually entered.
func SimulateSequential(alerts []types.Alert, candlesFor AlertCandles, plan types.ExitPlan, startingCapital, positionSizeFrac float64, maxConcurrent int, feeBps, slippageBps float64) []types.Trade {
	ordered := make([]types.Alert, len(alerts))
	copy(ordered, alerts)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].AlertTsMs != ordered[j].AlertTsMs {
			return ordered[i].AlertTsMs < ordered[j].AlertTsMs
		}
		return ordered[i].CallID < ordered[j].CallID
	})

	pool := startingCapital
	var open []openPosition
	var trades []types.Trade

	for _, alert := range ordered {
		open = releaseMatured(open, alert.AlertTsMs, &pool)

		if maxConcurrent > 0 && len(open) >= maxConcurrent {
			continue
		}
		size := pool * positionSizeFrac
		if size <= 0 {
			continue
		}

		candles := candlesFor(alert)
		trade := policy.Execute(candles, alert, plan, feeBps, slippageBps)

		pool -= size
		open = append(open, openPosition{exitTsMs: trade.ExitTsMs, notional: size, realized: trade.RealizedReturnBps})
		trades = append(trades, trade)
	}
	return trades
}

// releaseMatured returns capital (principal plus realised PnL) for every
// open position whose exit has already occurred at or before asOfTsMs,
// and reports the positions still open.
func releaseMatured(open []openPosition, asOfTsMs int64, pool *float64) []openPosition {
	remaining := open[:0]
	for _, p := range open {
		if p.exitTsMs <= asOfTsMs {
			*pool += p.notional * (1 + p.realized/1e4)
		} else {
			remaining = append(remaining, p)
		}
	}
	return remaining
}
