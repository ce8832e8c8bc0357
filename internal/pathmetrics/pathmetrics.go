// Package pathmetrics computes policy-independent truth about an alert's
// price trajectory: peak multiple, 2x/3x/4x hit flags and times, and
// drawdowns (spec §3 "Path Metrics", §4 "A thin Path Metrics module").
// Unlike the exit-plan simulator it never depends on any policy or plan —
// only on the candle sequence and the alert's entry price and timestamp.
package pathmetrics

import (
	"math"

	"github.com/evdnx/backtestcore/internal/candleidx"
	"github.com/evdnx/backtestcore/types"
)

// Compute derives the path metrics for one alert over its candle sequence.
// If no candle exists at or after alertTsMs the result carries the zero
// value for every derived field and nil for every hit time, mirroring the
// simulator's own `no_candles_after_entry` short-circuit (spec §7).
func Compute(candles []types.Candle, alert types.Alert) types.PathMetrics {
	pm := types.PathMetrics{CallID: alert.CallID, P0: alert.AlertPrice}

	idx, found := candleidx.EntryIndex(candles, alert.AlertTsMs)
	if !found {
		return pm
	}
	horizon := candles[idx:]
	p0 := alert.AlertPrice

	maxHigh := math.Inf(-1)
	minLow := math.Inf(1)
	preTwoXLow := math.Inf(1)
	var t2x, t3x, t4x *int64

	for _, c := range horizon {
		if c.High > maxHigh {
			maxHigh = c.High
		}
		if c.Low < minLow {
			minLow = c.Low
		}
		if t2x == nil && c.Low < preTwoXLow {
			preTwoXLow = c.Low
		}
		if t2x == nil && c.High >= 2*p0 {
			ts := c.TsMs
			t2x = &ts
		}
		if t3x == nil && c.High >= 3*p0 {
			ts := c.TsMs
			t3x = &ts
		}
		if t4x == nil && c.High >= 4*p0 {
			ts := c.TsMs
			t4x = &ts
		}
	}

	pm.PeakMultiple = maxHigh / p0
	pm.Hit2x, pm.T2xMs = t2x != nil, t2x
	pm.Hit3x, pm.T3xMs = t3x != nil, t3x
	pm.Hit4x, pm.T4xMs = t4x != nil, t4x
	pm.DDBps = drawdownBps(p0, minLow)
	if t2x != nil {
		pm.DDTo2xBps = drawdownBps(p0, preTwoXLow)
	} else {
		pm.DDTo2xBps = drawdownBps(p0, minLow)
	}

	activity := horizon[0].TsMs - alert.AlertTsMs
	pm.AlertToActivityMs = &activity
	return pm
}

// drawdownBps converts a reference price and the worst low reached against
// it into a non-negative basis-point drawdown.
func drawdownBps(p0, worstLow float64) float64 {
	dd := (p0 - worstLow) / p0 * 1e4
	if dd < 0 {
		return 0
	}
	return dd
}
