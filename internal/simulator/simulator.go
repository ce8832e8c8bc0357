// Package simulator implements the exit-plan simulator (spec §4.3), the
// core of the backtest engine: given a candle sequence, an entry timestamp
// and price, an exit plan and a friction model, it walks forward candle by
// candle and produces the sequence of fills that close out the position.
//
// Simulate is a pure function of its arguments: no wall clock, no I/O, no
// package-level mutable state. Two calls with identical inputs always
// produce identical outputs (spec §8 "determinism").
package simulator

import (
	"math"

	"github.com/evdnx/backtestcore/internal/candleidx"
	"github.com/evdnx/backtestcore/internal/indicator"
	"github.com/evdnx/backtestcore/metrics"
	"github.com/evdnx/backtestcore/types"
)

// state carries everything the per-candle loop mutates. Fields mirror
// spec §4.3's "State" list exactly: remaining fraction, ladder cursor,
// trailing-activation flag, running peak (seeded at p0) and the current
// trailing-stop price (valid only once trailActive).
type state struct {
	remaining      float64
	ladderCursor   int
	trailActive    bool
	peak           float64
	trailingStopPx float64
	hasTrailStop   bool
	fills          []types.Fill
}

// netPrice applies slippage then taker fee to a raw fill price (spec §4.3
// "friction"). Both haircuts are applied against the position, so a long
// exit always nets less than the raw trigger price.
func netPrice(rawPx, slippageBps, feeBps float64) float64 {
	return rawPx * (1 - slippageBps/1e4) * (1 - feeBps/1e4)
}

// Simulate runs the exit plan forward from entryTsMs/entryPx over candles
// and returns the resulting fills, exit timestamp/price/reason and any
// unfilled remainder (spec §4.3). entryPx is p0: the reference price every
// ladder level, activation threshold and stop is expressed relative to.
func Simulate(candles []types.Candle, entryTsMs int64, entryPx float64, plan types.ExitPlan, feeBps, slippageBps float64) types.ExitSimResult {
	entryIdx, found := candleidx.EntryIndex(candles, entryTsMs)
	if !found {
		return types.ExitSimResult{
			EntryTsMs:         entryTsMs,
			ExitTsMs:          entryTsMs,
			ExitPxVwap:        math.NaN(),
			ExitReason:        types.ReasonNoCandlesAfterEntry,
			RemainingFraction: 1,
		}
	}

	var indicatorSignal []bool
	if plan.Indicator.Enabled {
		indicatorSignal = indicator.EvaluateSpec(candles, plan.Indicator)
	}

	entryCandleTsMs := candles[entryIdx].TsMs
	st := &state{remaining: 1, peak: entryPx}

	for i := entryIdx; i < len(candles); i++ {
		c := candles[i]

		// Step A: timeout. Checked before anything else can fill this bar.
		if plan.HasMaxHoldMs && c.TsMs-entryCandleTsMs >= plan.MaxHoldMs {
			st.emit(c.TsMs, netPrice(c.Close, slippageBps, feeBps), st.remaining, types.ReasonTimeout)
			break
		}

		if plan.Trailing.Enabled && plan.Trailing.IntrabarPolicy.ResolvesStopBeforeTP() {
			// STOP_FIRST / LOW_THEN_HIGH: the stop is checked against this
			// bar's low using state carried over from the previous bar,
			// strictly before the trailing stop is updated or the ladder
			// is consulted (spec §4.3 ordering table).
			if triggered := st.checkStop(c, entryPx, feeBps, slippageBps, plan.Trailing); triggered {
				break
			}
			st.updateTrailing(c, entryPx, plan.Trailing)
		} else if plan.Trailing.Enabled {
			// TP_FIRST / HIGH_THEN_LOW: update the trailing stop first;
			// its check is deferred until after the ladder (below).
			st.updateTrailing(c, entryPx, plan.Trailing)
		}

		// Step C: ladder fills, using candle.high, in ascending order.
		if st.remaining > 0 && plan.Ladder.Enabled {
			for st.ladderCursor < len(plan.Ladder.Levels) {
				level := plan.Ladder.Levels[st.ladderCursor]
				target := level.TargetPrice(entryPx)
				if c.High < target {
					break
				}
				frac := math.Min(level.Fraction, st.remaining)
				if frac > 0 {
					st.emit(c.TsMs, netPrice(target, slippageBps, feeBps), frac, types.TakeProfitReason(level.Label))
				}
				st.ladderCursor++
				if st.remaining <= 0 {
					break
				}
			}
		}

		if st.remaining <= 0 {
			break
		}

		if plan.Trailing.Enabled && !plan.Trailing.IntrabarPolicy.ResolvesStopBeforeTP() {
			if triggered := st.checkStop(c, entryPx, feeBps, slippageBps, plan.Trailing); triggered {
				break
			}
		}

		// Step D: indicator exit, gated by the minimum hold in candles.
		if st.remaining > 0 && plan.Indicator.Enabled && indicatorSignal != nil && indicatorSignal[i] {
			if i-entryIdx >= plan.Indicator.MinHoldCandlesForIndicator {
				st.emit(c.TsMs, netPrice(c.Close, slippageBps, feeBps), st.remaining, types.ReasonIndicatorExit)
				break
			}
		}
	}

	return st.result(entryTsMs)
}

// checkStop evaluates the hard stop then, if no hard stop is configured or
// it did not trigger, the trailing stop, against candle.low. Hard stop is
// always checked first (spec §4.3 "hard stop is checked strictly before
// trailing stop"). A triggered stop consumes the entire remaining fraction.
func (s *state) checkStop(c types.Candle, entryPx, feeBps, slippageBps float64, tr types.TrailingSpec) bool {
	if tr.HasHardStopBps {
		hardPx := entryPx * (1 - tr.HardStopBps/1e4)
		if c.Low <= hardPx {
			s.emit(c.TsMs, netPrice(hardPx, slippageBps, feeBps), s.remaining, types.ReasonStopLoss)
			return true
		}
	}
	if s.trailActive && s.hasTrailStop && c.Low <= s.trailingStopPx {
		s.emit(c.TsMs, netPrice(s.trailingStopPx, slippageBps, feeBps), s.remaining, types.ReasonTrailingStop)
		return true
	}
	return false
}

// updateTrailing activates the trailing stop (if not yet active and the
// activation threshold, if any, has been reached) and advances the peak
// and trailing-stop price using this bar's high (spec §4.3). A plan that
// carries only a hard stop (fixed_stop, or ladder with a hard stop) sets
// TrailBps to 0 and must never ratchet a trailing stop in at the running
// peak; that ratchet is gated on TrailBps > 0.
func (s *state) updateTrailing(c types.Candle, entryPx float64, tr types.TrailingSpec) {
	if tr.TrailBps <= 0 {
		return
	}
	if !s.trailActive {
		reached := true
		if tr.Activation.Set {
			reached = c.High >= tr.Activation.TargetPrice(entryPx)
		}
		if !reached {
			return
		}
		s.trailActive = true
	}
	if c.High > s.peak {
		s.peak = c.High
	}
	s.trailingStopPx = s.peak * (1 - tr.TrailBps/1e4)
	s.hasTrailStop = true
}

// emit appends a fill and decrements the remaining fraction.
func (s *state) emit(tsMs int64, netPx, fraction float64, reason types.FillReason) {
	if fraction <= 0 {
		return
	}
	s.fills = append(s.fills, types.Fill{TsMs: tsMs, NetPx: netPx, Fraction: fraction, Reason: reason})
	s.remaining -= fraction
	if s.remaining < 1e-9 {
		s.remaining = 0
	}
	metrics.FillsEmitted.WithLabelValues(string(reason)).Inc()
}

// result builds the ExitSimResult from accumulated fills. The VWAP is the
// fraction-weighted average of fill net prices; NaN iff there were no
// fills at all (spec §3, §9). With no fills, exitTsMs is entryTsMs (spec
// §4.3's ExitSimResult contract), not the last candle's timestamp.
func (s *state) result(entryTsMs int64) types.ExitSimResult {
	if len(s.fills) == 0 {
		return types.ExitSimResult{
			EntryTsMs:         entryTsMs,
			ExitTsMs:          entryTsMs,
			ExitPxVwap:        math.NaN(),
			ExitReason:        types.ReasonNoExit,
			RemainingFraction: s.remaining,
		}
	}
	var weighted, totalFrac float64
	for _, f := range s.fills {
		weighted += f.NetPx * f.Fraction
		totalFrac += f.Fraction
	}
	last := s.fills[len(s.fills)-1]
	return types.ExitSimResult{
		Fills:             s.fills,
		EntryTsMs:         entryTsMs,
		ExitTsMs:          last.TsMs,
		ExitPxVwap:        weighted / totalFrac,
		ExitReason:        last.Reason,
		RemainingFraction: s.remaining,
	}
}
