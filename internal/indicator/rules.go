package indicator

import "github.com/evdnx/backtestcore/types"

// crossAbove fires when prevA <= prevB and curA > curB — a strict flip
// between bar i-1 and bar i (spec §4.2 "cross-events ... fire on the
// transition bar only").
func crossAbove(prevA, prevB, curA, curB float64) bool {
	return prevA <= prevB && curA > curB
}

// crossBelow is the mirror of crossAbove.
func crossBelow(prevA, prevB, curA, curB float64) bool {
	return prevA >= prevB && curA < curB
}

// ruleSeries bundles whatever derived series one rule kind needs, computed
// once per candle sequence and reused across every bar (avoids recomputing
// SMA/EMA/RSI windows per-candle).
type ruleSeries struct {
	ichimoku IchimokuResult
	emaFast  Series
	emaSlow  Series
	rsi      Series
	volZ     Series
}

// signalAt evaluates one rule at bar i against the precomputed series. The
// bar i-1 is needed for cross detection; i=0 never fires a cross rule.
func signalAt(rule types.IndicatorRule, rs ruleSeries, i int) bool {
	if i == 0 && rule.Kind != types.RuleVolumeSpike {
		return false // cross rules need a prior bar; volume_spike does not
	}
	switch rule.Kind {
	case types.RuleIchimokuCross:
		prevT, prevTok := rs.ichimoku.Tenkan.At(i - 1)
		prevK, prevKok := rs.ichimoku.Kijun.At(i - 1)
		curT, curTok := rs.ichimoku.Tenkan.At(i)
		curK, curKok := rs.ichimoku.Kijun.At(i)
		if !prevTok || !prevKok || !curTok || !curKok {
			return false
		}
		if rule.Direction == types.CrossesBelow {
			return crossBelow(prevT, prevK, curT, curK)
		}
		return crossAbove(prevT, prevK, curT, curK)

	case types.RuleEMACross:
		prevF, prevFok := rs.emaFast.At(i - 1)
		prevS, prevSok := rs.emaSlow.At(i - 1)
		curF, curFok := rs.emaFast.At(i)
		curS, curSok := rs.emaSlow.At(i)
		if !prevFok || !prevSok || !curFok || !curSok {
			return false
		}
		if rule.Direction == types.CrossesBelow {
			return crossBelow(prevF, prevS, curF, curS)
		}
		return crossAbove(prevF, prevS, curF, curS)

	case types.RuleRSICross:
		prevV, prevOk := rs.rsi.At(i - 1)
		curV, curOk := rs.rsi.At(i)
		if !prevOk || !curOk {
			return false
		}
		if rule.Direction == types.CrossesBelow {
			return crossBelow(prevV, rule.RSIThreshold, curV, rule.RSIThreshold)
		}
		return crossAbove(prevV, rule.RSIThreshold, curV, rule.RSIThreshold)

	case types.RuleVolumeSpike:
		v, ok := rs.volZ.At(i)
		if !ok {
			return false
		}
		return v >= rule.ZThreshold

	default:
		return false
	}
}

// buildRuleSeries precomputes the series one rule needs. Series are built
// separately for every rule: two rules that request the same periods each
// compute their own copy, and nothing is cached across calls.
func buildRuleSeries(candles []types.Candle, rule types.IndicatorRule) ruleSeries {
	cs := Closes(candles)
	var rs ruleSeries
	switch rule.Kind {
	case types.RuleIchimokuCross:
		rs.ichimoku = Ichimoku(candles)
	case types.RuleEMACross:
		rs.emaFast = EMA(cs, rule.FastPeriod)
		rs.emaSlow = EMA(cs, rule.SlowPeriod)
	case types.RuleRSICross:
		rs.rsi = RSI(cs, rule.RSIPeriod)
	case types.RuleVolumeSpike:
		rs.volZ = VolumeZScore(Volumes(candles), rule.VolumeWindow)
	}
	return rs
}

// EvaluateSpec computes the per-bar boolean exit signal for a whole
// IndicatorExitSpec: each rule's signal series is built once, then combined
// with ANY (logical OR, default) or ALL (logical AND) composition (spec
// §4.2). A rule whose series has insufficient warmup at a bar contributes
// `false` rather than erroring (spec §4.2 "Fails: returns all-false").
func EvaluateSpec(candles []types.Candle, spec types.IndicatorExitSpec) []bool {
	out := make([]bool, len(candles))
	if !spec.Enabled || len(spec.Rules) == 0 {
		return out
	}
	seriesPerRule := make([]ruleSeries, len(spec.Rules))
	for r, rule := range spec.Rules {
		seriesPerRule[r] = buildRuleSeries(candles, rule)
	}
	for i := range candles {
		result := spec.Mode == types.ModeALL
		for r, rule := range spec.Rules {
			fired := signalAt(rule, seriesPerRule[r], i)
			if spec.Mode == types.ModeALL {
				result = result && fired
			} else {
				result = result || fired
			}
		}
		out[i] = result
	}
	return out
}
