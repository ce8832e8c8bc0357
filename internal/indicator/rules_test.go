package indicator

import (
	"testing"

	"github.com/evdnx/backtestcore/types"
)

func buildTrendingCandles(n int) []types.Candle {
	out := make([]types.Candle, n)
	for i := 0; i < n; i++ {
		px := float64(i + 1)
		out[i] = types.Candle{TsMs: int64(i) * 1000, High: px + 0.5, Low: px - 0.5, Close: px, Volume: 1}
	}
	return out
}

// buildVCandles builds n candles whose closes fall by 1 per bar down to 1 at
// bar turn, then rise by 1 per bar.
func buildVCandles(n, turn int) []types.Candle {
	out := make([]types.Candle, n)
	for i := 0; i < n; i++ {
		d := turn - i
		if d < 0 {
			d = -d
		}
		px := float64(d + 1)
		out[i] = types.Candle{TsMs: int64(i) * 1000, High: px + 0.5, Low: px - 0.5, Close: px, Volume: 1}
	}
	return out
}

func TestEvaluateSpecDisabledYieldsAllFalse(t *testing.T) {
	candles := buildTrendingCandles(10)
	sig := EvaluateSpec(candles, types.IndicatorExitSpec{Enabled: false})
	for i, v := range sig {
		if v {
			t.Fatalf("expected all false when disabled, got true at %d", i)
		}
	}
}

func TestEvaluateSpecEMACrossFiresOnTransitionOnly(t *testing.T) {
	// A falling-then-rising series: fast EMA sits below slow EMA through the
	// fall, crosses above it once after the turn, and stays above. (On a
	// purely rising series fast is already above slow on the first bar both
	// are valid, so no strict flip ever happens.)
	candles := buildVCandles(60, 30)
	spec := types.IndicatorExitSpec{
		Enabled: true,
		Mode:    types.ModeANY,
		Rules: []types.IndicatorRule{
			{Kind: types.RuleEMACross, Direction: types.CrossesAbove, FastPeriod: 3, SlowPeriod: 10},
		},
	}
	sig := EvaluateSpec(candles, spec)
	fires := 0
	for _, v := range sig {
		if v {
			fires++
		}
	}
	if fires != 1 {
		t.Fatalf("expected the cross to fire exactly once on a monotone series, got %d", fires)
	}
}

func TestEvaluateSpecANYvsALLComposition(t *testing.T) {
	candles := buildVCandles(60, 30)
	ruleAlwaysFireish := types.IndicatorRule{Kind: types.RuleRSICross, Direction: types.CrossesAbove, RSIPeriod: 14, RSIThreshold: 1} // RSI is 0 through the fall and rises above 1 on the first up bar
	ruleNeverFires := types.IndicatorRule{Kind: types.RuleRSICross, Direction: types.CrossesAbove, RSIPeriod: 14, RSIThreshold: 1e9}  // impossible threshold

	anySpec := types.IndicatorExitSpec{Enabled: true, Mode: types.ModeANY, Rules: []types.IndicatorRule{ruleAlwaysFireish, ruleNeverFires}}
	allSpec := types.IndicatorExitSpec{Enabled: true, Mode: types.ModeALL, Rules: []types.IndicatorRule{ruleAlwaysFireish, ruleNeverFires}}

	anySig := EvaluateSpec(candles, anySpec)
	allSig := EvaluateSpec(candles, allSpec)

	anyFires, allFires := 0, 0
	for i := range candles {
		if anySig[i] {
			anyFires++
		}
		if allSig[i] {
			allFires++
		}
	}
	if anyFires == 0 {
		t.Fatalf("expected ANY composition to fire at least once")
	}
	if allFires != 0 {
		t.Fatalf("expected ALL composition to never fire when one rule is impossible, got %d", allFires)
	}
}

func TestEvaluateSpecInsufficientWarmupIsFalseNotError(t *testing.T) {
	candles := buildTrendingCandles(5) // far too short for RSI(14)
	spec := types.IndicatorExitSpec{
		Enabled: true,
		Mode:    types.ModeANY,
		Rules:   []types.IndicatorRule{{Kind: types.RuleRSICross, Direction: types.CrossesAbove, RSIPeriod: 14, RSIThreshold: 30}},
	}
	sig := EvaluateSpec(candles, spec)
	for i, v := range sig {
		if v {
			t.Fatalf("expected false during warmup-insufficient window, got true at %d", i)
		}
	}
}
