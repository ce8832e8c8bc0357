package simulator

import (
	"math"
	"testing"

	"github.com/evdnx/backtestcore/testutils"
	"github.com/evdnx/backtestcore/types"
)

func noFriction() (fee, slippage float64) { return 0, 0 }

// S1: a single ladder level at 2x with fraction 1.0 fills on the first
// candle whose high reaches it, at the level price, not the candle close.
func TestScenarioS1LadderFillsAtLevelPrice(t *testing.T) {
	candles := []types.Candle{
		testutils.C(0, 1, 1.1, 0.95, 1, 10),
		testutils.C(60000, 1, 2.1, 0.9, 2, 10),
	}
	plan := types.ExitPlan{
		Ladder: types.LadderSpec{Enabled: true, Levels: []types.LadderLevel{
			{Kind: types.KindMultiple, Multiple: 2, Fraction: 1, Label: "2x"},
		}},
	}
	fee, slip := noFriction()
	res := Simulate(candles, 0, 1, plan, fee, slip)
	if len(res.Fills) != 1 {
		t.Fatalf("expected exactly one fill, got %d", len(res.Fills))
	}
	f := res.Fills[0]
	if f.TsMs != 60000 || math.Abs(f.NetPx-2.0) > 1e-9 || f.Reason != types.TakeProfitReason("2x") {
		t.Fatalf("unexpected fill: %+v", f)
	}
	if res.RemainingFraction != 0 {
		t.Fatalf("expected fully filled, remaining=%v", res.RemainingFraction)
	}
}

// S2: a hard stop at 20% below p0 fires on the candle whose low breaches it.
func TestScenarioS2HardStopFires(t *testing.T) {
	candles := []types.Candle{
		testutils.C(0, 1, 1, 0.7, 0.75, 10),
	}
	plan := types.ExitPlan{
		Trailing: types.TrailingSpec{Enabled: true, HasHardStopBps: true, HardStopBps: 2000, IntrabarPolicy: types.StopFirst},
	}
	fee, slip := noFriction()
	res := Simulate(candles, 0, 1, plan, fee, slip)
	if len(res.Fills) != 1 {
		t.Fatalf("expected exactly one fill, got %d", len(res.Fills))
	}
	f := res.Fills[0]
	if math.Abs(f.NetPx-0.8) > 1e-9 || f.Reason != types.ReasonStopLoss {
		t.Fatalf("unexpected fill: %+v", f)
	}
	if res.RemainingFraction != 0 {
		t.Fatalf("expected fully stopped out, remaining=%v", res.RemainingFraction)
	}
}

// S3: both ladder levels fill within the same candle, in ascending order,
// neither touching the (unreached) hard stop.
func TestScenarioS3MultipleLaddersInOneCandle(t *testing.T) {
	candles := []types.Candle{
		testutils.C(0, 1, 3, 0.99, 2.9, 10),
	}
	plan := types.ExitPlan{
		Ladder: types.LadderSpec{Enabled: true, Levels: []types.LadderLevel{
			{Kind: types.KindMultiple, Multiple: 2, Fraction: 0.5, Label: "2x"},
			{Kind: types.KindMultiple, Multiple: 3, Fraction: 0.5, Label: "3x"},
		}},
		Trailing: types.TrailingSpec{Enabled: true, HasHardStopBps: true, HardStopBps: 2000, IntrabarPolicy: types.StopFirst},
	}
	fee, slip := noFriction()
	res := Simulate(candles, 0, 1, plan, fee, slip)
	if len(res.Fills) != 2 {
		t.Fatalf("expected two fills, got %d: %+v", len(res.Fills), res.Fills)
	}
	if res.Fills[0].Reason != types.TakeProfitReason("2x") || res.Fills[1].Reason != types.TakeProfitReason("3x") {
		t.Fatalf("expected ascending tp order, got %+v", res.Fills)
	}
	if res.ExitReason != types.TakeProfitReason("3x") {
		t.Fatalf("expected final exit reason tp_3x, got %v", res.ExitReason)
	}
	if res.RemainingFraction != 0 {
		t.Fatalf("expected fully filled, remaining=%v", res.RemainingFraction)
	}
}

// S4: with STOP_FIRST, a stop breach in the same candle as a reachable
// ladder preempts the ladder entirely.
func TestScenarioS4StopPreemptsLadderUnderStopFirst(t *testing.T) {
	candles := []types.Candle{
		testutils.C(0, 1, 3, 0.79, 2.9, 10),
	}
	plan := types.ExitPlan{
		Ladder: types.LadderSpec{Enabled: true, Levels: []types.LadderLevel{
			{Kind: types.KindMultiple, Multiple: 2, Fraction: 0.5, Label: "2x"},
			{Kind: types.KindMultiple, Multiple: 3, Fraction: 0.5, Label: "3x"},
		}},
		Trailing: types.TrailingSpec{Enabled: true, HasHardStopBps: true, HardStopBps: 2000, IntrabarPolicy: types.StopFirst},
	}
	fee, slip := noFriction()
	res := Simulate(candles, 0, 1, plan, fee, slip)
	if len(res.Fills) != 1 {
		t.Fatalf("expected exactly one fill (stop preempts ladder), got %d: %+v", len(res.Fills), res.Fills)
	}
	f := res.Fills[0]
	if math.Abs(f.NetPx-0.8) > 1e-9 || f.Reason != types.ReasonStopLoss || f.Fraction != 1 {
		t.Fatalf("unexpected fill: %+v", f)
	}
}

// S5: a max-hold timeout fires at the close of the first candle whose
// elapsed time since the entry candle reaches the limit, when price never
// reaches any other exit trigger.
func TestScenarioS5TimeoutFires(t *testing.T) {
	const hour = int64(3600_000)
	candles := testutils.LinearCandles(0, hour, 48, func(i int) float64 { return 1.0 })
	plan := types.ExitPlan{HasMaxHoldMs: true, MaxHoldMs: 24 * hour}
	fee, slip := noFriction()
	res := Simulate(candles, 0, 1, plan, fee, slip)
	if len(res.Fills) != 1 {
		t.Fatalf("expected exactly one fill, got %d", len(res.Fills))
	}
	f := res.Fills[0]
	if f.Reason != types.ReasonTimeout || f.TsMs != 24*hour {
		t.Fatalf("unexpected timeout fill: %+v", f)
	}
}

// With no ladder, no trailing, no timeout and no indicator exit, the
// simulation runs out of candles with the full position unfilled.
func TestNoExitYieldsNaNVWAPAndFullRemaining(t *testing.T) {
	candles := testutils.LinearCandles(0, 1000, 5, func(i int) float64 { return 1.0 })
	plan := types.ExitPlan{}
	fee, slip := noFriction()
	res := Simulate(candles, 0, 1, plan, fee, slip)
	if res.HasFills() {
		t.Fatalf("expected no fills, got %+v", res.Fills)
	}
	if !math.IsNaN(res.ExitPxVwap) {
		t.Fatalf("expected NaN vwap with no fills, got %v", res.ExitPxVwap)
	}
	if res.RemainingFraction != 1 {
		t.Fatalf("expected full remaining fraction, got %v", res.RemainingFraction)
	}
	if res.ExitReason != types.ReasonNoExit {
		t.Fatalf("expected no_exit reason, got %v", res.ExitReason)
	}
}

func TestNoCandlesAfterEntryShortCircuits(t *testing.T) {
	candles := []types.Candle{testutils.C(0, 1, 1, 1, 1, 1)}
	res := Simulate(candles, 1000, 1, types.ExitPlan{}, 0, 0)
	if res.ExitReason != types.ReasonNoCandlesAfterEntry {
		t.Fatalf("expected no_candles_after_entry, got %v", res.ExitReason)
	}
	if res.RemainingFraction != 1 {
		t.Fatalf("expected full remaining fraction, got %v", res.RemainingFraction)
	}
}

// Testable property: a single ladder level at multiple=1, fraction=1 always
// fills on the entry candle at p0 (ignoring friction), since high >= open
// by OHLCV convention and open == p0 here.
func TestPropertySingleLevelAtOneAlwaysFillsOnEntryCandle(t *testing.T) {
	candles := []types.Candle{testutils.C(0, 1, 1.2, 0.9, 1.05, 5)}
	plan := types.ExitPlan{
		Ladder: types.LadderSpec{Enabled: true, Levels: []types.LadderLevel{
			{Kind: types.KindMultiple, Multiple: 1, Fraction: 1, Label: "1x"},
		}},
	}
	res := Simulate(candles, 0, 1, plan, 0, 0)
	if len(res.Fills) != 1 || res.Fills[0].TsMs != 0 || res.Fills[0].Reason != types.TakeProfitReason("1x") {
		t.Fatalf("expected immediate tp_1x fill on entry candle, got %+v", res.Fills)
	}
}

// Testable property: fractions across all fills never exceed 1, and
// remaining + sum(fractions) == 1.
func TestPropertyFractionConservation(t *testing.T) {
	candles := []types.Candle{
		testutils.C(0, 1, 1.5, 0.95, 1.4, 10),
		testutils.C(1000, 1.4, 3.5, 1.3, 3.2, 10),
	}
	plan := types.ExitPlan{
		Ladder: types.LadderSpec{Enabled: true, Levels: []types.LadderLevel{
			{Kind: types.KindMultiple, Multiple: 1.2, Fraction: 0.3, Label: "1.2x"},
			{Kind: types.KindMultiple, Multiple: 3, Fraction: 0.3, Label: "3x"},
		}},
	}
	res := Simulate(candles, 0, 1, plan, 0, 0)
	var sum float64
	for _, f := range res.Fills {
		if f.Fraction <= 0 || f.Fraction > 1 {
			t.Fatalf("fraction out of range: %v", f.Fraction)
		}
		sum += f.Fraction
	}
	if math.Abs(sum+res.RemainingFraction-1) > 1e-9 {
		t.Fatalf("fraction conservation violated: sum=%v remaining=%v", sum, res.RemainingFraction)
	}
}

// Testable property: fill timestamps are non-decreasing.
func TestPropertyFillTimestampsNonDecreasing(t *testing.T) {
	candles := testutils.LinearCandles(0, 1000, 20, func(i int) float64 { return 1 + float64(i)*0.3 })
	plan := types.ExitPlan{
		Ladder: types.LadderSpec{Enabled: true, Levels: []types.LadderLevel{
			{Kind: types.KindMultiple, Multiple: 1.5, Fraction: 0.25, Label: "a"},
			{Kind: types.KindMultiple, Multiple: 2, Fraction: 0.25, Label: "b"},
			{Kind: types.KindMultiple, Multiple: 3, Fraction: 0.5, Label: "c"},
		}},
	}
	res := Simulate(candles, 0, 1, plan, 0, 0)
	for i := 1; i < len(res.Fills); i++ {
		if res.Fills[i].TsMs < res.Fills[i-1].TsMs {
			t.Fatalf("fill timestamps decreased: %+v", res.Fills)
		}
	}
}

// Testable property: determinism — identical inputs produce identical
// outputs across repeated calls.
func TestPropertyDeterminism(t *testing.T) {
	candles := testutils.LinearCandles(0, 1000, 30, func(i int) float64 { return 1 + float64(i)*0.1 })
	plan := types.ExitPlan{
		Trailing: types.TrailingSpec{Enabled: true, TrailBps: 500, HasHardStopBps: true, HardStopBps: 1500, IntrabarPolicy: types.TPFirst},
		Ladder: types.LadderSpec{Enabled: true, Levels: []types.LadderLevel{
			{Kind: types.KindMultiple, Multiple: 2, Fraction: 0.5, Label: "2x"},
		}},
	}
	a := Simulate(candles, 0, 1, plan, 10, 5)
	b := Simulate(candles, 0, 1, plan, 10, 5)
	if len(a.Fills) != len(b.Fills) {
		t.Fatalf("nondeterministic fill count: %d vs %d", len(a.Fills), len(b.Fills))
	}
	for i := range a.Fills {
		if a.Fills[i] != b.Fills[i] {
			t.Fatalf("nondeterministic fill at %d: %+v vs %+v", i, a.Fills[i], b.Fills[i])
		}
	}
}

// Testable property: a plan with every block disabled yields zero fills.
func TestPropertyDisabledPlanYieldsZeroFills(t *testing.T) {
	candles := testutils.LinearCandles(0, 1000, 10, func(i int) float64 { return 1 + float64(i) })
	res := Simulate(candles, 0, 1, types.ExitPlan{}, 0, 0)
	if res.HasFills() {
		t.Fatalf("expected zero fills for a fully disabled plan, got %+v", res.Fills)
	}
}

// Testable property: with zero fee and zero slippage, net price equals the
// raw trigger price exactly.
func TestPropertyZeroFrictionReturnsRawPrice(t *testing.T) {
	candles := []types.Candle{testutils.C(0, 1, 2.5, 0.95, 2.4, 10)}
	plan := types.ExitPlan{
		Ladder: types.LadderSpec{Enabled: true, Levels: []types.LadderLevel{
			{Kind: types.KindMultiple, Multiple: 2, Fraction: 1, Label: "2x"},
		}},
	}
	res := Simulate(candles, 0, 1, plan, 0, 0)
	if len(res.Fills) != 1 || math.Abs(res.Fills[0].NetPx-2.0) > 1e-12 {
		t.Fatalf("expected raw 2.0 price with zero friction, got %+v", res.Fills)
	}
}

// TP_FIRST: the ladder is evaluated before the stop check within the same
// candle, so a ladder-reachable high still fills even when the same bar's
// low would otherwise have triggered the stop — provided the ladder
// consumes the full remaining fraction first.
func TestTPFirstLadderConsumesBeforeStopCheck(t *testing.T) {
	candles := []types.Candle{testutils.C(0, 1, 3, 0.79, 2.9, 10)}
	plan := types.ExitPlan{
		Ladder: types.LadderSpec{Enabled: true, Levels: []types.LadderLevel{
			{Kind: types.KindMultiple, Multiple: 2, Fraction: 1, Label: "2x"},
		}},
		Trailing: types.TrailingSpec{Enabled: true, HasHardStopBps: true, HardStopBps: 2000, IntrabarPolicy: types.TPFirst},
	}
	res := Simulate(candles, 0, 1, plan, 0, 0)
	if len(res.Fills) != 1 || res.Fills[0].Reason != types.TakeProfitReason("2x") {
		t.Fatalf("expected the ladder to fill first under TP_FIRST, got %+v", res.Fills)
	}
}

// Trailing stop with no activation threshold is active immediately, with
// the stop seeded from p0.
func TestTrailingStopActiveImmediatelyWithoutActivation(t *testing.T) {
	candles := []types.Candle{
		testutils.C(0, 1, 1, 0.99, 1, 10),    // peak stays at p0=1, stop = 0.95
		testutils.C(1000, 1, 1, 0.94, 0.95, 10), // low breaches the stop
	}
	plan := types.ExitPlan{
		Trailing: types.TrailingSpec{Enabled: true, TrailBps: 500, IntrabarPolicy: types.StopFirst},
	}
	res := Simulate(candles, 0, 1, plan, 0, 0)
	if len(res.Fills) != 1 || res.Fills[0].Reason != types.ReasonTrailingStop {
		t.Fatalf("expected an immediate trailing stop fill, got %+v", res.Fills)
	}
	if math.Abs(res.Fills[0].NetPx-0.95) > 1e-9 {
		t.Fatalf("expected stop price 0.95, got %v", res.Fills[0].NetPx)
	}
}

// A hard-stop-only plan (TrailBps=0, as config.PolicyWire's fixed_stop and
// ladder-with-hard-stop shapes both build) must never ratchet a trailing
// stop in at the running peak across multiple candles: only the hard stop
// may fire.
func TestHardStopOnlyPlanDoesNotRatchetAtPeak(t *testing.T) {
	candles := []types.Candle{
		testutils.C(0, 1, 1.3, 0.95, 1.2, 10),     // peak would ratchet to 1.3 if trailing were live
		testutils.C(1000, 1.2, 1.25, 1.1, 1.15, 10), // low dips under the (wrongly ratcheted) peak, but not the hard stop
		testutils.C(2000, 1.15, 1.2, 1.1, 1.18, 10),
	}
	plan := types.ExitPlan{
		Trailing: types.TrailingSpec{Enabled: true, HasHardStopBps: true, HardStopBps: 2000, IntrabarPolicy: types.StopFirst},
	}
	res := Simulate(candles, 0, 1, plan, 0, 0)
	if res.HasFills() {
		t.Fatalf("expected no fill: the hard stop (0.8) is never breached and no trailing ratchet should fire, got %+v", res.Fills)
	}
	if res.ExitReason != types.ReasonNoExit {
		t.Fatalf("expected no_exit, got %v", res.ExitReason)
	}
}

// With no fills, exitTsMs is entryTsMs, not the last candle's timestamp
// (spec §4.3's ExitSimResult contract).
func TestNoFillsExitTsMsEqualsEntryTsMs(t *testing.T) {
	candles := testutils.LinearCandles(0, 1000, 5, func(i int) float64 { return 1.0 })
	res := Simulate(candles, 0, 1, types.ExitPlan{}, 0, 0)
	if res.ExitTsMs != 0 {
		t.Fatalf("expected exitTsMs == entryTsMs (0) with no fills, got %v", res.ExitTsMs)
	}
}

// The trailing stop ratchets up with the running peak and never loosens.
func TestTrailingStopRatchetsWithPeak(t *testing.T) {
	candles := []types.Candle{
		testutils.C(0, 1, 2, 0.99, 2, 10),        // peak -> 2, stop -> 1.9
		testutils.C(1000, 2, 2.5, 1.95, 2.5, 10), // peak -> 2.5, stop -> 2.375
		testutils.C(2000, 2.5, 2.5, 2.3, 2.3, 10), // low breaches 2.375
	}
	plan := types.ExitPlan{
		Trailing: types.TrailingSpec{Enabled: true, TrailBps: 500, IntrabarPolicy: types.StopFirst},
	}
	res := Simulate(candles, 0, 1, plan, 0, 0)
	if len(res.Fills) != 1 || res.Fills[0].Reason != types.ReasonTrailingStop {
		t.Fatalf("expected a trailing stop fill on the third candle, got %+v", res.Fills)
	}
	if math.Abs(res.Fills[0].NetPx-2.375) > 1e-9 {
		t.Fatalf("expected ratcheted stop price 2.375, got %v", res.Fills[0].NetPx)
	}
}
