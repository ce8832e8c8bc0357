// Package indicator computes derived series (SMA/EMA, Ichimoku, MACD, RSI,
// volume z-score) over a candle sequence and produces per-bar boolean exit
// signals from rule sets (spec §4.2). The formulas are hand-implemented
// (not delegated to the teacher's goti suite) because spec §4.2/§8 pin down
// exact, bit-deterministic semantics — see DESIGN.md for the full
// justification. The API shape (a suite of named series, boolean
// per-rule signals combined with ANY/ALL) mirrors how the teacher's
// strategy package consumes goti's indicator suite.
package indicator

import (
	"math"

	"github.com/evdnx/backtestcore/types"
)

// Series is a per-candle derived value with an explicit validity flag
// instead of relying on NaN for "not yet warmed up" (spec §9 "use explicit
// Option<f64> ... rather than NaN, except where the result VWAP permits
// NaN").
type Series struct {
	Values []float64
	Valid  []bool
}

func newSeries(n int) Series {
	return Series{Values: make([]float64, n), Valid: make([]bool, n)}
}

// At returns the value at i and whether it is warmed up.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s.Values) {
		return 0, false
	}
	return s.Values[i], s.Valid[i]
}

// Closes extracts the close-price series from a candle sequence.
func Closes(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume series from a candle sequence.
func Volumes(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// SMA computes the simple moving average over the last n closes, null
// (invalid) before warmup (spec §4.2).
func SMA(cs []float64, n int) Series {
	out := newSeries(len(cs))
	if n <= 0 {
		return out
	}
	var sum float64
	for i, c := range cs {
		sum += c
		if i >= n {
			sum -= cs[i-n]
		}
		if i >= n-1 {
			out.Values[i] = sum / float64(n)
			out.Valid[i] = true
		}
	}
	return out
}

// EMA computes the exponential moving average, seeded from SMA(n) at
// i=n-1, then ema_i = α·close_i + (1-α)·ema_{i-1}, α = 2/(n+1) (spec §4.2).
func EMA(cs []float64, n int) Series {
	out := newSeries(len(cs))
	if n <= 0 {
		return out
	}
	sma := SMA(cs, n)
	alpha := 2.0 / (float64(n) + 1)
	var prev float64
	seeded := false
	for i := range cs {
		if !seeded {
			if v, ok := sma.At(i); ok {
				prev = v
				out.Values[i] = v
				out.Valid[i] = true
				seeded = true
			}
			continue
		}
		prev = alpha*cs[i] + (1-alpha)*prev
		out.Values[i] = prev
		out.Valid[i] = true
	}
	return out
}

// IchimokuResult bundles the four derived lines (spec §4.2).
type IchimokuResult struct {
	Tenkan Series // 9-bar mid
	Kijun  Series // 26-bar mid
	SpanA  Series // (tenkan+kijun)/2
	SpanB  Series // 52-bar mid
}

func midOfHighLow(candles []types.Candle, i, window int) (float64, bool) {
	if i < window-1 {
		return 0, false
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for j := i - window + 1; j <= i; j++ {
		if candles[j].High > hi {
			hi = candles[j].High
		}
		if candles[j].Low < lo {
			lo = candles[j].Low
		}
	}
	return (hi + lo) / 2, true
}

// Ichimoku computes tenkan (9), kijun (26), span A and span B (52) exactly
// as spec §4.2 defines them.
func Ichimoku(candles []types.Candle) IchimokuResult {
	n := len(candles)
	res := IchimokuResult{
		Tenkan: newSeries(n),
		Kijun:  newSeries(n),
		SpanA:  newSeries(n),
		SpanB:  newSeries(n),
	}
	for i := 0; i < n; i++ {
		if v, ok := midOfHighLow(candles, i, 9); ok {
			res.Tenkan.Values[i], res.Tenkan.Valid[i] = v, true
		}
		if v, ok := midOfHighLow(candles, i, 26); ok {
			res.Kijun.Values[i], res.Kijun.Valid[i] = v, true
		}
		if v, ok := midOfHighLow(candles, i, 52); ok {
			res.SpanB.Values[i], res.SpanB.Valid[i] = v, true
		}
		if res.Tenkan.Valid[i] && res.Kijun.Valid[i] {
			res.SpanA.Values[i] = (res.Tenkan.Values[i] + res.Kijun.Values[i]) / 2
			res.SpanA.Valid[i] = true
		}
	}
	return res
}

// MACDResult bundles the MACD line and its signal line (spec §4.2).
type MACDResult struct {
	MACD   Series
	Signal Series
}

// MACD computes EMA(12) − EMA(26) and a 9-period EMA of that difference as
// the signal line (spec §4.2).
func MACD(cs []float64) MACDResult {
	fast := EMA(cs, 12)
	slow := EMA(cs, 26)
	macd := newSeries(len(cs))
	for i := range cs {
		fv, fok := fast.At(i)
		sv, sok := slow.At(i)
		if fok && sok {
			macd.Values[i] = fv - sv
			macd.Valid[i] = true
		}
	}
	signal := emaOfSeries(macd, 9)
	return MACDResult{MACD: macd, Signal: signal}
}

// emaOfSeries applies the same SMA-seeded EMA recurrence to an already
// partially-valid series (used for the MACD signal line, whose warmup
// starts only once MACD itself is valid).
func emaOfSeries(s Series, n int) Series {
	out := newSeries(len(s.Values))
	alpha := 2.0 / (float64(n) + 1)
	// Collect the valid-from index and compute a running SMA seed over the
	// first n valid points, then continue the EMA recurrence.
	validIdx := make([]int, 0, len(s.Values))
	for i, ok := range s.Valid {
		if ok {
			validIdx = append(validIdx, i)
		}
	}
	if len(validIdx) < n {
		return out
	}
	var seed float64
	for k := 0; k < n; k++ {
		seed += s.Values[validIdx[k]]
	}
	seed /= float64(n)
	prev := seed
	seedPos := validIdx[n-1]
	out.Values[seedPos] = seed
	out.Valid[seedPos] = true
	for k := n; k < len(validIdx); k++ {
		idx := validIdx[k]
		prev = alpha*s.Values[idx] + (1-alpha)*prev
		out.Values[idx] = prev
		out.Valid[idx] = true
	}
	return out
}

// RSI computes the Wilder-smoothed relative strength index over n periods
// (spec §4.2).
func RSI(cs []float64, n int) Series {
	out := newSeries(len(cs))
	if n <= 0 || len(cs) < n+1 {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= n; i++ {
		diff := cs[i] - cs[i-1]
		if diff > 0 {
			avgGain += diff
		} else {
			avgLoss += -diff
		}
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)
	setRSI := func(i int, gain, loss float64) {
		if loss == 0 {
			out.Values[i] = 100
		} else {
			rs := gain / loss
			out.Values[i] = 100 - 100/(1+rs)
		}
		out.Valid[i] = true
	}
	setRSI(n, avgGain, avgLoss)
	for i := n + 1; i < len(cs); i++ {
		diff := cs[i] - cs[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
		setRSI(i, avgGain, avgLoss)
	}
	return out
}

// VolumeZScore computes a rolling-window z-score of volume: (v-μ)/σ over
// the trailing `window` bars (spec §4.2 "Volume spike").
func VolumeZScore(volumes []float64, window int) Series {
	out := newSeries(len(volumes))
	if window <= 1 {
		return out
	}
	for i := range volumes {
		if i < window-1 {
			continue
		}
		var sum float64
		for j := i - window + 1; j <= i; j++ {
			sum += volumes[j]
		}
		mean := sum / float64(window)
		var variance float64
		for j := i - window + 1; j <= i; j++ {
			d := volumes[j] - mean
			variance += d * d
		}
		variance /= float64(window)
		std := math.Sqrt(variance)
		if std == 0 {
			continue
		}
		out.Values[i] = (volumes[i] - mean) / std
		out.Valid[i] = true
	}
	return out
}

