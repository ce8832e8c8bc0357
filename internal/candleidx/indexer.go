// Package candleidx locates the entry candle within a time-ordered candle
// sequence (spec §4.1). It provides EntryIndex only and has no OHLCV
// accessors; callers read candle fields from types.Candle directly.
// EntryIndex is a total function — it never errors, only reports whether an
// index was found.
package candleidx

import "github.com/evdnx/backtestcore/types"

// EntryIndex returns the first index i with candles[i].TsMs >= entryTsMs,
// using a half-open lower-bound binary search (spec §4.1). The second
// return value is false iff entryTsMs is after every candle's timestamp,
// in which case the simulator must short-circuit (spec §4.1, §4.3).
func EntryIndex(candles []types.Candle, entryTsMs int64) (int, bool) {
	lo, hi := 0, len(candles)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if candles[mid].TsMs >= entryTsMs {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo >= len(candles) {
		return 0, false
	}
	return lo, true
}
