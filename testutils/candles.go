package testutils

import "github.com/evdnx/backtestcore/types"

// C builds a Candle tersely for table-driven tests:
// C(tsMs, open, high, low, close, volume).
func C(tsMs int64, o, h, l, c, v float64) types.Candle {
	return types.Candle{TsMs: tsMs, Open: o, High: h, Low: l, Close: c, Volume: v}
}

// LinearCandles builds n candles spaced intervalMs apart starting at
// startTsMs, each with OHLC equal to a supplied close-price function. Useful
// for indicator warm-up and optimizer corpus fixtures.
func LinearCandles(startTsMs, intervalMs int64, n int, closeAt func(i int) float64) []types.Candle {
	out := make([]types.Candle, 0, n)
	for i := 0; i < n; i++ {
		px := closeAt(i)
		out = append(out, types.Candle{
			TsMs:   startTsMs + int64(i)*intervalMs,
			Open:   px,
			High:   px,
			Low:    px,
			Close:  px,
			Volume: 1,
		})
	}
	return out
}

// NewAlert builds an Alert tersely for tests.
func NewAlert(callID, caller string, tsMs int64, price float64) types.Alert {
	return types.Alert{
		CallID:     callID,
		CallerName: caller,
		Chain:      "solana",
		AlertTsMs:  tsMs,
		AlertPrice: price,
	}
}
