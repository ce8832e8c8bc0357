package candleidx

import (
	"testing"

	"github.com/evdnx/backtestcore/testutils"
)

func TestEntryIndexExactMatch(t *testing.T) {
	cs := testutils.LinearCandles(0, 60_000, 5, func(i int) float64 { return float64(i) })
	idx, ok := EntryIndex(cs, 120_000)
	if !ok || idx != 2 {
		t.Fatalf("expected idx=2 ok=true, got idx=%d ok=%v", idx, ok)
	}
}

func TestEntryIndexBeforeFirstCandle(t *testing.T) {
	cs := testutils.LinearCandles(1000, 60_000, 3, func(i int) float64 { return 1 })
	idx, ok := EntryIndex(cs, 0)
	if !ok || idx != 0 {
		t.Fatalf("expected idx=0 ok=true, got idx=%d ok=%v", idx, ok)
	}
}

func TestEntryIndexAfterLastCandleShortCircuits(t *testing.T) {
	cs := testutils.LinearCandles(0, 60_000, 3, func(i int) float64 { return 1 })
	_, ok := EntryIndex(cs, 1_000_000)
	if ok {
		t.Fatalf("expected ok=false when entry is after last candle")
	}
}

func TestEntryIndexEmptySlice(t *testing.T) {
	_, ok := EntryIndex(nil, 0)
	if ok {
		t.Fatalf("expected ok=false for empty candle slice")
	}
}

func TestEntryIndexGapsPermitted(t *testing.T) {
	cs := append(testutils.LinearCandles(0, 60_000, 2, func(i int) float64 { return 1 }),
		testutils.LinearCandles(1_000_000, 60_000, 2, func(i int) float64 { return 1 })...)
	idx, ok := EntryIndex(cs, 500_000)
	if !ok || idx != 2 {
		t.Fatalf("expected idx=2 (first candle after the gap), got idx=%d ok=%v", idx, ok)
	}
}
