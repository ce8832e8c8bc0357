// Package optimizer enumerates a parameter grid per alert-caller, scores
// each candidate against a corpus of alerts and candle slices using the
// policy executor, and ranks the constrained frontier (spec §4.5). The
// outer grid sweep and the per-caller, per-candidate evaluation are
// parallelised with a golang.org/x/sync/errgroup worker pool, bounded by
// OptimizerConfig.Workers (spec §5 "a work-stealing pool").
package optimizer

import (
	"context"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evdnx/backtestcore/config"
	"github.com/evdnx/backtestcore/internal/capital"
	"github.com/evdnx/backtestcore/internal/paramhash"
	"github.com/evdnx/backtestcore/internal/policy"
	"github.com/evdnx/backtestcore/logger"
	"github.com/evdnx/backtestcore/metrics"
	"github.com/evdnx/backtestcore/types"
)

// CorpusEntry is one (alert, candle_slice, path_metrics) triple (spec §4.5
// "Input"). PathMetrics is carried alongside the alert because the
// optimizer's hit-rate constraint is defined against the policy-independent
// truth of whether the token ever reached 2x, not against any one
// candidate's simulated trade outcome.
type CorpusEntry struct {
	CallerName string
	Alert      types.Alert
	Candles    []types.Candle
	Path       types.PathMetrics
}

// GridPoint is one cartesian-product combination of tunable parameters,
// together with the grid-enumeration index used for the stable tie-break
// (spec §4.5 "Determinism").
type GridPoint struct {
	Index  int
	Params map[string]float64
}

// PolicyBuilder turns one grid point's parameters into a policy wire
// object. The optimizer is deliberately agnostic to which of the five
// policy shapes a grid sweeps over; the caller supplies the mapping.
type PolicyBuilder func(params map[string]float64) config.PolicyWire

// Result is the full ranked outcome for one run, partitioned by caller.
type Result struct {
	Rows    []types.FrontierRow
	Partial bool // true iff the wall-clock budget was exhausted first
}

// Run evaluates every grid point against every caller's corpus entries and
// returns the ranked, constrained frontier (spec §4.5). budget <= 0 means
// no wall-clock limit. The returned error is non-nil only for a cancelled
// context; Rows then holds only the callers whose sweep finished before the
// cancellation, and the cancelled caller contributes no rows.
func Run(ctx context.Context, corpus []CorpusEntry, grid []GridPoint, build PolicyBuilder, cfg config.OptimizerConfig, feeBps, slippageBps float64, budget time.Duration, log logger.Logger) (Result, error) {
	byCaller := partitionByCaller(corpus)
	start := time.Now()

	callers := make([]string, 0, len(byCaller))
	for caller := range byCaller {
		callers = append(callers, caller)
	}
	sort.Strings(callers)

	var rows []types.FrontierRow
	partial := false

	for _, caller := range callers {
		entries := byCaller[caller]
		callerRows, callerPartial, err := runCaller(ctx, caller, entries, grid, build, cfg, feeBps, slippageBps, start, budget, log)
		if err != nil {
			return Result{Rows: rows, Partial: true}, err
		}
		rows = append(rows, callerRows...)
		if callerPartial {
			partial = true
		}
	}
	return Result{Rows: rows, Partial: partial}, nil
}

func partitionByCaller(corpus []CorpusEntry) map[string][]CorpusEntry {
	out := make(map[string][]CorpusEntry)
	for _, e := range corpus {
		out[e.CallerName] = append(out[e.CallerName], e)
	}
	return out
}

// runCaller scores every grid point for one caller's corpus, then ranks
// the constrained subset. budget <= 0 disables the wall-clock check.
func runCaller(ctx context.Context, caller string, entries []CorpusEntry, grid []GridPoint, build PolicyBuilder, cfg config.OptimizerConfig, feeBps, slippageBps float64, start time.Time, budget time.Duration, log logger.Logger) ([]types.FrontierRow, bool, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	rows := make([]types.FrontierRow, len(grid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	partial := false

	for _, gp := range grid {
		gp := gp
		if budget > 0 {
			elapsed := time.Since(start)
			metrics.OptimizerBudgetFraction.Set(elapsed.Seconds() / budget.Seconds())
			if elapsed >= budget {
				partial = true
				break
			}
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			rows[gp.Index] = scoreCandidate(caller, gp, entries, build, cfg, feeBps, slippageBps)
			metrics.CandidatesEvaluated.WithLabelValues(caller).Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, true, err
	}

	// Compact away any grid points skipped by the wall-clock budget: their
	// zero-value row has an empty CallerName, which a real row never has.
	compact := rows[:0]
	for _, r := range rows {
		if r.CallerName != "" {
			compact = append(compact, r)
		}
	}
	rows = compact

	rank(rows)
	if log != nil {
		log.Info("optimizer caller sweep complete", logger.String("caller", caller), logger.Int("candidates", len(rows)))
	}
	return rows, partial, nil
}

// scoreCandidate evaluates one grid point across an entire caller's corpus
// and folds the resulting trades into a FrontierRow (spec §4.5 steps 1-4).
func scoreCandidate(caller string, gp GridPoint, entries []CorpusEntry, build PolicyBuilder, cfg config.OptimizerConfig, feeBps, slippageBps float64) types.FrontierRow {
	pw := build(gp.Params)
	plan, err := pw.ToExitPlan(1.0) // p0-independent normalisation; absolute prices resolved per-alert inside the simulator.
	if err != nil {
		return types.FrontierRow{CallerName: caller, PolicyParams: toAnyMap(gp.Params), ParameterHash: paramhash.Hash(gp.Params), GridIndex: gp.Index, MeetsConstraints: false}
	}

	var trades []types.Trade
	if cfg.CapitalAware {
		alerts := make([]types.Alert, len(entries))
		byID := make(map[string][]types.Candle, len(entries))
		for i, e := range entries {
			alerts[i] = e.Alert
			byID[e.Alert.CallID] = e.Candles
		}
		candlesFor := func(a types.Alert) []types.Candle { return byID[a.CallID] }
		trades = capital.SimulateSequential(alerts, candlesFor, plan, cfg.StartingCapital, cfg.PositionSizeFrac, cfg.MaxConcurrent, feeBps, slippageBps)
	} else {
		trades = make([]types.Trade, len(entries))
		for i, e := range entries {
			trades[i] = policy.Execute(e.Candles, e.Alert, plan, feeBps, slippageBps)
		}
	}

	return buildFrontierRow(caller, gp, trades, entries, cfg.Constraints)
}

func buildFrontierRow(caller string, gp GridPoint, trades []types.Trade, entries []CorpusEntry, c config.Constraints) types.FrontierRow {
	n := len(trades)
	row := types.FrontierRow{CallerName: caller, PolicyParams: toAnyMap(gp.Params), ParameterHash: paramhash.Hash(gp.Params), GridIndex: gp.Index, SampleSize: n}
	if n == 0 {
		return row
	}

	returns := make([]float64, n)
	stopOuts := 0
	for i, tr := range trades {
		returns[i] = tr.RealizedReturnBps
		if tr.StopOut {
			stopOuts++
		}
	}
	row.AvgReturnBps = mean(returns)
	row.MedianReturnBps = median(returns)
	row.StopOutRate = float64(stopOuts) / float64(n)
	row.HitRate = hitRate(entries)

	row.MeetsConstraints = n >= c.MinSampleSize &&
		row.StopOutRate <= c.MaxStopOutRate &&
		(!c.HasMinHitRate || row.HitRate >= c.MinHitRate)

	switch c.Objective {
	case config.ObjectiveMedianReturn:
		row.ObjectiveScore = row.MedianReturnBps
	case config.ObjectiveRiskAdjusted:
		row.ObjectiveScore = row.AvgReturnBps / math.Max(1, row.StopOutRate*1e4)
	default:
		row.ObjectiveScore = row.AvgReturnBps
	}
	return row
}

// hitRate is the fraction of the corpus whose policy-independent path
// truth shows the token reached 2x at least once — the constraint is
// about the underlying opportunity, not any one candidate's fills.
func hitRate(entries []CorpusEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	hits := 0
	for _, e := range entries {
		if e.Path.Hit2x {
			hits++
		}
	}
	return float64(hits) / float64(len(entries))
}

// rank sorts the constrained subset by descending objective score, stable
// on ties so grid-enumeration order is preserved (spec §5 "equal scores
// preserve grid-enumeration order"), and assigns 1-based ranks. Rows that
// do not meet constraints keep rank 0.
func rank(rows []types.FrontierRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		qi, qj := rows[i].MeetsConstraints, rows[j].MeetsConstraints
		if qi != qj {
			return qi // constrained candidates sort before unconstrained ones
		}
		if !qi {
			return rows[i].GridIndex < rows[j].GridIndex
		}
		return rows[i].ObjectiveScore > rows[j].ObjectiveScore
	})
	nextRank := 1
	for i := range rows {
		if rows[i].MeetsConstraints {
			rows[i].Rank = nextRank
			nextRank++
		}
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func toAnyMap(params map[string]float64) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
