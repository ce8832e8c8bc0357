// Package metrics exposes the core's Prometheus instrumentation, in the
// same package-level-vars-registered-in-init style as the teacher's
// metrics/metrics.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FillsEmitted counts fills emitted by the exit-plan simulator, by
	// reason (spec §3 Fill.reason).
	FillsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtestcore_fills_emitted_total",
			Help: "Total number of fills emitted by the exit-plan simulator, by reason.",
		},
		[]string{"reason"},
	)

	// CandidatesEvaluated counts grid candidates the optimizer has scored,
	// by caller.
	CandidatesEvaluated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtestcore_optimizer_candidates_evaluated_total",
			Help: "Total number of grid candidates evaluated by the optimizer, by caller.",
		},
		[]string{"caller"},
	)

	// ErrorRowsEmitted counts errors artifact rows produced, by phase and
	// level (spec §7).
	ErrorRowsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backtestcore_error_rows_total",
			Help: "Total number of error rows recorded, by phase and level.",
		},
		[]string{"phase", "level"},
	)

	// OptimizerBudgetFraction reports how much of the optimizer's
	// wall-clock budget has been consumed by the current run (0..1+).
	OptimizerBudgetFraction = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backtestcore_optimizer_budget_fraction",
			Help: "Fraction of the optimizer wall-clock budget consumed by the current run.",
		},
	)
)

func init() {
	prometheus.MustRegister(FillsEmitted, CandidatesEvaluated, ErrorRowsEmitted, OptimizerBudgetFraction)
}
