// Package errlog builds `errors` artifact rows (spec §6.2, §7) and folds
// per-alert or per-candidate failures into combined errors with
// go.uber.org/multierr so a caller processing a batch sees every
// underlying cause instead of only the first (same accumulation style as
// config.ExitPlanWire.Validate).
package errlog

import (
	"go.uber.org/multierr"

	"github.com/evdnx/backtestcore/metrics"
	"github.com/evdnx/backtestcore/types"
)

// Collector accumulates error rows for one run and the combined error they
// represent, so the caller can both persist the rows (§6.2) and propagate a
// single Go error if the whole run should be marked failed (§7 "status =
// failed" only when zero alerts produced a result).
type Collector struct {
	runID string
	rows  []types.ErrorRow
	err   error
}

// NewCollector creates a Collector scoped to one run.
func NewCollector(runID string) *Collector {
	return &Collector{runID: runID}
}

// Warn records a data-deficiency warning (spec §7 "reported as a structured
// outcome, not an exception").
func (c *Collector) Warn(tsMs int64, phase, callID, message string, details map[string]any) {
	c.add(tsMs, types.LevelWarning, phase, callID, message, details)
}

// Error records a recoverable per-alert failure that excludes the alert
// from summaries but does not abort the run (spec §7 "Propagation").
func (c *Collector) Error(tsMs int64, phase, callID, message string, details map[string]any) {
	c.add(tsMs, types.LevelError, phase, callID, message, details)
	c.err = multierr.Append(c.err, &AlertError{CallID: callID, Phase: phase, Message: message})
}

// Fatal records a contract violation (spec §7 "fatal assertions; indicate a
// simulator bug and abort the run").
func (c *Collector) Fatal(tsMs int64, phase, message string, details map[string]any) {
	c.add(tsMs, types.LevelFatal, phase, "", message, details)
	c.err = multierr.Append(c.err, &FatalError{Phase: phase, Message: message})
}

func (c *Collector) add(tsMs int64, level types.ErrorLevel, phase, callID, message string, details map[string]any) {
	c.rows = append(c.rows, types.ErrorRow{
		RunID:   c.runID,
		TsMs:    tsMs,
		Level:   level,
		Phase:   phase,
		CallID:  callID,
		Message: message,
		Details: details,
	})
	metrics.ErrorRowsEmitted.WithLabelValues(phase, string(level)).Inc()
}

// Rows returns every error row recorded so far.
func (c *Collector) Rows() []types.ErrorRow {
	out := make([]types.ErrorRow, len(c.rows))
	copy(out, c.rows)
	return out
}

// Err returns the combined multierr of every Error/Fatal call, or nil if
// none were recorded. Warnings never contribute to Err.
func (c *Collector) Err() error {
	return c.err
}

// HasFatal reports whether any Fatal was recorded.
func (c *Collector) HasFatal() bool {
	for _, r := range c.rows {
		if r.Level == types.LevelFatal {
			return true
		}
	}
	return false
}

// AlertError wraps a recoverable per-alert failure.
type AlertError struct {
	CallID  string
	Phase   string
	Message string
}

func (e *AlertError) Error() string {
	return e.Phase + "[" + e.CallID + "]: " + e.Message
}

// FatalError wraps a contract violation that must abort the run.
type FatalError struct {
	Phase   string
	Message string
}

func (e *FatalError) Error() string {
	return "fatal(" + e.Phase + "): " + e.Message
}
