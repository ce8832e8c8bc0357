// Package types holds the data model shared by every component of the
// backtest core: candles, alerts, exit plans, fills, path metrics, trades
// and frontier rows. Values in this package are immutable once constructed
// and carry no behaviour beyond small accessors — the Go analogue of
// spec §3's "constructed per call, consumed downstream, discarded".
package types

import "math"

// Candle is one OHLCV bar. Sequences are time-ordered ascending, same
// interval, no duplicate timestamps; gaps are permitted.
type Candle struct {
	TsMs   int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Alert is a signalling event emitted by a human or automated caller on a
// token, treated as a potential trade entry.
type Alert struct {
	CallID       string
	CallerName   string
	Chain        string
	TokenAddress string
	AlertTsMs    int64
	AlertPrice   float64 // p0
}

// IntrabarPolicy selects the ordering of stop vs. take-profit resolution
// within a single candle (spec §3, §4.3). LowThenHigh and HighThenLow are
// retained for wire compatibility; per spec §9 they are functionally
// indistinguishable from StopFirst and TPFirst respectively in the
// reference source, and this implementation preserves that equivalence
// rather than inventing a fifth ordering.
type IntrabarPolicy int

const (
	StopFirst IntrabarPolicy = iota
	TPFirst
	HighThenLow
	LowThenHigh
)

func (p IntrabarPolicy) String() string {
	switch p {
	case StopFirst:
		return "STOP_FIRST"
	case TPFirst:
		return "TP_FIRST"
	case HighThenLow:
		return "HIGH_THEN_LOW"
	case LowThenHigh:
		return "LOW_THEN_HIGH"
	default:
		return "UNKNOWN"
	}
}

// ResolvesStopBeforeTP reports whether this policy checks the stop before
// the ladder within the same candle (spec §4.3 ordering table).
func (p IntrabarPolicy) ResolvesStopBeforeTP() bool {
	return p == StopFirst || p == LowThenHigh
}

// LevelKind discriminates a ladder level / activation threshold expressed
// as a multiple of p0 (target p0*Multiple) or as a fractional offset from
// p0 (target p0*(1+Pct), so 0.15 means +15%).
type LevelKind int

const (
	KindMultiple LevelKind = iota
	KindPct
)

// LadderLevel is one take-profit rung (spec §3, §6.1).
type LadderLevel struct {
	Kind     LevelKind
	Multiple float64 // used when Kind == KindMultiple
	Pct      float64 // used when Kind == KindPct
	Fraction float64 // [0,1]
	Label    string  // e.g. "2x" or "15pct", used to build the tp_<label> reason
}

// TargetPrice resolves the level's absolute price given an entry price p0.
func (l LadderLevel) TargetPrice(p0 float64) float64 {
	switch l.Kind {
	case KindMultiple:
		return p0 * l.Multiple
	case KindPct:
		return p0 * (1 + l.Pct)
	default:
		return math.NaN()
	}
}

// Activation is the optional trailing-stop activation threshold.
type Activation struct {
	Set      bool
	Kind     LevelKind
	Multiple float64
	Pct      float64
}

// TargetPrice resolves the activation threshold to an absolute price.
func (a Activation) TargetPrice(p0 float64) float64 {
	switch a.Kind {
	case KindMultiple:
		return p0 * a.Multiple
	case KindPct:
		return p0 * (1 + a.Pct)
	default:
		return math.NaN()
	}
}

// IndicatorRuleKind enumerates the supported per-bar rule families (§4.2,
// §6.1).
type IndicatorRuleKind int

const (
	RuleIchimokuCross IndicatorRuleKind = iota
	RuleEMACross
	RuleRSICross
	RuleVolumeSpike
)

// CrossDirection selects which transition a *Cross rule fires on.
type CrossDirection int

const (
	CrossesAbove CrossDirection = iota
	CrossesBelow
)

// IndicatorRule is one boolean signal generator evaluated per candle.
type IndicatorRule struct {
	Kind      IndicatorRuleKind
	Direction CrossDirection

	// EMACross / MACD-flavoured parameters.
	FastPeriod int
	SlowPeriod int

	// RSICross parameters.
	RSIPeriod    int
	RSIThreshold float64

	// VolumeSpike parameters.
	VolumeWindow int
	ZThreshold   float64

	// IchimokuCross has no tunable periods in this implementation; it
	// always uses the canonical 9/26/52 construction (spec §4.2).
}

// CompositionMode is how multiple indicator rules combine into one signal.
type CompositionMode int

const (
	ModeANY CompositionMode = iota
	ModeALL
)

// IndicatorExitSpec is the normalised indicator-exit block of an exit plan.
type IndicatorExitSpec struct {
	Enabled                    bool
	Rules                      []IndicatorRule
	Mode                       CompositionMode
	MinHoldCandlesForIndicator int
}

// TrailingSpec is the normalised trailing-stop block of an exit plan.
type TrailingSpec struct {
	Enabled        bool
	TrailBps       float64
	Activation     Activation
	HasHardStopBps bool
	HardStopBps    float64
	IntrabarPolicy IntrabarPolicy
}

// LadderSpec is the normalised ladder block of an exit plan.
type LadderSpec struct {
	Enabled bool
	Levels  []LadderLevel // sorted ascending by absolute target price at Normalize time
}

// ExitPlan is the fully-normalised, validated internal representation of
// the wire-format exit plan (spec §3, §6.1). Construct via
// config.NormalizeExitPlan; the simulator never sees the wire JSON.
type ExitPlan struct {
	Ladder                  LadderSpec
	Trailing                TrailingSpec
	Indicator               IndicatorExitSpec
	MaxHoldMs               int64
	HasMaxHoldMs            bool
	MinHoldCandlesForIndic  int // duplicated on IndicatorExitSpec for convenience
}

// FillReason enumerates why a fill was emitted.
type FillReason string

const (
	ReasonTrailingStop  FillReason = "trailing_stop"
	ReasonStopLoss      FillReason = "stop_loss"
	ReasonTimeout       FillReason = "timeout"
	ReasonIndicatorExit       FillReason = "indicator_exit"
	ReasonNoExit              FillReason = "no_exit"
	ReasonNoCandlesAfterEntry FillReason = "no_candles_after_entry"
)

// TakeProfitReason builds the tp_<label> reason for a ladder fill.
func TakeProfitReason(label string) FillReason {
	return FillReason("tp_" + label)
}

// Fill is one partial (or full) exit execution.
type Fill struct {
	TsMs     int64
	NetPx    float64
	Fraction float64
	Reason   FillReason
}

// ExitSimResult is the outcome of running the exit-plan simulator over one
// candle sequence for one alert (spec §3).
type ExitSimResult struct {
	Fills             []Fill
	EntryTsMs         int64
	ExitTsMs          int64
	ExitPxVwap        float64 // NaN iff no fills
	ExitReason        FillReason
	RemainingFraction float64
}

// HasFills reports whether the simulation produced at least one fill.
func (r ExitSimResult) HasFills() bool {
	return len(r.Fills) > 0
}

// PathMetrics is the policy-independent truth about an alert's trajectory
// (spec §3).
type PathMetrics struct {
	CallID            string
	P0                float64
	PeakMultiple      float64
	Hit2x             bool
	T2xMs             *int64
	Hit3x             bool
	T3xMs             *int64
	Hit4x             bool
	T4xMs             *int64
	DDBps             float64
	DDTo2xBps         float64
	AlertToActivityMs *int64
}

// Trade is the policy-level outcome for one alert (spec §3, §4.4).
type Trade struct {
	CallID                  string
	EntryTsMs               int64
	EntryPx                 float64
	ExitTsMs                int64
	ExitPx                  float64
	ExitReason              FillReason
	RealizedReturnBps       float64
	StopOut                 bool
	MaxAdverseExcursionBps  float64
	TimeExposedMs           int64
	TailCapture             float64
}

// FrontierRow is one ranked policy candidate (spec §3, §4.5).
type FrontierRow struct {
	CallerName      string
	PolicyParams    map[string]any
	ParameterHash   string // FNV-1a over PolicyParams, SPEC_FULL §12
	GridIndex       int
	MeetsConstraints bool
	ObjectiveScore  float64
	AvgReturnBps    float64
	MedianReturnBps float64
	StopOutRate     float64
	HitRate         float64
	SampleSize      int
	Rank            int // 0 = unranked / not constrained
}

// ErrorLevel is the severity of an error artifact row (spec §7).
type ErrorLevel string

const (
	LevelWarning ErrorLevel = "warning"
	LevelError   ErrorLevel = "error"
	LevelFatal   ErrorLevel = "fatal"
)

// ErrorRow is one row of the `errors` artifact table (spec §6.2, §7).
type ErrorRow struct {
	RunID   string
	TsMs    int64
	Level   ErrorLevel
	Phase   string
	CallID  string // empty if not alert-scoped
	Message string
	Details map[string]any
}

// RunType enumerates the kinds of run the core can be invoked for (§6.2).
type RunType string

const (
	RunPathOnly     RunType = "path-only"
	RunPolicy       RunType = "policy"
	RunOptimization RunType = "optimization"
	RunFull         RunType = "full"
)

// RunStatus is the terminal status of a run (§7).
type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// RunManifest records the metadata of one core invocation (§6.2,
// SPEC_FULL §12).
type RunManifest struct {
	RunID          string
	RunType        RunType
	Status         RunStatus
	DatasetFromMs  int64
	DatasetToMs    int64
	ParameterHash  string
	SchemaVersion  int
	ArtifactCounts map[string]int
}

// CurrentSchemaVersion is stamped onto every manifest produced by NewRun.
const CurrentSchemaVersion = 1

// NewRun opens a manifest for one core invocation. Status starts at
// StatusFailed; Finalize flips it to StatusCompleted once at least one
// artifact count passed to it is positive.
func NewRun(runID string, runType RunType, datasetFromMs, datasetToMs int64, parameterHash string) RunManifest {
	return RunManifest{
		RunID:         runID,
		RunType:       runType,
		Status:        StatusFailed,
		DatasetFromMs: datasetFromMs,
		DatasetToMs:   datasetToMs,
		ParameterHash: parameterHash,
		SchemaVersion: CurrentSchemaVersion,
	}
}

// Finalize stamps a manifest's terminal status and artifact counts. A run
// with at least one produced artifact is completed; an empty-output run is
// failed, per §7's status contract.
func (m RunManifest) Finalize(artifactCounts map[string]int) RunManifest {
	m.ArtifactCounts = artifactCounts
	m.Status = StatusFailed
	for _, n := range artifactCounts {
		if n > 0 {
			m.Status = StatusCompleted
			break
		}
	}
	return m
}
