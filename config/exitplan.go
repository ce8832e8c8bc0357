// Package config holds the wire-format (JSON) configuration objects and
// their validation, following the same "accumulate every violation, return
// them combined" style as the teacher's StrategyConfig.Validate — except
// here the accumulation uses go.uber.org/multierr instead of returning only
// the first error, so a caller sees every invalid field path in one
// rejection (spec §7 "Validation errors ... surfaced immediately, never
// wrapped").
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"go.uber.org/multierr"

	"github.com/evdnx/backtestcore/types"
)

// LadderLevelWire is one entry of ExitPlanWire.Ladder.Levels (spec §6.1).
type LadderLevelWire struct {
	Kind     string  `json:"kind"` // "multiple" | "pct"
	Multiple float64 `json:"multiple,omitempty"`
	Pct      float64 `json:"pct,omitempty"`
	Fraction float64 `json:"fraction"`
}

// LadderWire is the optional ladder block.
type LadderWire struct {
	Enabled bool              `json:"enabled"`
	Levels  []LadderLevelWire `json:"levels"`
}

// ActivationWire is the optional trailing-stop activation threshold.
type ActivationWire struct {
	Kind     string  `json:"kind"` // "multiple" | "pct"
	Multiple float64 `json:"multiple,omitempty"`
	Pct      float64 `json:"pct,omitempty"`
}

// TrailingWire is the optional trailing-stop block.
type TrailingWire struct {
	Enabled        bool            `json:"enabled"`
	TrailBps       float64         `json:"trail_bps"`
	Activation     *ActivationWire `json:"activation,omitempty"`
	HardStopBps    float64         `json:"hard_stop_bps,omitempty"`
	HasHardStopBps bool            `json:"-"` // set true by UnmarshalJSON when hard_stop_bps was present
	IntrabarPolicy string          `json:"intrabar_policy,omitempty"`
}

// trailingWireAlias avoids infinite recursion into TrailingWire's own
// UnmarshalJSON while reusing its field tags.
type trailingWireAlias TrailingWire

// UnmarshalJSON decodes a TrailingWire and sets HasHardStopBps from whether
// the "hard_stop_bps" key was actually present in the payload, rather than
// inferring presence from the decoded value being non-zero (a present,
// explicit 0 must still count as "present").
func (t *TrailingWire) UnmarshalJSON(data []byte) error {
	var alias trailingWireAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	_, present := raw["hard_stop_bps"]
	*t = TrailingWire(alias)
	t.HasHardStopBps = present
	return nil
}

// IndicatorRuleWire is one rule of IndicatorWire.Rules.
type IndicatorRuleWire struct {
	Kind         string  `json:"kind"` // "ichimoku_cross" | "ema_cross" | "rsi_cross" | "volume_spike"
	Direction    string  `json:"direction,omitempty"` // "crosses_above" | "crosses_below"
	FastPeriod   int     `json:"fast_period,omitempty"`
	SlowPeriod   int     `json:"slow_period,omitempty"`
	RSIPeriod    int     `json:"rsi_period,omitempty"`
	RSIThreshold float64 `json:"rsi_threshold,omitempty"`
	VolumeWindow int     `json:"volume_window,omitempty"`
	ZThreshold   float64 `json:"z_threshold,omitempty"`
}

// IndicatorWire is the optional indicator-exit block.
type IndicatorWire struct {
	Enabled bool                `json:"enabled"`
	Rules   []IndicatorRuleWire `json:"rules"`
	Mode    string              `json:"mode,omitempty"` // "ANY" | "ALL", default ANY
}

// ExitPlanWire is the JSON wire schema of spec §6.1.
type ExitPlanWire struct {
	Ladder                     *LadderWire    `json:"ladder,omitempty"`
	Trailing                   *TrailingWire  `json:"trailing,omitempty"`
	Indicator                  *IndicatorWire `json:"indicator,omitempty"`
	MaxHoldMs                  int64          `json:"max_hold_ms,omitempty"`
	MinHoldCandlesForIndicator int            `json:"min_hold_candles_for_indicator,omitempty"`
}

// field reports a single validation violation as "path: reason".
func field(path, reason string) error {
	return fmt.Errorf("%s: %s", path, reason)
}

// Validate rejects unknown combinations, negative bps, out-of-range
// fractions and empty enabled blocks (spec §6.1). It accumulates every
// violation rather than stopping at the first.
func (p ExitPlanWire) Validate() error {
	var err error

	if p.Ladder != nil && p.Ladder.Enabled {
		if len(p.Ladder.Levels) == 0 {
			err = multierr.Append(err, field("ladder.levels", "enabled ladder must have at least one level"))
		}
		var fractionSum float64
		for i, l := range p.Ladder.Levels {
			path := fmt.Sprintf("ladder.levels[%d]", i)
			switch l.Kind {
			case "multiple":
				if l.Multiple <= 0 {
					err = multierr.Append(err, field(path+".multiple", "must be >0"))
				}
			case "pct":
				// pct may be any real number (can express a level below p0 in principle)
			default:
				err = multierr.Append(err, field(path+".kind", fmt.Sprintf("unknown kind %q", l.Kind)))
			}
			if l.Fraction < 0 || l.Fraction > 1 {
				err = multierr.Append(err, field(path+".fraction", "must be in [0,1]"))
			}
			fractionSum += l.Fraction
		}
		_ = fractionSum // normalisation (not rejection) happens in Normalize
	}

	if p.Trailing != nil && p.Trailing.Enabled {
		if p.Trailing.TrailBps <= 0 {
			err = multierr.Append(err, field("trailing.trail_bps", "must be >0"))
		}
		if p.Trailing.HasHardStopBps && p.Trailing.HardStopBps <= 0 {
			err = multierr.Append(err, field("trailing.hard_stop_bps", "must be >0 when present"))
		}
		if p.Trailing.Activation != nil {
			switch p.Trailing.Activation.Kind {
			case "multiple":
				if p.Trailing.Activation.Multiple <= 0 {
					err = multierr.Append(err, field("trailing.activation.multiple", "must be >0"))
				}
			case "pct":
			default:
				err = multierr.Append(err, field("trailing.activation.kind", fmt.Sprintf("unknown kind %q", p.Trailing.Activation.Kind)))
			}
		}
		switch p.Trailing.IntrabarPolicy {
		case "", "STOP_FIRST", "TP_FIRST", "HIGH_THEN_LOW", "LOW_THEN_HIGH":
		default:
			err = multierr.Append(err, field("trailing.intrabar_policy", fmt.Sprintf("unknown policy %q", p.Trailing.IntrabarPolicy)))
		}
	}

	if p.Indicator != nil && p.Indicator.Enabled {
		if len(p.Indicator.Rules) == 0 {
			err = multierr.Append(err, field("indicator.rules", "enabled indicator block must have at least one rule"))
		}
		for i, r := range p.Indicator.Rules {
			path := fmt.Sprintf("indicator.rules[%d]", i)
			switch r.Kind {
			case "ichimoku_cross":
			case "ema_cross":
				if r.FastPeriod <= 0 || r.SlowPeriod <= 0 {
					err = multierr.Append(err, field(path, "ema_cross requires positive fast_period and slow_period"))
				}
				if r.FastPeriod >= r.SlowPeriod && r.FastPeriod > 0 && r.SlowPeriod > 0 {
					err = multierr.Append(err, field(path, "ema_cross requires fast_period < slow_period"))
				}
			case "rsi_cross":
				if r.RSIPeriod <= 0 {
					err = multierr.Append(err, field(path+".rsi_period", "must be >0"))
				}
			case "volume_spike":
				if r.VolumeWindow <= 0 {
					err = multierr.Append(err, field(path+".volume_window", "must be >0"))
				}
				if r.ZThreshold <= 0 {
					err = multierr.Append(err, field(path+".z_threshold", "must be >0"))
				}
			default:
				err = multierr.Append(err, field(path+".kind", fmt.Sprintf("unknown kind %q", r.Kind)))
			}
			switch r.Direction {
			case "", "crosses_above", "crosses_below":
			default:
				err = multierr.Append(err, field(path+".direction", fmt.Sprintf("unknown direction %q", r.Direction)))
			}
		}
		switch p.Indicator.Mode {
		case "", "ANY", "ALL":
		default:
			err = multierr.Append(err, field("indicator.mode", fmt.Sprintf("unknown mode %q", p.Indicator.Mode)))
		}
	}

	if p.MaxHoldMs < 0 {
		err = multierr.Append(err, field("max_hold_ms", "must be >0 when present"))
	}
	if p.MinHoldCandlesForIndicator < 0 {
		err = multierr.Append(err, field("min_hold_candles_for_indicator", "must be >=0"))
	}

	return err
}

func parseIntrabarPolicy(s string) types.IntrabarPolicy {
	switch s {
	case "TP_FIRST":
		return types.TPFirst
	case "HIGH_THEN_LOW":
		return types.HighThenLow
	case "LOW_THEN_HIGH":
		return types.LowThenHigh
	default: // "" or "STOP_FIRST"
		return types.StopFirst
	}
}

func levelLabel(l LadderLevelWire) string {
	if l.Kind == "multiple" {
		return trimTrailingZeros(l.Multiple) + "x"
	}
	return trimTrailingZeros(l.Pct*100) + "pct"
}

func trimTrailingZeros(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}

// DecodeExitPlanWire parses an ExitPlanWire from r, rejecting any field
// not present in the schema (spec §6.1 "rejects unknown fields"). Combined
// with Validate/NormalizeExitPlan this gives the decode -> validate ->
// normalise pipeline the round-trip property in §8 assumes.
func DecodeExitPlanWire(r io.Reader) (ExitPlanWire, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var w ExitPlanWire
	if err := dec.Decode(&w); err != nil {
		return ExitPlanWire{}, fmt.Errorf("decode exit plan: %w", err)
	}
	return w, nil
}

// DecodeExitPlanWireBytes is a convenience wrapper over
// DecodeExitPlanWire for callers holding an already-materialised payload.
func DecodeExitPlanWireBytes(data []byte) (ExitPlanWire, error) {
	return DecodeExitPlanWire(bytes.NewReader(data))
}

// NormalizeExitPlan validates and converts the wire plan into the internal
// representation the simulator operates on: levels sorted ascending by
// absolute target price, fractions clamped/normalised, string tags
// replaced by small integer enums so the hot path dispatches on ints
// rather than string comparisons (spec §9).
func NormalizeExitPlan(p0 float64, w ExitPlanWire) (types.ExitPlan, error) {
	if err := w.Validate(); err != nil {
		return types.ExitPlan{}, err
	}

	var plan types.ExitPlan

	if w.Ladder != nil && w.Ladder.Enabled {
		levels := make([]types.LadderLevel, 0, len(w.Ladder.Levels))
		var sum float64
		for _, l := range w.Ladder.Levels {
			sum += l.Fraction
		}
		scale := 1.0
		if sum > 1.001 {
			scale = 1.0 / sum
		}
		for _, l := range w.Ladder.Levels {
			kind := types.KindMultiple
			if l.Kind == "pct" {
				kind = types.KindPct
			}
			frac := l.Fraction * scale
			if frac < 0 {
				frac = 0
			}
			if frac > 1 {
				frac = 1
			}
			levels = append(levels, types.LadderLevel{
				Kind:     kind,
				Multiple: l.Multiple,
				Pct:      l.Pct,
				Fraction: frac,
				Label:    levelLabel(l),
			})
		}
		sort.SliceStable(levels, func(i, j int) bool {
			return levels[i].TargetPrice(p0) < levels[j].TargetPrice(p0)
		})
		plan.Ladder = types.LadderSpec{Enabled: true, Levels: levels}
	}

	if w.Trailing != nil && w.Trailing.Enabled {
		ts := types.TrailingSpec{
			Enabled:        true,
			TrailBps:       w.Trailing.TrailBps,
			HasHardStopBps: w.Trailing.HasHardStopBps || w.Trailing.HardStopBps > 0,
			HardStopBps:    w.Trailing.HardStopBps,
			IntrabarPolicy: parseIntrabarPolicy(w.Trailing.IntrabarPolicy),
		}
		if w.Trailing.Activation != nil {
			ts.Activation.Set = true
			if w.Trailing.Activation.Kind == "pct" {
				ts.Activation.Kind = types.KindPct
				ts.Activation.Pct = w.Trailing.Activation.Pct
			} else {
				ts.Activation.Kind = types.KindMultiple
				ts.Activation.Multiple = w.Trailing.Activation.Multiple
			}
		}
		plan.Trailing = ts
	}

	if w.Indicator != nil && w.Indicator.Enabled {
		mode := types.ModeANY
		if w.Indicator.Mode == "ALL" {
			mode = types.ModeALL
		}
		rules := make([]types.IndicatorRule, 0, len(w.Indicator.Rules))
		for _, r := range w.Indicator.Rules {
			kind := types.RuleIchimokuCross
			switch r.Kind {
			case "ema_cross":
				kind = types.RuleEMACross
			case "rsi_cross":
				kind = types.RuleRSICross
			case "volume_spike":
				kind = types.RuleVolumeSpike
			}
			dir := types.CrossesAbove
			if r.Direction == "crosses_below" {
				dir = types.CrossesBelow
			}
			rules = append(rules, types.IndicatorRule{
				Kind:         kind,
				Direction:    dir,
				FastPeriod:   r.FastPeriod,
				SlowPeriod:   r.SlowPeriod,
				RSIPeriod:    r.RSIPeriod,
				RSIThreshold: r.RSIThreshold,
				VolumeWindow: r.VolumeWindow,
				ZThreshold:   r.ZThreshold,
			})
		}
		plan.Indicator = types.IndicatorExitSpec{
			Enabled:                    true,
			Rules:                      rules,
			Mode:                       mode,
			MinHoldCandlesForIndicator: w.MinHoldCandlesForIndicator,
		}
	}

	if w.MaxHoldMs > 0 {
		plan.HasMaxHoldMs = true
		plan.MaxHoldMs = w.MaxHoldMs
	}
	plan.MinHoldCandlesForIndic = w.MinHoldCandlesForIndicator

	return plan, nil
}
