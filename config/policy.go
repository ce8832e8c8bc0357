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

// DecodePolicyWire parses a PolicyWire from r, rejecting any field not
// present in the schema (spec §6.3, same "rejects unknown fields"
// contract as ExitPlanWire).
func DecodePolicyWire(r io.Reader) (PolicyWire, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var p PolicyWire
	if err := dec.Decode(&p); err != nil {
		return PolicyWire{}, fmt.Errorf("decode policy: %w", err)
	}
	return p, nil
}

// DecodePolicyWireBytes is a convenience wrapper over DecodePolicyWire for
// callers holding an already-materialised payload.
func DecodePolicyWireBytes(data []byte) (PolicyWire, error) {
	return DecodePolicyWire(bytes.NewReader(data))
}

// PolicyKind discriminates the five policy shapes of spec §4.4/§6.3.
type PolicyKind int

const (
	PolicyFixedStop PolicyKind = iota
	PolicyTimeStop
	PolicyTrailingStop
	PolicyLadder
	PolicyCombo
)

// LadderLevelSpec is one entry of a Ladder policy's levels (spec §6.3).
type LadderLevelSpec struct {
	Multiple float64 `json:"multiple"`
	Fraction float64 `json:"fraction"`
}

// PolicyWire is the tagged-union wire format of spec §6.3. Exactly one of
// the kind-specific groups of fields is populated per Kind, mirroring the
// discriminated-union approach spec §9 calls for (no class hierarchy,
// dispatch on the Kind tag).
type PolicyWire struct {
	Kind string `json:"kind"`

	// fixed_stop (stopPct is also the ladder's optional hard stop)
	StopPct       float64 `json:"stopPct,omitempty"`
	TakeProfitPct float64 `json:"takeProfitPct,omitempty"`

	// time_stop
	HoldMs int64 `json:"holdMs,omitempty"`

	// trailing_stop
	ActivationPct float64 `json:"activationPct,omitempty"`
	TrailPct      float64 `json:"trailPct,omitempty"`
	HardStopPct   float64 `json:"hardStopPct,omitempty"`

	// ladder
	Levels []LadderLevelSpec `json:"levels,omitempty"`

	// combo
	Parts []PolicyWire `json:"parts,omitempty"`
}

// Validate checks a policy against spec §6.3's field ranges, recursing
// into combo parts. Violations accumulate via multierr.
func (p PolicyWire) Validate() error {
	var err error
	switch p.Kind {
	case "fixed_stop":
		if p.StopPct <= 0 || p.StopPct >= 1 {
			err = multierr.Append(err, field("stopPct", "must be in (0,1)"))
		}
		if p.TakeProfitPct < 0 {
			err = multierr.Append(err, field("takeProfitPct", "must be >=0 when present"))
		}
	case "time_stop":
		if p.HoldMs <= 0 {
			err = multierr.Append(err, field("holdMs", "must be >0"))
		}
	case "trailing_stop":
		if p.ActivationPct <= 0 {
			err = multierr.Append(err, field("activationPct", "must be >0"))
		}
		if p.TrailPct <= 0 || p.TrailPct >= 1 {
			err = multierr.Append(err, field("trailPct", "must be in (0,1)"))
		}
		if p.HardStopPct < 0 || p.HardStopPct >= 1 {
			err = multierr.Append(err, field("hardStopPct", "must be in [0,1) when present"))
		}
	case "ladder":
		if len(p.Levels) == 0 {
			err = multierr.Append(err, field("levels", "ladder policy requires at least one level"))
		}
		for i, l := range p.Levels {
			path := fmt.Sprintf("levels[%d]", i)
			if l.Multiple <= 1 {
				err = multierr.Append(err, field(path+".multiple", "must be >1"))
			}
			if l.Fraction <= 0 || l.Fraction > 1 {
				err = multierr.Append(err, field(path+".fraction", "must be in (0,1]"))
			}
		}
		if p.StopPct < 0 || p.StopPct >= 1 {
			err = multierr.Append(err, field("stopPct", "must be in [0,1) when present"))
		}
	case "combo":
		if len(p.Parts) == 0 {
			err = multierr.Append(err, field("parts", "combo requires at least one part"))
		}
		for i, part := range p.Parts {
			if part.Kind == "combo" {
				err = multierr.Append(err, field(fmt.Sprintf("parts[%d]", i), "nested combo is not allowed"))
				continue
			}
			if e := part.Validate(); e != nil {
				err = multierr.Append(err, fmt.Errorf("parts[%d]: %w", i, e))
			}
		}
	default:
		err = multierr.Append(err, field("kind", fmt.Sprintf("unknown kind %q", p.Kind)))
	}
	return err
}

// ToExitPlan serialises a validated policy into the normalised exit plan
// the simulator consumes (spec §4.4: "each [policy] serialising to an exit
// plan"). Combo merges field-by-field, concatenating and re-sorting ladder
// levels.
func (p PolicyWire) ToExitPlan(p0 float64) (types.ExitPlan, error) {
	if err := p.Validate(); err != nil {
		return types.ExitPlan{}, err
	}
	var plan types.ExitPlan
	mergePolicyInto(&plan, p0, p)
	sort.SliceStable(plan.Ladder.Levels, func(i, j int) bool {
		return plan.Ladder.Levels[i].TargetPrice(p0) < plan.Ladder.Levels[j].TargetPrice(p0)
	})
	return plan, nil
}

func mergePolicyInto(plan *types.ExitPlan, p0 float64, p PolicyWire) {
	switch p.Kind {
	case "fixed_stop":
		plan.Trailing.Enabled = true
		plan.Trailing.HasHardStopBps = true
		plan.Trailing.HardStopBps = p.StopPct * 10000
		plan.Trailing.IntrabarPolicy = types.StopFirst
		if p.TakeProfitPct > 0 {
			plan.Ladder.Enabled = true
			plan.Ladder.Levels = append(plan.Ladder.Levels, types.LadderLevel{
				Kind:     types.KindPct,
				Pct:      p.TakeProfitPct,
				Fraction: 1,
				Label:    trimTrailingZeros(p.TakeProfitPct*100) + "pct",
			})
		}
	case "time_stop":
		plan.HasMaxHoldMs = true
		plan.MaxHoldMs = p.HoldMs
	case "trailing_stop":
		plan.Trailing.Enabled = true
		plan.Trailing.TrailBps = p.TrailPct * 10000
		plan.Trailing.Activation = types.Activation{Set: true, Kind: types.KindPct, Pct: p.ActivationPct}
		plan.Trailing.IntrabarPolicy = types.StopFirst
		if p.HardStopPct > 0 {
			plan.Trailing.HasHardStopBps = true
			plan.Trailing.HardStopBps = p.HardStopPct * 10000
		}
	case "ladder":
		plan.Ladder.Enabled = true
		for _, l := range p.Levels {
			plan.Ladder.Levels = append(plan.Ladder.Levels, types.LadderLevel{
				Kind:     types.KindMultiple,
				Multiple: l.Multiple,
				Fraction: l.Fraction,
				Label:    trimTrailingZeros(l.Multiple) + "x",
			})
		}
		if p.StopPct > 0 {
			plan.Trailing.Enabled = true
			plan.Trailing.HasHardStopBps = true
			plan.Trailing.HardStopBps = p.StopPct * 10000
			plan.Trailing.IntrabarPolicy = types.StopFirst
		}
	case "combo":
		for _, part := range p.Parts {
			mergePolicyInto(plan, p0, part)
		}
	}
}
