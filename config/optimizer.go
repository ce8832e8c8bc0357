package config

import (
	"go.uber.org/multierr"
)

// Objective selects how a frontier row's objective score is computed
// (spec §4.5).
type Objective int

const (
	ObjectiveAvgReturn Objective = iota
	ObjectiveMedianReturn
	ObjectiveRiskAdjusted
)

// Constraints gates which grid candidates are kept on the frontier
// (spec §4.5).
type Constraints struct {
	MinSampleSize  int
	MaxStopOutRate float64
	HasMinHitRate  bool
	MinHitRate     float64
	Objective      Objective
}

// Validate checks the constraint ranges.
func (c Constraints) Validate() error {
	var err error
	if c.MinSampleSize < 0 {
		err = multierr.Append(err, field("minSampleSize", "must be >=0"))
	}
	if c.MaxStopOutRate < 0 || c.MaxStopOutRate > 1 {
		err = multierr.Append(err, field("maxStopOutRate", "must be in [0,1]"))
	}
	if c.HasMinHitRate && (c.MinHitRate < 0 || c.MinHitRate > 1) {
		err = multierr.Append(err, field("minHitRate", "must be in [0,1] when present"))
	}
	return err
}

// OptimizerConfig bundles the grid sweep and worker-pool knobs (spec §4.5,
// §5, §9).
type OptimizerConfig struct {
	Constraints      Constraints
	Workers          int  // default: number of cores, spec §5
	CapitalAware     bool // spec §4.5 "capital-aware variant"
	StartingCapital  float64
	PositionSizeFrac float64 // fraction of available pool capital per new position
	MaxConcurrent    int     // max concurrent open positions, capital-aware only
}

// Validate checks the optimizer-level knobs.
func (o OptimizerConfig) Validate() error {
	err := o.Constraints.Validate()
	if o.Workers < 0 {
		err = multierr.Append(err, field("workers", "must be >=0 (0 = default to NumCPU)"))
	}
	if o.CapitalAware {
		if o.StartingCapital <= 0 {
			err = multierr.Append(err, field("startingCapital", "must be >0 for capital-aware runs"))
		}
		if o.PositionSizeFrac <= 0 || o.PositionSizeFrac > 1 {
			err = multierr.Append(err, field("positionSizeFraction", "must be in (0,1]"))
		}
		if o.MaxConcurrent < 0 {
			err = multierr.Append(err, field("maxConcurrent", "must be >=0 (0 = unbounded)"))
		}
	}
	return err
}
