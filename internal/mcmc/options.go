// Package mcmc fits a compiled dynamic N-mixture model with parallel
// Metropolis-within-Gibbs chains.
package mcmc

import (
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/observability/metrics"
)

// GetLogger returns the mcmc package logger. It is fetched from the global
// logger each time so it follows SetGlobal.
func GetLogger() logger.Logger {
	return logger.Global().Module("mcmc")
}

// Options is the sampling schedule of a run.
type Options struct {
	Chains     int    `yaml:"chains" mapstructure:"chains"`
	Iterations int    `yaml:"iterations" mapstructure:"iterations"` // total per chain, burn-in included
	Burnin     int    `yaml:"burnin" mapstructure:"burnin"`
	Thin       int    `yaml:"thin" mapstructure:"thin"`
	Seed       uint64 `yaml:"seed" mapstructure:"seed"`

	MaxParallel   int  `yaml:"maxparallel" mapstructure:"maxparallel"` // 0 runs every chain at once
	InitOffset    int  `yaml:"initoffset" mapstructure:"initoffset"`   // added to max counts for initial N
	Adapt         bool `yaml:"adapt" mapstructure:"adapt"`             // tune proposal scales during burn-in
	ProgressEvery int  `yaml:"progressevery" mapstructure:"progressevery"`

	Metrics metrics.SamplerRecorder `yaml:"-" mapstructure:"-"`
}

// DefaultOptions returns the schedule used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Chains:        3,
		Iterations:    10000,
		Burnin:        1000,
		Thin:          5,
		Seed:          1,
		InitOffset:    2,
		Adapt:         true,
		ProgressEvery: 1000,
	}
}

// Validate checks the schedule before any sampling starts.
func (o Options) Validate() error {
	var problem string
	switch {
	case o.Chains < 1:
		problem = "chains must be at least 1"
	case o.Iterations < 1:
		problem = "iterations must be at least 1"
	case o.Burnin < 0 || o.Burnin >= o.Iterations:
		problem = "burnin must be in [0, iterations)"
	case o.Thin < 1:
		problem = "thin must be at least 1"
	case o.Retained() < 1:
		problem = "schedule retains no samples: lower thin or burnin"
	case o.InitOffset < 1:
		problem = "initoffset must be positive"
	case o.MaxParallel < 0:
		problem = "maxparallel must not be negative"
	case o.ProgressEvery < 0:
		problem = "progressevery must not be negative"
	}
	if problem == "" {
		return nil
	}
	return errors.Newf("invalid sampler options: %s", problem).
		Component("mcmc").
		Category(errors.CategoryValidation).
		Context("chains", o.Chains).
		Context("iterations", o.Iterations).
		Context("burnin", o.Burnin).
		Context("thin", o.Thin).
		Build()
}

// Retained returns the number of samples each chain keeps.
func (o Options) Retained() int {
	if o.Thin < 1 || o.Iterations <= o.Burnin {
		return 0
	}
	return (o.Iterations - o.Burnin) / o.Thin
}

// keep reports whether 0-based iteration it is retained.
func (o Options) keep(it int) bool {
	post := it - o.Burnin + 1
	return post > 0 && post%o.Thin == 0
}

func (o Options) recorder() metrics.SamplerRecorder {
	if o.Metrics == nil {
		return metrics.NoOpRecorder{}
	}
	return o.Metrics
}
