package diagnostics

import (
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
)

// Row is the convergence record of one monitored quantity.
type Row struct {
	Name    string
	Rhat    float64
	UpperCI float64
	ESS     float64
}

// Table holds one row per monitored quantity, sorted by name.
type Table []Row

// MaxRhat returns the largest point estimate, or NaN for an empty table.
func (t Table) MaxRhat() float64 {
	if len(t) == 0 {
		return math.NaN()
	}
	out := math.Inf(-1)
	for _, r := range t {
		out = max(out, r.Rhat)
	}
	return out
}

// Converged reports whether every point estimate is at or below threshold.
// NaN estimates count as not converged.
func (t Table) Converged(threshold float64) bool {
	for _, r := range t {
		if !(r.Rhat <= threshold) {
			return false
		}
	}
	return true
}

// Unconverged returns the names whose point estimate exceeds threshold.
func (t Table) Unconverged(threshold float64) []string {
	var out []string
	for _, r := range t {
		if !(r.Rhat <= threshold) {
			out = append(out, r.Name)
		}
	}
	return out
}

// Lookup returns the row of name.
func (t Table) Lookup(name string) (Row, bool) {
	i, ok := slices.BinarySearchFunc(t, name, func(r Row, name string) int {
		return strings.Compare(r.Name, name)
	})
	if !ok {
		return Row{}, false
	}
	return t[i], true
}

// Diagnose computes R-hat and effective size of every name over the selected
// chains. A nil names list monitors the free parameters of the model; fixed
// coefficients have no variance and are not informative.
func Diagnose(fit *mcmc.Fit, chains []int, names []string) (Table, error) {
	return diagnose(fit, chains, names, DefaultConfidence)
}

func diagnose(fit *mcmc.Fit, chains []int, names []string, confidence float64) (Table, error) {
	if names == nil {
		names = fit.Model.FreeNames()
	}
	table := make(Table, 0, len(names))
	for _, name := range names {
		traces, err := fit.Traces(name, chains)
		if err != nil {
			return nil, err
		}
		res, err := Rhat(traces, confidence)
		if err != nil {
			return nil, errors.New(err).
				Component("diagnostics").
				Category(errors.CategoryConvergence).
				Context("quantity", name).
				Context("chains", chains).
				Build()
		}
		table = append(table, Row{Name: name, Rhat: res.PointEst, UpperCI: res.UpperCI, ESS: EffectiveSize(traces)})
	}
	slices.SortFunc(table, func(a, b Row) int { return strings.Compare(a.Name, b.Name) })
	return table, nil
}

// ChainDeviance returns the mean retained deviance of every chain of fit,
// indexed like fit.Chains.
func ChainDeviance(fit *mcmc.Fit) []float64 {
	out := make([]float64, len(fit.Chains))
	for i, c := range fit.Chains {
		out[i] = stat.Mean(c.Deviance, nil)
	}
	return out
}

// Policy controls SelectChains.
type Policy struct {
	Threshold  float64  `yaml:"threshold" mapstructure:"threshold"`
	MinChains  int      `yaml:"minchains" mapstructure:"minchains"`
	Confidence float64  `yaml:"confidence" mapstructure:"confidence"`
	Names      []string `yaml:"-" mapstructure:"-"` // nil monitors the free parameters
}

// DefaultPolicy keeps at least two chains and requires R-hat <= 1.1.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, MinChains: 2, Confidence: DefaultConfidence}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	var problem string
	switch {
	case !(p.Threshold >= 1):
		problem = "threshold must be at least 1"
	case p.MinChains < 2:
		problem = "minchains must be at least 2"
	case !(p.Confidence > 0 && p.Confidence < 1):
		problem = "confidence must be in (0, 1)"
	}
	if problem == "" {
		return nil
	}
	return errors.Newf("invalid chain selection policy: %s", problem).
		Component("diagnostics").
		Category(errors.CategoryValidation).
		Context("threshold", p.Threshold).
		Context("minchains", p.MinChains).
		Build()
}

// Selection is the outcome of SelectChains.
type Selection struct {
	Chains    []int // retained chain indexes, ascending
	Dropped   []int // in the order they were removed
	Table     Table // diagnostics over Chains
	Converged bool
}

// SelectChains elects a convergent subset of chains. While any monitored
// R-hat exceeds the threshold and more than MinChains remain, the chain whose
// mean deviance lies farthest from the median of the remaining chains is
// dropped; ties drop the higher index. The election depends only on the
// draws, so it is reproducible. Failing to converge is reported through
// Selection.Converged, not as an error.
func SelectChains(fit *mcmc.Fit, policy Policy) (Selection, error) {
	if err := policy.Validate(); err != nil {
		return Selection{}, err
	}
	log := GetLogger().With(logger.String("run_id", fit.RunID.String()), logger.String("model", fit.Model.Name()))
	deviance := ChainDeviance(fit)
	remaining := fit.AllChains()
	var dropped []int

	for {
		table, err := diagnose(fit, remaining, policy.Names, policy.Confidence)
		if err != nil {
			return Selection{}, err
		}
		converged := table.Converged(policy.Threshold)
		if converged || len(remaining) <= policy.MinChains {
			if !converged {
				log.Warn("chains did not converge",
					logger.Float64("max_rhat", table.MaxRhat()),
					logger.Any("unconverged", table.Unconverged(policy.Threshold)),
					logger.Int("chains", len(remaining)))
			}
			return Selection{Chains: remaining, Dropped: dropped, Table: table, Converged: converged}, nil
		}

		worst := farthestFromMedian(remaining, deviance)
		log.Info("dropping chain",
			logger.Int("chain", worst),
			logger.Float64("mean_deviance", deviance[worst]),
			logger.Float64("max_rhat", table.MaxRhat()))
		dropped = append(dropped, worst)
		remaining = slices.DeleteFunc(remaining, func(c int) bool { return c == worst })
	}
}

// farthestFromMedian returns the chain in remaining (ascending) whose value
// is farthest from their median, preferring the higher index on ties.
func farthestFromMedian(remaining []int, values []float64) int {
	vals := make([]float64, len(remaining))
	for k, c := range remaining {
		vals[k] = values[c]
	}
	med := median(vals)
	worst, dist := -1, -1.0
	for _, c := range remaining {
		if d := math.Abs(values[c] - med); d >= dist {
			worst, dist = c, d
		}
	}
	return worst
}

// median averages the two middle values for even lengths.
func median(x []float64) float64 {
	s := slices.Clone(x)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
