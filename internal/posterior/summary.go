// Package posterior reduces the retained draws of selected chains to
// summary tables, predictive curves, season abundance and model scores.
package posterior

import (
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
)

// Credible interval bounds.
const (
	LowerQuantile = 0.025
	UpperQuantile = 0.975
)

// GetLogger returns the posterior package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("posterior")
}

// Row summarizes the pooled draws of one quantity.
type Row struct {
	Name  string
	Mean  float64
	SD    float64
	Lower float64 // 2.5% quantile
	Upper float64 // 97.5% quantile
}

// Table is a posterior summary in the order the names were requested.
type Table []Row

// Lookup returns the row of name. It scans linearly because rows keep
// request order rather than sorted order.
func (t Table) Lookup(name string) (Row, bool) {
	for _, r := range t {
		if r.Name == name {
			return r, true
		}
	}
	return Row{}, false
}

// interval returns the empirical LowerQuantile and UpperQuantile of x.
func interval(x []float64) (lower, upper float64) {
	s := slices.Clone(x)
	slices.Sort(s)
	return stat.Quantile(LowerQuantile, stat.Empirical, s, nil), stat.Quantile(UpperQuantile, stat.Empirical, s, nil)
}

func emptyError(what string) error {
	return errors.Newf("no draws to summarize for %s", what).
		Component("posterior").
		Category(errors.CategorySummary).
		Build()
}

// Summarize pools the draws of every name over the selected chains. A nil
// names list summarizes every parameter and the deviance.
func Summarize(fit *mcmc.Fit, chains []int, names []string) (Table, error) {
	if names == nil {
		for _, p := range fit.Model.Params() {
			names = append(names, p.Name)
		}
		names = append(names, mcmc.DevianceName)
	}
	out := make(Table, 0, len(names))
	for _, name := range names {
		draws, err := fit.Pooled(name, chains)
		if err != nil {
			return nil, err
		}
		if len(draws) == 0 {
			return nil, emptyError(name)
		}
		mean, sd := stat.MeanStdDev(draws, nil)
		if len(draws) == 1 {
			sd = 0
		}
		lo, hi := interval(draws)
		out = append(out, Row{Name: name, Mean: mean, SD: sd, Lower: lo, Upper: hi})
	}
	return out, nil
}
