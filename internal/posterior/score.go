package posterior

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
)

// FitScore is the deviance information criterion of a fit, with the
// effective number of parameters estimated as half the deviance variance.
type FitScore struct {
	MeanDeviance float64
	PD           float64
	DIC          float64
}

// DIC scores the pooled deviance of the selected chains.
func DIC(fit *mcmc.Fit, chains []int) (FitScore, error) {
	dev, err := fit.Pooled(mcmc.DevianceName, chains)
	if err != nil {
		return FitScore{}, err
	}
	if len(dev) == 0 {
		return FitScore{}, emptyError(mcmc.DevianceName)
	}
	mean := stat.Mean(dev, nil)
	pd := 0.0
	if len(dev) > 1 {
		pd = stat.Variance(dev, nil) / 2
	}
	return FitScore{MeanDeviance: mean, PD: pd, DIC: mean + pd}, nil
}

// Ranking is one row of a model comparison.
type Ranking struct {
	Model     string
	DIC       float64
	DeltaDIC  float64
	PD        float64
	MaxRhat   float64
	Converged bool
}

// Compare ranks results by DIC, lowest first; equal scores sort by name.
// DeltaDIC is the distance to the best model.
func Compare(results map[string]*Result) []Ranking {
	out := make([]Ranking, 0, len(results))
	for name, r := range results {
		out = append(out, Ranking{
			Model:     name,
			DIC:       r.Score.DIC,
			PD:        r.Score.PD,
			MaxRhat:   r.Selection.Table.MaxRhat(),
			Converged: r.Selection.Converged,
		})
	}
	slices.SortFunc(out, func(a, b Ranking) int {
		return cmp.Or(cmp.Compare(a.DIC, b.DIC), cmp.Compare(a.Model, b.Model))
	})
	for i := range out {
		out[i].DeltaDIC = out[i].DIC - out[0].DIC
	}
	return out
}
