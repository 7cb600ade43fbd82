package posterior

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
)

// Sweep names the covariate varied along Grid for one process. Grid values
// are in the covariate's raw units even when it was standardized for the
// fit; those of a categorical covariate are level codes.
type Sweep struct {
	Process   model.Process
	Covariate string
	Grid      []float64
}

// Point is one x of a predictive curve on the natural scale of the process.
type Point struct {
	X     float64
	Mean  float64
	Lower float64
	Upper float64
}

// Grid returns n evenly spaced values from lo to hi inclusive. n < 2 returns
// just lo.
func Grid(lo, hi float64, n int) []float64 {
	if n < 2 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Predict maps every pooled draw through the process's inverse link at each
// grid value, holding the other covariates of the process at their observed
// means, and summarizes pointwise.
func Predict(fit *mcmc.Fit, chains []int, sweep Sweep) ([]Point, error) {
	m := fit.Model
	found := false
	for _, c := range m.Columns(sweep.Process) {
		if c.Covariate == sweep.Covariate {
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Newf("covariate %q does not enter %s", sweep.Covariate, sweep.Process).
			Component("posterior").
			Category(errors.CategoryNotFound).
			Context("process", sweep.Process.String()).
			Build()
	}
	if len(sweep.Grid) == 0 {
		return nil, errors.Newf("empty prediction grid").
			Component("posterior").
			Category(errors.CategoryValidation).
			Build()
	}

	selected, err := fit.Select(chains)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, c := range selected {
		total += c.Len()
	}
	if total == 0 {
		return nil, emptyError(sweep.Covariate)
	}

	out := make([]Point, len(sweep.Grid))
	values := make([]float64, 0, total)
	at := make(map[string]float64, 1)
	for g, x := range sweep.Grid {
		at[sweep.Covariate] = x
		values = values[:0]
		for _, c := range selected {
			for k := range c.Len() {
				values = append(values, m.PredictAt(sweep.Process, c.Draw(k), at))
			}
		}
		lo, hi := interval(values)
		out[g] = Point{X: x, Mean: stat.Mean(values, nil), Lower: lo, Upper: hi}
	}
	return out, nil
}
