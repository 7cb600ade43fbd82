// Package diagnostics measures convergence of a finished fit: the
// Gelman-Rubin potential scale reduction factor, effective sample sizes and
// a deterministic election of a convergent subset of chains.
package diagnostics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
)

const (
	// DefaultThreshold is the R-hat at or below which a quantity is
	// considered converged.
	DefaultThreshold = 1.1
	// DefaultConfidence is the level of the R-hat upper confidence limit.
	DefaultConfidence = 0.95
)

var (
	// ErrUnequalChains is returned when traces differ in length.
	ErrUnequalChains = errors.NewStd("chains have unequal lengths")
	// ErrTooFewChains is returned when fewer than two chains are given.
	ErrTooFewChains = errors.NewStd("at least two chains are required")
	// ErrTooFewDraws is returned when chains hold fewer than two draws.
	ErrTooFewDraws = errors.NewStd("at least two draws per chain are required")
)

// GetLogger returns the diagnostics package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("diagnostics")
}

// Result is a potential scale reduction factor with its upper confidence
// limit.
type Result struct {
	PointEst float64
	UpperCI  float64
}

func inputError(err error, context string) error {
	return errors.New(fmt.Errorf("%w: %s", err, context)).
		Component("diagnostics").
		Category(errors.CategoryValidation).
		Build()
}

// Rhat computes the Gelman-Rubin diagnostic of one quantity from its traces,
// one per chain, following the corrected estimator of Brooks and Gelman
// (1998) with the degrees-of-freedom adjustment used by coda's gelman.diag.
// Traces that are constant and identical across chains give 1.
func Rhat(chains [][]float64, confidence float64) (Result, error) {
	m := len(chains)
	if m < 2 {
		return Result{}, inputError(ErrTooFewChains, fmt.Sprintf("got %d", m))
	}
	n := len(chains[0])
	for k, c := range chains {
		if len(c) != n {
			return Result{}, inputError(ErrUnequalChains, fmt.Sprintf("chain %d has %d draws, chain 0 has %d", k, len(c), n))
		}
	}
	if n < 2 {
		return Result{}, inputError(ErrTooFewDraws, fmt.Sprintf("got %d", n))
	}
	if !(confidence > 0 && confidence < 1) {
		return Result{}, errors.Newf("confidence %v outside (0, 1)", confidence).
			Component("diagnostics").
			Category(errors.CategoryValidation).
			Build()
	}

	means := make([]float64, m)
	vars := make([]float64, m)
	sqMeans := make([]float64, m)
	for k, c := range chains {
		means[k], vars[k] = stat.MeanVariance(c, nil)
		sqMeans[k] = means[k] * means[k]
	}

	fm, fn := float64(m), float64(n)
	w := stat.Mean(vars, nil)
	b := fn * stat.Variance(means, nil)
	if w == 0 {
		if b == 0 {
			return Result{PointEst: 1, UpperCI: 1}, nil
		}
		inf := math.Inf(1)
		return Result{PointEst: inf, UpperCI: inf}, nil
	}

	muhat := stat.Mean(means, nil)
	varW := stat.Variance(vars, nil) / fm
	varB := 2 * b * b / (fm - 1)
	covWB := (fn / fm) * (stat.Covariance(vars, sqMeans, nil) - 2*muhat*stat.Covariance(vars, means, nil))

	growth := 1 + 1/fm
	v := (fn-1)*w/fn + growth*b/fn
	varV := ((fn-1)*(fn-1)*varW + growth*growth*varB + 2*(fn-1)*growth*covWB) / (fn * fn)

	dfAdj := 1.0
	if varV > 0 {
		dfV := 2 * v * v / varV
		dfAdj = (dfV + 3) / (dfV + 1)
	}

	fixed := (fn - 1) / fn
	random := growth * (1 / fn) * (b / w)
	q := fQuantile((1+confidence)/2, fm-1, varW, w)

	return Result{
		PointEst: math.Sqrt(dfAdj * (fixed + random)),
		UpperCI:  math.Sqrt(dfAdj * (fixed + q*random)),
	}, nil
}

// fQuantile returns the p quantile of F(df1, 2w²/varW). When the within
// variances agree exactly the denominator degrees of freedom are infinite
// and F reduces to a scaled chi-squared.
func fQuantile(p, df1, varW, w float64) float64 {
	if varW <= 0 {
		return distuv.ChiSquared{K: df1}.Quantile(p) / df1
	}
	return distuv.F{D1: df1, D2: 2 * w * w / varW}.Quantile(p)
}
