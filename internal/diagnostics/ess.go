package diagnostics

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// autocorrelation returns the normalized autocorrelation of x at lags
// 0..len(x)-1, computed through a zero-padded FFT. A constant trace returns
// nil.
func autocorrelation(x []float64) []float64 {
	n := len(x)
	mean := stat.Mean(x, nil)
	padded := make([]float64, 2*n)
	for i, v := range x {
		padded[i] = v - mean
	}

	fft := fourier.NewFFT(len(padded))
	coeff := fft.Coefficients(nil, padded)
	for i, c := range coeff {
		a := cmplx.Abs(c)
		coeff[i] = complex(a*a, 0)
	}
	acov := fft.Sequence(nil, coeff)
	if acov[0] <= 0 {
		return nil
	}
	rho := make([]float64, n)
	for k := range rho {
		rho[k] = acov[k] / acov[0]
	}
	return rho
}

// chainESS is the effective size of a single trace using Geyer's initial
// positive sequence estimator of the integrated autocorrelation time.
func chainESS(x []float64) float64 {
	n := len(x)
	rho := autocorrelation(x)
	if rho == nil {
		return 0
	}
	tau := -1.0
	for k := 0; k+1 < n; k += 2 {
		pair := rho[k] + rho[k+1]
		if pair <= 0 {
			break
		}
		tau += 2 * pair
	}
	if tau <= 0 {
		return float64(n)
	}
	return float64(n) / tau
}

// EffectiveSize returns the effective sample size of the pooled draws: the
// sum of the per-chain estimates. Constant traces contribute zero.
func EffectiveSize(chains [][]float64) float64 {
	var ess float64
	for _, c := range chains {
		if len(c) < 2 {
			continue
		}
		ess += chainESS(c)
	}
	return ess
}
