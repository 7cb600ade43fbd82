package model

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var negInf = math.Inf(-1)

// logPoisson is the Poisson log pmf with the degenerate mu = 0 case handled.
func logPoisson(k int, mu float64) float64 {
	switch {
	case k < 0 || math.IsNaN(mu) || math.IsInf(mu, 0) || mu < 0:
		return negInf
	case mu == 0:
		if k == 0 {
			return 0
		}
		return negInf
	}
	return distuv.Poisson{Lambda: mu}.LogProb(float64(k))
}

// logBinomial is the binomial log pmf with the degenerate p in {0, 1} and
// n = 0 cases handled.
func logBinomial(k, n int, p float64) float64 {
	switch {
	case k < 0 || k > n || math.IsNaN(p) || p < 0 || p > 1:
		return negInf
	case n == 0:
		return 0
	case p == 0:
		if k == 0 {
			return 0
		}
		return negInf
	case p == 1:
		if k == n {
			return 0
		}
		return negInf
	}
	return distuv.Binomial{N: float64(n), P: p}.LogProb(float64(k))
}

// LogInitial is log P(N[i,1] = n | lambda).
func LogInitial(n int, lambda float64) float64 { return logPoisson(n, lambda) }

// LogSurvival is log P(S = s | N[i,t-1] = nPrev, phi).
func LogSurvival(s, nPrev int, phi float64) float64 { return logBinomial(s, nPrev, phi) }

// LogRecruitment is log P(G = g | gamma).
func LogRecruitment(g int, gamma float64) float64 { return logPoisson(g, gamma) }

// LogObservation is log P(y | N, p).
func LogObservation(y, n int, p float64) float64 { return logBinomial(y, n, p) }

// LogPrior returns the log prior density of parameter i at v. Fixed
// parameters have a point mass at zero.
func (m *Model) LogPrior(i int, v float64) float64 {
	p := m.params[i]
	if math.IsNaN(v) {
		return negInf
	}
	if !p.Free {
		if v == 0 {
			return 0
		}
		return negInf
	}
	if p.IsIntercept() {
		if v <= p.Lower || v >= p.Upper {
			return negInf
		}
		return -math.Log(p.Upper - p.Lower)
	}
	return distuv.Normal{Mu: 0, Sigma: m.spec.Priors.CoefSD}.LogProb(v)
}

// LogPriorAll sums LogPrior over the vector.
func (m *Model) LogPriorAll(theta []float64) float64 {
	var lp float64
	for i, v := range theta {
		lp += m.LogPrior(i, v)
		if math.IsInf(lp, -1) {
			return lp
		}
	}
	return lp
}

// LogObservationCell sums the observed-count log likelihood at (site, season)
// given abundance n. Missing visits contribute nothing.
func (m *Model) LogObservationCell(site, season, n int, p []float64) float64 {
	base := m.dims.Slot(site, season, 0)
	var ll float64
	for j := range m.dims.Visits {
		y := m.y[base+j]
		if y < 0 {
			continue
		}
		ll += logBinomial(y, n, p[base+j])
		if math.IsInf(ll, -1) {
			return ll
		}
	}
	return ll
}

// LogTransitionCell is the log density of the latent transition into
// (site, season): initial abundance for season 0, survivors plus recruits
// afterwards.
func (m *Model) LogTransitionCell(site, season int, st *State, r *Rates) float64 {
	if season == 0 {
		return LogInitial(st.Abundance(site, 0), r[Abundance][site])
	}
	cell := m.dims.Cell(site, season)
	s := st.S[cell]
	return LogSurvival(s, st.Abundance(site, season-1), r[Survival][cell]) +
		LogRecruitment(st.N[cell]-s, r[Recruitment][cell])
}

// LogLatent is the complete log density of the latent state.
func (m *Model) LogLatent(st *State, r *Rates) float64 {
	var ll float64
	for i := range m.dims.Sites {
		for t := range m.dims.Seasons {
			ll += m.LogTransitionCell(i, t, st, r)
		}
	}
	return ll
}

// LogObservations is the log likelihood of every observed count.
func (m *Model) LogObservations(st *State, p []float64) float64 {
	var ll float64
	for i := range m.dims.Sites {
		for t := range m.dims.Seasons {
			ll += m.LogObservationCell(i, t, st.Abundance(i, t), p)
		}
	}
	return ll
}

// LogJoint is the unnormalized log posterior of (theta, state).
func (m *Model) LogJoint(theta []float64, st *State, r *Rates) float64 {
	lp := m.LogPriorAll(theta)
	if math.IsInf(lp, -1) {
		return lp
	}
	return lp + m.LogLatent(st, r) + m.LogObservations(st, r[Detection])
}

// Deviance is -2 times the observed-count log likelihood given the latent
// abundance, the quantity JAGS monitors as "deviance".
func (m *Model) Deviance(st *State, p []float64) float64 {
	return -2 * m.LogObservations(st, p)
}

// LogProcess is the log density of every term that depends on the values of
// process p, evaluated with vals in place of the current rates. Samplers use
// it to score a coefficient proposal without touching the other processes.
func (m *Model) LogProcess(p Process, st *State, vals []float64) float64 {
	d := m.dims
	var ll float64
	switch p {
	case Abundance:
		for i := range d.Sites {
			ll += LogInitial(st.Abundance(i, 0), vals[i])
		}
	case Survival:
		for i := range d.Sites {
			for t := 1; t < d.Seasons; t++ {
				cell := d.Cell(i, t)
				ll += LogSurvival(st.S[cell], st.N[cell-1], vals[cell])
			}
		}
	case Recruitment:
		for i := range d.Sites {
			for t := 1; t < d.Seasons; t++ {
				cell := d.Cell(i, t)
				ll += LogRecruitment(st.N[cell]-st.S[cell], vals[cell])
			}
		}
	default:
		return m.LogObservations(st, vals)
	}
	return ll
}
