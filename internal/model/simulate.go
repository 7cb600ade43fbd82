package model

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

// Truth holds constant generative parameter values.
type Truth struct {
	Lambda float64 `yaml:"lambda" json:"lambda"`
	Phi    float64 `yaml:"phi" json:"phi"`
	Gamma  float64 `yaml:"gamma" json:"gamma"`
	P      float64 `yaml:"p" json:"p"`
}

// Validate checks that every value is inside its support.
func (tr Truth) Validate() error {
	if tr.Lambda <= 0 || tr.Gamma <= 0 || tr.Phi <= 0 || tr.Phi >= 1 || tr.P <= 0 || tr.P >= 1 {
		return errors.Newf("invalid truth %+v: lambda, gamma must be > 0 and phi, p in (0, 1)", tr).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Value returns the truth for process p.
func (tr Truth) Value(p Process) float64 {
	switch p {
	case Abundance:
		return tr.Lambda
	case Survival:
		return tr.Phi
	case Recruitment:
		return tr.Gamma
	default:
		return tr.P
	}
}

// Simulate draws a latent abundance chain and a full count tensor from the
// generative process with constant parameters.
func Simulate(d survey.Dims, tr Truth, src rand.Source) (*survey.Counts, *State, error) {
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}
	if err := tr.Validate(); err != nil {
		return nil, nil, err
	}

	counts, err := survey.NewCounts(d)
	if err != nil {
		return nil, nil, err
	}
	st := NewState(d)

	for i := range d.Sites {
		for t := range d.Seasons {
			cell := d.Cell(i, t)
			if t == 0 {
				st.N[cell] = int(distuv.Poisson{Lambda: tr.Lambda, Src: src}.Rand())
			} else {
				prev := st.N[cell-1]
				s := 0
				if prev > 0 {
					s = int(distuv.Binomial{N: float64(prev), P: tr.Phi, Src: src}.Rand())
				}
				g := int(distuv.Poisson{Lambda: tr.Gamma, Src: src}.Rand())
				st.S[cell] = s
				st.N[cell] = s + g
			}
			for j := range d.Visits {
				y := 0
				if n := st.N[cell]; n > 0 {
					y = int(distuv.Binomial{N: float64(n), P: tr.P, Src: src}.Rand())
				}
				if err := counts.Set(i, t, j, y); err != nil {
					return nil, nil, err
				}
			}
		}
	}
	return counts, st, nil
}

// Thin marks each observed slot missing with probability rate, mimicking
// seasons with fewer visits.
func Thin(counts *survey.Counts, rate float64, src rand.Source) *survey.Counts {
	out := counts.Clone()
	if rate <= 0 {
		return out
	}
	rng := rand.New(src)
	d := out.Dims()
	for i := range d.Sites {
		for t := range d.Seasons {
			for j := range d.Visits {
				if rng.Float64() < rate {
					_ = out.SetMissing(i, t, j)
				}
			}
		}
	}
	return out
}
