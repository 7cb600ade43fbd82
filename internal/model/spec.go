package model

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
)

// Effects lists, per process, the covariates whose coefficients are free.
// Every other applicable covariate keeps its coefficient fixed at zero.
type Effects map[Process][]string

// Enabled reports whether covariate is free for process p.
func (e Effects) Enabled(p Process, covariate string) bool {
	return slices.Contains(e[p], covariate)
}

// Clone returns a deep copy.
func (e Effects) Clone() Effects {
	out := make(Effects, len(e))
	for p, names := range e {
		out[p] = slices.Clone(names)
	}
	return out
}

// String renders effects in the ParseEffects format, processes in parameter order.
func (e Effects) String() string {
	var parts []string
	for _, p := range Processes {
		if len(e[p]) == 0 {
			continue
		}
		parts = append(parts, p.Intercept()+"="+strings.Join(e[p], ","))
	}
	return strings.Join(parts, ";")
}

// ParseEffects parses "p=hour,flower_abundance;phi=habitat_type". Processes
// may be named by intercept (lambda, phi, gamma, p) or by process name.
func ParseEffects(s string) (Effects, error) {
	effects := Effects{}
	s = strings.TrimSpace(s)
	if s == "" {
		return effects, nil
	}
	for _, clause := range strings.Split(s, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		name, list, ok := strings.Cut(clause, "=")
		if !ok {
			return nil, errors.Newf("invalid effect clause %q: expected process=covariate[,covariate]", clause).
				Component("model").
				Category(errors.CategoryValidation).
				Build()
		}
		p, err := ParseProcess(name)
		if err != nil {
			return nil, err
		}
		for _, cov := range strings.Split(list, ",") {
			cov = strings.TrimSpace(cov)
			if cov == "" || effects.Enabled(p, cov) {
				continue
			}
			effects[p] = append(effects[p], cov)
		}
	}
	return effects, nil
}

// Priors holds the hyper-parameters of the prior distributions. Probability
// intercepts are Uniform(0, 1), rate intercepts Uniform(0, max) and every
// regression coefficient Normal(0, CoefSD) on its link scale.
type Priors struct {
	LambdaMax float64 `yaml:"lambdamax" mapstructure:"lambdamax" json:"lambda_max"`
	GammaMax  float64 `yaml:"gammamax" mapstructure:"gammamax" json:"gamma_max"`
	CoefSD    float64 `yaml:"coefsd" mapstructure:"coefsd" json:"coef_sd"`
}

// DefaultPriors returns the weakly informative defaults.
func DefaultPriors() Priors {
	return Priors{LambdaMax: 100, GammaMax: 100, CoefSD: 2}
}

// Validate checks that every bound is positive.
func (p Priors) Validate() error {
	if p.LambdaMax <= 0 || p.GammaMax <= 0 || p.CoefSD <= 0 {
		return errors.Newf("invalid priors %+v: bounds and coefficient sd must be positive", p).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Spec is a named model variant.
type Spec struct {
	Name    string
	Effects Effects
	Priors  Priors
}

// Validate checks the spec in isolation; covariate names are checked by Compile.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.Newf("model spec must be named").
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	for p := range s.Effects {
		if p < 0 || p >= numProcesses {
			return errors.Newf("model %q has effects for unknown process %d", s.Name, int(p)).
				Component("model").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return s.Priors.Validate()
}

func (s Spec) String() string {
	if len(s.Effects) == 0 {
		return s.Name
	}
	return fmt.Sprintf("%s(%s)", s.Name, s.Effects)
}

// Covariate names used by the built-in variants.
const (
	CovHour                = "hour"
	CovFlowerAbundance     = "flower_abundance"
	CovHabitatType         = "habitat_type"
	CovMeanFlowerAbundance = "mean_flower_abundance"
)

// Null has constant lambda, phi, gamma and p.
func Null() Spec {
	return Spec{Name: "null", Effects: Effects{}, Priors: DefaultPriors()}
}

// Time lets detection depend on the hour of the visit and flower abundance.
func Time() Spec {
	return Spec{
		Name:    "time",
		Effects: Effects{Detection: {CovHour, CovFlowerAbundance}},
		Priors:  DefaultPriors(),
	}
}

// Habitat lets survival and recruitment depend on habitat type.
func Habitat() Spec {
	return Spec{
		Name:    "habitat",
		Effects: Effects{Survival: {CovHabitatType}, Recruitment: {CovHabitatType}},
		Priors:  DefaultPriors(),
	}
}

// Flower lets survival and recruitment depend on mean flower abundance.
func Flower() Spec {
	return Spec{
		Name:    "flower",
		Effects: Effects{Survival: {CovMeanFlowerAbundance}, Recruitment: {CovMeanFlowerAbundance}},
		Priors:  DefaultPriors(),
	}
}

var variants = map[string]func() Spec{
	"null":    Null,
	"time":    Time,
	"habitat": Habitat,
	"flower":  Flower,
}

// VariantNames returns the built-in variant names in sorted order.
func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Variant returns a built-in variant by name.
func Variant(name string) (Spec, error) {
	build, ok := variants[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Spec{}, errors.Newf("unknown model variant %q: expected one of %s", name, strings.Join(VariantNames(), ", ")).
			Component("model").
			Category(errors.CategoryNotFound).
			Build()
	}
	return build(), nil
}
