// Package model describes the dynamic N-mixture model: which covariates drive
// which process, the priors on every scalar parameter, and the exact
// log-density contributions of the latent abundance chain and the counts.
package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

// Process is one of the four sub-models of the dynamic N-mixture model.
type Process int

const (
	// Abundance is initial abundance, N[i,1] ~ Poisson(lambda).
	Abundance Process = iota
	// Survival thins N[i,t-1] into survivors, S ~ Binomial(N[i,t-1], phi).
	Survival
	// Recruitment adds new individuals, G ~ Poisson(gamma).
	Recruitment
	// Detection thins N[i,t] into counts, y ~ Binomial(N[i,t], p).
	Detection

	numProcesses = 4
)

// Processes lists every process in parameter order.
var Processes = [numProcesses]Process{Abundance, Survival, Recruitment, Detection}

var processNames = [numProcesses]string{"abundance", "survival", "recruitment", "detection"}

var interceptNames = [numProcesses]string{"lambda", "phi", "gamma", "p"}

func (p Process) String() string {
	if p < 0 || p >= numProcesses {
		return fmt.Sprintf("Process(%d)", int(p))
	}
	return processNames[p]
}

// Intercept returns the name of the process' baseline parameter.
func (p Process) Intercept() string { return interceptNames[p] }

// Link returns the link function mapping the natural-scale parameter to its
// linear predictor.
func (p Process) Link() Link {
	switch p {
	case Survival, Detection:
		return LinkLogit
	default:
		return LinkLog
	}
}

// Levels returns the covariate levels that can vary the process. Abundance is
// per site; survival and recruitment are per site and season; detection can
// additionally vary by visit.
func (p Process) Levels() []survey.Level {
	switch p {
	case Abundance:
		return []survey.Level{survey.LevelSite}
	case Survival, Recruitment:
		return []survey.Level{survey.LevelSite, survey.LevelSeason}
	default:
		return []survey.Level{survey.LevelSite, survey.LevelSeason, survey.LevelObservation}
	}
}

// ParseProcess accepts either a process name or its intercept name.
func ParseProcess(s string) (Process, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Processes {
		if s == processNames[p] || s == interceptNames[p] {
			return p, nil
		}
	}
	return 0, errors.Newf("unknown process %q: expected one of lambda, phi, gamma, p", s).
		Component("model").
		Category(errors.CategoryValidation).
		Build()
}

// MarshalText implements encoding.TextMarshaler.
func (p Process) MarshalText() ([]byte, error) {
	return []byte(p.Intercept()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Process) UnmarshalText(text []byte) error {
	parsed, err := ParseProcess(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Link maps a natural-scale parameter to the real line.
type Link int

const (
	LinkIdentity Link = iota
	LinkLog
	LinkLogit
)

func (l Link) String() string {
	switch l {
	case LinkLog:
		return "log"
	case LinkLogit:
		return "logit"
	default:
		return "identity"
	}
}

// Apply maps a linear predictor to the natural scale (the inverse link).
func (l Link) Apply(eta float64) float64 {
	switch l {
	case LinkLog:
		return math.Exp(eta)
	case LinkLogit:
		if eta >= 0 {
			return 1 / (1 + math.Exp(-eta))
		}
		e := math.Exp(eta)
		return e / (1 + e)
	default:
		return eta
	}
}

// Inverse maps a natural-scale value to the linear predictor scale.
func (l Link) Inverse(mu float64) float64 {
	switch l {
	case LinkLog:
		return math.Log(mu)
	case LinkLogit:
		return math.Log(mu) - math.Log1p(-mu)
	default:
		return mu
	}
}

// ParseLink parses a link name.
func ParseLink(s string) (Link, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "identity", "":
		return LinkIdentity, nil
	case "log":
		return LinkLog, nil
	case "logit", "logistic":
		return LinkLogit, nil
	default:
		return 0, errors.Newf("unknown link %q", s).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
}
