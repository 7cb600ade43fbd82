package posterior

import (
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/diagnostics"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
)

// Result is everything reported about one fitted model. Fit keeps every
// chain; the reductions use only Selection.Chains.
type Result struct {
	Fit       *mcmc.Fit
	Selection diagnostics.Selection
	Score     FitScore
	Summary   Table
	Abundance []SeasonRow
}

// Model returns the fitted model's name.
func (r *Result) Model() string { return r.Fit.Model.Name() }

// Analyze elects convergent chains under policy and reduces them.
func Analyze(fit *mcmc.Fit, policy diagnostics.Policy) (*Result, error) {
	sel, err := diagnostics.SelectChains(fit, policy)
	if err != nil {
		return nil, err
	}
	r := &Result{Fit: fit, Selection: sel}
	if r.Score, err = DIC(fit, sel.Chains); err != nil {
		return nil, err
	}
	if r.Summary, err = Summarize(fit, sel.Chains, nil); err != nil {
		return nil, err
	}
	if r.Abundance, err = SeasonAbundance(fit, sel.Chains); err != nil {
		return nil, err
	}

	GetLogger().Info("posterior summarized",
		logger.String("run_id", fit.RunID.String()),
		logger.String("model", fit.Model.Name()),
		logger.Any("chains", sel.Chains),
		logger.Bool("converged", sel.Converged),
		logger.Float64("dic", r.Score.DIC))
	return r, nil
}
