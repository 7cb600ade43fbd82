package analysis

import (
	"context"
	"fmt"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/conf"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/datastore"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/observability"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/posterior"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

// Env carries what every analysis needs.
type Env struct {
	Settings *conf.Settings
	Metrics  *observability.Metrics // nil disables publishing
	Archive  datastore.Interface    // nil disables archiving
}

// Prepare standardizes the configured covariates and backfills missing
// covariate slots with the placeholder. Counts are left untouched.
func Prepare(ds *survey.Dataset, settings conf.ModelSettings) (*survey.Dataset, error) {
	for _, name := range settings.Standardize {
		c, ok := ds.Covariate(name)
		if !ok {
			return nil, analysisError(fmt.Errorf("cannot standardize unknown covariate %q", name),
				errors.CategoryNotFound, "covariate", name)
		}
		if c.Categorical {
			return nil, analysisError(fmt.Errorf("%w: %q", ErrCategoricalStandardize, name),
				errors.CategoryValidation, "covariate", name)
		}
	}
	if len(settings.Standardize) > 0 {
		ds = ds.Standardize(settings.Standardize...)
	}
	if ds.HasMissingCovariates() {
		GetLogger().Info("backfilling missing covariate values",
			logger.Float64("placeholder", settings.Placeholder))
		ds = ds.Backfill(settings.Placeholder)
	}
	return ds, nil
}

// Load reads and prepares the dataset at path.
func (e *Env) Load(path string) (*survey.Dataset, error) {
	ds, err := survey.Load(path)
	if err != nil {
		return nil, err
	}
	GetLogger().Debug("dataset loaded",
		logger.String("path", path),
		logger.String("dims", ds.Dims.String()),
		logger.Int("observed", ds.Counts.ObservedCount()))
	return Prepare(ds, e.Settings.Model)
}

func (e *Env) options() mcmc.Options {
	opts := e.Settings.Sampler
	if e.Metrics != nil {
		opts.Metrics = e.Metrics.Sampler
	}
	return opts
}

// FitDataset compiles spec against a prepared dataset, samples it and
// reduces the fit. The result is published and archived when Env has
// somewhere to send it.
func (e *Env) FitDataset(ctx context.Context, spec model.Spec, ds *survey.Dataset) (*posterior.Result, error) {
	m, err := model.Compile(spec, ds)
	if err != nil {
		return nil, err
	}
	fit, err := mcmc.Run(ctx, m, e.options())
	if err != nil {
		return nil, err
	}
	res, err := posterior.Analyze(fit, e.Settings.Diagnostics)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithRunID(ctx, fit.RunID.String())

	if !res.Selection.Converged {
		GetLogger().WithContext(ctx).Warn("chains did not converge",
			logger.String("model", spec.Name),
			logger.Any("unconverged", res.Selection.Table.Unconverged(e.Settings.Diagnostics.Threshold)))
	}
	if e.Metrics != nil {
		e.Metrics.PublishResult(res)
	}
	if e.Archive != nil {
		if _, err := e.Archive.Save(ctx, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Fit fits the configured model variant to the dataset at path.
func (e *Env) Fit(ctx context.Context, path string) (*posterior.Result, error) {
	spec, err := e.Settings.Model.Spec()
	if err != nil {
		return nil, err
	}
	ds, err := e.Load(path)
	if err != nil {
		return nil, err
	}
	return e.FitDataset(ctx, spec, ds)
}

// Compare fits each named built-in variant to the dataset at path, one
// after another, and ranks them by DIC. No names means every variant.
func (e *Env) Compare(ctx context.Context, path string, variants []string) ([]posterior.Ranking, map[string]*posterior.Result, error) {
	if len(variants) == 0 {
		variants = model.VariantNames()
	}
	specs := make([]model.Spec, 0, len(variants))
	for _, name := range variants {
		spec, err := model.Variant(name)
		if err != nil {
			return nil, nil, err
		}
		spec.Priors = e.Settings.Model.Priors
		specs = append(specs, spec)
	}

	ds, err := e.Load(path)
	if err != nil {
		return nil, nil, err
	}

	results := make(map[string]*posterior.Result, len(specs))
	for _, spec := range specs {
		GetLogger().Info("fitting variant", logger.String("model", spec.Name))
		res, err := e.FitDataset(ctx, spec, ds)
		if err != nil {
			return nil, nil, fmt.Errorf("model %s: %w", spec.Name, err)
		}
		results[spec.Name] = res
	}
	return posterior.Compare(results), results, nil
}
