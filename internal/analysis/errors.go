package analysis

import "github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"

// ErrCategoricalStandardize is returned when a categorical covariate is
// named for standardization.
var ErrCategoricalStandardize = errors.NewStd("categorical covariates cannot be standardized")

func analysisError(err error, category errors.ErrorCategory, key string, value any) error {
	return errors.New(err).
		Component("analysis").
		Category(category).
		Context(key, value).
		Build()
}
