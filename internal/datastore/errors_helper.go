package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation string, elapsed time.Duration, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Timing(operation, elapsed)

	for i := 0; i+1 < len(context); i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder.Build()
}

// notFoundError reports a run id that is not in the archive.
func notFoundError(runID string) error {
	return errors.Newf("fit %s not found in archive", runID).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("run_id", runID).
		Build()
}

// validationError creates a validation error
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// categorizeError maps an error to the metrics error_type label.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.IsNotFound(err):
		return "not_found"
	case errors.IsCategory(err, errors.CategoryValidation):
		return "validation"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return "duplicate"
	default:
		return "database"
	}
}
