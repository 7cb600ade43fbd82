// Package analysis runs the nmix pipeline: load a survey, prepare its
// covariates, fit one or more model variants and hand the results to the
// metrics endpoint and the fit archive.
package analysis

import "github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"

// GetLogger returns the package logger. It follows logger.SetGlobal.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
