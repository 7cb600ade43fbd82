package conf

import (
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
)

// GetLogger returns the config package logger scoped to the config module.
// The logger is fetched from the global logger each time to ensure it uses
// the current centralized logger (which may be set after package init).
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}

func configError(err error) error {
	return errors.New(err).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Build()
}
