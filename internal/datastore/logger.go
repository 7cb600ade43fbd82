// Package datastore archives analyzed fits in SQLite through GORM.
package datastore

import "github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"

// GetLogger returns the datastore logger. It follows logger.SetGlobal.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}
