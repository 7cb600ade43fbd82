package observability

import "github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"

// GetLogger returns the observability logger. It follows logger.SetGlobal.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
