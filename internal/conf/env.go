// env.go - Environment variable configuration and validation for nmix
package conf

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "NMIX_DEBUG", validateEnvBool},

		// Sampler schedule
		{"sampler.chains", "NMIX_SAMPLER_CHAINS", validateEnvPositiveInt},
		{"sampler.iterations", "NMIX_SAMPLER_ITERATIONS", validateEnvPositiveInt},
		{"sampler.burnin", "NMIX_SAMPLER_BURNIN", validateEnvNonNegativeInt},
		{"sampler.thin", "NMIX_SAMPLER_THIN", validateEnvPositiveInt},
		{"sampler.seed", "NMIX_SAMPLER_SEED", validateEnvSeed},
		{"sampler.maxparallel", "NMIX_SAMPLER_MAXPARALLEL", validateEnvNonNegativeInt},
		{"sampler.adapt", "NMIX_SAMPLER_ADAPT", validateEnvBool},

		// Model
		{"model.variant", "NMIX_MODEL_VARIANT", nil},
		{"model.effects", "NMIX_MODEL_EFFECTS", nil},

		// Diagnostics
		{"diagnostics.threshold", "NMIX_DIAGNOSTICS_THRESHOLD", validateEnvThreshold},
		{"diagnostics.minchains", "NMIX_DIAGNOSTICS_MINCHAINS", validateEnvPositiveInt},

		// Logging, metrics and archive
		{"logging.default_level", "NMIX_LOG_LEVEL", validateEnvLogLevel},
		{"metrics.enabled", "NMIX_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "NMIX_METRICS_LISTEN", validateEnvListen},
		{"archive.enabled", "NMIX_ARCHIVE_ENABLED", validateEnvBool},
		{"archive.path", "NMIX_ARCHIVE_PATH", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

func validateEnvSeed(value string) error {
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return fmt.Errorf("must be an unsigned 64-bit integer")
	}
	return nil
}

func validateEnvThreshold(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 1 {
		return fmt.Errorf("must be a number of at least 1")
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("must be one of trace, debug, info, warn, error")
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("must be host:port: %w", err)
	}
	return nil
}
