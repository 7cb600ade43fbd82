// conf/validate.go
package conf

import (
	"fmt"
	"math"
	"net"
	"strings"
	"time"
)

// ValidationError collects every problem found in a settings tree.
type ValidationError struct {
	Errors []string
}

// Error implements the error interface for ValidationError
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := settings.Sampler.Validate(); err != nil {
		ve.Errors = append(ve.Errors, fmt.Sprintf("sampler: %v", err))
	}

	if err := validateModelSettings(&settings.Model); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := settings.Diagnostics.Validate(); err != nil {
		ve.Errors = append(ve.Errors, fmt.Sprintf("diagnostics: %v", err))
	}

	if err := validateLoggingSettings(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(settings.Metrics.Listen); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("metrics: invalid listen address %q: %v", settings.Metrics.Listen, err))
		}
	}

	if settings.Archive.Enabled && strings.TrimSpace(settings.Archive.Path) == "" {
		ve.Errors = append(ve.Errors, "archive: path is required when the archive is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateModelSettings(m *ModelSettings) error {
	var problems []string
	if _, err := m.Spec(); err != nil {
		problems = append(problems, fmt.Sprintf("model: %v", err))
	}
	if math.IsNaN(m.Placeholder) || math.IsInf(m.Placeholder, 0) {
		problems = append(problems, "model: placeholder must be finite")
	}
	seen := make(map[string]bool, len(m.Standardize))
	for _, name := range m.Standardize {
		if name == "" {
			problems = append(problems, "model: empty covariate name in standardize")
			continue
		}
		if seen[name] {
			problems = append(problems, fmt.Sprintf("model: covariate %q listed twice in standardize", name))
		}
		seen[name] = true
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func validateLoggingSettings(settings *Settings) error {
	var problems []string
	check := func(field, level string) {
		if level == "" {
			return
		}
		if err := validateEnvLogLevel(level); err != nil {
			problems = append(problems, fmt.Sprintf("logging: %s %q %v", field, level, err))
		}
	}

	cfg := &settings.Logging
	check("default_level", cfg.DefaultLevel)
	if cfg.Console != nil {
		check("console.level", cfg.Console.Level)
	}
	if cfg.FileOutput != nil {
		check("file_output.level", cfg.FileOutput.Level)
		if cfg.FileOutput.Enabled && cfg.FileOutput.Path == "" {
			problems = append(problems, "logging: file_output.path is required when file output is enabled")
		}
	}
	for module, level := range cfg.ModuleLevels {
		check("module_levels."+module, level)
	}
	if tz := cfg.Timezone; tz != "" && tz != "Local" {
		if _, err := time.LoadLocation(tz); err != nil {
			problems = append(problems, fmt.Sprintf("logging: unknown timezone %q", tz))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
