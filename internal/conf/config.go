// Package conf loads and validates nmix settings from a YAML file, NMIX_*
// environment variables and command line flags.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/diagnostics"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
)

const (
	// ConfigName is the base name of the configuration file.
	ConfigName = "nmix"
	// CustomVariant names a model whose effects come from the effects setting.
	CustomVariant = "custom"
)

// Settings is the complete configuration of a run.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Sampler     mcmc.Options         `yaml:"sampler" mapstructure:"sampler"`
	Model       ModelSettings        `yaml:"model" mapstructure:"model"`
	Diagnostics diagnostics.Policy   `yaml:"diagnostics" mapstructure:"diagnostics"`
	Logging     logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics     MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Archive     ArchiveSettings      `yaml:"archive" mapstructure:"archive"`
}

// ModelSettings selects the model variant and its data preparation.
type ModelSettings struct {
	Variant     string       `yaml:"variant" mapstructure:"variant"`         // null, time, habitat or flower
	Effects     string       `yaml:"effects" mapstructure:"effects"`         // overrides the variant effects, e.g. "p=hour;phi=habitat_type"
	Priors      model.Priors `yaml:"priors" mapstructure:"priors"`           // prior bounds and coefficient sd
	Placeholder float64      `yaml:"placeholder" mapstructure:"placeholder"` // value written into missing covariate entries
	Standardize []string     `yaml:"standardize" mapstructure:"standardize"` // continuous covariates centred and scaled before fitting
}

// Spec resolves the configured variant. A non-empty effects override
// replaces the variant's effects and names the model CustomVariant.
func (m ModelSettings) Spec() (model.Spec, error) {
	spec, err := model.Variant(m.Variant)
	if err != nil {
		return model.Spec{}, err
	}
	if m.Effects != "" {
		effects, err := model.ParseEffects(m.Effects)
		if err != nil {
			return model.Spec{}, err
		}
		spec.Name, spec.Effects = CustomVariant, effects
	}
	spec.Priors = m.Priors
	return spec, spec.Validate()
}

// MetricsSettings controls the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"` // host:port of /metrics
}

// ArchiveSettings controls the SQLite fit archive.
type ArchiveSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// NewViper returns a viper instance with defaults and environment bindings.
// When configFile is empty the file nmix.yaml is searched in the working
// directory and the default config paths.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaultConfig(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			v.AddConfigPath(path)
		}
	}

	if err := bindEnvVars(v); err != nil {
		GetLogger().Warn("ignoring invalid environment overrides", logger.Error(err))
	}
	return v, nil
}

// Load reads the configuration file known to v, if any, and decodes and
// validates the settings. A missing file in the search paths is not an
// error; an explicitly named file that does not exist is.
func Load(v *viper.Viper) (*Settings, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, configError(fmt.Errorf("error reading config file: %w", err))
		}
		GetLogger().Debug("no config file found, using defaults")
	} else {
		GetLogger().Debug("config file loaded", logger.String("path", v.ConfigFileUsed()))
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, configError(fmt.Errorf("error unmarshaling config into struct: %w", err))
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, configError(fmt.Errorf("error validating settings: %w", err))
	}
	return settings, nil
}

// Default returns the settings produced by the defaults alone.
func Default() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		panic(fmt.Sprintf("conf: defaults do not decode: %v", err))
	}
	return settings
}

// SaveYAMLConfig writes settings to configPath through a temporary file in
// the same directory and a rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, ConfigName+"-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
