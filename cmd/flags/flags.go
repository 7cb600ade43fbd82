// Package flags declares the command line flags shared by nmix commands and
// their configuration keys.
package flags

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SkipSetup is the command annotation that skips loading settings and
// starting the logger, metrics and archive.
const SkipSetup = "nmix.skip-setup"

// Keys maps each flag to the configuration keys it overrides. Flags only
// override when set on the command line.
var Keys = map[string][]string{
	"debug":          {"debug"},
	"log-level":      {"logging.default_level", "logging.console.level"},
	"metrics":        {"metrics.enabled"},
	"metrics-listen": {"metrics.listen"},
	"archive":        {"archive.enabled"},
	"archive-path":   {"archive.path"},

	"chains":       {"sampler.chains"},
	"iterations":   {"sampler.iterations"},
	"burnin":       {"sampler.burnin"},
	"thin":         {"sampler.thin"},
	"seed":         {"sampler.seed"},
	"max-parallel": {"sampler.maxparallel"},

	"variant":     {"model.variant"},
	"effects":     {"model.effects"},
	"standardize": {"model.standardize"},
	"placeholder": {"model.placeholder"},

	"threshold":  {"diagnostics.threshold"},
	"min-chains": {"diagnostics.minchains"},
}

// AddGlobal adds the flags every command accepts.
func AddGlobal(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.BoolP("debug", "d", false, "Enable debug output")
	fs.String("log-level", "", "Log level: trace, debug, info, warn, error")
	fs.Bool("metrics", false, "Serve Prometheus metrics while running")
	fs.String("metrics-listen", "", "Metrics listen address (host:port)")
	fs.Bool("archive", false, "Store analyzed fits in the SQLite archive")
	fs.String("archive-path", "", "Path of the SQLite archive")
}

// AddSampler adds the sampling schedule flags.
func AddSampler(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Int("chains", 0, "Number of chains")
	fs.Int("iterations", 0, "Iterations per chain, burn-in included")
	fs.Int("burnin", 0, "Burn-in iterations discarded per chain")
	fs.Int("thin", 0, "Keep every n-th post burn-in draw")
	fs.Uint64("seed", 0, "Base random seed")
	fs.Int("max-parallel", 0, "Maximum chains sampled at once (0 = all)")
}

// AddModel adds the model and data preparation flags.
func AddModel(cmd *cobra.Command, withVariant bool) {
	fs := cmd.Flags()
	if withVariant {
		fs.String("variant", "", "Model variant: null, time, habitat, flower")
		fs.String("effects", "", `Covariate effects overriding the variant, e.g. "p=hour;phi=habitat_type"`)
	}
	fs.StringSlice("standardize", nil, "Continuous covariates to centre and scale")
	fs.Float64("placeholder", 0, "Value written into missing covariate entries")
}

// AddDiagnostics adds the convergence policy flags.
func AddDiagnostics(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64("threshold", 0, "R-hat threshold for convergence")
	fs.Int("min-chains", 0, "Fewest chains chain selection may keep")
}

// Bind binds every known flag present in fs to its configuration keys.
func Bind(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, keys := range Keys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		for _, key := range keys {
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}
	return nil
}
