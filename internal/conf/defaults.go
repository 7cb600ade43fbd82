// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/diagnostics"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	sampler := mcmc.DefaultOptions()
	v.SetDefault("sampler.chains", sampler.Chains)
	v.SetDefault("sampler.iterations", sampler.Iterations)
	v.SetDefault("sampler.burnin", sampler.Burnin)
	v.SetDefault("sampler.thin", sampler.Thin)
	v.SetDefault("sampler.seed", sampler.Seed)
	v.SetDefault("sampler.maxparallel", sampler.MaxParallel)
	v.SetDefault("sampler.initoffset", sampler.InitOffset)
	v.SetDefault("sampler.adapt", sampler.Adapt)
	v.SetDefault("sampler.progressevery", sampler.ProgressEvery)

	priors := model.DefaultPriors()
	v.SetDefault("model.variant", "null")
	v.SetDefault("model.effects", "")
	v.SetDefault("model.priors.lambdamax", priors.LambdaMax)
	v.SetDefault("model.priors.gammamax", priors.GammaMax)
	v.SetDefault("model.priors.coefsd", priors.CoefSD)
	v.SetDefault("model.placeholder", survey.DefaultPlaceholder)
	v.SetDefault("model.standardize", []string{})

	policy := diagnostics.DefaultPolicy()
	v.SetDefault("diagnostics.threshold", policy.Threshold)
	v.SetDefault("diagnostics.minchains", policy.MinChains)
	v.SetDefault("diagnostics.confidence", policy.Confidence)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", false)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "localhost:8090")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.path", "nmix.db")
}
