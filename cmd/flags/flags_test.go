package flags

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindOverridesOnlyChangedFlags(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{Use: "fit"}
	AddGlobal(cmd)
	AddSampler(cmd)
	AddModel(cmd, true)
	AddDiagnostics(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--chains", "5", "--log-level", "debug", "--standardize", "hour,flower_abundance"}))

	v := viper.New()
	v.SetDefault("sampler.chains", 3)
	v.SetDefault("sampler.thin", 5)
	v.SetDefault("logging.console.level", "info")
	require.NoError(t, Bind(v, cmd.Flags()))

	assert.Equal(t, 5, v.GetInt("sampler.chains"))
	assert.Equal(t, 5, v.GetInt("sampler.thin"), "unset flags keep the configured value")
	assert.Equal(t, "debug", v.GetString("logging.default_level"))
	assert.Equal(t, "debug", v.GetString("logging.console.level"))
	assert.Equal(t, []string{"hour", "flower_abundance"}, v.GetStringSlice("model.standardize"))
}

func TestKeysHaveFlags(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{Use: "all"}
	AddGlobal(cmd)
	AddSampler(cmd)
	AddModel(cmd, true)
	AddDiagnostics(cmd)
	require.NoError(t, cmd.ParseFlags(nil))
	for name := range Keys {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
