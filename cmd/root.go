package cmd

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/cmd/archive"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/cmd/compare"
	configcmd "github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/cmd/config"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/cmd/fit"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/cmd/flags"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/cmd/simulate"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/analysis"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/buildinfo"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/conf"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/datastore"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/observability"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/observability/metrics"
)

// session holds what PersistentPreRunE starts and PersistentPostRunE stops.
type session struct {
	info    *buildinfo.Context
	env     *analysis.Env
	log     *logger.CentralLogger
	archive datastore.Interface
	quit    chan struct{}
	wg      sync.WaitGroup
}

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	rt := &session{env: &analysis.Env{}, info: info}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "nmix",
		Short:         "Dynamic N-mixture abundance models fitted by MCMC",
		Version:       info.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(info.String() + "\n")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	flags.AddGlobal(rootCmd)

	subcommands := []*cobra.Command{
		fit.Command(rt.env),
		compare.Command(rt.env),
		simulate.Command(rt.env),
		archive.Command(rt.env),
		configcmd.Command(rt.env),
		versionCommand(info),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Commands that must work without a loadable configuration
		if cmd.Annotations[flags.SkipSetup] != "" {
			return nil
		}
		v, err := conf.NewViper(configFile)
		if err != nil {
			return err
		}
		if err := flags.Bind(v, cmd.Flags()); err != nil {
			return err
		}
		settings, err := conf.Load(v)
		if err != nil {
			return err
		}
		rt.env.Settings = settings
		if err := rt.start(); err != nil {
			_ = rt.stop()
			return err
		}
		return nil
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return rt.stop()
	}

	return rootCmd
}

// start installs the logger and brings up the metrics endpoint and the
// archive when they are enabled.
func (rt *session) start() error {
	settings := rt.env.Settings
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	// Logs go to stderr so reports own stdout.
	central, err := logger.NewCentralLoggerWithConsole(&settings.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(central)
	rt.log = central
	log := central.Module("main")
	log.Debug("starting", logger.String("version", rt.info.Version()), logger.String("build_date", rt.info.BuildDate()))

	rt.quit = make(chan struct{})
	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		errors.AddErrorHook(m.ErrorHook())
		endpoint, err := observability.NewEndpoint(settings.Metrics, m)
		if err != nil {
			return err
		}
		if err := endpoint.Start(&rt.wg, rt.quit); err != nil {
			return err
		}
		rt.env.Metrics = m
	}

	if settings.Archive.Enabled {
		var recorder metrics.Recorder
		if rt.env.Metrics != nil {
			recorder = rt.env.Metrics.Datastore
		}
		store := datastore.New(settings.Archive, recorder)
		if err := store.Open(); err != nil {
			return err
		}
		rt.archive = store
		rt.env.Archive = store
		log.Debug("archive opened", logger.String("path", settings.Archive.Path))
	}
	return nil
}

// stop shuts down in reverse order of start. It is safe to call when start
// failed part way.
func (rt *session) stop() error {
	var errs []error
	if rt.quit != nil {
		close(rt.quit)
		rt.wg.Wait()
		rt.quit = nil
	}
	if rt.archive != nil {
		if err := rt.archive.Close(); err != nil {
			errs = append(errs, err)
		}
		rt.archive = nil
	}
	errors.ClearErrorHooks()
	if rt.log != nil {
		if err := rt.log.Close(); err != nil {
			errs = append(errs, err)
		}
		rt.log = nil
	}
	return errors.Join(errs...)
}

func versionCommand(info *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
		},
	}
	cmd.Annotations = map[string]string{flags.SkipSetup: "true"}
	return cmd
}
