// Package config provides commands for writing and inspecting settings.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/cmd/flags"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/analysis"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/conf"
)

// Command creates the config command with its init and show subcommands.
func Command(env *analysis.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or show the configuration",
	}
	cmd.AddCommand(initCommand(), showCommand(env))
	return cmd
}

func initCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file holding the default settings",
		Long:  `Write the default settings as YAML. Without a path the file goes to the first default config directory.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				var err error
				if path, err = conf.DefaultConfigFile(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
			}
			if err := conf.SaveYAMLConfig(path, conf.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Annotations = map[string]string{flags.SkipSetup: "true"}
	return cmd
}

func showCommand(env *analysis.Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings after file, environment and flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(env.Settings); err != nil {
				return fmt.Errorf("error marshaling settings to YAML: %w", err)
			}
			return enc.Close()
		},
	}
}
