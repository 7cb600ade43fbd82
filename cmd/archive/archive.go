// Package archive provides commands for browsing the fit archive.
package archive

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/analysis"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/datastore"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/report"
)

// Command creates the archive command and its list, show and delete
// subcommands.
func Command(env *analysis.Env) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse fits stored in the SQLite archive",
		Long:  `Archive commands read the SQLite archive named by archive.path. Enable it with --archive or archive.enabled.`,
	}
	cmd.PersistentFlags().StringVarP(&format, "format", "f", "table", "Output format: table, csv")

	cmd.AddCommand(listCommand(env, &format), showCommand(env, &format), deleteCommand(env))
	return cmd
}

func store(env *analysis.Env) (datastore.Interface, error) {
	if env.Archive == nil {
		return nil, errors.Newf("the fit archive is not enabled").
			Component("archive").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return env.Archive, nil
}

func listCommand(env *analysis.Env, format *string) *cobra.Command {
	query := datastore.ListQuery{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived fits, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(*format)
			if err != nil {
				return err
			}
			archive, err := store(env)
			if err != nil {
				return err
			}
			runs, err := archive.List(cmd.Context(), query)
			if err != nil {
				return err
			}
			return report.WriteRuns(cmd.OutOrStdout(), f, runs)
		},
	}
	cmd.Flags().StringVar(&query.Model, "model", "", "Only list fits of this model")
	cmd.Flags().IntVarP(&query.Limit, "limit", "n", datastore.DefaultListLimit, "Maximum number of fits listed")
	return cmd
}

func showCommand(env *analysis.Env, format *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show the stored summaries of one fit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(*format)
			if err != nil {
				return err
			}
			archive, err := store(env)
			if err != nil {
				return err
			}
			run, err := archive.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return report.WriteRun(cmd.OutOrStdout(), f, run)
		},
	}
}

func deleteCommand(env *analysis.Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [run-id]",
		Short: "Delete one fit from the archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := store(env)
			if err != nil {
				return err
			}
			if err := archive.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Deleted fit %s\n", args[0])
			return nil
		},
	}
}
