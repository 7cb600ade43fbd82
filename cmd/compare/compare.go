// Package compare provides the compare command.
package compare

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/cmd/flags"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/analysis"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/report"
)

type options struct {
	variants []string
	format   string
	output   string
	details  bool
}

// Command creates the compare command for ranking model variants by DIC.
func Command(env *analysis.Env) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "compare [data.yaml]",
		Short: "Fit several model variants and rank them by DIC",
		Long: `Fit each named built-in variant to the same survey file with the same
sampling schedule and rank the fits by DIC. Without --variants every
built-in variant is fitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(opts.format)
			if err != nil {
				return err
			}
			rankings, results, err := env.Compare(cmd.Context(), args[0], opts.variants)
			if err != nil {
				return err
			}

			w, closeOutput, err := report.Output(opts.output)
			if err != nil {
				return err
			}
			defer closeOutput()

			if opts.details {
				for _, r := range rankings {
					if err := report.WriteResult(w, format, results[r.Model]); err != nil {
						return err
					}
					if _, err := io.WriteString(w, "\n"); err != nil {
						return fmt.Errorf("failed to write report: %w", err)
					}
				}
			}
			if err := report.WriteRankings(w, format, rankings); err != nil {
				return err
			}
			return closeOutput()
		},
	}

	setupFlags(cmd, opts)

	return cmd
}

func setupFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringSliceVar(&opts.variants, "variants", nil, "Variants to compare: null, time, habitat, flower")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Output format: table, csv")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().BoolVar(&opts.details, "details", false, "Also write the full report of every fit")
	flags.AddSampler(cmd)
	flags.AddModel(cmd, false)
	flags.AddDiagnostics(cmd)
}
