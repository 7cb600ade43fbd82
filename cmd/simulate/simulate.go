// Package simulate provides the simulate command.
package simulate

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/analysis"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

// Command creates the simulate command for writing a synthetic survey file.
func Command(_ *analysis.Env) *cobra.Command {
	sim := &analysis.Simulation{
		Dims:  survey.Dims{Sites: 10, Seasons: 4, Visits: 4},
		Truth: model.Truth{Lambda: 5, Phi: 0.8, Gamma: 2, P: 0.5},
		Seed:  1,
	}
	var output string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a survey file under constant parameters",
		Long: `Simulate counts from the dynamic N-mixture model with constant lambda, phi,
gamma and p, attach the hour, flower abundance and habitat covariates the
built-in variants use, and write the survey as YAML.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := analysis.Simulate(*sim)
			if err != nil {
				return err
			}
			if output == "" {
				return survey.Encode(os.Stdout, ds)
			}
			if err := survey.Save(output, ds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s survey to %s\n", ds.Dims, output)
			return nil
		},
	}

	setupFlags(cmd, sim, &output)

	return cmd
}

func setupFlags(cmd *cobra.Command, sim *analysis.Simulation, output *string) {
	cmd.Flags().IntVar(&sim.Dims.Sites, "sites", sim.Dims.Sites, "Number of sites")
	cmd.Flags().IntVar(&sim.Dims.Seasons, "seasons", sim.Dims.Seasons, "Number of seasons")
	cmd.Flags().IntVar(&sim.Dims.Visits, "visits", sim.Dims.Visits, "Visits per season")
	cmd.Flags().Float64Var(&sim.Truth.Lambda, "lambda", sim.Truth.Lambda, "Mean initial abundance")
	cmd.Flags().Float64Var(&sim.Truth.Phi, "phi", sim.Truth.Phi, "Apparent survival probability")
	cmd.Flags().Float64Var(&sim.Truth.Gamma, "gamma", sim.Truth.Gamma, "Mean recruits per site and season")
	cmd.Flags().Float64Var(&sim.Truth.P, "p", sim.Truth.P, "Detection probability")
	cmd.Flags().Uint64Var(&sim.Seed, "seed", sim.Seed, "Random seed of the simulation")
	cmd.Flags().Float64Var(&sim.Missing, "missing", 0, "Probability that a visit is not surveyed")
	cmd.Flags().StringVarP(output, "output", "o", "", "Write the survey to this file instead of stdout")
}
