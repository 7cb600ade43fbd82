// Package fit provides the fit command.
package fit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/cmd/flags"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/analysis"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/posterior"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/report"
)

type options struct {
	format  string
	output  string
	predict []string
}

// Command creates the fit command for fitting one model to a survey file.
func Command(env *analysis.Env) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "fit [data.yaml]",
		Short: "Fit a dynamic N-mixture model to survey counts",
		Long: `Fit the configured model variant to a survey file, elect convergent chains
and report parameter summaries, R-hat diagnostics, DIC and mean abundance
per season.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, env, opts, args[0])
		},
	}

	setupFlags(cmd, opts)

	return cmd
}

func setupFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "Output format: table, csv")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringArrayVar(&opts.predict, "predict", nil,
		`Response curve "process:covariate:from:to:points" in the covariate's own units, e.g. "p:hour:6:12:25"`)
	flags.AddSampler(cmd)
	flags.AddModel(cmd, true)
	flags.AddDiagnostics(cmd)
}

func run(cmd *cobra.Command, env *analysis.Env, opts *options, path string) error {
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	sweeps := make([]posterior.Sweep, 0, len(opts.predict))
	for _, s := range opts.predict {
		sweep, err := ParseSweep(s)
		if err != nil {
			return err
		}
		sweeps = append(sweeps, sweep)
	}

	res, err := env.Fit(cmd.Context(), path)
	if err != nil {
		return err
	}

	w, closeOutput, err := report.Output(opts.output)
	if err != nil {
		return err
	}
	defer closeOutput()

	if err := report.WriteResult(w, format, res); err != nil {
		return err
	}
	for _, sweep := range sweeps {
		points, err := posterior.Predict(res.Fit, res.Selection.Chains, sweep)
		if err != nil {
			return err
		}
		if err := report.WritePrediction(w, format, sweep, points); err != nil {
			return err
		}
	}
	return closeOutput()
}

// ParseSweep parses "process:covariate:from:to:points".
func ParseSweep(s string) (posterior.Sweep, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return posterior.Sweep{}, fmt.Errorf("prediction %q: want process:covariate:from:to:points", s)
	}
	process, err := model.ParseProcess(parts[0])
	if err != nil {
		return posterior.Sweep{}, err
	}
	covariate := strings.TrimSpace(parts[1])
	if covariate == "" {
		return posterior.Sweep{}, fmt.Errorf("prediction %q: empty covariate", s)
	}
	from, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return posterior.Sweep{}, fmt.Errorf("prediction %q: bad lower bound: %w", s, err)
	}
	to, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return posterior.Sweep{}, fmt.Errorf("prediction %q: bad upper bound: %w", s, err)
	}
	points, err := strconv.Atoi(parts[4])
	if err != nil || points < 1 {
		return posterior.Sweep{}, fmt.Errorf("prediction %q: points must be a positive integer", s)
	}
	return posterior.Sweep{Process: process, Covariate: covariate, Grid: posterior.Grid(from, to, points)}, nil
}
