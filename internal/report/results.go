package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/datastore"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/posterior"
)

// WriteResult writes the posterior summary, convergence diagnostics and
// per-season abundance of one analyzed fit.
func WriteResult(w io.Writer, format Format, res *posterior.Result) error {
	if format == FormatTable {
		status := "converged"
		if !res.Selection.Converged {
			status = warnStyle.Render("not converged")
		}
		if _, err := fmt.Fprintf(w, "model %s  run %s  chains %s  %s  DIC %s (pD %s)\n\n",
			res.Model(), res.Fit.RunID, ints(res.Selection.Chains), status,
			num(res.Score.DIC, 2), num(res.Score.PD, 2)); err != nil {
			return err
		}
	}
	return render(w, format, summaryGrid(res.Summary), diagnosticsGrid(res), abundanceGrid(res.Abundance))
}

func summaryGrid(t posterior.Table) grid {
	g := grid{title: "Posterior summary", headers: []string{"parameter", "mean", "sd", "2.5%", "97.5%"}}
	for _, r := range t {
		g.rows = append(g.rows, []string{r.Name, num(r.Mean, 4), num(r.SD, 4), num(r.Lower, 4), num(r.Upper, 4)})
	}
	return g
}

func diagnosticsGrid(res *posterior.Result) grid {
	g := grid{title: "Convergence", headers: []string{"parameter", "rhat", "upper ci", "ess"}}
	for _, r := range res.Selection.Table {
		g.rows = append(g.rows, []string{r.Name, num(r.Rhat, 3), num(r.UpperCI, 3), num(r.ESS, 0)})
	}
	return g
}

func abundanceGrid(rows []posterior.SeasonRow) grid {
	g := grid{title: "Mean abundance per site", headers: []string{"season", "mean", "2.5%", "97.5%"}}
	for _, r := range rows {
		g.rows = append(g.rows, []string{strconv.Itoa(r.Season), num(r.Mean, 3), num(r.Lower, 3), num(r.Upper, 3)})
	}
	return g
}

// WriteRankings writes a DIC comparison, best model first.
func WriteRankings(w io.Writer, format Format, rankings []posterior.Ranking) error {
	g := grid{title: "Model comparison", headers: []string{"model", "DIC", "delta DIC", "pD", "max rhat", "converged"}}
	for _, r := range rankings {
		g.rows = append(g.rows, []string{
			r.Model, num(r.DIC, 2), num(r.DeltaDIC, 2), num(r.PD, 2), num(r.MaxRhat, 3), strconv.FormatBool(r.Converged),
		})
	}
	return render(w, format, g)
}

// WriteRuns lists archived fits.
func WriteRuns(w io.Writer, format Format, runs []datastore.FitRun) error {
	g := grid{title: "Archived fits", headers: []string{"run", "model", "sites x seasons x visits", "DIC", "converged", "created"}}
	for _, r := range runs {
		g.rows = append(g.rows, []string{
			r.RunID,
			r.Model,
			fmt.Sprintf("%d x %d x %d", r.Sites, r.Seasons, r.Visits),
			num(r.DIC, 2),
			strconv.FormatBool(r.Converged),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return render(w, format, g)
}

// WriteRun writes one archived fit with its rows.
func WriteRun(w io.Writer, format Format, run *datastore.FitRun) error {
	if format == FormatTable {
		if _, err := fmt.Fprintf(w, "model %s  run %s  seed %d  chains %s  DIC %s (pD %s)\n\n",
			run.Model, run.RunID, run.SeedValue(), ints(run.Selected()), num(run.DIC, 2), num(run.PD, 2)); err != nil {
			return err
		}
	}

	summary := grid{title: "Posterior summary", headers: []string{"parameter", "mean", "sd", "2.5%", "97.5%"}}
	for _, r := range run.Summaries {
		summary.rows = append(summary.rows, []string{r.Name, num(r.Mean, 4), num(r.SD, 4), num(r.Lower, 4), num(r.Upper, 4)})
	}
	rhat := grid{title: "Convergence", headers: []string{"parameter", "rhat", "upper ci", "ess"}}
	for _, r := range run.Rhats {
		rhat.rows = append(rhat.rows, []string{r.Name, num(r.RhatValue(), 3), num(r.UpperCIValue(), 3), num(r.ESSValue(), 0)})
	}
	abundance := grid{title: "Mean abundance per site", headers: []string{"season", "mean", "2.5%", "97.5%"}}
	for _, r := range run.Abundances {
		abundance.rows = append(abundance.rows, []string{strconv.Itoa(r.Season), num(r.Mean, 3), num(r.Lower, 3), num(r.Upper, 3)})
	}
	return render(w, format, summary, rhat, abundance)
}

// WritePrediction writes a covariate response curve.
func WritePrediction(w io.Writer, format Format, sweep posterior.Sweep, points []posterior.Point) error {
	g := grid{
		title:   fmt.Sprintf("%s response to %s", sweep.Process.Intercept(), sweep.Covariate),
		headers: []string{sweep.Covariate, "mean", "2.5%", "97.5%"},
	}
	for _, p := range points {
		g.rows = append(g.rows, []string{num(p.X, 3), num(p.Mean, 4), num(p.Lower, 4), num(p.Upper, 4)})
	}
	return render(w, format, g)
}
