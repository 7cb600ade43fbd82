package posterior

import (
	"context"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/diagnostics"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

func longTests(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("NMIX_LONG_TESTS") == "" {
		t.Skip("set NMIX_LONG_TESTS=1 to run")
	}
}

// surveyData simulates counts under tr and attaches an observation-level hour
// covariate with no effect on detection and a site-level habitat factor.
func surveyData(t *testing.T, d survey.Dims, tr model.Truth, seed uint64) *survey.Dataset {
	t.Helper()
	src := rand.NewPCG(seed, 11)
	counts, _, err := model.Simulate(d, tr, src)
	require.NoError(t, err)

	hour := make([]float64, d.Slots())
	u := distuv.Uniform{Min: -1, Max: 1, Src: src}
	for i := range hour {
		hour[i] = u.Rand()
	}
	flowers := make([]float64, d.Slots())
	for i := range flowers {
		flowers[i] = u.Rand()
	}
	habitat := make([]float64, d.Sites)
	for i := range habitat {
		habitat[i] = float64(i % 2)
	}
	ds, err := survey.NewDataset(counts,
		&survey.Covariate{Name: model.CovHour, Level: survey.LevelObservation, Values: hour},
		&survey.Covariate{Name: model.CovFlowerAbundance, Level: survey.LevelObservation, Values: flowers},
		&survey.Covariate{Name: model.CovHabitatType, Level: survey.LevelSite, Categorical: true,
			LevelNames: []string{"forest", "grassland"}, Values: habitat},
	)
	require.NoError(t, err)
	return ds
}

func fitModel(t *testing.T, spec model.Spec, ds *survey.Dataset, opts mcmc.Options) *mcmc.Fit {
	t.Helper()
	m, err := model.Compile(spec, ds)
	require.NoError(t, err)
	fit, err := mcmc.Run(context.Background(), m, opts)
	require.NoError(t, err)
	return fit
}

var smallTruth = model.Truth{Lambda: 4, Phi: 0.7, Gamma: 1, P: 0.5}

func smallFit(t *testing.T) *mcmc.Fit {
	t.Helper()
	opts := mcmc.DefaultOptions()
	opts.Chains, opts.Iterations, opts.Burnin, opts.Thin = 3, 300, 100, 2
	return fitModel(t, model.Null(), surveyData(t, survey.Dims{Sites: 5, Seasons: 3, Visits: 3}, smallTruth, 1), opts)
}

func TestGrid(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, Grid(0, 1, 5))
	assert.Equal(t, []float64{3}, Grid(3, 9, 1))
	assert.Equal(t, []float64{-2, 2}, Grid(-2, 2, 2))
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	fit := smallFit(t)
	table, err := Summarize(fit, fit.AllChains(), nil)
	require.NoError(t, err)
	require.Len(t, table, fit.Model.NumParams()+1)
	assert.Equal(t, mcmc.DevianceName, table[len(table)-1].Name)

	for _, r := range table {
		assert.LessOrEqual(t, r.Lower, r.Mean, r.Name)
		assert.LessOrEqual(t, r.Mean, r.Upper, r.Name)
		assert.GreaterOrEqual(t, r.SD, 0.0, r.Name)
	}
	fixed, ok := table.Lookup("p.hour")
	require.True(t, ok)
	assert.Equal(t, Row{Name: "p.hour"}, fixed, "fixed coefficients summarize to zero")

	lambda, ok := table.Lookup("lambda")
	require.True(t, ok)
	draws, err := fit.Pooled("lambda", fit.AllChains())
	require.NoError(t, err)
	assert.InDelta(t, stat.Mean(draws, nil), lambda.Mean, 1e-12)

	subset, err := Summarize(fit, []int{0}, []string{"lambda"})
	require.NoError(t, err)
	require.Len(t, subset, 1)

	_, err = Summarize(fit, fit.AllChains(), []string{"omega"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	_, err = Summarize(fit, []int{7}, nil)
	require.Error(t, err)
}

func TestPredict(t *testing.T) {
	t.Parallel()

	fit := smallFit(t)

	// The habitat effect on detection is fixed at zero in the null variant.
	flat, err := Predict(fit, fit.AllChains(), Sweep{Process: model.Detection, Covariate: model.CovHabitatType, Grid: []float64{0, 1}})
	require.NoError(t, err)
	require.Len(t, flat, 2)
	assert.InDelta(t, flat[0].Mean, flat[1].Mean, 1e-12)
	assert.InDelta(t, 1.0, flat[1].X, 0)

	curve, err := Predict(fit, fit.AllChains(), Sweep{Process: model.Detection, Covariate: model.CovHour, Grid: Grid(-1, 1, 5)})
	require.NoError(t, err)
	require.Len(t, curve, 5)
	for _, pt := range curve {
		assert.LessOrEqual(t, pt.Lower, pt.Upper)
		assert.Greater(t, pt.Mean, 0.0)
		assert.Less(t, pt.Mean, 1.0)
	}

	_, err = Predict(fit, fit.AllChains(), Sweep{Process: model.Abundance, Covariate: model.CovHour, Grid: []float64{0}})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	_, err = Predict(fit, fit.AllChains(), Sweep{Process: model.Detection, Covariate: model.CovHour})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSeasonAbundance(t *testing.T) {
	t.Parallel()

	fit := smallFit(t)
	rows, err := SeasonAbundance(fit, fit.AllChains())
	require.NoError(t, err)
	d := fit.Model.Dims()
	require.Len(t, rows, d.Seasons)
	for season, r := range rows {
		assert.Equal(t, season+1, r.Season)
		assert.LessOrEqual(t, r.Lower, r.Upper)
		assert.LessOrEqual(t, r.Lower, r.Mean)
		assert.GreaterOrEqual(t, r.Upper, r.Mean)

		floor := 0.0
		for i := range d.Sites {
			floor += float64(fit.Model.MaxCount(i, season))
		}
		assert.GreaterOrEqual(t, r.Lower, floor/float64(d.Sites), "every draw respects the counts")
	}
}

func TestDIC(t *testing.T) {
	t.Parallel()

	fit := smallFit(t)
	score, err := DIC(fit, fit.AllChains())
	require.NoError(t, err)
	dev, err := fit.Pooled(mcmc.DevianceName, fit.AllChains())
	require.NoError(t, err)
	mean, variance := stat.MeanVariance(dev, nil)
	assert.InDelta(t, mean, score.MeanDeviance, 1e-9)
	assert.InDelta(t, variance/2, score.PD, 1e-9)
	assert.InDelta(t, score.MeanDeviance+score.PD, score.DIC, 1e-9)
	assert.GreaterOrEqual(t, score.PD, 0.0)
}

func TestCompare(t *testing.T) {
	t.Parallel()

	results := map[string]*Result{
		"null":    {Score: FitScore{DIC: 120, PD: 4}},
		"time":    {Score: FitScore{DIC: 100, PD: 6}, Selection: diagnostics.Selection{Converged: true}},
		"habitat": {Score: FitScore{DIC: 110, PD: 5}},
		"flower":  {Score: FitScore{DIC: 110, PD: 5}},
	}
	ranked := Compare(results)
	require.Len(t, ranked, 4)
	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = r.Model
	}
	assert.Equal(t, []string{"time", "flower", "habitat", "null"}, names)
	assert.InDelta(t, 0.0, ranked[0].DeltaDIC, 0)
	assert.InDelta(t, 10.0, ranked[1].DeltaDIC, 0)
	assert.InDelta(t, 20.0, ranked[3].DeltaDIC, 0)
	assert.True(t, ranked[0].Converged)
	assert.Empty(t, Compare(nil))
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	fit := smallFit(t)
	res, err := Analyze(fit, diagnostics.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, "null", res.Model())
	assert.NotEmpty(t, res.Selection.Chains)
	assert.Len(t, res.Abundance, fit.Model.Dims().Seasons)
	assert.Len(t, res.Summary, fit.Model.NumParams()+1)
	assert.Positive(t, res.Score.DIC)

	_, err = Analyze(fit, diagnostics.Policy{})
	require.Error(t, err)
}

// TestFlatDetectionCurve fits the time variant to data whose detection does
// not depend on hour and checks the predicted curve is nearly flat.
func TestFlatDetectionCurve(t *testing.T) {
	longTests(t)
	t.Parallel()

	ds := surveyData(t, survey.Dims{Sites: 20, Seasons: 4, Visits: 4}, model.Truth{Lambda: 5, Phi: 0.8, Gamma: 2, P: 0.5}, 3)
	opts := mcmc.DefaultOptions()
	opts.Iterations, opts.Burnin, opts.Thin = 6000, 1000, 5
	fit := fitModel(t, model.Time(), ds, opts)

	curve, err := Predict(fit, fit.AllChains(), Sweep{Process: model.Detection, Covariate: model.CovHour, Grid: Grid(-1, 1, 9)})
	require.NoError(t, err)
	for _, pt := range curve {
		assert.InDelta(t, curve[0].Mean, pt.Mean, 0.1, "x=%v", pt.X)
		assert.LessOrEqual(t, pt.Lower, 0.5)
		assert.GreaterOrEqual(t, pt.Upper, 0.5)
	}
}

// TestIntervalCoverage repeats the 10 site x 4 season x 4 visit recovery
// scenario and checks that 95% intervals cover the generating values.
func TestIntervalCoverage(t *testing.T) {
	longTests(t)
	t.Parallel()

	truth := model.Truth{Lambda: 5, Phi: 0.8, Gamma: 2, P: 0.5}
	const trials = 20
	covered, total := 0, 0
	for trial := range trials {
		ds := surveyData(t, survey.Dims{Sites: 10, Seasons: 4, Visits: 4}, truth, uint64(100+trial))
		opts := mcmc.DefaultOptions()
		opts.Seed = uint64(trial + 1)
		fit := fitModel(t, model.Null(), ds, opts)

		table, err := Summarize(fit, fit.AllChains(), []string{"lambda", "phi", "gamma", "p"})
		require.NoError(t, err)
		for _, r := range table {
			p, err := model.ParseProcess(r.Name)
			require.NoError(t, err)
			if want := truth.Value(p); r.Lower <= want && want <= r.Upper {
				covered++
			}
			total++
		}
	}
	assert.GreaterOrEqual(t, float64(covered)/float64(total), 0.9, "covered %d of %d", covered, total)
}
