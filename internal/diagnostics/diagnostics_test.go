package diagnostics

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

func normalChains(m, n int, means []float64, seed uint64) [][]float64 {
	src := rand.NewPCG(seed, 1)
	out := make([][]float64, m)
	for k := range out {
		mu := 0.0
		if means != nil {
			mu = means[k]
		}
		dist := distuv.Normal{Mu: mu, Sigma: 1, Src: src}
		out[k] = make([]float64, n)
		for i := range out[k] {
			out[k][i] = dist.Rand()
		}
	}
	return out
}

func ar1(n int, rho float64, seed uint64) []float64 {
	src := rand.NewPCG(seed, 3)
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		out[i] = rho*out[i-1] + noise.Rand()
	}
	return out
}

func TestRhatSameDistribution(t *testing.T) {
	t.Parallel()

	res, err := Rhat(normalChains(4, 2000, nil, 1), DefaultConfidence)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.PointEst, 0.02)
	assert.GreaterOrEqual(t, res.UpperCI, res.PointEst)
	assert.Less(t, res.UpperCI, DefaultThreshold)
}

func TestRhatSeparatedChains(t *testing.T) {
	t.Parallel()

	res, err := Rhat(normalChains(3, 500, []float64{0, 0, 5}, 2), DefaultConfidence)
	require.NoError(t, err)
	assert.Greater(t, res.PointEst, 1.5)
	assert.GreaterOrEqual(t, res.UpperCI, res.PointEst)
}

func TestRhatUpperGrowsWithConfidence(t *testing.T) {
	t.Parallel()

	chains := normalChains(3, 200, []float64{0, 0.2, 0.4}, 4)
	low, err := Rhat(chains, 0.5)
	require.NoError(t, err)
	high, err := Rhat(chains, 0.99)
	require.NoError(t, err)
	assert.InDelta(t, low.PointEst, high.PointEst, 1e-12)
	assert.Greater(t, high.UpperCI, low.UpperCI)
}

func TestRhatConstantTraces(t *testing.T) {
	t.Parallel()

	res, err := Rhat([][]float64{{0, 0, 0}, {0, 0, 0}}, DefaultConfidence)
	require.NoError(t, err)
	assert.Equal(t, Result{PointEst: 1, UpperCI: 1}, res)

	res, err = Rhat([][]float64{{1, 1, 1}, {2, 2, 2}}, DefaultConfidence)
	require.NoError(t, err)
	assert.True(t, math.IsInf(res.PointEst, 1))
}

func TestRhatEqualWithinVariances(t *testing.T) {
	t.Parallel()

	// Both chains have variance 1 exactly, so the F quantile falls back to
	// its chi-squared limit.
	res, err := Rhat([][]float64{{0, 1, 2}, {1, 2, 3}}, DefaultConfidence)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(res.UpperCI))
	assert.GreaterOrEqual(t, res.UpperCI, res.PointEst)
}

func TestRhatInputErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		chains     [][]float64
		confidence float64
		target     error
	}{
		{"one chain", [][]float64{{1, 2, 3}}, 0.95, ErrTooFewChains},
		{"unequal", [][]float64{{1, 2, 3}, {1, 2}}, 0.95, ErrUnequalChains},
		{"one draw", [][]float64{{1}, {2}}, 0.95, ErrTooFewDraws},
		{"bad confidence", [][]float64{{1, 2}, {2, 3}}, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Rhat(tt.chains, tt.confidence)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestEffectiveSize(t *testing.T) {
	t.Parallel()

	iid := normalChains(2, 4000, nil, 5)
	ess := EffectiveSize(iid)
	assert.InDelta(t, 8000, ess, 1600)

	// AR(1) with rho = 0.9 has an integrated autocorrelation time near 19.
	sticky := EffectiveSize([][]float64{ar1(4000, 0.9, 6)})
	assert.Less(t, sticky, 800.0)
	assert.Greater(t, sticky, 50.0)

	assert.Zero(t, EffectiveSize([][]float64{{2, 2, 2, 2}}))
}

func TestTableHelpers(t *testing.T) {
	t.Parallel()

	table := Table{
		{Name: "gamma", Rhat: 1.01},
		{Name: "lambda", Rhat: 1.3},
		{Name: "p", Rhat: math.NaN()},
	}
	assert.InDelta(t, 1.3, table.MaxRhat(), 0)
	assert.False(t, table.Converged(1.1))
	assert.Equal(t, []string{"lambda", "p"}, table.Unconverged(1.1))
	assert.True(t, table[:1].Converged(1.1))
	assert.True(t, math.IsNaN(Table{}.MaxRhat()))

	row, ok := table.Lookup("lambda")
	require.True(t, ok)
	assert.InDelta(t, 1.3, row.Rhat, 0)
	_, ok = table.Lookup("phi")
	assert.False(t, ok)
}

func TestFarthestFromMedian(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		remaining []int
		values    []float64
		want      int
	}{
		{"clear outlier", []int{0, 1, 2}, []float64{100, 101, 140}, 2},
		{"low outlier", []int{0, 1, 2, 3}, []float64{60, 100, 101, 102}, 0},
		{"tie prefers higher index", []int{0, 1, 2}, []float64{90, 100, 110}, 2},
		{"subset", []int{1, 3, 4}, []float64{0, 50, 999, 52, 70}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, farthestFromMedian(tt.remaining, tt.values))
		})
	}
	assert.InDelta(t, 2.5, median([]float64{4, 1, 3, 2}), 0)
	assert.InDelta(t, 3.0, median([]float64{5, 3, 1}), 0)
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultPolicy().Validate())
	for _, p := range []Policy{
		{Threshold: 0.9, MinChains: 2, Confidence: 0.95},
		{Threshold: 1.1, MinChains: 1, Confidence: 0.95},
		{Threshold: 1.1, MinChains: 2, Confidence: 0},
	} {
		assert.Error(t, p.Validate(), "%+v", p)
	}
}

func testFit(t *testing.T, chains int) *mcmc.Fit {
	t.Helper()
	d := survey.Dims{Sites: 5, Seasons: 2, Visits: 3}
	counts, _, err := model.Simulate(d, model.Truth{Lambda: 4, Phi: 0.7, Gamma: 1, P: 0.5}, rand.NewPCG(8, 9))
	require.NoError(t, err)
	ds, err := survey.NewDataset(counts)
	require.NoError(t, err)
	m, err := model.Compile(model.Null(), ds)
	require.NoError(t, err)

	opts := mcmc.DefaultOptions()
	opts.Chains, opts.Iterations, opts.Burnin, opts.Thin = chains, 300, 100, 2
	fit, err := mcmc.Run(context.Background(), m, opts)
	require.NoError(t, err)
	return fit
}

func TestDiagnoseFit(t *testing.T) {
	t.Parallel()

	fit := testFit(t, 3)
	table, err := Diagnose(fit, fit.AllChains(), nil)
	require.NoError(t, err)
	require.Len(t, table, len(fit.Model.FreeNames()))
	for i, r := range table {
		if i > 0 {
			assert.Less(t, table[i-1].Name, r.Name)
		}
		assert.False(t, math.IsNaN(r.Rhat), r.Name)
		assert.Positive(t, r.ESS, r.Name)
	}

	table, err = Diagnose(fit, fit.AllChains(), []string{mcmc.DevianceName, "N[1,2]"})
	require.NoError(t, err)
	assert.Len(t, table, 2)

	_, err = Diagnose(fit, []int{0}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooFewChains)

	_, err = Diagnose(fit, fit.AllChains(), []string{"omega"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	dev := ChainDeviance(fit)
	require.Len(t, dev, 3)
	for _, v := range dev {
		assert.Positive(t, v)
	}
}

func TestSelectChainsIsDeterministic(t *testing.T) {
	t.Parallel()

	fit := testFit(t, 4)
	strict := Policy{Threshold: 1, MinChains: 2, Confidence: 0.95}

	a, err := SelectChains(fit, strict)
	require.NoError(t, err)
	b, err := SelectChains(fit, strict)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Len(t, append(append([]int{}, a.Chains...), a.Dropped...), 4)
	assert.GreaterOrEqual(t, len(a.Chains), 2)
	if !a.Converged {
		assert.Len(t, a.Chains, 2)
	}

	lenient, err := SelectChains(fit, Policy{Threshold: math.Inf(1), MinChains: 2, Confidence: 0.95})
	require.NoError(t, err)
	assert.True(t, lenient.Converged)
	assert.Equal(t, fit.AllChains(), lenient.Chains)
	assert.Empty(t, lenient.Dropped)
}

// TestRhatOnSimulatedSurveys fits the null model to surveys drawn from the
// model itself and expects every free parameter to pass the default threshold.
func TestRhatOnSimulatedSurveys(t *testing.T) {
	if testing.Short() || os.Getenv("NMIX_LONG_TESTS") == "" {
		t.Skip("set NMIX_LONG_TESTS=1 to run")
	}
	t.Parallel()

	truth := model.Truth{Lambda: 5, Phi: 0.8, Gamma: 2, P: 0.5}
	threshold := DefaultPolicy().Threshold
	for trial := range 5 {
		counts, _, err := model.Simulate(survey.Dims{Sites: 10, Seasons: 4, Visits: 4}, truth, rand.NewPCG(uint64(200+trial), 9))
		require.NoError(t, err)
		ds, err := survey.NewDataset(counts)
		require.NoError(t, err)
		m, err := model.Compile(model.Null(), ds)
		require.NoError(t, err)

		opts := mcmc.DefaultOptions()
		opts.Seed = uint64(trial + 1)
		fit, err := mcmc.Run(context.Background(), m, opts)
		require.NoError(t, err)

		table, err := Diagnose(fit, fit.AllChains(), nil)
		require.NoError(t, err)
		require.Len(t, table, len(m.FreeNames()))
		for _, r := range table {
			assert.LessOrEqual(t, r.Rhat, threshold, "trial %d: %s", trial, r.Name)
		}
	}
}
