package model

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

// testDataset builds a 3 site x 2 season x 2 visit survey with one covariate
// of each level.
func testDataset(t *testing.T) *survey.Dataset {
	t.Helper()
	d := survey.Dims{Sites: 3, Seasons: 2, Visits: 2}
	counts, err := survey.NewCounts(d)
	require.NoError(t, err)

	ys := []int{2, 3, 1, 0, 0, 0, 4, 1, 5, 2, 1, 1}
	for slot, y := range ys {
		i, rest := slot/(d.Seasons*d.Visits), slot%(d.Seasons*d.Visits)
		require.NoError(t, counts.Set(i, rest/d.Visits, rest%d.Visits, y))
	}
	require.NoError(t, counts.SetMissing(1, 1, 1))

	ds, err := survey.NewDataset(counts,
		&survey.Covariate{Name: CovHour, Level: survey.LevelObservation,
			Values: []float64{6, 7, 8, 9, 6, 7, 8, 9, 6, 7, 8, 9}},
		&survey.Covariate{Name: CovMeanFlowerAbundance, Level: survey.LevelSeason,
			Values: []float64{0.5, 1, 1.5, 2, 2.5, 3}},
		&survey.Covariate{Name: CovHabitatType, Level: survey.LevelSite, Categorical: true,
			LevelNames: []string{"forest", "grassland", "urban"}, Values: []float64{0, 1, 2}},
	)
	require.NoError(t, err)
	return ds
}

func TestLinkRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		link Link
		mu   float64
	}{
		{LinkLog, 5},
		{LinkLog, 0.01},
		{LinkLogit, 0.5},
		{LinkLogit, 0.999},
		{LinkIdentity, -3},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.mu, tt.link.Apply(tt.link.Inverse(tt.mu)), 1e-12, "%s(%v)", tt.link, tt.mu)
	}
	assert.InDelta(t, 0.0, LinkLogit.Apply(-800), 1e-300)
	assert.InDelta(t, 1.0, LinkLogit.Apply(800), 0)
}

func TestParseProcessAndEffects(t *testing.T) {
	t.Parallel()

	p, err := ParseProcess("phi")
	require.NoError(t, err)
	assert.Equal(t, Survival, p)
	p, err = ParseProcess(" Detection ")
	require.NoError(t, err)
	assert.Equal(t, Detection, p)
	_, err = ParseProcess("omega")
	require.Error(t, err)

	effects, err := ParseEffects("p=hour, flower_abundance; phi=habitat_type;gamma=habitat_type,habitat_type")
	require.NoError(t, err)
	assert.Equal(t, []string{"hour", "flower_abundance"}, effects[Detection])
	assert.Equal(t, []string{"habitat_type"}, effects[Recruitment])
	assert.Equal(t, "phi=habitat_type;gamma=habitat_type;p=hour,flower_abundance", effects.String())

	_, err = ParseEffects("p:hour")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	empty, err := ParseEffects("  ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestVariants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"flower", "habitat", "null", "time"}, VariantNames())
	for _, name := range VariantNames() {
		spec, err := Variant(name)
		require.NoError(t, err)
		assert.Equal(t, name, spec.Name)
		require.NoError(t, spec.Validate())
	}

	_, err := Variant("quadratic")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCompileBuildsEveryColumn(t *testing.T) {
	t.Parallel()

	ds := testDataset(t)

	null, err := Compile(Null(), ds)
	require.NoError(t, err)
	habitat, err := Compile(Habitat(), ds)
	require.NoError(t, err)

	// Every variant shares the same parameter vector; only Free differs.
	assert.Equal(t, null.NumParams(), habitat.NumParams())
	names := make([]string, 0, null.NumParams())
	for _, p := range null.Params() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{
		"lambda", "lambda.habitat_type[grassland]", "lambda.habitat_type[urban]",
		"phi", "phi.mean_flower_abundance", "phi.habitat_type[grassland]", "phi.habitat_type[urban]",
		"gamma", "gamma.mean_flower_abundance", "gamma.habitat_type[grassland]", "gamma.habitat_type[urban]",
		"p", "p.hour", "p.mean_flower_abundance", "p.habitat_type[grassland]", "p.habitat_type[urban]",
	}, names)

	assert.Equal(t, []string{"lambda", "phi", "gamma", "p"}, null.FreeNames())
	assert.Equal(t, []string{
		"lambda",
		"phi", "phi.habitat_type[grassland]", "phi.habitat_type[urban]",
		"gamma", "gamma.habitat_type[grassland]", "gamma.habitat_type[urban]",
		"p",
	}, habitat.FreeNames())

	cols := habitat.Columns(Survival)
	require.Len(t, cols, 3)
	assert.InDelta(t, 1.75, cols[0].Mean, 1e-12)
	assert.InDelta(t, 1.0/3, cols[1].Mean, 1e-12)

	assert.Equal(t, 3, null.Units(Abundance))
	assert.Equal(t, 6, null.Units(Survival))
	assert.Equal(t, 12, null.Units(Detection))
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	ds := testDataset(t)

	tests := []struct {
		name     string
		spec     Spec
		category errors.ErrorCategory
	}{
		{
			name:     "unknown covariate",
			spec:     Spec{Name: "x", Effects: Effects{Detection: {"wind"}}, Priors: DefaultPriors()},
			category: errors.CategoryModel,
		},
		{
			name:     "observation covariate on survival",
			spec:     Spec{Name: "x", Effects: Effects{Survival: {CovHour}}, Priors: DefaultPriors()},
			category: errors.CategoryModel,
		},
		{
			name:     "bad priors",
			spec:     Spec{Name: "x", Priors: Priors{LambdaMax: 0, GammaMax: 1, CoefSD: 1}},
			category: errors.CategoryValidation,
		},
		{
			name:     "unnamed",
			spec:     Spec{Priors: DefaultPriors()},
			category: errors.CategoryValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Compile(tt.spec, ds)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tt.category), "got %v", err)
		})
	}
}

func TestCompileRejectsMissingCovariates(t *testing.T) {
	t.Parallel()

	ds := testDataset(t)
	hour, _ := ds.Covariate(CovHour)
	hour.Missing = make([]bool, len(hour.Values))
	hour.Missing[3] = true

	_, err := Compile(Null(), ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backfill")

	_, err = Compile(Null(), ds.Backfill(survey.DefaultPlaceholder))
	require.NoError(t, err)
}

func TestValuesApplyLinkAndDesign(t *testing.T) {
	t.Parallel()

	ds := testDataset(t)
	m, err := Compile(Habitat(), ds)
	require.NoError(t, err)

	theta := make([]float64, m.NumParams())
	theta[m.Intercept(Abundance)] = 5
	theta[m.Intercept(Survival)] = 0.8
	theta[m.Intercept(Recruitment)] = 2
	theta[m.Intercept(Detection)] = 0.5

	r := m.NewRates()
	m.Fill(theta, r)
	for _, v := range r.Of(Abundance) {
		assert.InDelta(t, 5.0, v, 1e-12)
	}
	for _, v := range r.Of(Detection) {
		assert.InDelta(t, 0.5, v, 1e-12)
	}

	grass, ok := m.ParamIndex("phi.habitat_type[grassland]")
	require.True(t, ok)
	theta[grass] = 1.5
	m.Values(Survival, theta, r[Survival])

	d := m.Dims()
	assert.InDelta(t, 0.8, r[Survival][d.Cell(0, 1)], 1e-12, "forest is the reference level")
	want := LinkLogit.Apply(LinkLogit.Inverse(0.8) + 1.5)
	assert.InDelta(t, want, r[Survival][d.Cell(1, 0)], 1e-12)
	assert.InDelta(t, want, r[Survival][d.Cell(1, 1)], 1e-12)
	assert.InDelta(t, 0.8, r[Survival][d.Cell(2, 1)], 1e-12)
}

func TestPredictAt(t *testing.T) {
	t.Parallel()

	ds := testDataset(t)
	_, err := Compile(Time(), ds.Backfill(survey.DefaultPlaceholder))
	require.Error(t, err, "time variant needs flower_abundance")

	spec := Spec{Name: "hour", Effects: Effects{Detection: {CovHour}}, Priors: DefaultPriors()}
	m, err := Compile(spec, ds)
	require.NoError(t, err)

	theta := make([]float64, m.NumParams())
	theta[m.Intercept(Detection)] = 0.5
	hour, _ := m.ParamIndex("p.hour")
	theta[hour] = 0.2

	got := m.PredictAt(Detection, theta, map[string]float64{CovHour: 8})
	assert.InDelta(t, LinkLogit.Apply(0.2*8), got, 1e-12)

	atMean := m.PredictAt(Detection, theta, nil)
	assert.InDelta(t, LinkLogit.Apply(0.2*7.5), atMean, 1e-12)
}

func TestColumnMeanIgnoresBackfilledSlots(t *testing.T) {
	t.Parallel()

	d := survey.Dims{Sites: 1, Seasons: 2, Visits: 2}
	counts, err := survey.NewCounts(d)
	require.NoError(t, err)
	for slot, y := range []int{2, 1, 3, 2} {
		require.NoError(t, counts.Set(0, slot/d.Visits, slot%d.Visits, y))
	}
	ds, err := survey.NewDataset(counts,
		&survey.Covariate{Name: CovHour, Level: survey.LevelObservation,
			Values: []float64{10, 0, 10, 0}, Missing: []bool{false, true, false, true}},
	)
	require.NoError(t, err)

	m, err := Compile(Null(), ds.Backfill(survey.DefaultPlaceholder))
	require.NoError(t, err)
	cols := m.Columns(Detection)
	require.Len(t, cols, 1)
	assert.Equal(t, CovHour, cols[0].Covariate)
	assert.InDelta(t, 10.0, cols[0].Mean, 0)
}

func TestPredictAtUsesRawUnitsAfterStandardizing(t *testing.T) {
	t.Parallel()

	d := survey.Dims{Sites: 4, Seasons: 1, Visits: 1}
	counts, err := survey.NewCounts(d)
	require.NoError(t, err)
	for i, y := range []int{3, 5, 2, 6} {
		require.NoError(t, counts.Set(i, 0, 0, y))
	}
	ds, err := survey.NewDataset(counts,
		&survey.Covariate{Name: "elevation", Level: survey.LevelSite, Values: []float64{100, 200, 300, 400}},
		&survey.Covariate{Name: "forest_cover", Level: survey.LevelSite, Values: []float64{0.1, 0.4, 0.2, 0.9}},
	)
	require.NoError(t, err)
	spec := Spec{Name: "elevation", Effects: Effects{Abundance: {"elevation", "forest_cover"}}, Priors: DefaultPriors()}

	raw, err := Compile(spec, ds)
	require.NoError(t, err)
	std := ds.Standardize("elevation", "forest_cover")
	scaled, err := Compile(spec, std)
	require.NoError(t, err)

	const a, bElev, bForest = 1.1, 0.002, 0.5
	thetaRaw := make([]float64, raw.NumParams())
	thetaRaw[raw.Intercept(Abundance)] = LinkLog.Apply(a)
	iElev, _ := raw.ParamIndex("lambda.elevation")
	iForest, _ := raw.ParamIndex("lambda.forest_cover")
	thetaRaw[iElev], thetaRaw[iForest] = bElev, bForest

	// The same linear predictor expressed on the standardized scale.
	elev, _ := std.Covariate("elevation")
	forest, _ := std.Covariate("forest_cover")
	thetaStd := make([]float64, scaled.NumParams())
	thetaStd[scaled.Intercept(Abundance)] = LinkLog.Apply(a + bElev*elev.Center + bForest*forest.Center)
	jElev, _ := scaled.ParamIndex("lambda.elevation")
	jForest, _ := scaled.ParamIndex("lambda.forest_cover")
	thetaStd[jElev], thetaStd[jForest] = bElev*elev.Scale, bForest*forest.Scale

	for _, x := range []float64{150, 250, 375} {
		at := map[string]float64{"elevation": x}
		want := raw.PredictAt(Abundance, thetaRaw, at)
		assert.InDelta(t, LinkLog.Apply(a+bElev*x+bForest*0.4), want, 1e-9, "x=%v", x)
		assert.InDelta(t, want, scaled.PredictAt(Abundance, thetaStd, at), 1e-9, "x=%v", x)
	}
}

func TestDensitiesMatchDistributions(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, distuv.Poisson{Lambda: 5}.LogProb(3), LogInitial(3, 5), 1e-12)
	assert.InDelta(t, distuv.Binomial{N: 10, P: 0.8}.LogProb(7), LogSurvival(7, 10, 0.8), 1e-12)
	assert.InDelta(t, distuv.Poisson{Lambda: 2}.LogProb(0), LogRecruitment(0, 2), 1e-12)
	assert.InDelta(t, distuv.Binomial{N: 6, P: 0.5}.LogProb(2), LogObservation(2, 6, 0.5), 1e-12)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"count above abundance", LogObservation(4, 3, 0.5), math.Inf(-1)},
		{"negative abundance", LogInitial(-1, 5), math.Inf(-1)},
		{"zero abundance zero count", LogObservation(0, 0, 0.5), 0},
		{"certain detection", LogObservation(3, 3, 1), 0},
		{"certain detection miss", LogObservation(2, 3, 1), math.Inf(-1)},
		{"zero rate", LogRecruitment(0, 0), 0},
		{"zero rate positive count", LogRecruitment(1, 0), math.Inf(-1)},
		{"probability out of range", LogSurvival(1, 2, 1.2), math.Inf(-1)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got, tt.name)
	}
}

func TestLogPrior(t *testing.T) {
	t.Parallel()

	m, err := Compile(Habitat(), testDataset(t))
	require.NoError(t, err)

	lambda := m.Intercept(Abundance)
	assert.InDelta(t, -math.Log(100), m.LogPrior(lambda, 5), 1e-12)
	assert.True(t, math.IsInf(m.LogPrior(lambda, 0), -1))
	assert.True(t, math.IsInf(m.LogPrior(lambda, 101), -1))

	phi := m.Intercept(Survival)
	assert.InDelta(t, 0.0, m.LogPrior(phi, 0.3), 1e-12)
	assert.True(t, math.IsInf(m.LogPrior(phi, 1), -1))

	free, _ := m.ParamIndex("gamma.habitat_type[urban]")
	assert.InDelta(t, distuv.Normal{Mu: 0, Sigma: 2}.LogProb(0.7), m.LogPrior(free, 0.7), 1e-12)

	fixed, _ := m.ParamIndex("p.hour")
	assert.InDelta(t, 0.0, m.LogPrior(fixed, 0), 0)
	assert.True(t, math.IsInf(m.LogPrior(fixed, 0.1), -1))
}

func TestLikelihoodSkipsMissingSlots(t *testing.T) {
	t.Parallel()

	ds := testDataset(t)
	m, err := Compile(Null(), ds)
	require.NoError(t, err)

	st := NewState(m.Dims())
	for i := range 3 {
		st.N[m.Dims().Cell(i, 0)] = 6
		st.N[m.Dims().Cell(i, 1)] = 6
		st.S[m.Dims().Cell(i, 1)] = 4
	}
	require.NoError(t, st.Check(m))

	p := make([]float64, m.Units(Detection))
	for i := range p {
		p[i] = 0.4
	}

	// Site 1 season 1 has one observed visit (y=4) and one missing.
	got := m.LogObservationCell(1, 1, 6, p)
	assert.InDelta(t, LogObservation(4, 6, 0.4), got, 1e-12)

	total := m.LogObservations(st, p)
	var want float64
	for i := range 3 {
		for s := range 2 {
			for j := range 2 {
				if y, ok := m.Count(i, s, j); ok {
					want += LogObservation(y, 6, 0.4)
				}
			}
		}
	}
	assert.InDelta(t, want, total, 1e-9)
	assert.InDelta(t, -2*want, m.Deviance(st, p), 1e-9)
}

func TestStateCheck(t *testing.T) {
	t.Parallel()

	m, err := Compile(Null(), testDataset(t))
	require.NoError(t, err)
	d := m.Dims()

	st := NewState(d)
	for i := range d.Sites {
		st.N[d.Cell(i, 0)] = m.MaxCount(i, 0)
		st.N[d.Cell(i, 1)] = m.MaxCount(i, 1)
	}
	require.NoError(t, st.Check(m))

	bad := st.Clone()
	bad.N[d.Cell(0, 0)] = m.MaxCount(0, 0) - 1
	err = bad.Check(m)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	bad = st.Clone()
	bad.S[d.Cell(2, 1)] = st.N[d.Cell(2, 0)] + 1
	require.Error(t, bad.Check(m))
}

func TestSimulateRespectsStructure(t *testing.T) {
	t.Parallel()

	d := survey.Dims{Sites: 10, Seasons: 4, Visits: 4}
	truth := Truth{Lambda: 5, Phi: 0.8, Gamma: 2, P: 0.5}
	counts, st, err := Simulate(d, truth, rand.NewPCG(1, 2))
	require.NoError(t, err)
	assert.Equal(t, d.Slots(), counts.ObservedCount())

	for i := range d.Sites {
		for s := range d.Seasons {
			maxY, _ := counts.MaxCount(i, s)
			assert.LessOrEqual(t, maxY, st.Abundance(i, s))
			if s > 0 {
				assert.LessOrEqual(t, st.Survivors(i, s), st.Abundance(i, s-1))
				assert.GreaterOrEqual(t, st.Recruits(i, s), 0)
			}
		}
	}

	again, _, err := Simulate(d, truth, rand.NewPCG(1, 2))
	require.NoError(t, err)
	assert.Equal(t, counts, again, "same seed reproduces the draw")

	_, _, err = Simulate(d, Truth{Lambda: 5, Phi: 1.2, Gamma: 2, P: 0.5}, rand.NewPCG(1, 2))
	require.Error(t, err)
}

func TestThin(t *testing.T) {
	t.Parallel()

	d := survey.Dims{Sites: 20, Seasons: 3, Visits: 4}
	counts, _, err := Simulate(d, Truth{Lambda: 3, Phi: 0.5, Gamma: 1, P: 0.4}, rand.NewPCG(3, 4))
	require.NoError(t, err)

	thinned := Thin(counts, 0.5, rand.NewPCG(5, 6))
	assert.Less(t, thinned.ObservedCount(), counts.ObservedCount())
	assert.Equal(t, d.Slots(), counts.ObservedCount(), "source is not modified")
	assert.Equal(t, counts.ObservedCount(), Thin(counts, 0, nil).ObservedCount())
}
