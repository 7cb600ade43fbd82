package datastore

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/conf"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/diagnostics"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/mcmc"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/observability/metrics"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/posterior"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

func openStore(t *testing.T, rec metrics.Recorder) *SQLiteStore {
	t.Helper()
	store := &SQLiteStore{Path: filepath.Join(t.TempDir(), "archive", "nmix.db"), DataStore: DataStore{Metrics: rec}}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func compiled(t *testing.T, spec model.Spec) *model.Model {
	t.Helper()
	d := survey.Dims{Sites: 2, Seasons: 3, Visits: 2}
	counts, err := survey.NewCounts(d)
	require.NoError(t, err)
	for i := range d.Sites {
		for s := range d.Seasons {
			for v := range d.Visits {
				require.NoError(t, counts.Set(i, s, v, i+s))
			}
		}
	}
	hour := make([]float64, d.Slots())
	flowers := make([]float64, d.Slots())
	ds, err := survey.NewDataset(counts,
		&survey.Covariate{Name: model.CovHour, Level: survey.LevelObservation, Values: hour},
		&survey.Covariate{Name: model.CovFlowerAbundance, Level: survey.LevelObservation, Values: flowers},
	)
	require.NoError(t, err)
	m, err := model.Compile(spec, ds)
	require.NoError(t, err)
	return m
}

func result(t *testing.T, spec model.Spec, dic float64) *posterior.Result {
	t.Helper()
	opts := mcmc.DefaultOptions()
	opts.Seed = math.MaxUint64
	return &posterior.Result{
		Fit: &mcmc.Fit{
			RunID:   uuid.New(),
			Model:   compiled(t, spec),
			Options: opts,
			Started: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Elapsed: 1500 * time.Millisecond,
		},
		Selection: diagnostics.Selection{
			Chains:    []int{0, 2},
			Dropped:   []int{1},
			Converged: true,
			Table: diagnostics.Table{
				{Name: "lambda", Rhat: 1.01, UpperCI: 1.04, ESS: 800},
				{Name: "p", Rhat: math.NaN(), UpperCI: math.NaN(), ESS: 0},
			},
		},
		Score: posterior.FitScore{MeanDeviance: dic - 3, PD: 3, DIC: dic},
		Summary: posterior.Table{
			{Name: "lambda", Mean: 4.2, SD: 0.8, Lower: 2.9, Upper: 5.9},
			{Name: "p", Mean: 0.5, SD: 0.05, Lower: 0.4, Upper: 0.6},
		},
		Abundance: []posterior.SeasonRow{
			{Season: 1, Mean: 4, Lower: 3, Upper: 5},
			{Season: 2, Mean: 4.5, Lower: 3.5, Upper: 6},
			{Season: 3, Mean: 5, Lower: 4, Upper: 7},
		},
	}
}

func TestNewDisabled(t *testing.T) {
	t.Parallel()

	assert.Nil(t, New(conf.ArchiveSettings{Path: "x.db"}, nil))
	store := New(conf.ArchiveSettings{Enabled: true, Path: "x.db"}, nil)
	require.NotNil(t, store)
	assert.IsType(t, &SQLiteStore{}, store)
}

func TestSaveAndGet(t *testing.T) {
	t.Parallel()

	rec := metrics.NewMemoryRecorder()
	store := openStore(t, rec)
	ctx := context.Background()
	res := result(t, model.Time(), 120)

	saved, err := store.Save(ctx, res)
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, 1, rec.OperationCount(metrics.OpArchiveSave+":fit_runs", metrics.StatusSuccess))

	got, err := store.Get(ctx, res.Fit.RunID.String())
	require.NoError(t, err)
	assert.Equal(t, "time", got.Model)
	assert.Equal(t, res.Fit.Model.Spec().Effects.String(), got.Effects)
	assert.Equal(t, []int{2, 3, 2}, []int{got.Sites, got.Seasons, got.Visits})
	assert.Equal(t, uint64(math.MaxUint64), got.SeedValue())
	assert.Equal(t, []int{0, 2}, got.Selected())
	assert.Equal(t, []int{1}, got.Dropped())
	assert.True(t, got.Converged)
	assert.Nil(t, got.MaxRhat, "a NaN R-hat leaves the maximum undefined")
	assert.InDelta(t, 120.0, got.DIC, 1e-12)
	assert.Equal(t, int64(1500), got.ElapsedMs)

	require.Len(t, got.Summaries, 2)
	assert.Equal(t, "lambda", got.Summaries[0].Name)
	assert.InDelta(t, 4.2, got.Summaries[0].Mean, 1e-12)

	require.Len(t, got.Rhats, 2)
	assert.InDelta(t, 1.01, valueOr(got.Rhats[0].Rhat), 1e-12)
	assert.True(t, math.IsNaN(valueOr(got.Rhats[1].Rhat)))

	require.Len(t, got.Abundances, 3)
	for i, row := range got.Abundances {
		assert.Equal(t, i+1, row.Season)
	}
}

func TestGetUnknownRun(t *testing.T) {
	t.Parallel()

	rec := metrics.NewMemoryRecorder()
	store := openStore(t, rec)
	_, err := store.Get(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, 1, rec.ErrorCount(metrics.OpArchiveGet+":fit_runs", "not_found"))
}

func TestList(t *testing.T) {
	t.Parallel()

	store := openStore(t, nil)
	ctx := context.Background()
	for _, r := range []*posterior.Result{
		result(t, model.Null(), 130),
		result(t, model.Time(), 120),
		result(t, model.Null(), 125),
	} {
		_, err := store.Save(ctx, r)
		require.NoError(t, err)
	}

	all, err := store.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.InDelta(t, 125.0, all[0].DIC, 0, "newest first")
	assert.Empty(t, all[0].Summaries, "List does not load rows")

	null, err := store.List(ctx, ListQuery{Model: "null"})
	require.NoError(t, err)
	assert.Len(t, null, 2)

	one, err := store.List(ctx, ListQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = store.List(ctx, ListQuery{Limit: -1})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	store := openStore(t, nil)
	ctx := context.Background()
	res := result(t, model.Null(), 100)
	_, err := store.Save(ctx, res)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, res.Fit.RunID.String()))
	_, err = store.Get(ctx, res.Fit.RunID.String())
	assert.True(t, errors.IsNotFound(err))

	var rows int64
	require.NoError(t, store.DB.Model(&SummaryRow{}).Count(&rows).Error)
	assert.Zero(t, rows)

	assert.True(t, errors.IsNotFound(store.Delete(ctx, res.Fit.RunID.String())))
}

func TestRejectsUnopenedAndEmpty(t *testing.T) {
	t.Parallel()

	var closed SQLiteStore
	_, err := closed.Save(context.Background(), result(t, model.Null(), 1))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	store := openStore(t, nil)
	_, err = store.Save(context.Background(), &posterior.Result{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	assert.Error(t, (&SQLiteStore{}).Open())
}

func TestInMemoryStore(t *testing.T) {
	t.Parallel()

	store := &SQLiteStore{Path: ":memory:"}
	require.NoError(t, store.Open())
	defer store.Close()

	_, err := store.Save(context.Background(), result(t, model.Null(), 10))
	require.NoError(t, err)
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestChainListEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   []int
		want string
	}{
		{nil, ""},
		{[]int{3}, "3"},
		{[]int{0, 1, 4}, "0,1,4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinInts(tt.in))
		if len(tt.in) > 0 {
			assert.Equal(t, tt.in, splitInts(tt.want))
		} else {
			assert.Nil(t, splitInts(tt.want))
		}
	}
}
