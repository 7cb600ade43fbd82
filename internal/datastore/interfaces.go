// interfaces.go defines the archive operations
package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/conf"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/observability/metrics"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/posterior"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// Interface abstracts the fit archive.
type Interface interface {
	Open() error
	Save(ctx context.Context, result *posterior.Result) (*FitRun, error)
	List(ctx context.Context, query ListQuery) ([]FitRun, error)
	Get(ctx context.Context, runID string) (*FitRun, error)
	Delete(ctx context.Context, runID string) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

// ListQuery filters List. Runs are returned newest first.
type ListQuery struct {
	Model string // empty lists every model
	Limit int    // 0 uses DefaultListLimit
}

// DataStore implements Interface on a GORM database.
type DataStore struct {
	DB      *gorm.DB
	Metrics metrics.Recorder
}

// New returns the archive described by settings, or nil when the archive
// is disabled. recorder may be nil.
func New(settings conf.ArchiveSettings, recorder metrics.Recorder) Interface {
	if !settings.Enabled {
		return nil
	}
	return &SQLiteStore{Path: settings.Path, DataStore: DataStore{Metrics: recorder}}
}

func (ds *DataStore) recorder() metrics.Recorder {
	if ds.Metrics == nil {
		return metrics.NoOpRecorder{}
	}
	return ds.Metrics
}

// observe records the outcome of one archive operation on table.
func (ds *DataStore) observe(op, table string, start time.Time, err error) {
	rec := ds.recorder()
	label := op + ":" + table
	rec.RecordDuration(label, time.Since(start).Seconds())
	if err != nil {
		rec.RecordError(label, categorizeError(err))
		return
	}
	rec.RecordOperation(label, metrics.StatusSuccess)
}

func (ds *DataStore) ready() error {
	if ds.DB == nil {
		return errors.Newf("archive database is not open").
			Component("datastore").
			Category(errors.CategoryState).
			Build()
	}
	return nil
}

// Save stores the result, its summary, R-hat and abundance rows in one
// transaction.
func (ds *DataStore) Save(ctx context.Context, result *posterior.Result) (*FitRun, error) {
	start := time.Now()
	if err := ds.ready(); err != nil {
		return nil, err
	}
	if result == nil || result.Fit == nil || result.Fit.Model == nil {
		return nil, validationError("cannot archive an empty result", "result", nil)
	}

	run := newFitRun(result)
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
	ds.observe(metrics.OpArchiveSave, "fit_runs", start, err)
	if err != nil {
		return nil, dbError(err, metrics.OpArchiveSave, time.Since(start), "run_id", run.RunID)
	}

	GetLogger().Info("fit archived",
		logger.String("run_id", run.RunID),
		logger.String("model", run.Model),
		logger.Float64("dic", run.DIC))
	ds.refreshCount(ctx)
	return run, nil
}

// List returns the newest runs matching query without their rows.
func (ds *DataStore) List(ctx context.Context, query ListQuery) ([]FitRun, error) {
	start := time.Now()
	if err := ds.ready(); err != nil {
		return nil, err
	}
	if query.Limit < 0 {
		return nil, validationError("limit must not be negative", "limit", query.Limit)
	}
	limit := query.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}

	db := ds.DB.WithContext(ctx).Order("created_at DESC").Order("id DESC").Limit(limit)
	if query.Model != "" {
		db = db.Where("model = ?", query.Model)
	}
	var runs []FitRun
	err := db.Find(&runs).Error
	ds.observe(metrics.OpArchiveList, "fit_runs", start, err)
	if err != nil {
		return nil, dbError(err, metrics.OpArchiveList, time.Since(start), "model", query.Model)
	}
	return runs, nil
}

// Get loads one run with every row.
func (ds *DataStore) Get(ctx context.Context, runID string) (*FitRun, error) {
	start := time.Now()
	if err := ds.ready(); err != nil {
		return nil, err
	}

	var run FitRun
	err := ds.DB.WithContext(ctx).
		Preload("Summaries", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Rhats", func(db *gorm.DB) *gorm.DB { return db.Order("name") }).
		Preload("Abundances", func(db *gorm.DB) *gorm.DB { return db.Order("season") }).
		Where("run_id = ?", runID).
		First(&run).Error
	ds.observe(metrics.OpArchiveGet, "fit_runs", start, err)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, notFoundError(runID)
	case err != nil:
		return nil, dbError(err, metrics.OpArchiveGet, time.Since(start), "run_id", runID)
	}
	return &run, nil
}

// Delete removes a run and its rows.
func (ds *DataStore) Delete(ctx context.Context, runID string) error {
	if err := ds.ready(); err != nil {
		return err
	}
	run, err := ds.Get(ctx, runID)
	if err != nil {
		return err
	}
	start := time.Now()
	err = ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, child := range []any{&SummaryRow{}, &RhatRow{}, &AbundanceRow{}} {
			if err := tx.Where("fit_run_id = ?", run.ID).Delete(child).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&FitRun{}, run.ID).Error
	})
	ds.observe(metrics.OpArchiveDelete, "fit_runs", start, err)
	if err != nil {
		return dbError(err, metrics.OpArchiveDelete, time.Since(start), "run_id", runID)
	}
	ds.refreshCount(ctx)
	return nil
}

// Count returns the number of archived runs.
func (ds *DataStore) Count(ctx context.Context) (int64, error) {
	if err := ds.ready(); err != nil {
		return 0, err
	}
	var n int64
	if err := ds.DB.WithContext(ctx).Model(&FitRun{}).Count(&n).Error; err != nil {
		return 0, dbError(err, "archive_count", 0)
	}
	return n, nil
}

// refreshCount publishes the archive size when the recorder supports it.
func (ds *DataStore) refreshCount(ctx context.Context) {
	gauge, ok := ds.Metrics.(interface{ SetArchivedFits(int64) })
	if !ok {
		return
	}
	n, err := ds.Count(ctx)
	if err != nil {
		GetLogger().Warn("failed to count archived fits", logger.Error(err))
		return
	}
	gauge.SetArchivedFits(n)
}

// performAutoMigration creates or updates the archive tables.
func performAutoMigration(db *gorm.DB, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&FitRun{}, &SummaryRow{}, &RhatRow{}, &AbundanceRow{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}
	GetLogger().Debug("archive database initialized",
		logger.String("db_type", dbType),
		logger.String("path", connectionInfo))
	return nil
}

// newFitRun flattens an analyzed result into archive rows.
func newFitRun(r *posterior.Result) *FitRun {
	fit := r.Fit
	d := fit.Model.Dims()
	run := &FitRun{
		RunID:          fit.RunID.String(),
		Model:          fit.Model.Name(),
		Effects:        fit.Model.Spec().Effects.String(),
		Sites:          d.Sites,
		Seasons:        d.Seasons,
		Visits:         d.Visits,
		Chains:         fit.Options.Chains,
		Iterations:     fit.Options.Iterations,
		Burnin:         fit.Options.Burnin,
		Thin:           fit.Options.Thin,
		Seed:           int64(fit.Options.Seed),
		SelectedChains: joinInts(r.Selection.Chains),
		DroppedChains:  joinInts(r.Selection.Dropped),
		Converged:      r.Selection.Converged,
		MaxRhat:        nullable(r.Selection.Table.MaxRhat()),
		MeanDeviance:   r.Score.MeanDeviance,
		PD:             r.Score.PD,
		DIC:            r.Score.DIC,
		StartedAt:      fit.Started,
		ElapsedMs:      fit.Elapsed.Milliseconds(),
	}
	for _, row := range r.Summary {
		run.Summaries = append(run.Summaries, SummaryRow{
			Name: row.Name, Mean: row.Mean, SD: row.SD, Lower: row.Lower, Upper: row.Upper,
		})
	}
	for _, row := range r.Selection.Table {
		run.Rhats = append(run.Rhats, RhatRow{
			Name: row.Name, Rhat: nullable(row.Rhat), UpperCI: nullable(row.UpperCI), ESS: nullable(row.ESS),
		})
	}
	for _, row := range r.Abundance {
		run.Abundances = append(run.Abundances, AbundanceRow{
			Season: row.Season, Mean: row.Mean, Lower: row.Lower, Upper: row.Upper,
		})
	}
	return run
}
