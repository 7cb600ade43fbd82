// model.go defines the archive tables
package datastore

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// FitRun is one archived model fit. Seeds are stored bit-for-bit as int64
// because SQLite integers are signed.
type FitRun struct {
	ID      uint   `gorm:"primaryKey"`
	RunID   string `gorm:"uniqueIndex;size:36;not null"`
	Model   string `gorm:"index:idx_fit_runs_model_created"`
	Effects string

	Sites   int
	Seasons int
	Visits  int

	Chains     int
	Iterations int
	Burnin     int
	Thin       int
	Seed       int64

	SelectedChains string // comma separated chain indexes
	DroppedChains  string
	Converged      bool
	MaxRhat        *float64 // nil when undefined

	MeanDeviance float64
	PD           float64
	DIC          float64

	StartedAt time.Time
	ElapsedMs int64
	CreatedAt time.Time `gorm:"index:idx_fit_runs_model_created"`

	Summaries  []SummaryRow   `gorm:"foreignKey:FitRunID;constraint:OnDelete:CASCADE"`
	Rhats      []RhatRow      `gorm:"foreignKey:FitRunID;constraint:OnDelete:CASCADE"`
	Abundances []AbundanceRow `gorm:"foreignKey:FitRunID;constraint:OnDelete:CASCADE"`
}

// SummaryRow is one posterior summary line of a FitRun.
type SummaryRow struct {
	ID       uint   `gorm:"primaryKey"`
	FitRunID uint   `gorm:"index;not null"`
	Name     string `gorm:"size:128"`
	Mean     float64
	SD       float64
	Lower    float64
	Upper    float64
}

// RhatRow is the convergence record of one parameter of a FitRun.
type RhatRow struct {
	ID       uint   `gorm:"primaryKey"`
	FitRunID uint   `gorm:"index;not null"`
	Name     string `gorm:"size:128"`
	Rhat     *float64
	UpperCI  *float64
	ESS      *float64
}

// AbundanceRow is the mean abundance per site of one season of a FitRun.
type AbundanceRow struct {
	ID       uint `gorm:"primaryKey"`
	FitRunID uint `gorm:"index;not null"`
	Season   int
	Mean     float64
	Lower    float64
	Upper    float64
}

// SeedValue returns the sampler seed of the run.
func (f *FitRun) SeedValue() uint64 { return uint64(f.Seed) }

// Selected returns the chain indexes the summaries were computed from.
func (f *FitRun) Selected() []int { return splitInts(f.SelectedChains) }

// Dropped returns the chain indexes removed during chain selection.
func (f *FitRun) Dropped() []int { return splitInts(f.DroppedChains) }

// nullable maps NaN to nil. SQLite stores NaN as NULL, which cannot be
// scanned back into a float64.
func nullable(x float64) *float64 {
	if math.IsNaN(x) {
		return nil
	}
	return &x
}

// valueOr dereferences p, returning NaN for nil.
func valueOr(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// RhatValue returns the R-hat point estimate, NaN when undefined.
func (r RhatRow) RhatValue() float64 { return valueOr(r.Rhat) }

// UpperCIValue returns the upper confidence limit, NaN when undefined.
func (r RhatRow) UpperCIValue() float64 { return valueOr(r.UpperCI) }

// ESSValue returns the effective sample size, NaN when undefined.
func (r RhatRow) ESSValue() float64 { return valueOr(r.ESS) }
