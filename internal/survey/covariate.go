package survey

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
)

// DefaultPlaceholder is the neutral value written into missing covariate slots
// before fitting.
const DefaultPlaceholder = 1.0

// Level is the axis set a covariate is indexed by.
type Level string

const (
	// LevelObservation covariates are indexed by [site, season, visit] (e.g. hour).
	LevelObservation Level = "observation"
	// LevelSeason covariates are indexed by [site, season] (e.g. mean flower abundance).
	LevelSeason Level = "season"
	// LevelSite covariates are indexed by [site] (e.g. habitat type).
	LevelSite Level = "site"
)

// Len returns the number of values a covariate at this level holds.
func (l Level) Len(d Dims) int {
	switch l {
	case LevelObservation:
		return d.Slots()
	case LevelSeason:
		return d.Cells()
	case LevelSite:
		return d.Sites
	default:
		return 0
	}
}

// Shape returns the tensor shape of a covariate at this level.
func (l Level) Shape(d Dims) []int {
	switch l {
	case LevelObservation:
		return []int{d.Sites, d.Seasons, d.Visits}
	case LevelSeason:
		return []int{d.Sites, d.Seasons}
	case LevelSite:
		return []int{d.Sites}
	default:
		return nil
	}
}

// Covariate is a named, flat covariate tensor. Categorical covariates store
// level codes (0..len(LevelNames)-1) in Values.
type Covariate struct {
	Name        string
	Level       Level
	Categorical bool
	LevelNames  []string
	Values      []float64
	Missing     []bool // nil when fully observed
	// Filled marks slots that held no observation and now carry a
	// placeholder. They are excluded from Mean like missing slots.
	Filled []bool
	// Center and Scale map raw values onto Values when the covariate has
	// been standardized; Scale is zero for raw covariates.
	Center float64
	Scale  float64
}

// Scaled maps a value in the covariate's raw units onto the scale of Values.
func (c *Covariate) Scaled(x float64) float64 {
	if c.Scale == 0 {
		return x
	}
	return (x - c.Center) / c.Scale
}

// IsObserved reports whether slot i holds a recorded value, neither missing
// nor filled by Backfill.
func (c *Covariate) IsObserved(i int) bool {
	return !c.IsMissing(i) && (c.Filled == nil || !c.Filled[i])
}

// At returns the value relevant to an observation slot, reading site- and
// season-level covariates at their coarser index.
func (c *Covariate) At(d Dims, site, season, visit int) float64 {
	switch c.Level {
	case LevelObservation:
		return c.Values[d.Slot(site, season, visit)]
	case LevelSeason:
		return c.Values[d.Cell(site, season)]
	default:
		return c.Values[site]
	}
}

// IsMissing reports whether the value at flat index i is missing.
func (c *Covariate) IsMissing(i int) bool {
	return c.Missing != nil && c.Missing[i]
}

// HasMissing reports whether any slot is missing.
func (c *Covariate) HasMissing() bool {
	for _, m := range c.Missing {
		if m {
			return true
		}
	}
	return false
}

// Validate checks the covariate against the survey dimensions.
func (c *Covariate) Validate(d Dims) error {
	want := c.Level.Len(d)
	if want == 0 {
		return errors.Newf("covariate %q has unknown level %q", c.Name, c.Level).
			Component("survey").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(c.Values) != want || (c.Missing != nil && len(c.Missing) != want) || (c.Filled != nil && len(c.Filled) != want) {
		return errors.New(fmt.Errorf("%w: covariate %q has %d values, want %d", ErrShapeMismatch, c.Name, len(c.Values), want)).
			Component("survey").
			Category(errors.CategoryValidation).
			ShapeContext(c.Name, c.Level.Shape(d), []int{len(c.Values)}).
			Build()
	}
	if c.Categorical {
		if len(c.LevelNames) < 2 {
			return errors.Newf("categorical covariate %q must have at least two levels", c.Name).
				Component("survey").
				Category(errors.CategoryValidation).
				Build()
		}
		if c.HasMissing() {
			return errors.Newf("categorical covariate %q must not have missing values", c.Name).
				Component("survey").
				Category(errors.CategoryValidation).
				Build()
		}
		for i, v := range c.Values {
			if v != math.Trunc(v) || v < 0 || int(v) >= len(c.LevelNames) {
				return errors.Newf("categorical covariate %q has invalid level code %v at %d", c.Name, v, i).
					Component("survey").
					Category(errors.CategoryValidation).
					Build()
			}
		}
	}
	for i, v := range c.Values {
		if !c.IsMissing(i) && (math.IsNaN(v) || math.IsInf(v, 0)) {
			return errors.Newf("covariate %q has non-finite value at %d", c.Name, i).
				Component("survey").
				Category(errors.CategoryValidation).
				Build()
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *Covariate) Clone() *Covariate {
	out := *c
	out.LevelNames = append([]string(nil), c.LevelNames...)
	out.Values = append([]float64(nil), c.Values...)
	if c.Missing != nil {
		out.Missing = append([]bool(nil), c.Missing...)
	}
	if c.Filled != nil {
		out.Filled = append([]bool(nil), c.Filled...)
	}
	return &out
}

// Backfill returns a copy with every missing slot set to placeholder. The
// slots are remembered in Filled.
func (c *Covariate) Backfill(placeholder float64) *Covariate {
	out := c.Clone()
	if !c.HasMissing() {
		out.Missing = nil
		return out
	}
	if out.Filled == nil {
		out.Filled = make([]bool, len(out.Values))
	}
	for i := range out.Values {
		if out.IsMissing(i) {
			out.Values[i] = placeholder
			out.Filled[i] = true
		}
	}
	out.Missing = nil
	return out
}

// observedValues returns the recorded values.
func (c *Covariate) observedValues() []float64 {
	if c.Missing == nil && c.Filled == nil {
		return c.Values
	}
	vals := make([]float64, 0, len(c.Values))
	for i, v := range c.Values {
		if c.IsObserved(i) {
			vals = append(vals, v)
		}
	}
	return vals
}

// Mean returns the mean over observed values (NaN when none are observed).
func (c *Covariate) Mean() float64 {
	vals := c.observedValues()
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

// Standardize returns a copy centred on the observed mean and scaled by the
// observed standard deviation, recording the map in Center and Scale.
// Categorical and constant covariates are copied unchanged.
func (c *Covariate) Standardize() *Covariate {
	out := c.Clone()
	if c.Categorical {
		return out
	}
	vals := c.observedValues()
	if len(vals) < 2 {
		return out
	}
	mean, sd := stat.MeanStdDev(vals, nil)
	if sd == 0 || math.IsNaN(sd) {
		return out
	}
	for i := range out.Values {
		if c.IsObserved(i) {
			out.Values[i] = (out.Values[i] - mean) / sd
		}
	}
	if c.Scale != 0 {
		out.Center, out.Scale = c.Center+mean*c.Scale, c.Scale*sd
	} else {
		out.Center, out.Scale = mean, sd
	}
	return out
}
