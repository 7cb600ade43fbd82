// Package survey holds the repeated-count survey tensor y[site, season, visit]
// together with its covariates, and the file contract used to exchange them.
package survey

import (
	"fmt"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
)

// ErrShapeMismatch is returned when a tensor does not match the survey dimensions.
var ErrShapeMismatch = errors.NewStd("tensor shape mismatch")

// ErrOutOfRange is returned when an index falls outside the survey dimensions.
var ErrOutOfRange = errors.NewStd("index out of range")

// Dims are the fixed axis sizes of a survey.
type Dims struct {
	Sites   int `yaml:"sites" json:"sites"`
	Seasons int `yaml:"seasons" json:"seasons"`
	Visits  int `yaml:"visits" json:"visits"`
}

// Validate checks that every axis is non-empty.
func (d Dims) Validate() error {
	if d.Sites <= 0 || d.Seasons <= 0 || d.Visits <= 0 {
		return errors.Newf("invalid survey dimensions %dx%dx%d: every axis must be positive",
			d.Sites, d.Seasons, d.Visits).
			Component("survey").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Cells returns the number of site/season cells.
func (d Dims) Cells() int { return d.Sites * d.Seasons }

// Slots returns the number of observation slots.
func (d Dims) Slots() int { return d.Sites * d.Seasons * d.Visits }

// Cell returns the flat index of (site, season).
func (d Dims) Cell(site, season int) int { return site*d.Seasons + season }

// Slot returns the flat index of (site, season, visit).
func (d Dims) Slot(site, season, visit int) int {
	return (site*d.Seasons+season)*d.Visits + visit
}

func (d Dims) String() string {
	return fmt.Sprintf("%d sites x %d seasons x %d visits", d.Sites, d.Seasons, d.Visits)
}

func (d Dims) contains(site, season, visit int) bool {
	return site >= 0 && site < d.Sites &&
		season >= 0 && season < d.Seasons &&
		visit >= 0 && visit < d.Visits
}

// Count is one observation slot. The zero value is a missing observation.
type Count struct {
	Value    int
	Observed bool
}

// Missing is the unobserved slot.
var Missing = Count{}

// Observed returns an observed count.
func Observed(v int) Count { return Count{Value: v, Observed: true} }

// Counts is the dense y[site, season, visit] tensor.
type Counts struct {
	dims  Dims
	slots []Count
}

// NewCounts returns a tensor with every slot missing.
func NewCounts(d Dims) (*Counts, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &Counts{dims: d, slots: make([]Count, d.Slots())}, nil
}

// Dims returns the tensor dimensions.
func (c *Counts) Dims() Dims { return c.dims }

// At returns the slot at (site, season, visit). Out-of-range indexes read as missing.
func (c *Counts) At(site, season, visit int) Count {
	if !c.dims.contains(site, season, visit) {
		return Missing
	}
	return c.slots[c.dims.Slot(site, season, visit)]
}

// Set records an observed count.
func (c *Counts) Set(site, season, visit, value int) error {
	if !c.dims.contains(site, season, visit) {
		return errors.New(fmt.Errorf("%w: y[%d,%d,%d] in %s", ErrOutOfRange, site, season, visit, c.dims)).
			Component("survey").
			Category(errors.CategoryValidation).
			Build()
	}
	if value < 0 {
		return errors.Newf("count y[%d,%d,%d]=%d must be non-negative", site, season, visit, value).
			Component("survey").
			Category(errors.CategoryValidation).
			Build()
	}
	c.slots[c.dims.Slot(site, season, visit)] = Observed(value)
	return nil
}

// SetMissing marks a slot as unobserved.
func (c *Counts) SetMissing(site, season, visit int) error {
	if !c.dims.contains(site, season, visit) {
		return errors.New(fmt.Errorf("%w: y[%d,%d,%d] in %s", ErrOutOfRange, site, season, visit, c.dims)).
			Component("survey").
			Category(errors.CategoryValidation).
			Build()
	}
	c.slots[c.dims.Slot(site, season, visit)] = Missing
	return nil
}

// MaxCount returns the largest observed count at (site, season) and whether any
// visit was observed at all.
func (c *Counts) MaxCount(site, season int) (int, bool) {
	maxCount, seen := 0, false
	base := c.dims.Slot(site, season, 0)
	for _, slot := range c.slots[base : base+c.dims.Visits] {
		if !slot.Observed {
			continue
		}
		seen = true
		if slot.Value > maxCount {
			maxCount = slot.Value
		}
	}
	return maxCount, seen
}

// ObservedCount returns the number of non-missing slots.
func (c *Counts) ObservedCount() int {
	n := 0
	for _, slot := range c.slots {
		if slot.Observed {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (c *Counts) Clone() *Counts {
	out := &Counts{dims: c.dims, slots: make([]Count, len(c.slots))}
	copy(out.slots, c.slots)
	return out
}
