package survey

import (
	"fmt"
	"slices"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
)

// Dataset is the immutable input of one model fit: the count tensor and its covariates.
type Dataset struct {
	Dims       Dims
	Counts     *Counts
	Covariates []*Covariate
}

// NewDataset assembles and validates a dataset.
func NewDataset(counts *Counts, covariates ...*Covariate) (*Dataset, error) {
	if counts == nil {
		return nil, errors.Newf("dataset requires a count tensor").
			Component("survey").
			Category(errors.CategoryValidation).
			Build()
	}
	ds := &Dataset{Dims: counts.Dims(), Counts: counts, Covariates: covariates}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Validate checks that every tensor agrees with Dims and names are unique.
func (d *Dataset) Validate() error {
	if err := d.Dims.Validate(); err != nil {
		return err
	}
	if d.Counts == nil {
		return errors.Newf("dataset has no count tensor").
			Component("survey").
			Category(errors.CategoryValidation).
			Build()
	}
	if d.Counts.Dims() != d.Dims {
		return errors.New(fmt.Errorf("%w: counts are %s, dataset is %s", ErrShapeMismatch, d.Counts.Dims(), d.Dims)).
			Component("survey").
			Category(errors.CategoryValidation).
			Build()
	}

	seen := make(map[string]bool, len(d.Covariates))
	for _, c := range d.Covariates {
		if c == nil || c.Name == "" {
			return errors.Newf("covariate without a name").
				Component("survey").
				Category(errors.CategoryValidation).
				Build()
		}
		if seen[c.Name] {
			return errors.Newf("duplicate covariate %q", c.Name).
				Component("survey").
				Category(errors.CategoryValidation).
				Build()
		}
		seen[c.Name] = true
		if err := c.Validate(d.Dims); err != nil {
			return err
		}
	}
	return nil
}

// Covariate looks up a covariate by name.
func (d *Dataset) Covariate(name string) (*Covariate, bool) {
	for _, c := range d.Covariates {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// CovariateNames returns covariate names in dataset order.
func (d *Dataset) CovariateNames() []string {
	names := make([]string, len(d.Covariates))
	for i, c := range d.Covariates {
		names[i] = c.Name
	}
	return names
}

// HasMissingCovariates reports whether any covariate still has missing slots.
func (d *Dataset) HasMissingCovariates() bool {
	return slices.ContainsFunc(d.Covariates, (*Covariate).HasMissing)
}

// Backfill returns a dataset whose covariates have their missing slots set to
// placeholder. Missing counts are preserved.
func (d *Dataset) Backfill(placeholder float64) *Dataset {
	out := &Dataset{Dims: d.Dims, Counts: d.Counts, Covariates: make([]*Covariate, len(d.Covariates))}
	for i, c := range d.Covariates {
		out.Covariates[i] = c.Backfill(placeholder)
	}
	return out
}

// Standardize returns a dataset with the named continuous covariates centred and
// scaled. With no names, every continuous covariate is standardized.
func (d *Dataset) Standardize(names ...string) *Dataset {
	out := &Dataset{Dims: d.Dims, Counts: d.Counts, Covariates: make([]*Covariate, len(d.Covariates))}
	for i, c := range d.Covariates {
		if len(names) == 0 || slices.Contains(names, c.Name) {
			out.Covariates[i] = c.Standardize()
		} else {
			out.Covariates[i] = c
		}
	}
	return out
}

// WithCounts returns a dataset sharing the covariates but using counts.
func (d *Dataset) WithCounts(counts *Counts) (*Dataset, error) {
	return NewDataset(counts, d.Covariates...)
}
