package survey

import (
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
)

// File is the on-disk contract produced by the data-preparation step.
// Counts and covariate values are nested arrays in axis order; null marks a
// missing slot. JSON documents decode too since YAML is a superset.
//
//	dims: {sites: 2, seasons: 2, visits: 3}
//	counts:
//	  - [[1, 2, null], [0, 0, 1]]
//	  - [[3, 1, 2], [null, null, null]]
//	covariates:
//	  - name: hour
//	    level: observation
//	    values: [[[6, 7, null], [6, 8, 9]], [[7, 7, 8], [null, null, null]]]
//	  - name: habitat_type
//	    level: site
//	    categories: [forest, grassland]
//	    values: [forest, grassland]
type File struct {
	Dims       Dims            `yaml:"dims"`
	Counts     []any           `yaml:"counts"`
	Covariates []CovariateFile `yaml:"covariates,omitempty"`
}

// CovariateFile is the on-disk form of a covariate.
type CovariateFile struct {
	Name       string   `yaml:"name"`
	Level      Level    `yaml:"level"`
	Categories []string `yaml:"categories,omitempty"`
	Values     []any    `yaml:"values"`
}

// Load reads a dataset file.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileError(fmt.Errorf("failed to open dataset: %w", err), path)
	}
	defer func() { _ = f.Close() }()

	ds, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	return ds, nil
}

// Decode parses a dataset document and validates it.
func Decode(r io.Reader) (*Dataset, error) {
	var doc File
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.New(fmt.Errorf("failed to decode dataset: %w", err)).
			Component("survey").
			Category(errors.CategoryFileParsing).
			Build()
	}
	return doc.Dataset()
}

// Dataset converts the document into a validated Dataset.
func (f *File) Dataset() (*Dataset, error) {
	counts, err := NewCounts(f.Dims)
	if err != nil {
		return nil, err
	}

	flat, err := flatten("counts", f.Counts, []int{f.Dims.Sites, f.Dims.Seasons, f.Dims.Visits})
	if err != nil {
		return nil, err
	}
	for i, cell := range flat {
		if cell == nil {
			continue
		}
		v, ok := toFloat(cell)
		if !ok || v != math.Trunc(v) || v < 0 {
			return nil, errors.Newf("counts[%d]: %v is not a non-negative integer", i, cell).
				Component("survey").
				Category(errors.CategoryValidation).
				Build()
		}
		counts.slots[i] = Observed(int(v))
	}

	covs := make([]*Covariate, 0, len(f.Covariates))
	for _, cf := range f.Covariates {
		c, err := cf.covariate(f.Dims)
		if err != nil {
			return nil, err
		}
		covs = append(covs, c)
	}

	return NewDataset(counts, covs...)
}

func (cf CovariateFile) covariate(d Dims) (*Covariate, error) {
	shape := cf.Level.Shape(d)
	if shape == nil {
		return nil, errors.Newf("covariate %q has unknown level %q", cf.Name, cf.Level).
			Component("survey").
			Category(errors.CategoryValidation).
			Build()
	}
	flat, err := flatten(cf.Name, cf.Values, shape)
	if err != nil {
		return nil, err
	}

	c := &Covariate{
		Name:        cf.Name,
		Level:       cf.Level,
		Categorical: len(cf.Categories) > 0,
		LevelNames:  cf.Categories,
		Values:      make([]float64, len(flat)),
	}
	for i, cell := range flat {
		if cell == nil {
			if c.Missing == nil {
				c.Missing = make([]bool, len(flat))
			}
			c.Missing[i] = true
			continue
		}
		if c.Categorical {
			code := slices.Index(cf.Categories, fmt.Sprint(cell))
			if code < 0 {
				return nil, errors.Newf("covariate %q: %v is not one of %v", cf.Name, cell, cf.Categories).
					Component("survey").
					Category(errors.CategoryValidation).
					Build()
			}
			c.Values[i] = float64(code)
			continue
		}
		v, ok := toFloat(cell)
		if !ok {
			return nil, errors.Newf("covariate %q: %v is not numeric", cf.Name, cell).
				Component("survey").
				Category(errors.CategoryValidation).
				Build()
		}
		c.Values[i] = v
	}
	return c, nil
}

// flatten walks a nested sequence of the given shape in row-major order.
func flatten(name string, nested []any, shape []int) ([]any, error) {
	out := make([]any, 0, product(shape))
	var walk func(node []any, depth int, path []int) error
	walk = func(node []any, depth int, path []int) error {
		if len(node) != shape[depth] {
			return errors.New(fmt.Errorf("%w: %s%v has length %d, want %d", ErrShapeMismatch, name, path, len(node), shape[depth])).
				Component("survey").
				Category(errors.CategoryValidation).
				ShapeContext(name, shape, nil).
				Build()
		}
		for i, child := range node {
			if depth == len(shape)-1 {
				if _, nestedChild := child.([]any); nestedChild {
					return errors.New(fmt.Errorf("%w: %s%v is nested too deep", ErrShapeMismatch, name, append(path, i))).
						Component("survey").
						Category(errors.CategoryValidation).
						Build()
				}
				out = append(out, child)
				continue
			}
			seq, ok := child.([]any)
			if !ok {
				return errors.New(fmt.Errorf("%w: %s%v must be a sequence", ErrShapeMismatch, name, append(path, i))).
					Component("survey").
					Category(errors.CategoryValidation).
					Build()
			}
			if err := walk(seq, depth+1, append(slices.Clone(path), i)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(nested, 0, nil); err != nil {
		return nil, err
	}
	return out, nil
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// Encode writes ds in the File format.
func Encode(w io.Writer, ds *Dataset) error {
	doc := File{Dims: ds.Dims}
	d := ds.Dims

	doc.Counts = make([]any, d.Sites)
	for i := range d.Sites {
		seasons := make([]any, d.Seasons)
		for t := range d.Seasons {
			visits := make([]any, d.Visits)
			for j := range d.Visits {
				if c := ds.Counts.At(i, t, j); c.Observed {
					visits[j] = c.Value
				}
			}
			seasons[t] = visits
		}
		doc.Counts[i] = seasons
	}

	for _, c := range ds.Covariates {
		doc.Covariates = append(doc.Covariates, encodeCovariate(d, c))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.New(fmt.Errorf("failed to encode dataset: %w", err)).
			Component("survey").
			Category(errors.CategoryFileParsing).
			Build()
	}
	return enc.Close()
}

// Save writes ds to path.
func Save(path string, ds *Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.FileError(fmt.Errorf("failed to create dataset file: %w", err), path)
	}
	if err := Encode(f, ds); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.FileError(fmt.Errorf("failed to close dataset file: %w", err), path)
	}
	return nil
}

func encodeCovariate(d Dims, c *Covariate) CovariateFile {
	cell := func(i int) any {
		if !c.IsObserved(i) {
			return nil
		}
		if c.Categorical {
			return c.LevelNames[int(c.Values[i])]
		}
		return c.Values[i]
	}

	cf := CovariateFile{Name: c.Name, Level: c.Level, Categories: c.LevelNames}
	shape := c.Level.Shape(d)
	var build func(depth, offset int) []any
	build = func(depth, offset int) []any {
		out := make([]any, shape[depth])
		stride := product(shape[depth+1:])
		for k := range shape[depth] {
			if depth == len(shape)-1 {
				out[k] = cell(offset + k)
			} else {
				out[k] = build(depth+1, offset+k*stride)
			}
		}
		return out
	}
	cf.Values = build(0, 0)
	return cf
}
