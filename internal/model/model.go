package model

import (
	"fmt"
	"math"
	"slices"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

// Param describes one scalar of the parameter vector.
type Param struct {
	Name      string
	Process   Process
	Covariate string // empty for intercepts
	Level     string // dummy level of a categorical covariate
	Free      bool
	Lower     float64
	Upper     float64
}

// IsIntercept reports whether the parameter is a process baseline.
func (p Param) IsIntercept() bool { return p.Covariate == "" }

// Column is one design column of a process.
type Column struct {
	Param     int
	Covariate string
	Level     string
	// Mean is the observed mean of the column on the fitted scale: the
	// covariate mean for continuous covariates, the level proportion for
	// dummy columns. Slots filled by Backfill do not count.
	Mean float64
}

type block struct {
	process   Process
	link      Link
	intercept int
	columns   []Column
	units     int
	x         []float64 // units x len(columns), row-major
}

// Model is a compiled Spec bound to a dataset. It is read-only after Compile
// and safe for concurrent use by chains.
type Model struct {
	spec   Spec
	data   *survey.Dataset
	dims   survey.Dims
	params []Param
	index  map[string]int
	blocks [numProcesses]block

	y        []int // per slot, -1 when missing
	maxY     []int // per cell
	observed []bool
}

// Compile binds spec to ds. Every covariate applicable to a process gets a
// design column; its coefficient is free only when spec enables it.
func Compile(spec Spec, ds *survey.Dataset) (*Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, errors.Newf("model %q: no dataset", spec.Name).
			Component("model").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	for _, c := range ds.Covariates {
		if c.HasMissing() {
			return nil, errors.Newf("covariate %q has missing values: backfill with a placeholder before fitting", c.Name).
				Component("model").
				Category(errors.CategoryValidation).
				Context("covariate", c.Name).
				Build()
		}
	}
	if err := checkEffects(spec.Effects, ds); err != nil {
		return nil, err
	}

	m := &Model{
		spec:  Spec{Name: spec.Name, Effects: spec.Effects.Clone(), Priors: spec.Priors},
		data:  ds,
		dims:  ds.Dims,
		index: make(map[string]int),
	}
	for _, p := range Processes {
		m.compileBlock(p)
	}
	m.indexCounts()
	return m, nil
}

func checkEffects(effects Effects, ds *survey.Dataset) error {
	for _, p := range Processes {
		for _, name := range effects[p] {
			c, ok := ds.Covariate(name)
			if !ok {
				return errors.Newf("%s effect references unknown covariate %q", p, name).
					Component("model").
					Category(errors.CategoryModel).
					Context("process", p.String()).
					Build()
			}
			if !slices.Contains(p.Levels(), c.Level) {
				return errors.Newf("covariate %q is %s-level and cannot vary %s", name, c.Level, p).
					Component("model").
					Category(errors.CategoryModel).
					Context("process", p.String()).
					Build()
			}
		}
	}
	return nil
}

func (m *Model) addParam(p Param) int {
	i := len(m.params)
	m.params = append(m.params, p)
	m.index[p.Name] = i
	return i
}

func (m *Model) compileBlock(p Process) {
	b := &m.blocks[p]
	b.process = p
	b.link = p.Link()

	lower, upper := 0.0, 1.0
	switch p {
	case Abundance:
		upper = m.spec.Priors.LambdaMax
	case Recruitment:
		upper = m.spec.Priors.GammaMax
	}
	b.intercept = m.addParam(Param{Name: p.Intercept(), Process: p, Free: true, Lower: lower, Upper: upper})

	switch p {
	case Abundance:
		b.units = m.dims.Sites
	case Survival, Recruitment:
		b.units = m.dims.Cells()
	default:
		b.units = m.dims.Slots()
	}

	var covs []*survey.Covariate
	for _, c := range m.data.Covariates {
		if !slices.Contains(p.Levels(), c.Level) {
			continue
		}
		covs = append(covs, c)
		free := m.spec.Effects.Enabled(p, c.Name)
		if !c.Categorical {
			b.columns = append(b.columns, Column{
				Param: m.addParam(Param{
					Name: p.Intercept() + "." + c.Name, Process: p, Covariate: c.Name,
					Free: free, Lower: math.Inf(-1), Upper: math.Inf(1),
				}),
				Covariate: c.Name,
				Mean:      c.Mean(),
			})
			continue
		}
		for code, level := range c.LevelNames[1:] {
			b.columns = append(b.columns, Column{
				Param: m.addParam(Param{
					Name: fmt.Sprintf("%s.%s[%s]", p.Intercept(), c.Name, level), Process: p,
					Covariate: c.Name, Level: level,
					Free: free, Lower: math.Inf(-1), Upper: math.Inf(1),
				}),
				Covariate: c.Name,
				Level:     level,
				Mean:      levelShare(c, float64(code+1)),
			})
		}
	}

	k := len(b.columns)
	b.x = make([]float64, b.units*k)
	col := 0
	for _, c := range covs {
		width := 1
		if c.Categorical {
			width = len(c.LevelNames) - 1
		}
		for u := range b.units {
			site, season, visit := m.unitIndex(p, u)
			v := c.At(m.dims, site, season, visit)
			if !c.Categorical {
				b.x[u*k+col] = v
				continue
			}
			if code := int(v); code > 0 {
				b.x[u*k+col+code-1] = 1
			}
		}
		col += width
	}
}

func levelShare(c *survey.Covariate, code float64) float64 {
	n, total := 0, 0
	for i, v := range c.Values {
		if !c.IsObserved(i) {
			continue
		}
		total++
		if v == code {
			n++
		}
	}
	if total == 0 {
		return math.NaN()
	}
	return float64(n) / float64(total)
}

// unitIndex maps a unit of process p back to survey coordinates.
func (m *Model) unitIndex(p Process, u int) (site, season, visit int) {
	d := m.dims
	switch p {
	case Abundance:
		return u, 0, 0
	case Survival, Recruitment:
		return u / d.Seasons, u % d.Seasons, 0
	default:
		visit = u % d.Visits
		cell := u / d.Visits
		return cell / d.Seasons, cell % d.Seasons, visit
	}
}

func (m *Model) indexCounts() {
	d := m.dims
	m.y = make([]int, d.Slots())
	m.maxY = make([]int, d.Cells())
	m.observed = make([]bool, d.Cells())
	for i := range d.Sites {
		for t := range d.Seasons {
			cell := d.Cell(i, t)
			m.maxY[cell], m.observed[cell] = m.data.Counts.MaxCount(i, t)
			for j := range d.Visits {
				slot := d.Slot(i, t, j)
				if c := m.data.Counts.At(i, t, j); c.Observed {
					m.y[slot] = c.Value
				} else {
					m.y[slot] = -1
				}
			}
		}
	}
}

// Spec returns the compiled spec.
func (m *Model) Spec() Spec { return m.spec }

// Name returns the variant name.
func (m *Model) Name() string { return m.spec.Name }

// Dataset returns the dataset the model is bound to.
func (m *Model) Dataset() *survey.Dataset { return m.data }

// Dims returns the survey dimensions.
func (m *Model) Dims() survey.Dims { return m.dims }

// NumParams returns the length of the parameter vector.
func (m *Model) NumParams() int { return len(m.params) }

// Params returns the parameter descriptions in vector order.
func (m *Model) Params() []Param { return slices.Clone(m.params) }

// Param returns the description of parameter i.
func (m *Model) Param(i int) Param { return m.params[i] }

// ParamIndex looks up a parameter by name.
func (m *Model) ParamIndex(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// FreeParams returns the indexes of the free parameters.
func (m *Model) FreeParams() []int {
	var out []int
	for i, p := range m.params {
		if p.Free {
			out = append(out, i)
		}
	}
	return out
}

// FreeNames returns the names of the free parameters.
func (m *Model) FreeNames() []string {
	var out []string
	for _, p := range m.params {
		if p.Free {
			out = append(out, p.Name)
		}
	}
	return out
}

// Intercept returns the parameter index of the process baseline.
func (m *Model) Intercept(p Process) int { return m.blocks[p].intercept }

// Columns returns the design columns of process p.
func (m *Model) Columns(p Process) []Column { return slices.Clone(m.blocks[p].columns) }

// Units returns the number of values process p takes: sites, cells or slots.
func (m *Model) Units(p Process) int { return m.blocks[p].units }

// Count returns y at a slot and whether it was observed.
func (m *Model) Count(site, season, visit int) (int, bool) {
	y := m.y[m.dims.Slot(site, season, visit)]
	return y, y >= 0
}

// MaxCount returns the largest observed count at (site, season), 0 when the
// cell has no observations.
func (m *Model) MaxCount(site, season int) int { return m.maxY[m.dims.Cell(site, season)] }

// Observed reports whether any visit at (site, season) was observed.
func (m *Model) Observed(site, season int) bool { return m.observed[m.dims.Cell(site, season)] }

// Rates holds the natural-scale value of every process per unit: lambda per
// site, phi and gamma per cell, p per slot.
type Rates [numProcesses][]float64

// Of returns the values of process p.
func (r *Rates) Of(p Process) []float64 { return r[p] }

// NewRates allocates rate buffers sized for the model.
func (m *Model) NewRates() *Rates {
	var r Rates
	for _, p := range Processes {
		r[p] = make([]float64, m.blocks[p].units)
	}
	return &r
}

// Values writes the natural-scale values of process p under theta into dst.
func (m *Model) Values(p Process, theta, dst []float64) {
	b := &m.blocks[p]
	base := b.link.Inverse(theta[b.intercept])
	k := len(b.columns)

	active := false
	for _, c := range b.columns {
		if theta[c.Param] != 0 {
			active = true
			break
		}
	}
	if !active {
		v := b.link.Apply(base)
		for u := range dst[:b.units] {
			dst[u] = v
		}
		return
	}
	for u := range b.units {
		eta := base
		row := b.x[u*k : (u+1)*k]
		for c, col := range b.columns {
			eta += theta[col.Param] * row[c]
		}
		dst[u] = b.link.Apply(eta)
	}
}

// Fill recomputes every process in r under theta.
func (m *Model) Fill(theta []float64, r *Rates) {
	for _, p := range Processes {
		m.Values(p, theta, r[p])
	}
}

// PredictAt returns the natural-scale value of process p under theta with
// every design column at its observed mean, except covariates named in at
// which take the given value in raw units; standardized covariates rescale
// it first. Dummy columns of a categorical covariate in at are set from the
// level code.
func (m *Model) PredictAt(p Process, theta []float64, at map[string]float64) float64 {
	b := &m.blocks[p]
	eta := b.link.Inverse(theta[b.intercept])
	for _, col := range b.columns {
		x := col.Mean
		if v, ok := at[col.Covariate]; ok {
			c, _ := m.data.Covariate(col.Covariate)
			switch {
			case col.Level == "":
				x = c.Scaled(v)
			case int(v) > 0 && int(v) < len(c.LevelNames) && c.LevelNames[int(v)] == col.Level:
				x = 1
			default:
				x = 0
			}
		}
		eta += theta[col.Param] * x
	}
	return b.link.Apply(eta)
}
