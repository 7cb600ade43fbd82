package mcmc

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
)

// DevianceName is the monitored name of the per-draw deviance.
const DevianceName = "deviance"

// ErrUnknownQuantity is returned for a monitored name the fit does not hold.
var ErrUnknownQuantity = errors.NewStd("unknown monitored quantity")

// Chain is the retained record of one chain. Params and N are flat arenas of
// Len() rows; row k holds the k-th retained draw.
type Chain struct {
	Index  int
	Stream uint64

	Params   []float64 // Len() x NumParams
	N        []int     // Len() x Cells
	Deviance []float64

	// Acceptance is the post burn-in acceptance rate of every free parameter
	// and of the latent moves ("N.initial", "N.survivors", "N.recruits", "N.shift").
	Acceptance map[string]float64
	Elapsed    time.Duration

	numParams int
	cells     int
	model     *model.Model
}

func newChain(m *model.Model, index int, stream uint64, retained int) *Chain {
	cells := m.Dims().Cells()
	return &Chain{
		Index:      index,
		Stream:     stream,
		Params:     make([]float64, 0, retained*m.NumParams()),
		N:          make([]int, 0, retained*cells),
		Deviance:   make([]float64, 0, retained),
		Acceptance: make(map[string]float64),
		numParams:  m.NumParams(),
		cells:      cells,
		model:      m,
	}
}

// Len returns the number of retained draws.
func (c *Chain) Len() int { return len(c.Deviance) }

// Draw returns the parameter vector of draw k. The slice aliases the arena.
func (c *Chain) Draw(k int) []float64 {
	return c.Params[k*c.numParams : (k+1)*c.numParams]
}

// Abundance returns the N matrix of draw k, indexed by Dims.Cell. The slice
// aliases the arena.
func (c *Chain) Abundance(k int) []int {
	return c.N[k*c.cells : (k+1)*c.cells]
}

// Draws returns the trace of a monitored quantity: a parameter name,
// "deviance", or "N[site,season]" with 1-based indexes.
func (c *Chain) Draws(name string) ([]float64, error) {
	if name == DevianceName {
		return slices.Clone(c.Deviance), nil
	}
	if i, ok := c.model.ParamIndex(name); ok {
		out := make([]float64, c.Len())
		for k := range out {
			out[k] = c.Params[k*c.numParams+i]
		}
		return out, nil
	}
	var site, season int
	if n, err := fmt.Sscanf(name, "N[%d,%d]", &site, &season); err == nil && n == 2 {
		d := c.model.Dims()
		if site >= 1 && site <= d.Sites && season >= 1 && season <= d.Seasons {
			cell := d.Cell(site-1, season-1)
			out := make([]float64, c.Len())
			for k := range out {
				out[k] = float64(c.N[k*c.cells+cell])
			}
			return out, nil
		}
	}
	return nil, errors.New(fmt.Errorf("%w: %q", ErrUnknownQuantity, name)).
		Component("mcmc").
		Category(errors.CategoryNotFound).
		Build()
}

func (c *Chain) record(theta []float64, st *model.State, deviance float64) {
	c.Params = append(c.Params, theta...)
	c.N = append(c.N, st.N...)
	c.Deviance = append(c.Deviance, deviance)
}

// Fit is the output of Run: every chain, kept in full for diagnostics.
type Fit struct {
	RunID   uuid.UUID
	Model   *model.Model
	Options Options
	Chains  []*Chain
	Started time.Time
	Elapsed time.Duration
}

// AllChains returns the indexes of every chain.
func (f *Fit) AllChains() []int {
	idx := make([]int, len(f.Chains))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Select returns the chains with the given indexes, in order.
func (f *Fit) Select(indexes []int) ([]*Chain, error) {
	out := make([]*Chain, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(f.Chains) || f.Chains[i] == nil {
			return nil, errors.Newf("chain %d does not exist in a fit of %d chains", i, len(f.Chains)).
				Component("mcmc").
				Category(errors.CategoryNotFound).
				Build()
		}
		out = append(out, f.Chains[i])
	}
	return out, nil
}

// Traces returns one trace of name per selected chain.
func (f *Fit) Traces(name string, indexes []int) ([][]float64, error) {
	chains, err := f.Select(indexes)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(chains))
	for k, c := range chains {
		if out[k], err = c.Draws(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Pooled concatenates the traces of name over the selected chains.
func (f *Fit) Pooled(name string, indexes []int) ([]float64, error) {
	traces, err := f.Traces(name, indexes)
	if err != nil {
		return nil, err
	}
	return slices.Concat(traces...), nil
}

// AbundanceNames returns "N[i,t]" for every cell in site-major order.
func AbundanceNames(m *model.Model) []string {
	d := m.Dims()
	out := make([]string, 0, d.Cells())
	for i := range d.Sites {
		for t := range d.Seasons {
			out = append(out, fmt.Sprintf("N[%d,%d]", i+1, t+1))
		}
	}
	return out
}
