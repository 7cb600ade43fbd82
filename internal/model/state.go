package model

import (
	"fmt"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/survey"
)

// State is the latent abundance arena. N and S are flat site x season
// buffers; S at season 0 is unused and kept at zero. Recruits are N - S.
type State struct {
	dims survey.Dims
	N    []int
	S    []int
}

// NewState allocates a zeroed state.
func NewState(d survey.Dims) *State {
	return &State{dims: d, N: make([]int, d.Cells()), S: make([]int, d.Cells())}
}

// Dims returns the state dimensions.
func (s *State) Dims() survey.Dims { return s.dims }

// Abundance returns N[site, season].
func (s *State) Abundance(site, season int) int { return s.N[s.dims.Cell(site, season)] }

// Survivors returns S[site, season].
func (s *State) Survivors(site, season int) int { return s.S[s.dims.Cell(site, season)] }

// Recruits returns G[site, season] = N - S.
func (s *State) Recruits(site, season int) int {
	cell := s.dims.Cell(site, season)
	return s.N[cell] - s.S[cell]
}

// CopyFrom overwrites s with other without allocating.
func (s *State) CopyFrom(other *State) {
	copy(s.N, other.N)
	copy(s.S, other.S)
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := NewState(s.dims)
	out.CopyFrom(s)
	return out
}

// Check verifies the structural constraints of the latent chain against m:
// N >= max(y), 0 <= S <= N[t-1], S <= N.
func (s *State) Check(m *Model) error {
	d := s.dims
	for i := range d.Sites {
		for t := range d.Seasons {
			cell := d.Cell(i, t)
			n, sv := s.N[cell], s.S[cell]
			var problem string
			switch {
			case n < m.MaxCount(i, t):
				problem = fmt.Sprintf("N=%d below max count %d", n, m.MaxCount(i, t))
			case t == 0 && sv != 0:
				problem = fmt.Sprintf("season 1 has %d survivors", sv)
			case t > 0 && (sv < 0 || sv > s.N[cell-1] || sv > n):
				problem = fmt.Sprintf("survivors %d outside [0, min(%d, %d)]", sv, s.N[cell-1], n)
			}
			if problem != "" {
				return errors.Newf("invalid latent state at site %d season %d: %s", i, t, problem).
					Component("model").
					Category(errors.CategoryState).
					Build()
			}
		}
	}
	return nil
}
