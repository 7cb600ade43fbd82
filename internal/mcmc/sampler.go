package mcmc

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
)

const (
	adaptBatch     = 50
	targetAccept   = 0.44
	maxAdaptStep   = 0.5
	maxMoveWidth   = 100
	goldenGamma    = 0x9E3779B97F4A7C15
	rateScaleBase  = 0.1
	probScale      = 0.1
	coefScale      = 0.25
	coefInitRadius = 0.5
)

// Latent moves. Every move is a symmetric integer random walk.
type move int

const (
	moveInitial   move = iota // N[i,1]
	moveSurvivors             // S and N together, G fixed
	moveRecruits              // G and N together, S fixed
	moveShift                 // S up, G down, N fixed
	numMoves
)

var moveNames = [numMoves]string{"N.initial", "N.survivors", "N.recruits", "N.shift"}

// counter tracks proposals in the current adaptation batch and after burn-in.
type counter struct {
	batchAcc, batchProp int
	acc, prop           int
}

func (c *counter) observe(accepted, post bool) {
	c.batchProp++
	if post {
		c.prop++
	}
	if !accepted {
		return
	}
	c.batchAcc++
	if post {
		c.acc++
	}
}

func (c *counter) batchRate() (float64, bool) {
	if c.batchProp == 0 {
		return 0, false
	}
	r := float64(c.batchAcc) / float64(c.batchProp)
	c.batchAcc, c.batchProp = 0, 0
	return r, true
}

func (c *counter) rate() (float64, bool) {
	if c.prop == 0 {
		return 0, false
	}
	return float64(c.acc) / float64(c.prop), true
}

// sampler is the state of one chain. It is not safe for concurrent use; Run
// gives every chain its own sampler.
type sampler struct {
	m     *model.Model
	opts  Options
	rng   *rand.Rand
	chain *Chain

	theta []float64
	free  []int
	st    *model.State
	rates *model.Rates
	spare *model.Rates

	logScale []float64 // per parameter, only free entries are used
	params   []counter
	width    [numMoves]int
	moves    [numMoves]counter
	batches  int
}

// streamFor derives the PCG stream of a chain with a splitmix64 finalizer so
// that consecutive chains and seeds get unrelated streams.
func streamFor(seed uint64, chain int) uint64 {
	z := seed + uint64(chain+1)*goldenGamma
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func newSampler(m *model.Model, opts Options, index int) (*sampler, error) {
	stream := streamFor(opts.Seed, index)
	s := &sampler{
		m:        m,
		opts:     opts,
		rng:      rand.New(rand.NewPCG(opts.Seed, stream)),
		chain:    newChain(m, index, stream, opts.Retained()),
		theta:    make([]float64, m.NumParams()),
		free:     m.FreeParams(),
		st:       model.NewState(m.Dims()),
		rates:    m.NewRates(),
		spare:    m.NewRates(),
		logScale: make([]float64, m.NumParams()),
		params:   make([]counter, m.NumParams()),
	}
	for k := range s.width {
		s.width[k] = 1
	}
	if err := s.initialize(); err != nil {
		return nil, errors.New(err).
			Component("mcmc").
			Category(errors.CategorySampling).
			Context("chain", index).
			Context("model", m.Name()).
			Build()
	}
	return s, nil
}

func (s *sampler) uniform(lo, hi float64) float64 {
	return distuv.Uniform{Min: lo, Max: hi, Src: s.rng}.Rand()
}

// meanMaxCount is the average over cells of the largest observed count.
func meanMaxCount(m *model.Model) float64 {
	d := m.Dims()
	var sum float64
	for i := range d.Sites {
		for t := range d.Seasons {
			sum += float64(m.MaxCount(i, t))
		}
	}
	return sum / float64(d.Cells())
}

// initialize draws dispersed starting values and a latent state that is
// consistent with the data: N at least the largest count plus the offset,
// survivors a phi share of the previous abundance.
func (s *sampler) initialize() error {
	m := s.m
	scale := 1 + meanMaxCount(m)

	for i := range m.NumParams() {
		p := m.Param(i)
		switch {
		case !p.Free:
			s.theta[i] = 0
		case !p.IsIntercept():
			s.theta[i] = s.uniform(-coefInitRadius, coefInitRadius)
			s.logScale[i] = math.Log(coefScale)
		case p.Process == model.Abundance:
			s.theta[i] = s.uniform(rateRange(0.5*scale, 2*scale, p.Upper))
			s.logScale[i] = math.Log(rateScaleBase * scale)
		case p.Process == model.Recruitment:
			s.theta[i] = s.uniform(rateRange(0.1, scale, p.Upper))
			s.logScale[i] = math.Log(rateScaleBase * scale)
		case p.Process == model.Survival:
			s.theta[i] = s.uniform(0.2, 0.9)
			s.logScale[i] = math.Log(probScale)
		default:
			s.theta[i] = s.uniform(0.2, 0.8)
			s.logScale[i] = math.Log(probScale)
		}
	}
	m.Fill(s.theta, s.rates)

	d := m.Dims()
	phi := s.rates.Of(model.Survival)
	for i := range d.Sites {
		for t := range d.Seasons {
			cell := d.Cell(i, t)
			n := m.MaxCount(i, t) + s.opts.InitOffset
			s.st.N[cell] = n
			if t == 0 {
				continue
			}
			prev := s.st.N[cell-1]
			s.st.S[cell] = min(prev, int(math.Round(phi[cell]*float64(prev))), n)
		}
	}
	if err := s.st.Check(m); err != nil {
		return err
	}
	if lj := m.LogJoint(s.theta, s.st, s.rates); math.IsInf(lj, -1) || math.IsNaN(lj) {
		return errors.Newf("initial values have zero posterior density").
			Component("mcmc").
			Category(errors.CategorySampling).
			Build()
	}
	return nil
}

// rateRange clips an initial range for a rate intercept below its prior bound.
func rateRange(lo, hi, upper float64) (float64, float64) {
	if hi >= upper {
		hi = 0.9 * upper
	}
	if lo >= hi {
		lo = hi / 2
	}
	return lo, hi
}

func (s *sampler) accept(logRatio float64) bool {
	return logRatio >= 0 || math.Log(s.rng.Float64()) < logRatio
}

// step draws a non-zero integer in [-w, w].
func (s *sampler) step(w int) int {
	k := 1 + s.rng.IntN(w)
	if s.rng.IntN(2) == 0 {
		return -k
	}
	return k
}

// run performs every iteration of the schedule, recording retained draws.
func (s *sampler) run(ctx context.Context) error {
	rec := s.opts.recorder()
	name := s.m.Name()
	pending := 0
	for it := range s.opts.Iterations {
		if err := ctx.Err(); err != nil {
			rec.AddIterations(name, pending)
			return errors.New(err).
				Component("mcmc").
				Category(errors.CategoryCancellation).
				Context("chain", s.chain.Index).
				Context("iteration", it).
				Build()
		}

		post := it >= s.opts.Burnin
		s.sweep(post)
		if s.opts.Adapt && !post && (it+1)%adaptBatch == 0 {
			s.adapt()
		}
		if s.opts.keep(it) {
			s.chain.record(s.theta, s.st, s.m.Deviance(s.st, s.rates.Of(model.Detection)))
		}

		pending++
		if s.opts.ProgressEvery > 0 && (it+1)%s.opts.ProgressEvery == 0 {
			rec.AddIterations(name, pending)
			pending = 0
			GetLogger().WithContext(ctx).Trace("chain progress",
				logger.Int("chain", s.chain.Index),
				logger.Int("iteration", it+1),
				logger.Float64("deviance", s.m.Deviance(s.st, s.rates.Of(model.Detection))))
		}
	}
	rec.AddIterations(name, pending)
	s.finish()
	return nil
}

// sweep updates every free parameter, then every latent cell.
func (s *sampler) sweep(post bool) {
	for _, i := range s.free {
		s.updateParam(i, post)
	}
	d := s.m.Dims()
	for i := range d.Sites {
		s.updateInitial(i, post)
		for t := 1; t < d.Seasons; t++ {
			s.updateSurvivors(i, t, post)
			s.updateRecruits(i, t, post)
			s.updateShift(i, t, post)
		}
	}
}

// updateParam is a Gaussian random-walk Metropolis step on parameter i. Only
// the process the parameter belongs to is recomputed.
func (s *sampler) updateParam(i int, post bool) {
	old := s.theta[i]
	prop := old + math.Exp(s.logScale[i])*s.rng.NormFloat64()
	lpNew := s.m.LogPrior(i, prop)
	if math.IsInf(lpNew, -1) {
		s.params[i].observe(false, post)
		return
	}

	p := s.m.Param(i).Process
	cur := s.rates[p]
	next := s.spare[p]
	s.theta[i] = prop
	s.m.Values(p, s.theta, next)

	logRatio := lpNew - s.m.LogPrior(i, old) +
		s.m.LogProcess(p, s.st, next) - s.m.LogProcess(p, s.st, cur)
	ok := s.accept(logRatio)
	if ok {
		s.rates[p], s.spare[p] = next, cur
	} else {
		s.theta[i] = old
	}
	s.params[i].observe(ok, post)
}

// nextSurvival is the survival term of season t+1 when N[i,t] = n.
func (s *sampler) nextSurvival(i, t, n int) float64 {
	d := s.m.Dims()
	if t+1 >= d.Seasons {
		return 0
	}
	next := d.Cell(i, t+1)
	return model.LogSurvival(s.st.S[next], n, s.rates[model.Survival][next])
}

// feasible reports whether N[i,t] = n respects the counts and the survivors
// of the following season.
func (s *sampler) feasible(i, t, n int) bool {
	d := s.m.Dims()
	if n < s.m.MaxCount(i, t) {
		return false
	}
	return t+1 >= d.Seasons || n >= s.st.S[d.Cell(i, t+1)]
}

// abundanceDelta is the change of the terms shared by every move that alters
// N[i,t]: the counts at (i,t) and the survival into t+1.
func (s *sampler) abundanceDelta(i, t, n, n2 int) float64 {
	p := s.rates[model.Detection]
	return s.m.LogObservationCell(i, t, n2, p) - s.m.LogObservationCell(i, t, n, p) +
		s.nextSurvival(i, t, n2) - s.nextSurvival(i, t, n)
}

func (s *sampler) updateInitial(i int, post bool) {
	c := &s.moves[moveInitial]
	cell := s.m.Dims().Cell(i, 0)
	n := s.st.N[cell]
	n2 := n + s.step(s.width[moveInitial])
	if !s.feasible(i, 0, n2) {
		c.observe(false, post)
		return
	}
	lambda := s.rates[model.Abundance][i]
	logRatio := model.LogInitial(n2, lambda) - model.LogInitial(n, lambda) + s.abundanceDelta(i, 0, n, n2)
	ok := s.accept(logRatio)
	if ok {
		s.st.N[cell] = n2
	}
	c.observe(ok, post)
}

func (s *sampler) updateSurvivors(i, t int, post bool) {
	c := &s.moves[moveSurvivors]
	cell := s.m.Dims().Cell(i, t)
	n, sv, prev := s.st.N[cell], s.st.S[cell], s.st.N[cell-1]
	k := s.step(s.width[moveSurvivors])
	sv2, n2 := sv+k, n+k
	if sv2 < 0 || sv2 > prev || !s.feasible(i, t, n2) {
		c.observe(false, post)
		return
	}
	phi := s.rates[model.Survival][cell]
	logRatio := model.LogSurvival(sv2, prev, phi) - model.LogSurvival(sv, prev, phi) + s.abundanceDelta(i, t, n, n2)
	ok := s.accept(logRatio)
	if ok {
		s.st.S[cell], s.st.N[cell] = sv2, n2
	}
	c.observe(ok, post)
}

func (s *sampler) updateRecruits(i, t int, post bool) {
	c := &s.moves[moveRecruits]
	cell := s.m.Dims().Cell(i, t)
	n := s.st.N[cell]
	g := n - s.st.S[cell]
	k := s.step(s.width[moveRecruits])
	g2, n2 := g+k, n+k
	if g2 < 0 || !s.feasible(i, t, n2) {
		c.observe(false, post)
		return
	}
	gamma := s.rates[model.Recruitment][cell]
	logRatio := model.LogRecruitment(g2, gamma) - model.LogRecruitment(g, gamma) + s.abundanceDelta(i, t, n, n2)
	ok := s.accept(logRatio)
	if ok {
		s.st.N[cell] = n2
	}
	c.observe(ok, post)
}

func (s *sampler) updateShift(i, t int, post bool) {
	c := &s.moves[moveShift]
	cell := s.m.Dims().Cell(i, t)
	n, sv, prev := s.st.N[cell], s.st.S[cell], s.st.N[cell-1]
	k := s.step(s.width[moveShift])
	sv2, g, g2 := sv+k, n-sv, n-sv-k
	if sv2 < 0 || sv2 > prev || g2 < 0 {
		c.observe(false, post)
		return
	}
	phi := s.rates[model.Survival][cell]
	gamma := s.rates[model.Recruitment][cell]
	logRatio := model.LogSurvival(sv2, prev, phi) - model.LogSurvival(sv, prev, phi) +
		model.LogRecruitment(g2, gamma) - model.LogRecruitment(g, gamma)
	ok := s.accept(logRatio)
	if ok {
		s.st.S[cell] = sv2
	}
	c.observe(ok, post)
}

// adapt nudges proposal scales toward the target acceptance rate after each
// burn-in batch, with a step that shrinks as batches accumulate.
func (s *sampler) adapt() {
	s.batches++
	delta := min(maxAdaptStep, 1/math.Sqrt(float64(s.batches)))
	for _, i := range s.free {
		if r, ok := s.params[i].batchRate(); ok {
			if r > targetAccept {
				s.logScale[i] += delta
			} else {
				s.logScale[i] -= delta
			}
		}
	}
	for k := range s.moves {
		r, ok := s.moves[k].batchRate()
		switch {
		case !ok:
		case r > targetAccept && s.width[k] < maxMoveWidth:
			s.width[k]++
		case r < targetAccept && s.width[k] > 1:
			s.width[k]--
		}
	}
}

// finish stores post burn-in acceptance rates on the chain.
func (s *sampler) finish() {
	for _, i := range s.free {
		if r, ok := s.params[i].rate(); ok {
			s.chain.Acceptance[s.m.Param(i).Name] = r
		}
	}
	for k, name := range moveNames {
		if r, ok := s.moves[k].rate(); ok {
			s.chain.Acceptance[name] = r
		}
	}
}
