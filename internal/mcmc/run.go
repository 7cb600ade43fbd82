package mcmc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/errors"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/logger"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/model"
	"github.com/facuxpalacio/multi-season-occupancy-and-N-mixture-models/internal/observability/metrics"
)

// Run fits m with opts.Chains independent chains. Chains run concurrently,
// at most opts.MaxParallel at a time when it is positive. Each chain owns its
// random stream, derived from opts.Seed and the chain index, so a fit is
// reproducible regardless of scheduling. The first failing chain cancels
// the others; a cancelled ctx stops every chain at its next iteration.
func Run(ctx context.Context, m *model.Model, opts Options) (*Fit, error) {
	if m == nil {
		return nil, errors.Newf("mcmc: nil model").
			Component("mcmc").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New()
	ctx = logger.WithRunID(ctx, runID.String())
	log := GetLogger().WithContext(ctx).With(logger.String("model", m.Name()))
	rec := opts.recorder()
	started := time.Now()

	log.Info("starting MCMC run",
		logger.Int("chains", opts.Chains),
		logger.Int("iterations", opts.Iterations),
		logger.Int("burnin", opts.Burnin),
		logger.Int("thin", opts.Thin),
		logger.Int("retained", opts.Retained()),
		logger.Int("free_params", len(m.FreeParams())),
		logger.Uint64("seed", opts.Seed))

	g, gctx := errgroup.WithContext(ctx)
	if opts.MaxParallel > 0 {
		g.SetLimit(opts.MaxParallel)
	}
	results := make(chan *Chain, opts.Chains)
	for c := range opts.Chains {
		g.Go(func() error {
			chain, err := runChain(gctx, m, opts, c, log)
			if err != nil {
				return err
			}
			results <- chain
			return nil
		})
	}
	err := g.Wait()
	close(results)

	elapsed := time.Since(started)
	rec.RecordDuration(metrics.OpRun, elapsed.Seconds())
	if err != nil {
		status, category := metrics.StatusError, errors.CategorySampling
		if ctx.Err() != nil {
			status, category = metrics.StatusCancelled, errors.CategoryCancellation
			log.Warn("MCMC run cancelled", logger.Duration("elapsed", elapsed))
		} else {
			log.Error("MCMC run failed", logger.Error(err), logger.Duration("elapsed", elapsed))
		}
		rec.RecordOperation(metrics.OpRun, status)
		rec.RecordError(metrics.OpRun, string(category))
		if errors.IsCategory(err, category) {
			return nil, err
		}
		return nil, errors.New(err).
			Component("mcmc").
			Category(category).
			Context("run_id", runID.String()).
			Timing("mcmc_run", elapsed).
			Build()
	}

	fit := &Fit{
		RunID:   runID,
		Model:   m,
		Options: opts,
		Chains:  make([]*Chain, opts.Chains),
		Started: started,
		Elapsed: elapsed,
	}
	for c := range results {
		fit.Chains[c.Index] = c
	}
	rec.RecordOperation(metrics.OpRun, metrics.StatusSuccess)
	log.Info("MCMC run completed",
		logger.Duration("elapsed", elapsed),
		logger.Int("draws_per_chain", opts.Retained()))
	return fit, nil
}

func runChain(ctx context.Context, m *model.Model, opts Options, index int, log logger.Logger) (*Chain, error) {
	rec := opts.recorder()
	rec.ChainStarted(m.Name())
	defer rec.ChainFinished(m.Name())

	start := time.Now()
	s, err := newSampler(m, opts, index)
	if err != nil {
		rec.RecordOperation(metrics.OpChain, metrics.StatusError)
		return nil, err
	}
	err = s.run(ctx)
	s.chain.Elapsed = time.Since(start)
	rec.RecordDuration(metrics.OpChain, s.chain.Elapsed.Seconds())
	if err != nil {
		status := metrics.StatusError
		if errors.IsCategory(err, errors.CategoryCancellation) {
			status = metrics.StatusCancelled
		}
		rec.RecordOperation(metrics.OpChain, status)
		return nil, err
	}

	for name, rate := range s.chain.Acceptance {
		rec.ObserveAcceptance(m.Name(), name, rate)
	}
	rec.RecordOperation(metrics.OpChain, metrics.StatusSuccess)
	log.Debug("chain finished",
		logger.Int("chain", index),
		logger.Duration("elapsed", s.chain.Elapsed),
		logger.Int("draws", s.chain.Len()))
	return s.chain, nil
}
