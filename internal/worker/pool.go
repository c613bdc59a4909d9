// Package worker runs the fixed pool of executor slots that pull jobs from
// the dispatcher and supervise one generator process each.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/whale-professor/Solvan/internal/domain"
	"github.com/whale-professor/Solvan/internal/queue"
)

// Generator produces one result for one request. Implemented by
// keygen.Runner; tests substitute stubs.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.JobResult, error)
}

// persistTimeout bounds the detached persistence calls made after a job run,
// so terminal state still lands during shutdown.
const persistTimeout = 10 * time.Second

// claimBackoff spaces retries after an infrastructure error from Claim.
const claimBackoff = time.Second

// Pool owns the executor slots. Each slot handles one job at a time: claim,
// run the generator, write the result before signalling completion, settle
// exactly once. No job is ever retried; the search is expensive and its
// failure modes are treated as deterministic for the same inputs.
type Pool struct {
	slots   int
	disp    *queue.Dispatcher
	gen     Generator
	results domain.ResultRepository
	stats   domain.StatsRepository
	ttl     time.Duration
	log     zerolog.Logger
}

// NewPool creates a pool with the given number of slots.
func NewPool(slots int, disp *queue.Dispatcher, gen Generator, results domain.ResultRepository, stats domain.StatsRepository, resultTTL time.Duration, log zerolog.Logger) *Pool {
	if slots < 1 {
		slots = 1
	}
	return &Pool{
		slots:   slots,
		disp:    disp,
		gen:     gen,
		results: results,
		stats:   stats,
		ttl:     resultTTL,
		log:     log.With().Str("component", "worker").Logger(),
	}
}

// Run blocks until ctx is cancelled and every slot has drained.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info().Int("slots", p.slots).Msg("worker pool started")
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.slots; i++ {
		slot := i
		g.Go(func() error {
			return p.runSlot(ctx, slot)
		})
	}
	err := g.Wait()
	p.log.Info().Msg("worker pool stopped")
	return err
}

func (p *Pool) runSlot(ctx context.Context, slot int) error {
	log := p.log.With().Int("slot", slot).Logger()
	for {
		job, err := p.disp.Claim(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Error().Err(err).Msg("claim failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(claimBackoff):
			}
			continue
		}
		p.execute(ctx, log, job)
	}
}

func (p *Pool) execute(ctx context.Context, log zerolog.Logger, job *domain.Job) {
	log.Info().Str("job_id", job.ID).Str("pattern", job.Request.Pattern).Msg("job picked")
	started := time.Now()

	result, genErr := p.gen.Generate(ctx, job.Request)

	// Terminal state must land even when ctx is already cancelled.
	pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if genErr != nil {
		diagnostic := genErr.Error()
		settled, err := p.disp.Finish(pctx, job.ID, domain.JobStatusFailed, diagnostic)
		if err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("failed to settle job")
			return
		}
		if settled {
			log.Warn().Str("job_id", job.ID).Str("diagnostic", diagnostic).Msg("job failed")
		}
		return
	}

	// The store write precedes the completion signal so a woken waiter
	// finds the payload. An abandoned (flushed) job still gets its result
	// written; it simply expires via TTL with no consumer.
	if err := p.results.Put(pctx, job.ID, result, p.ttl); err != nil {
		if _, finishErr := p.disp.Finish(pctx, job.ID, domain.JobStatusFailed, "store result: "+err.Error()); finishErr != nil {
			log.Error().Err(finishErr).Str("job_id", job.ID).Msg("failed to settle job")
		}
		return
	}

	settled, err := p.disp.Finish(pctx, job.ID, domain.JobStatusCompleted, "")
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to settle job")
		return
	}
	if !settled {
		log.Info().Str("job_id", job.ID).Msg("job was settled elsewhere, result left to expire")
		return
	}

	stat := domain.GenerationStat{
		Timestamp:     time.Now().UTC(),
		OwnerID:       job.Request.OwnerID,
		SearchType:    job.Request.SearchType,
		Pattern:       job.Request.Pattern,
		CaseSensitive: job.Request.CaseSensitive,
		Address:       result.Address,
		Attempts:      result.Attempts,
		ElapsedMs:     time.Since(started).Milliseconds(),
	}
	if err := p.stats.Record(pctx, stat); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("stats record failed")
	}

	log.Info().
		Str("job_id", job.ID).
		Str("address", result.Address).
		Int64("attempts", result.Attempts).
		Msg("job completed")
}
