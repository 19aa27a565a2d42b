// Package sweep is the reconciliation pass for jobs stranded in "processing"
// by a crashed or partitioned worker. A stale record is moved back to
// "queued" through the store's CAS and redelivered; the pipeline re-runs from
// the start rather than trusting a possibly-partial result file.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/turkicnlp/corpusd/internal/job"
)

// Enqueuer redelivers a job ID to the worker pool.
type Enqueuer interface {
	Enqueue(jobID string) error
}

// Sweeper periodically requeues stale processing jobs.
type Sweeper struct {
	store      job.Store
	queue      Enqueuer
	staleAfter time.Duration
	cron       *cron.Cron
}

func New(store job.Store, queue Enqueuer, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		store:      store,
		queue:      queue,
		staleAfter: staleAfter,
		cron:       cron.New(),
	}
}

// Start schedules the sweep with a cron spec (e.g. "@every 1m") and begins
// running it. Returns an error only for an invalid spec.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	_, err := s.cron.AddFunc(spec, func() { s.Sweep(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one reconciliation pass. Exported for direct invocation in tests
// and operational tooling.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.staleAfter)
	ids, err := s.store.StaleProcessing(ctx, cutoff)
	if err != nil {
		slog.Error("sweep: stale query failed", "error", err)
		return
	}

	for _, id := range ids {
		// CAS back to queued; a worker that finished in the meantime wrote a
		// terminal status and the guard simply misses.
		ok, err := s.store.SetIfStatus(ctx, id, job.StatusProcessing,
			job.SetStatus(job.StatusQueued))
		if err != nil {
			slog.Error("sweep: requeue failed", "job_id", id, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := s.queue.Enqueue(id); err != nil {
			// The record is back in "queued"; the next pass retries delivery.
			slog.Warn("sweep: enqueue failed", "job_id", id, "error", err)
			continue
		}
		slog.Info("sweep: requeued stale job", "job_id", id)
	}
}
