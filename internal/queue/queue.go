// Package queue delivers job IDs to workers with at-least-once semantics.
// Delivery is in-process; the lifecycle controller's CAS discipline is what
// makes redelivery and cross-worker races safe, not anything here.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turkicnlp/corpusd/internal/job"
)

// Runner executes one delivery of a job. A non-nil error means the job could
// not transition at all (store unavailable) and the delivery is retried.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

const redeliveryDelay = time.Second

// Queue manages the pending job channel and the worker pool.
type Queue struct {
	jobs        chan string
	store       job.Store
	runner      Runner
	concurrency int

	group *errgroup.Group
}

// New creates a Queue with the given buffer size and worker count.
func New(store job.Store, runner Runner, size, concurrency int) *Queue {
	if size <= 0 {
		size = 1000
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Queue{
		jobs:        make(chan string, size),
		store:       store,
		runner:      runner,
		concurrency: concurrency,
	}
}

// Enqueue adds a job ID to the queue. Returns an error if the queue is full.
func (q *Queue) Enqueue(jobID string) error {
	select {
	case q.jobs <- jobID:
		return nil
	default:
		return fmt.Errorf("queue full: cannot enqueue job %s", jobID)
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	q.group = g
	for range q.concurrency {
		g.Go(func() error {
			q.runWorker(ctx)
			return nil
		})
	}
}

// Wait blocks until all workers have exited.
func (q *Queue) Wait() {
	if q.group != nil {
		q.group.Wait() //nolint:errcheck
	}
}

// Recovery resets "processing" jobs and re-enqueues them. Called once at
// startup, before Start, to pick up work interrupted by a crash.
func (q *Queue) Recovery(ctx context.Context) error {
	ids, err := q.store.ResetProcessing(ctx)
	if err != nil {
		return fmt.Errorf("reset processing: %w", err)
	}
	for _, id := range ids {
		if err := q.Enqueue(id); err != nil {
			slog.Warn("recovery: failed to enqueue job", "job_id", id, "error", err)
		}
	}
	return nil
}

// runWorker is a worker loop: dequeues jobs and hands them to the runner.
func (q *Queue) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-q.jobs:
			if err := q.runner.Run(ctx, jobID); err != nil {
				// Store unavailable: put the delivery back so a later
				// worker pass can retry once the store recovers.
				slog.Error("worker: job did not transition", "job_id", jobID, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(redeliveryDelay):
				}
				if err := q.Enqueue(jobID); err != nil {
					slog.Error("worker: redelivery dropped", "job_id", jobID, "error", err)
				}
			}
		}
	}
}
