package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"banksync/pkg/models"
)

// ErrPermanent marks a failure that retrying cannot fix. The consumer
// dead-letters the job immediately without burning the remaining attempts.
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err as a non-retryable failure
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Handler processes dequeued email jobs
type Handler interface {
	// Handle processes one job. A nil return completes the job; an error
	// wrapping ErrPermanent dead-letters it immediately; any other error
	// triggers a retry with backoff.
	Handle(ctx context.Context, job *models.EmailJob) error

	// HandleDead runs once when a job exhausts its retries, before the row
	// is marked dead. The handler writes its dead-letter record here.
	HandleDead(ctx context.Context, job *models.EmailJob, cause error)
}

// Consumer pulls jobs with a fixed-size worker pool. A token-bucket rate
// limiter caps total throughput across all workers.
type Consumer struct {
	queue        *Queue
	handler      Handler
	logger       *slog.Logger
	concurrency  int
	limiter      *rate.Limiter
	pollInterval time.Duration
}

// NewConsumer creates a consumer with the given parallelism and a
// perMinute throughput cap
func NewConsumer(q *Queue, handler Handler, logger *slog.Logger, concurrency, perMinute int) *Consumer {
	return &Consumer{
		queue:        q,
		handler:      handler,
		logger:       logger.With("component", "consumer"),
		concurrency:  concurrency,
		limiter:      rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), concurrency),
		pollInterval: time.Second,
	}
}

// Run blocks until ctx is cancelled, processing jobs on the worker pool
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("starting consumer", "concurrency", c.concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.concurrency; i++ {
		g.Go(func() error {
			return c.worker(ctx)
		})
	}

	err := g.Wait()
	c.logger.Info("consumer stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) worker(ctx context.Context) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		job, err := c.queue.Dequeue(ctx)
		if err != nil {
			c.logger.Error("failed to dequeue", "error", err)
			job = nil
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.pollInterval):
			}
			continue
		}

		c.process(ctx, job)
	}
}

func (c *Consumer) process(ctx context.Context, job *Job) {
	var payload models.EmailJob
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		// An unreadable payload will never become readable
		c.logger.Error("undecodable job payload", "job_id", job.ID, "error", err)
		if err := c.queue.MarkDead(ctx, job, err); err != nil {
			c.logger.Error("failed to mark job dead", "job_id", job.ID, "error", err)
		}
		return
	}

	err := c.handler.Handle(ctx, &payload)
	switch {
	case err == nil:
		if err := c.queue.Complete(ctx, job); err != nil {
			c.logger.Error("failed to complete job", "job_id", job.ID, "error", err)
		}

	case errors.Is(err, ErrPermanent):
		// The handler already recorded its dead-letter entry
		c.logger.Warn("job failed permanently", "job_id", job.ID, "error", err)
		if err := c.queue.MarkDead(ctx, job, err); err != nil {
			c.logger.Error("failed to mark job dead", "job_id", job.ID, "error", err)
		}

	default:
		c.logger.Warn("job failed",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"max_attempts", job.MaxAttempts,
			"error", err,
		)
		exhausted, failErr := c.queue.Fail(ctx, job, err)
		if failErr != nil {
			c.logger.Error("failed to record job failure", "job_id", job.ID, "error", failErr)
			return
		}
		if exhausted {
			c.handler.HandleDead(ctx, &payload, err)
		}
	}
}
