package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"banksync/pkg/models"
)

// Scheduler drives periodic sync passes over all active sources. A single
// running flag guards against overlapping passes: when the previous pass is
// still in flight, the tick is skipped, not queued. The scheduler is
// single-instance; running two against the same mailbox is unsupported.
type Scheduler struct {
	store    SourceStore
	orch     *Orchestrator
	interval time.Duration
	logger   *slog.Logger
	running  atomic.Bool
}

// NewScheduler creates a scheduler
func NewScheduler(store SourceStore, orch *Orchestrator, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		orch:     orch,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
}

// Run blocks until ctx is cancelled. One pass runs immediately at startup,
// then on every interval tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("starting scheduler", "interval", s.interval)

	s.RunPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunPass(ctx)
		}
	}
}

// RunPass syncs every active source sequentially. One source's failure is
// logged, flips that source to error, and does not stop the others.
func (s *Scheduler) RunPass(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous sync pass still running, skipping")
		return
	}
	defer s.running.Store(false)

	sources, err := s.store.GetActiveSources(ctx)
	if err != nil {
		s.logger.Error("failed to load active sources", "error", err)
		return
	}

	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}

		result, err := s.orch.SyncSource(ctx, src)
		if err != nil {
			s.logger.Error("sync pass failed", "source_id", src.ID, "error", err)
			if statusErr := s.store.SetSourceStatus(ctx, src.ID, models.SourceStatusError); statusErr != nil {
				s.logger.Error("failed to set source status", "source_id", src.ID, "error", statusErr)
			}
			continue
		}

		s.logger.Debug("source synced",
			"source_id", src.ID,
			"fetched", result.EmailsFetched,
			"enqueued", result.JobsEnqueued,
		)
	}
}
