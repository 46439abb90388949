// Package scheduler keeps the job queue healthy while workers come and go.
// On start it requeues jobs left running by a previous process; each tick it
// requeues claims whose lease expired and prunes old job_log rows.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/docscribe/internal/config"
	"github.com/mattjoyce/docscribe/internal/events"
	"github.com/mattjoyce/docscribe/internal/queue"
)

const (
	reasonOrphaned     = "orphaned by restart"
	reasonLeaseExpired = "lease expired"
)

// Scheduler runs queue maintenance on a fixed interval.
type Scheduler struct {
	cfg    config.ServiceConfig
	queue  QueueService
	events *events.Hub
	logger *slog.Logger
	now    func() time.Time
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler. A nil hub gets a private one.
func New(cfg config.ServiceConfig, q QueueService, hub *events.Hub, logger *slog.Logger) *Scheduler {
	if hub == nil {
		hub = events.NewHub(128)
	}
	return &Scheduler{
		cfg:    cfg,
		queue:  q,
		events: hub,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// Start recovers orphaned jobs, then begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler", "tick_interval", s.cfg.TickInterval, "job_lease", s.cfg.JobLease)

	if err := s.recoverOrphanedJobs(ctx); err != nil {
		return fmt.Errorf("scheduler crash recovery failed: %w", err)
	}

	s.wg.Add(1)
	go s.tickLoop(ctx)
	return nil
}

// Stop ends the tick loop and waits for it to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick performs a single maintenance pass.
func (s *Scheduler) tick(ctx context.Context) {
	s.logger.Debug("Scheduler tick")

	if s.cfg.JobLease > 0 {
		cutoff := s.now().Add(-s.cfg.JobLease)
		expired, err := s.queue.FindRunning(ctx, cutoff)
		if err != nil {
			s.logger.Error("Failed to find expired leases", "error", err)
		} else {
			for _, job := range expired {
				s.requeue(ctx, job, reasonLeaseExpired)
			}
		}
	}

	if s.cfg.JobLogRetention > 0 {
		n, err := s.queue.PruneJobLogs(ctx, s.cfg.JobLogRetention)
		if err != nil {
			s.logger.Error("Failed to prune job logs", "error", err)
		} else if n > 0 {
			s.logger.Info("Pruned job logs", "rows", n, "retention", s.cfg.JobLogRetention)
		}
	}
}

// recoverOrphanedJobs requeues every job still marked running at startup.
// Only one process holds the state lock, so none of them has a live worker.
func (s *Scheduler) recoverOrphanedJobs(ctx context.Context) error {
	running, err := s.queue.FindRunning(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to find running jobs for recovery: %w", err)
	}
	if len(running) == 0 {
		s.logger.Info("No orphaned jobs found")
		return nil
	}

	s.logger.Warn("Found orphaned jobs, attempting recovery", "count", len(running))
	for _, job := range running {
		s.requeue(ctx, job, reasonOrphaned)
	}
	return nil
}

func (s *Scheduler) requeue(ctx context.Context, job *queue.Job, reason string) {
	attempt := job.Attempt + 1
	status, err := s.queue.Requeue(ctx, job.ID, attempt, reason)
	if errors.Is(err, queue.ErrJobNotRunning) || errors.Is(err, queue.ErrJobNotFound) {
		// Completed between the scan and the update.
		s.logger.Debug("Skipped requeue", "job_id", job.ID, "error", err)
		return
	}
	if err != nil {
		s.logger.Error("Failed to requeue job", "job_id", job.ID, "kind", job.Kind, "reason", reason, "error", err)
		return
	}

	if status == queue.StatusDead {
		s.logger.Error("Marking job as dead (max attempts reached)",
			"job_id", job.ID, "kind", job.Kind, "reason", reason, "final_attempt", attempt)
	} else {
		s.logger.Warn("Re-queueing job",
			"job_id", job.ID, "kind", job.Kind, "reason", reason, "new_attempt", attempt)
	}
	s.events.Publish(events.TypeJobRequeued, map[string]any{
		"job_id":  job.ID,
		"kind":    job.Kind,
		"attempt": attempt,
		"reason":  reason,
		"status":  string(status),
	})
}
