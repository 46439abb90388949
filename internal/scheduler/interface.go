package scheduler

import (
	"context"
	"time"

	"github.com/mattjoyce/docscribe/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks github.com/mattjoyce/docscribe/internal/scheduler QueueService

// QueueService defines the queue operations used by the scheduler.
type QueueService interface {
	FindRunning(ctx context.Context, startedBefore time.Time) ([]*queue.Job, error)
	Requeue(ctx context.Context, jobID string, attempt int, reason string) (queue.Status, error)
	PruneJobLogs(ctx context.Context, retention time.Duration) (int64, error)
}
