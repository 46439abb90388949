package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/docscribe/internal/config"
	"github.com/mattjoyce/docscribe/internal/events"
	"github.com/mattjoyce/docscribe/internal/queue"
	"github.com/mattjoyce/docscribe/internal/scheduler/mocks"
)

// TestLogBuffer is a bytes.Buffer that can be used to capture log output.
type TestLogBuffer struct {
	bytes.Buffer
}

// NewTestSlogger creates a new *slog.Logger that writes to a TestLogBuffer.
func NewTestSlogger() (*slog.Logger, *TestLogBuffer) {
	var buf TestLogBuffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), &buf
}

func testServiceConfig() config.ServiceConfig {
	return config.Defaults().Service
}

func TestRecoverOrphanedJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	slogger, logBuf := NewTestSlogger()
	hub := events.NewHub(32)
	s := New(testServiceConfig(), mockQueue, hub, slogger)
	ctx := context.Background()

	t.Run("No orphaned jobs", func(t *testing.T) {
		mockQueue.EXPECT().FindRunning(ctx, time.Time{}).Return([]*queue.Job{}, nil)
		assert.NoError(t, s.recoverOrphanedJobs(ctx))
	})

	t.Run("Orphaned jobs - some re-queued, some dead", func(t *testing.T) {
		logBuf.Reset()

		job1 := &queue.Job{ID: "job1", Kind: queue.KindCommitAnalyze, Status: queue.StatusRunning, Attempt: 1, MaxAttempts: 3}
		job2 := &queue.Job{ID: "job2", Kind: queue.KindDocsPropose, Status: queue.StatusRunning, Attempt: 3, MaxAttempts: 3}

		mockQueue.EXPECT().FindRunning(ctx, time.Time{}).Return([]*queue.Job{job1, job2}, nil)
		mockQueue.EXPECT().Requeue(ctx, "job1", 2, reasonOrphaned).Return(queue.StatusQueued, nil)
		mockQueue.EXPECT().Requeue(ctx, "job2", 4, reasonOrphaned).Return(queue.StatusDead, nil)

		require.NoError(t, s.recoverOrphanedJobs(ctx))
		assert.Contains(t, logBuf.String(), "Re-queueing job")
		assert.Contains(t, logBuf.String(), "Marking job as dead")

		published := hub.SnapshotSince(0)
		require.Len(t, published, 2)
		assert.Equal(t, events.TypeJobRequeued, published[0].Type)
		assert.Contains(t, string(published[1].Data), `"status":"dead"`)
	})

	t.Run("Job completed during recovery is skipped", func(t *testing.T) {
		logBuf.Reset()
		job := &queue.Job{ID: "job3", Kind: queue.KindSlackMention, Attempt: 1, MaxAttempts: 4}
		mockQueue.EXPECT().FindRunning(ctx, time.Time{}).Return([]*queue.Job{job}, nil)
		mockQueue.EXPECT().Requeue(ctx, "job3", 2, reasonOrphaned).Return(queue.Status(""), queue.ErrJobNotRunning)

		require.NoError(t, s.recoverOrphanedJobs(ctx))
		assert.Contains(t, logBuf.String(), "Skipped requeue")
	})

	t.Run("FindRunning returns error", func(t *testing.T) {
		mockQueue.EXPECT().FindRunning(ctx, time.Time{}).Return(nil, errors.New("db error"))
		assert.Error(t, s.recoverOrphanedJobs(ctx))
	})
}

func TestSchedulerTickRequeuesExpiredLeases(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	slogger, logBuf := NewTestSlogger()
	cfg := testServiceConfig()
	cfg.JobLease = 10 * time.Minute
	cfg.JobLogRetention = 24 * time.Hour
	s := New(cfg, mockQueue, nil, slogger)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	expired := &queue.Job{ID: "stale", Kind: queue.KindCommitAnalyze, Attempt: 1, MaxAttempts: 4}
	gomock.InOrder(
		mockQueue.EXPECT().FindRunning(ctx, now.Add(-10*time.Minute)).Return([]*queue.Job{expired}, nil),
		mockQueue.EXPECT().Requeue(ctx, "stale", 2, reasonLeaseExpired).Return(queue.StatusQueued, nil),
		mockQueue.EXPECT().PruneJobLogs(ctx, 24*time.Hour).Return(int64(3), nil),
	)

	s.tick(ctx)
	assert.Contains(t, logBuf.String(), `"reason":"lease expired"`)
	assert.Contains(t, logBuf.String(), "Pruned job logs")
}

func TestSchedulerTickContinuesAfterErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	slogger, logBuf := NewTestSlogger()
	s := New(testServiceConfig(), mockQueue, nil, slogger)
	ctx := context.Background()

	mockQueue.EXPECT().FindRunning(ctx, gomock.Any()).Return(nil, errors.New("locked"))
	mockQueue.EXPECT().PruneJobLogs(ctx, gomock.Any()).Return(int64(0), errors.New("locked"))

	s.tick(ctx)
	assert.Contains(t, logBuf.String(), "Failed to find expired leases")
	assert.Contains(t, logBuf.String(), "Failed to prune job logs")
}

func TestSchedulerStartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	slogger, _ := NewTestSlogger()
	cfg := testServiceConfig()
	cfg.TickInterval = time.Hour
	s := New(cfg, mockQueue, nil, slogger)

	mockQueue.EXPECT().FindRunning(gomock.Any(), time.Time{}).Return(nil, nil)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
