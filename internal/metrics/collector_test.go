package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances by step on every read so each Observe call measures exactly step.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func newTestCollector(step time.Duration) (*Collector, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := New(logger)
	clk := &stepClock{now: time.Unix(1700000000, 0), step: step}
	c.clock = clk.Now
	return c, &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func ok(status int) func() (int, error) {
	return func() (int, error) { return status, nil }
}

func TestObserve_Success(t *testing.T) {
	c, buf := newTestCollector(250 * time.Millisecond)

	err := c.Observe("GET", "/health", ok(200))
	require.NoError(t, err)

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.RequestCount)
	assert.Equal(t, map[string]int64{"GET:/health": 1}, snap.RequestsByPath)
	assert.Equal(t, map[int]int64{200: 1}, snap.StatusCodes)
	assert.InDelta(t, 0.25, snap.AverageRequestTime, 1e-9)

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "Request: GET /health - Status: 200 - Duration: 0.2500s", lines[0]["msg"])
	assert.Equal(t, "GET", lines[0]["method"])
	assert.Equal(t, "/health", lines[0]["path"])
	assert.Equal(t, float64(200), lines[0]["status"])
}

func TestObserve_FailurePropagatesAndSkipsCompletionCounters(t *testing.T) {
	c, buf := newTestCollector(5 * time.Millisecond)
	boom := errors.New("database unavailable")

	err := c.Observe("POST", "/jobs", func() (int, error) { return 0, boom })
	require.Error(t, err)
	assert.Same(t, boom, err, "collector must return the continuation error unchanged")

	snap := c.Snapshot()
	assert.Equal(t, int64(0), snap.RequestCount)
	assert.Equal(t, map[string]int64{"POST:/jobs": 1}, snap.RequestsByPath)
	assert.Empty(t, snap.StatusCodes)
	assert.Equal(t, 0.0, snap.AverageRequestTime)

	lines := logLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ERROR", lines[0]["level"])
	assert.Equal(t, "Request failed: POST /jobs - Error: database unavailable - Duration: 0.0050s", lines[0]["msg"])
}

func TestObserve_HealthScenario(t *testing.T) {
	c, _ := newTestCollector(10 * time.Millisecond)

	for range 3 {
		require.NoError(t, c.Observe("GET", "/health", ok(200)))
	}
	err := c.Observe("POST", "/health", func() (int, error) { return 0, errors.New("boom") })
	require.Error(t, err)

	snap := c.Snapshot()
	assert.Equal(t, map[string]int64{"GET:/health": 3, "POST:/health": 1}, snap.RequestsByPath)
	assert.Equal(t, int64(3), snap.RequestCount)
	assert.Equal(t, map[int]int64{200: 3}, snap.StatusCodes)
	assert.InDelta(t, 0.010, snap.AverageRequestTime, 1e-9)
}

func TestObserve_RouteCountedBeforeContinuation(t *testing.T) {
	c, _ := newTestCollector(time.Millisecond)

	var seen int64
	require.NoError(t, c.Observe("GET", "/a", func() (int, error) {
		seen = c.Snapshot().RequestsByPath["GET:/a"]
		return 204, nil
	}))
	assert.Equal(t, int64(1), seen)
}

func TestObserve_DistinctPathsAreDistinctKeys(t *testing.T) {
	c, _ := newTestCollector(time.Millisecond)

	require.NoError(t, c.Observe("GET", "/jobs/1", ok(200)))
	require.NoError(t, c.Observe("GET", "/jobs/2", ok(404)))
	require.NoError(t, c.Observe("DELETE", "/jobs/1", ok(200)))

	snap := c.Snapshot()
	assert.Equal(t, map[string]int64{"GET:/jobs/1": 1, "GET:/jobs/2": 1, "DELETE:/jobs/1": 1}, snap.RequestsByPath)
	assert.Equal(t, map[int]int64{200: 2, 404: 1}, snap.StatusCodes)
}

func TestSnapshot_EmptyCollector(t *testing.T) {
	c, _ := newTestCollector(time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, int64(0), snap.RequestCount)
	assert.Equal(t, 0.0, snap.AverageRequestTime)
	assert.NotNil(t, snap.RequestsByPath)
	assert.NotNil(t, snap.StatusCodes)

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"request_count":0,"average_request_time":0,"requests_by_path":{},"status_codes":{}}`, string(b))
}

func TestSnapshot_IdempotentAndIsolated(t *testing.T) {
	c, _ := newTestCollector(3 * time.Millisecond)
	require.NoError(t, c.Observe("GET", "/x", ok(200)))

	first := c.Snapshot()
	second := c.Snapshot()
	assert.Equal(t, first, second)

	first.RequestsByPath["GET:/x"] = 99
	first.StatusCodes[500] = 1
	third := c.Snapshot()
	assert.Equal(t, second, third, "mutating a snapshot must not leak into the collector")
}

func TestObserve_ConcurrentUpdatesAreNotLost(t *testing.T) {
	c := New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError})))

	const workers, perWorker = 16, 50
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_ = c.Observe("GET", "/hot", ok(200))
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Equal(t, int64(workers*perWorker), snap.RequestsByPath["GET:/hot"])
	assert.Equal(t, int64(workers*perWorker), snap.RequestCount)
	assert.Equal(t, int64(workers*perWorker), snap.StatusCodes[200])
}

func TestRouteKey(t *testing.T) {
	assert.Equal(t, "GET:/health", RouteKey("GET", "/health"))
}
