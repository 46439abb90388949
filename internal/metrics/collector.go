package metrics

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates per-route and per-status request statistics.
// It is safe for concurrent use.
type Collector struct {
	logger *slog.Logger
	clock  func() time.Time

	mu             sync.Mutex
	countsByRoute  map[string]int64
	countsByStatus map[int]int64
	totalLatency   float64
	completed      int64

	prom *promMirror
}

// Snapshot is a point-in-time copy of the collector state.
type Snapshot struct {
	RequestCount       int64            `json:"request_count"`
	AverageRequestTime float64          `json:"average_request_time"`
	RequestsByPath     map[string]int64 `json:"requests_by_path"`
	StatusCodes        map[int]int64    `json:"status_codes"`
}

// New creates a collector with an empty state and its own Prometheus registry.
func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		logger:         logger,
		clock:          time.Now,
		countsByRoute:  make(map[string]int64),
		countsByStatus: make(map[int]int64),
		prom:           newPromMirror(),
	}
}

// RouteKey builds the counter key for a method and path.
func RouteKey(method, path string) string {
	return method + ":" + path
}

// Observe times next and records its outcome against the method:path route key.
// The route counter is bumped before next runs. When next returns an error the
// failure is logged and the same error is returned; no other aggregate changes.
func (c *Collector) Observe(method, path string, next func() (int, error)) error {
	return c.observe(method, path, func() string { return path }, func(time.Time) (int, error) {
		return next()
	})
}

func (c *Collector) observe(method, path string, route func() string, next func(start time.Time) (int, error)) error {
	start := c.clock()
	c.countRoute(method, path)

	status, err := next(start)
	duration := c.clock().Sub(start)

	if err != nil {
		c.logger.Error(
			fmt.Sprintf("Request failed: %s %s - Error: %s - Duration: %.4fs", method, path, err.Error(), duration.Seconds()),
			"method", method,
			"path", path,
			"error", err.Error(),
			"duration", duration.Seconds(),
		)
		c.prom.failure(method, route(), duration)
		return err
	}

	c.recordCompletion(status, duration)
	c.prom.success(method, route(), status, duration)
	c.logger.Info(
		fmt.Sprintf("Request: %s %s - Status: %d - Duration: %.4fs", method, path, status, duration.Seconds()),
		"method", method,
		"path", path,
		"status", status,
		"duration", duration.Seconds(),
	)
	return nil
}

func (c *Collector) countRoute(method, path string) {
	c.mu.Lock()
	c.countsByRoute[RouteKey(method, path)]++
	c.mu.Unlock()
}

func (c *Collector) recordCompletion(status int, duration time.Duration) {
	c.mu.Lock()
	c.totalLatency += duration.Seconds()
	c.completed++
	c.countsByStatus[status]++
	c.mu.Unlock()
}

// Snapshot returns the current counters. The maps are copies owned by the caller.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	avg := 0.0
	if c.completed > 0 {
		avg = c.totalLatency / float64(c.completed)
	}
	return Snapshot{
		RequestCount:       c.completed,
		AverageRequestTime: avg,
		RequestsByPath:     maps.Clone(c.countsByRoute),
		StatusCodes:        maps.Clone(c.countsByStatus),
	}
}

// Registry exposes the collector's Prometheus registry so other components
// can register their own series next to the HTTP ones.
func (c *Collector) Registry() *prometheus.Registry {
	return c.prom.registry
}
