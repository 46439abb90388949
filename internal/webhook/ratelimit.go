package webhook

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter map.
const maxTrackedClients = 10000

type peerAddrKey struct{}

// CapturePeer records the connection's RemoteAddr before middleware such as
// chi's RealIP rewrites it from forwarded headers. Rate limiting keys on the
// recorded address, so it must run ahead of RealIP.
func CapturePeer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientKey is the socket peer host without its port. Forwarded headers are
// never consulted.
func clientKey(r *http.Request) string {
	addr, ok := r.Context().Value(peerAddrKey{}).(string)
	if !ok {
		addr = r.RemoteAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client key.
type rateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*clientLimiter
	rate       rate.Limit
	burst      int
	maxClients int
	now        func() time.Time
}

// newRateLimiter returns nil when requestsPerSecond is not positive, which
// disables limiting.
func newRateLimiter(requestsPerSecond float64, burst int) *rateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &rateLimiter{
		limiters:   make(map[string]*clientLimiter),
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		maxClients: maxTrackedClients,
		now:        time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	if rl == nil {
		return true
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= rl.maxClients {
			rl.evict(now)
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// evict drops every client whose bucket has refilled since it was last seen,
// then the least recently seen client if the map is still full. Active
// clients keep their buckets.
func (rl *rateLimiter) evict(now time.Time) {
	refill := rl.refillTime()

	var (
		oldestKey string
		oldest    time.Time
	)
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) >= refill {
			delete(rl.limiters, key)
			continue
		}
		if oldestKey == "" || cl.lastSeen.Before(oldest) {
			oldestKey, oldest = key, cl.lastSeen
		}
	}
	if len(rl.limiters) >= rl.maxClients && oldestKey != "" {
		delete(rl.limiters, oldestKey)
	}
}

// refillTime is how long an idle bucket takes to become full again.
func (rl *rateLimiter) refillTime() time.Duration {
	secs := float64(rl.burst) / float64(rl.rate)
	if secs > (24 * time.Hour).Seconds() {
		return 24 * time.Hour
	}
	return time.Duration(secs * float64(time.Second))
}
