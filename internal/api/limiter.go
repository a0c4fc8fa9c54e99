// ABOUTME: Per-caller token bucket rate limiting for the HTTP API
// ABOUTME: Callers are keyed by authenticated identity, falling back to client IP

package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTimeout is how long an unused caller bucket is kept.
const limiterIdleTimeout = 10 * time.Minute

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per caller.
type RateLimiter struct {
	mu      sync.Mutex
	callers map[string]*callerLimiter
	rps     rate.Limit
	burst   int
	logger  *slog.Logger
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst per caller. Returns nil when rps is not positive, which disables limiting.
func NewRateLimiter(rps float64, burst int, logger *slog.Logger) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = max(1, int(math.Ceil(rps)))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		callers: make(map[string]*callerLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		logger:  logger.With("component", "ratelimit"),
	}
}

func (l *RateLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.callers[key]; ok {
		c.lastSeen = now
		return c.limiter
	}

	l.pruneLocked(now)
	c := &callerLimiter{
		limiter:  rate.NewLimiter(l.rps, l.burst),
		lastSeen: now,
	}
	l.callers[key] = c
	return c.limiter
}

// pruneLocked drops buckets idle for longer than limiterIdleTimeout. Must be called with mu held.
func (l *RateLimiter) pruneLocked(now time.Time) {
	for key, c := range l.callers {
		if now.Sub(c.lastSeen) > limiterIdleTimeout {
			delete(l.callers, key)
		}
	}
}

// Allow reports whether key may make a request now.
func (l *RateLimiter) Allow(key string) bool {
	return l.get(key, time.Now()).Allow()
}

// Middleware rejects callers over their budget with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(1, int(math.Ceil(1/float64(l.rps)))))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := callerKey(r)
		if !l.Allow(key) {
			l.logger.Warn("rate limit exceeded", "caller", key, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the request's remote host without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
