package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/httputil"
	"studyroom/internal/metrics"
	"studyroom/internal/tracing"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused per-key limiter is kept.
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per key (user id or client IP).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	clock    clock.Clock
}

type RateLimiterOption func(*RateLimiter)

// WithRateLimiterClock swaps the time source, for tests.
func WithRateLimiterClock(c clock.Clock) RateLimiterOption {
	return func(rl *RateLimiter) { rl.clock = c }
}

// NewRateLimiter allows perSecond requests per key with the given burst.
// A non-positive rate or burst denies everything.
func NewRateLimiter(perSecond float64, burst int, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 || rl.burst <= 0 {
		return false
	}
	now := rl.clock.Now()

	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	rl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Prune drops limiters idle longer than ttl and returns how many were removed.
func (rl *RateLimiter) Prune(ttl time.Duration) int {
	cutoff := rl.clock.Now().Add(-ttl)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Len reports how many keys are tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Run prunes idle limiters once a minute until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := rl.clock.Ticker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune(limiterIdleTTL)
		}
	}
}

// Middleware rejects over-limit requests with 429. Authenticated requests
// are keyed by user id, anonymous ones by client IP.
func (rl *RateLimiter) Middleware(registry *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := tracing.GetUserID(r.Context())
			if key == "" {
				key = "ip:" + httputil.GetClientIP(r)
			}
			if !rl.Allow(key) {
				registry.RateLimited(routeTemplate(r))
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
				httputil.WriteError(w, r, apperrors.NewRateLimitError(float64(rl.limit), rl.burst))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) retryAfterSeconds() int {
	if rl.limit <= 0 {
		return 60
	}
	secs := int(1 / float64(rl.limit))
	if secs < 1 {
		secs = 1
	}
	return secs
}
