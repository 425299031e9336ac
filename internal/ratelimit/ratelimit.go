// Package ratelimit applies a per-user token bucket in front of the sync
// handlers, after authentication resolves the user id.
package ratelimit

import (
	"net/http"
	"sync"

	"github.com/parlohq/syncd/internal/auth"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per user id.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// New creates a limiter allowing perMinute requests with the given burst.
func New(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
	}
}

// Allow reports whether the user may proceed.
func (l *Limiter) Allow(userID string) bool {
	l.mu.Lock()
	b, ok := l.buckets[userID]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[userID] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// Middleware rejects over-limit requests with 429 before any sync logic runs.
func Middleware(l *Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.RequestUserID(r.Context())
			if !l.Allow(userID) {
				if logger != nil {
					logger.Warn("rate limited",
						zap.String("user_id", userID),
						zap.String("path", r.URL.Path))
				}
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
