package httpapi

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds per-caller request rates. Zero values disable
// limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// callerLimiter keeps one token bucket per authenticated user.
type callerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newCallerLimiter(cfg RateLimitConfig) *callerLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &callerLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
	}
}

func (l *callerLimiter) allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// rateLimitMiddleware rejects callers that exceed their budget. It runs after
// identity resolution so buckets are keyed by user, not by address.
func (h *handler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.allow(actorFrom(r.Context()).UserID) {
			writeErrorCode(w, http.StatusTooManyRequests, "rate_limited", "request budget exceeded; slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
