package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/maltedev/pricewatch/internal/clock"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = time.Hour
	limiterSweepInterval = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket keyed by remote IP.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	clock clock.Clock

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

func NewRateLimiter(requestsPerSecond float64, burst int, clk clock.Clock) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &RateLimiter{
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
		clock:    clk,
		limiters: make(map[string]*limiterEntry),
	}
}

// Allow consumes one token for identity.
func (l *RateLimiter) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	entry, ok := l.limiters[identity]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[identity] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Sweep evicts clients not seen within limiterIdleTTL and returns how many
// were removed.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clock.Now().Add(-limiterIdleTTL)
	removed := 0
	for id, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle clients until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded, please slow down"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
