// Package security holds request guardrails for the HTTP surface.
package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/pii-gateway/internal/config"
)

// ClientLimiter applies a token bucket per client key, usually the client IP.
type ClientLimiter struct {
	enabled bool
	limit   rate.Limit
	burst   int

	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a limiter allowing cfg.RequestsPerMin per client
// with bursts of cfg.Burst.
func NewClientLimiter(cfg config.ClientRateLimitConfig) *ClientLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMin
	}
	if burst <= 0 {
		burst = 1
	}
	return &ClientLimiter{
		enabled: cfg.Enabled && cfg.RequestsPerMin > 0,
		limit:   rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:   burst,
		clients: make(map[string]*clientBucket),
	}
}

// Allow reports whether a request from clientKey may proceed now.
func (l *ClientLimiter) Allow(clientKey string) bool {
	if !l.enabled {
		return true
	}
	return l.bucket(clientKey, time.Now()).Allow()
}

func (l *ClientLimiter) bucket(clientKey string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[clientKey]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientKey] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Cleanup forgets clients not seen since before idle.
func (l *ClientLimiter) Cleanup(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	removed := 0
	for key, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Clients returns the number of tracked clients.
func (l *ClientLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// StartCleanupRoutine prunes idle clients every interval until stop is
// closed.
func (l *ClientLimiter) StartCleanupRoutine(interval, idle time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Cleanup(idle)
			case <-stop:
				return
			}
		}
	}()
}
