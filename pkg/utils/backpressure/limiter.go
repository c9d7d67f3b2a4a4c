package backpressure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

// LimiterConfig controls per-client request limits
type LimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	IdleTTL           time.Duration // clients idle this long are forgotten
}

// DefaultLimiterConfig returns the limits applied to API clients
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		RequestsPerSecond: 20,
		Burst:             50,
		IdleTTL:           10 * time.Minute,
	}
}

type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ClientLimiter keeps one token bucket per client key
type ClientLimiter struct {
	config  LimiterConfig
	mu      sync.Mutex
	clients map[string]*clientEntry
	now     func() time.Time
	log     *logger.Logger
}

// NewClientLimiter creates a limiter; non-positive settings fall back to the defaults
func NewClientLimiter(config LimiterConfig) *ClientLimiter {
	def := DefaultLimiterConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}

	l := &ClientLimiter{
		config:  config,
		clients: make(map[string]*clientEntry),
		now:     time.Now,
		log:     logger.GetLogger("backpressure.limiter"),
	}
	l.log.Infof("Client rate limiter created with rate=%.2f/s, burst=%d", config.RequestsPerSecond, config.Burst)
	return l
}

// Allow takes one token from the client's bucket
func (l *ClientLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.clients[key]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)}
		l.clients[key] = entry
	}
	entry.lastAccess = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// RetryAfter is how long a client waits for its next token
func (l *ClientLimiter) RetryAfter() time.Duration {
	return time.Duration(float64(time.Second) / l.config.RequestsPerSecond)
}

// Cleanup forgets idle clients and returns how many were removed
func (l *ClientLimiter) Cleanup() int {
	cutoff := l.now().Add(-l.config.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.clients {
		if entry.lastAccess.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Run cleans up idle clients every interval until ctx is cancelled
func (l *ClientLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Cleanup(); n > 0 {
				l.log.Debugf("Forgot %d idle clients", n)
			}
		}
	}
}
