package backpressure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(now *time.Time) *ClientLimiter {
	l := NewClientLimiter(LimiterConfig{RequestsPerSecond: 1, Burst: 2, IdleTTL: time.Minute})
	l.now = func() time.Time { return *now }
	return l
}

func TestClientLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	// other clients have their own bucket
	assert.True(t, l.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.Equal(t, time.Second, l.RetryAfter())
}

func TestClientLimiterCleanup(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newTestLimiter(&now)

	l.Allow("old")
	now = now.Add(45 * time.Second)
	l.Allow("recent")
	assert.Equal(t, 2, l.Len())

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, l.Cleanup())
	assert.Equal(t, 1, l.Len())
}

func TestNewClientLimiterDefaults(t *testing.T) {
	l := NewClientLimiter(LimiterConfig{})
	assert.Equal(t, DefaultLimiterConfig(), l.config)
}
