package circuit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
)

var errDown = errors.Unavailable("down")

func fail(context.Context) error    { return errDown }
func succeed(context.Context) error { return nil }

func TestBreakerOpensAndRecovers(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var changes []State
	b := New("kafka", Config{
		MaxFailures: 2,
		OpenTimeout: time.Minute,
		OnStateChange: func(_ string, _, to State) {
			changes = append(changes, to)
		},
	})
	b.now = func() time.Time { return clock }
	ctx := context.Background()

	assert.ErrorIs(t, b.Do(ctx, fail), errDown)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Do(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnavailable))

	clock = clock.Add(time.Minute)
	require.NoError(t, b.Do(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, changes)

	stats := b.Stats()
	assert.Equal(t, "closed", stats.State)
	assert.Equal(t, uint64(1), stats.Rejected)
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("ws", Config{MaxFailures: 1, OpenTimeout: time.Second})
	b.now = func() time.Time { return clock }
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	clock = clock.Add(time.Second)
	assert.ErrorIs(t, b.Do(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Do(ctx, succeed), ErrOpen)
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	b := New("cancel", Config{MaxFailures: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := New("reset", Config{MaxFailures: 2})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	require.NoError(t, b.Do(ctx, succeed))
	_ = b.Do(ctx, fail)
	assert.Equal(t, StateClosed, b.State())

	_ = b.Do(ctx, fail)
	assert.Equal(t, StateOpen, b.State())
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Stats().Failures)
}
