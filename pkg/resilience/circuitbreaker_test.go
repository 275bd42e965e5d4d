package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"adichat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(now *time.Time, probes uint) *Breaker {
	b := NewBreaker(Config{
		Name:      "test",
		Threshold: 2,
		Probes:    probes,
		Cooldown:  time.Minute,
	}, logger.Nop())
	b.now = func() time.Time { return *now }
	return b
}

func fail(context.Context) error { return errBoom }
func pass(context.Context) error { return nil }

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newTestBreaker(&now, 1)
	ctx := context.Background()

	var transitions []string
	b.OnStateChange(func(from, to State) {
		transitions = append(transitions, string(from)+"->"+string(to))
	})

	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	calls := 0
	err := b.Execute(ctx, func(context.Context) error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)

	now = now.Add(time.Minute)
	require.NoError(t, b.Execute(ctx, pass))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
	stats := b.Stats()
	assert.Equal(t, uint64(4), stats.Requests)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, uint64(1), stats.Trips)
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newTestBreaker(&now, 2)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	now = now.Add(time.Minute)

	require.NoError(t, b.Execute(ctx, pass))
	assert.Equal(t, StateHalfOpen, b.State(), "one probe of two is not enough")

	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Execute(ctx, pass), ErrCircuitOpen)
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	now := time.Unix(1000, 0)
	b := newTestBreaker(&now, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, b.State())
}
