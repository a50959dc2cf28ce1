package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/resilience"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)} }

func TestBreakerTransitions(t *testing.T) {
	clk := newClock()
	breaker := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Minute, Now: clk.now})
	ctx := context.Background()

	require.NoError(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.NoError(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	err := breaker.Allow(ctx)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit, "breaker should open after threshold exceeded")
	var open *resilience.OpenCircuitError
	require.ErrorAs(t, err, &open)
	require.Equal(t, time.Minute, open.RetryAfter)
	require.Equal(t, resilience.Open, breaker.State())

	clk.advance(time.Minute)
	require.NoError(t, breaker.Allow(ctx), "breaker should let a probe through after cool off")
	require.Equal(t, resilience.HalfOpen, breaker.State())
	require.ErrorIs(t, breaker.Allow(ctx), resilience.ErrOpenCircuit, "only one probe at a time")

	breaker.Report(ctx, true)
	require.NoError(t, breaker.Allow(ctx), "breaker should close after successful probe")
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clk := newClock()
	breaker := resilience.NewBreaker(resilience.BreakerConfig{OpenFor: 10 * time.Second, Now: clk.now})
	ctx := context.Background()

	require.NoError(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	clk.advance(10 * time.Second)
	require.NoError(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.Equal(t, resilience.Open, breaker.State())
	clk.advance(4 * time.Second)
	var open *resilience.OpenCircuitError
	require.ErrorAs(t, breaker.Allow(ctx), &open)
	require.Equal(t, 6*time.Second, open.RetryAfter)
}

func TestBreakerAbandonedProbeFreesSlot(t *testing.T) {
	clk := newClock()
	breaker := resilience.NewBreaker(resilience.BreakerConfig{OpenFor: time.Second, Now: clk.now})
	ctx := context.Background()

	require.NoError(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	clk.advance(time.Second)
	require.NoError(t, breaker.Allow(ctx))
	breaker.Abandon()

	require.Equal(t, resilience.HalfOpen, breaker.State())
	require.NoError(t, breaker.Allow(ctx))
}

func TestNilBreakerAllows(t *testing.T) {
	var breaker *resilience.Breaker
	require.NoError(t, breaker.Allow(context.Background()))
	breaker.Report(context.Background(), false)
	breaker.Abandon()
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-(base*2/5))
	require.LessOrEqual(t, d, base*2+(base*2/5))
}
