package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/resilience"
)

func TestBreakerMetricsTransitions(t *testing.T) {
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()

	clk := newClock()
	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "shop-backend", OpenFor: 20 * time.Millisecond, Now: clk.now})
	ctx := context.Background()
	state := func() float64 { return testutil.ToFloat64(resilience.BreakerState.WithLabelValues("shop-backend")) }
	transitions := func(from, to string) float64 {
		return testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues("shop-backend", from, to))
	}

	require.Equal(t, 0.0, state())
	require.NoError(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, state())

	clk.advance(20 * time.Millisecond)
	require.NoError(t, breaker.Allow(ctx))
	require.Equal(t, 2.0, state())

	breaker.Report(ctx, true)
	require.Equal(t, 0.0, state())

	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues("shop-backend")))
	require.Equal(t, 1.0, transitions("closed", "open"))
	require.Equal(t, 1.0, transitions("open", "half_open"))
	require.Equal(t, 1.0, transitions("half_open", "closed"))
}
