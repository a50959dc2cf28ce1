package search

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerLatestWins(t *testing.T) {
	d := NewDebouncer[string](30 * time.Millisecond)
	var calls atomic.Int32
	fn := func(q string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			calls.Add(1)
			return q, nil
		}
	}

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = d.Do(context.Background(), "s1", fn("ab"))
	}()
	time.Sleep(5 * time.Millisecond)
	got, err := d.Do(context.Background(), "s1", fn("abc"))
	wg.Wait()

	require.NoError(t, err)
	require.Equal(t, "abc", got)
	require.ErrorIs(t, firstErr, ErrSuperseded)
	require.Equal(t, int32(1), calls.Load())
}

func TestDebouncerDiscardsSupersededInFlight(t *testing.T) {
	d := NewDebouncer[string](0)
	started := make(chan struct{})
	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, firstErr = d.Do(context.Background(), "s1", func(ctx context.Context) (string, error) {
			close(started)
			<-ctx.Done()
			return "stale", nil
		})
	}()
	<-started
	got, err := d.Do(context.Background(), "s1", func(context.Context) (string, error) { return "fresh", nil })
	<-done

	require.NoError(t, err)
	require.Equal(t, "fresh", got)
	require.ErrorIs(t, firstErr, ErrSuperseded)
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer[int](10 * time.Millisecond)
	var wg sync.WaitGroup
	results := make([]int, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := d.Do(context.Background(), []string{"a", "b"}[i], func(context.Context) (int, error) { return i + 1, nil })
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()
	require.Equal(t, []int{1, 2}, results)
}

func TestDebouncerHonoursCallerCancel(t *testing.T) {
	d := NewDebouncer[int](time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Do(ctx, "k", func(context.Context) (int, error) { return 1, nil })
	require.ErrorIs(t, err, context.Canceled)
}
