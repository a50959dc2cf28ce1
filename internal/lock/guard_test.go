package lock_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/lock"
)

func exerciseGuard(t *testing.T, guard lock.Guard) {
	t.Helper()
	ctx := context.Background()

	release, err := guard.TryAcquire(ctx, "bill-number:INV-1", time.Minute)
	require.NoError(t, err)

	_, err = guard.TryAcquire(ctx, "bill-number:INV-1", time.Minute)
	require.ErrorIs(t, err, lock.ErrHeld)

	other, err := guard.TryAcquire(ctx, "bill-number:INV-2", time.Minute)
	require.NoError(t, err)
	other()

	release()
	again, err := guard.TryAcquire(ctx, "bill-number:INV-1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestMemoryGuard(t *testing.T) {
	exerciseGuard(t, lock.NewMemoryGuard())
}

func TestMemoryGuardExpires(t *testing.T) {
	guard := lock.NewMemoryGuard()
	ctx := context.Background()
	stale, err := guard.TryAcquire(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	fresh, err := guard.TryAcquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// Releasing the lapsed hold must not drop the fresh one.
	stale()
	_, err = guard.TryAcquire(ctx, "k", time.Minute)
	require.ErrorIs(t, err, lock.ErrHeld)
	fresh()
}

func TestRedisGuard(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseGuard(t, lock.RedisGuard{R: client, Prefix: "kasir:"})
	require.False(t, mr.Exists("kasir:bill-number:INV-1"))
}
