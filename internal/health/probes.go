package health

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Pinger is satisfied by the shop backend client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probes checks the shop backend and, when configured, Redis.
type Probes struct {
	Backend Pinger
	Redis   *redis.Client
}

// PingBackend implements Checker.
func (p Probes) PingBackend(ctx context.Context, timeout time.Duration) error {
	if p.Backend == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Backend.Ping(ctx)
}

// PingRedis implements Checker. Without Redis the service runs on in-memory
// fallbacks, so a missing client is healthy.
func (p Probes) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(ctx).Err()
}
