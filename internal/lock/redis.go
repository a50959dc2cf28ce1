package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// RedisGuard is a Guard shared by every API instance pointing at the same Redis.
type RedisGuard struct {
	R      *redis.Client
	Prefix string
}

// TryAcquire implements Guard using SET NX with a random token so only the
// holder can release the key.
func (g RedisGuard) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if g.R == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	full := g.Prefix + key
	token := uuid.NewString()
	ok, err := g.R.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() { g.release(context.Background(), full, token) }, nil
}

func (g RedisGuard) release(ctx context.Context, key, token string) {
	if err := g.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = g.R.Del(ctx, key).Err()
		}
	}
}
