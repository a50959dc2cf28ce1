package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed is a fixed-window Limiter driven by a formatted rate such as "120-M".
type Fixed struct {
	L *limiter.Limiter
}

// NewFixed builds a Fixed limiter. Redis is used for the counters when rdb is
// non-nil so the budget is shared across instances.
func NewFixed(rate string, rdb *redis.Client, prefix string) (Fixed, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return Fixed{}, fmt.Errorf("parse rate %q: %w", rate, err)
	}
	var store limiter.Store
	if rdb != nil {
		store, err = limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
		if err != nil {
			return Fixed{}, fmt.Errorf("limiter redis store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: limiter.DefaultCleanUpInterval})
	}
	return Fixed{L: limiter.New(store, parsed)}, nil
}

// Take implements Limiter.
func (f Fixed) Take(ctx context.Context, key string) (Decision, error) {
	res, err := f.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Limit:     int(res.Limit),
		Remaining: int(res.Remaining),
		Reset:     time.Unix(res.Reset, 0),
	}, nil
}
