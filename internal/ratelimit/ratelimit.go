package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one limiter hit.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter records a hit for key and reports whether it fits the budget.
type Limiter interface {
	Take(ctx context.Context, key string) (Decision, error)
}
