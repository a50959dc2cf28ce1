package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrHeld is returned when another holder owns the key.
var ErrHeld = errors.New("lock: key already held")

// Guard hands out short-lived exclusive holds on a key. Callers must invoke
// the returned release function once done; holds also lapse after ttl.
type Guard interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

const defaultTTL = 30 * time.Second

// MemoryGuard is a process-local Guard for single instance deployments.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]memoryHold
	now  func() time.Time
	seq  uint64
}

type memoryHold struct {
	id      uint64
	expires time.Time
}

// NewMemoryGuard constructs an empty in-process guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]memoryHold), now: time.Now}
}

// TryAcquire implements Guard.
func (g *MemoryGuard) TryAcquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if h, ok := g.held[key]; ok && now.Before(h.expires) {
		return nil, ErrHeld
	}
	g.seq++
	id := g.seq
	g.held[key] = memoryHold{id: id, expires: now.Add(ttl)}
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if h, ok := g.held[key]; ok && h.id == id {
			delete(g.held, key)
		}
	}, nil
}
