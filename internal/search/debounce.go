package search

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSuperseded is returned to a call that a newer call on the same key replaced.
var ErrSuperseded = errors.New("search superseded by a newer request")

// Debouncer delays calls per key and lets the latest call win. A new call
// cancels the pending or in-flight call on the same key; the replaced call
// returns ErrSuperseded.
type Debouncer[T any] struct {
	Delay time.Duration

	mu     sync.Mutex
	seq    uint64
	latest map[string]uint64
	cancel map[string]context.CancelFunc
}

// NewDebouncer constructs a Debouncer waiting delay before each call.
func NewDebouncer[T any](delay time.Duration) *Debouncer[T] {
	return &Debouncer[T]{Delay: delay}
}

// Do waits out the delay and runs fn unless a newer call on key arrives first.
func (d *Debouncer[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	d.mu.Lock()
	if d.latest == nil {
		d.latest = make(map[string]uint64)
		d.cancel = make(map[string]context.CancelFunc)
	}
	if prev, ok := d.cancel[key]; ok {
		prev()
	}
	d.seq++
	id := d.seq
	callCtx, cancel := context.WithCancel(ctx)
	d.latest[key] = id
	d.cancel[key] = cancel
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if d.latest[key] == id {
			delete(d.latest, key)
			delete(d.cancel, key)
		}
		d.mu.Unlock()
		cancel()
	}()

	if d.Delay > 0 {
		timer := time.NewTimer(d.Delay)
		select {
		case <-callCtx.Done():
			timer.Stop()
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			return zero, ErrSuperseded
		case <-timer.C:
		}
	}

	res, err := fn(callCtx)
	if !d.current(key, id) {
		return zero, ErrSuperseded
	}
	return res, err
}

func (d *Debouncer[T]) current(key string, id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest[key] == id
}
