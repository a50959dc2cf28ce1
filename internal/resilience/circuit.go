package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// OpenCircuitError is the refusal of an open breaker. It matches
// ErrOpenCircuit and tells the caller how long the breaker stays open.
type OpenCircuitError struct {
	Target     string
	RetryAfter time.Duration
}

func (e *OpenCircuitError) Error() string {
	return fmt.Sprintf("resilience: circuit breaker for %s open, retry in %s", e.Target, e.RetryAfter.Round(time.Millisecond))
}

// Unwrap lets errors.Is match ErrOpenCircuit.
func (e *OpenCircuitError) Unwrap() error { return ErrOpenCircuit }

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a single probe through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero values fall back to one request, a 0.5
// failure ratio and a 30s open period.
type BreakerConfig struct {
	// Target labels metrics and log lines, e.g. "shop-backend".
	Target       string
	MinRequests  int
	FailureRatio float64
	OpenFor      time.Duration
	Logger       *zerolog.Logger
	Now          func() time.Time
}

// Breaker is a failure-ratio circuit breaker guarding one downstream service.
// A nil *Breaker allows everything.
type Breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    State
	failures int
	total    int
	openedAt time.Time
	probing  bool
}

// NewBreaker constructs a closed breaker. It opens once MinRequests outcomes
// are recorded and the failure share reaches FailureRatio.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.Target = strings.TrimSpace(cfg.Target)
	if cfg.Target == "" {
		cfg.Target = "default"
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	cfg.FailureRatio = math.Min(cfg.FailureRatio, 1)
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	b := &Breaker{cfg: cfg, state: Closed}
	b.recordStateLocked()
	return b
}

// Target returns the breaker's target label.
func (b *Breaker) Target() string { return b.cfg.Target }

// Allow reports whether a request may go out. After the open period one probe
// is let through; further requests wait until the probe reports.
func (b *Breaker) Allow(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		left := b.cfg.OpenFor - b.cfg.Now().Sub(b.openedAt)
		if left > 0 {
			return &OpenCircuitError{Target: b.cfg.Target, RetryAfter: left}
		}
		b.changeStateLocked(ctx, HalfOpen)
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return &OpenCircuitError{Target: b.cfg.Target}
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Report records the outcome of an allowed request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.changeStateLocked(ctx, Closed)
		} else {
			b.changeStateLocked(ctx, Open)
		}
		return
	}

	b.total++
	if !success {
		b.failures++
	}
	if b.total < b.cfg.MinRequests {
		return
	}
	if float64(b.failures)/float64(b.total) >= b.cfg.FailureRatio {
		b.changeStateLocked(ctx, Open)
		return
	}
	// halve the window so old successes do not mask a new outage
	if b.total > b.cfg.MinRequests*2 {
		b.total = int(math.Ceil(float64(b.total) / 2))
		b.failures = int(math.Ceil(float64(b.failures) / 2))
	}
}

// Abandon releases an allowed request whose outcome says nothing about the
// downstream service, such as a caller cancelling a superseded search.
func (b *Breaker) Abandon() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.probing = false
	}
}

// State returns the breaker state without advancing it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) changeStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	switch next {
	case Open:
		b.openedAt = b.cfg.Now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.failures, b.total = 0, 0
	b.recordStateLocked()
	b.recordTransition(ctx, prev, next)
}

func (b *Breaker) recordStateLocked() {
	if BreakerState == nil {
		return
	}
	BreakerState.WithLabelValues(b.cfg.Target).Set(float64(b.state))
}

func (b *Breaker) recordTransition(ctx context.Context, from, to State) {
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.cfg.Target, from.String(), to.String()).Inc()
	}
	if to == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(b.cfg.Target).Inc()
	}
	logger := b.loggerFor(ctx)
	evt := logger.Warn()
	if to == Closed {
		evt = logger.Info()
	}
	evt = evt.Str("target", b.cfg.Target).Str("from_state", from.String()).Str("to_state", to.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.cfg.Logger != nil {
		return b.cfg.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
