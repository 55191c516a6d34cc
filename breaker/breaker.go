// Package breaker guards the upstream lookup API with a circuit breaker so
// that a failing upstream is not hammered by every cache miss.
//
// States:
//   - Closed: lookups flow normally; upstream failures are counted.
//   - Open: lookups fail fast with [ErrOpen]; after OpenTimeout the breaker
//     transitions to HalfOpen.
//   - HalfOpen: a limited number of probe lookups are allowed through;
//     if all succeed the breaker closes, any failure reopens it.
package breaker

import (
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by [Execute] while the breaker rejects calls.
var ErrOpen = status.Error(codes.Unavailable, "upstream circuit open")

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed state
	// before the breaker trips to Open.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays Open before transitioning
	// to HalfOpen.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of consecutive successes required in
	// HalfOpen state to close the breaker again.
	HalfOpenMaxSuccess int

	// IsFailure classifies errors returned through [Execute]. Errors it
	// rejects count as successes, since they prove the upstream answered.
	// Defaults to [UpstreamFailure].
	IsFailure func(error) bool
}

// DefaultConfig trips after five consecutive upstream failures and probes
// again after thirty seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:   5,
		OpenTimeout:        30 * time.Second,
		HalfOpenMaxSuccess: 1,
	}
}

// UpstreamFailure reports whether err indicates an unhealthy upstream
// rather than a well-formed negative answer such as NotFound.
func UpstreamFailure(err error) bool {
	switch status.Code(err) {
	case codes.OK:
		return false
	case codes.Unavailable, codes.DeadlineExceeded, codes.Unknown, codes.Internal:
		return true
	default:
		return false
	}
}

// Breaker is a minimal circuit breaker. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state     State
	failures  int
	successes int
	openedAt  time.Time
	nowFunc   func() time.Time
}

// New creates a Breaker with the given configuration.
func New(cfg Config) *Breaker {
	if cfg.IsFailure == nil {
		cfg.IsFailure = UpstreamFailure
	}
	cfg.FailureThreshold = max(cfg.FailureThreshold, 1)
	cfg.HalfOpenMaxSuccess = max(cfg.HalfOpenMaxSuccess, 1)
	return &Breaker{
		cfg:     cfg,
		state:   Closed,
		nowFunc: time.Now,
	}
}

// Execute runs fn if the breaker allows it and records the outcome. A nil
// breaker always runs fn.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}
	if !b.Allow() {
		var zero T
		return zero, ErrOpen
	}
	v, err := fn()
	if err != nil && b.cfg.IsFailure(err) {
		b.OnFailure()
	} else {
		b.OnSuccess()
	}
	return v, err
}

// State returns the current state of the breaker. In Open state it may
// auto-transition to HalfOpen if the timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpenTimeout()
	return b.state
}

// Allow reports whether a call may go through: always when Closed, while
// probe slots remain when HalfOpen, never when Open.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkOpenTimeout()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return b.successes < b.cfg.HalfOpenMaxSuccess
	default:
		return false
	}
}

// OnSuccess records a successful call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxSuccess {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	}
}

// OnFailure records a failed call.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case HalfOpen:
		b.toOpen()
	}
}

// checkOpenTimeout moves Open to HalfOpen once OpenTimeout has elapsed.
// Must be called with b.mu held.
func (b *Breaker) checkOpenTimeout() {
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *Breaker) toOpen() {
	b.state = Open
	b.openedAt = b.nowFunc()
	b.successes = 0
}
