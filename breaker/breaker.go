// Package breaker implements the circuit breaker state machine guarding
// calls to external dependencies.
//
// State machine: Closed -> Open -> HalfOpen -> Closed.
//
//   - Closed: calls pass through; consecutive failures open the circuit.
//   - Open: calls fail fast without reaching the dependency; after the
//     recovery timeout the next call transitions to HalfOpen.
//   - HalfOpen: a bounded number of probe calls go through; enough probe
//     successes close the circuit, any probe failure reopens it.
//
// One Breaker instance exists per dependency and is shared across all
// concurrent requests; every mutation happens under its mutex.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is a circuit breaker phase.
type State int

const (
	// Closed is normal operation; calls pass through.
	Closed State = iota
	// Open is fail-fast; calls are rejected without reaching the dependency.
	Open
	// HalfOpen allows a bounded number of recovery probes through.
	HalfOpen
)

// String returns the wire name of the state.
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

// ErrOpen is returned when the circuit rejects a call without invoking
// the dependency. Match with errors.Is.
var ErrOpen = errors.New("circuit breaker open")

// OpenError reports a fail-fast rejection, naming the dependency.
type OpenError struct {
	Dependency string
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return "circuit breaker for '" + e.Dependency + "' is open, service temporarily unavailable"
}

// Unwrap makes errors.Is(err, ErrOpen) match.
func (e *OpenError) Unwrap() error { return ErrOpen }

// Config tunes one breaker.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	ProbeQuota       int
}

// Snapshot is a consistent read of a breaker's state, for health checks
// and monitoring.
type Snapshot struct {
	Dependency          string     `json:"dependency"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	ProbeSuccesses      int        `json:"probe_successes"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
	OpenRejections      uint64     `json:"open_rejections"`
}

// TransitionHook is invoked after every state transition, outside of any
// user call but under the breaker's lock. Keep it cheap (metrics counter).
type TransitionHook func(dependency string, from, to State)

// Breaker guards calls to one external dependency.
type Breaker struct {
	name   string
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	hook   TransitionHook

	mu             sync.Mutex
	state          State
	failures       int // consecutive failures while Closed
	probeSuccesses int // consecutive probe successes while HalfOpen
	probesInFlight int
	openedAt       time.Time
	openRejections uint64
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides the time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithTransitionHook registers a hook called on every phase transition.
func WithTransitionHook(hook TransitionHook) Option {
	return func(b *Breaker) { b.hook = hook }
}

// New creates a breaker for the named dependency.
func New(name string, cfg Config, logger *slog.Logger, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name.
func (b *Breaker) Name() string { return b.name }

// Do executes call under circuit breaker protection. When the circuit is
// open (or the probe quota is exhausted) it returns an OpenError without
// invoking call. Otherwise call's error is returned unchanged after the
// outcome is recorded.
//
// A call that fails only because the caller's own context was cancelled
// is not counted against the dependency.
func (b *Breaker) Do(ctx context.Context, call func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	callErr := call(ctx)

	switch {
	case callErr == nil:
		b.recordSuccess(probe)
	case errors.Is(callErr, context.Canceled):
		// Client went away; says nothing about dependency health.
		b.releaseProbe(probe)
	default:
		b.recordFailure(probe)
	}
	return callErr
}

// admit decides whether a call may proceed. Returns probe=true when the
// call is a half-open recovery probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
			b.transition(HalfOpen)
		} else {
			b.openRejections++
			b.logger.Warn("circuit breaker rejected call",
				"dependency", b.name,
				"state", b.state.String(),
				"open_rejections", b.openRejections,
			)
			return false, &OpenError{Dependency: b.name}
		}
	}

	if b.state == HalfOpen {
		if b.probesInFlight >= b.cfg.ProbeQuota {
			b.openRejections++
			return false, &OpenError{Dependency: b.name}
		}
		b.probesInFlight++
		return true, nil
	}

	return false, nil
}

func (b *Breaker) recordSuccess(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probesInFlight--
		b.probeSuccesses++
		if b.state == HalfOpen && b.probeSuccesses >= b.cfg.ProbeQuota {
			b.transition(Closed)
		}
		return
	}
	if b.state == Closed {
		b.failures = 0
	}
}

func (b *Breaker) recordFailure(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probesInFlight--
		if b.state == HalfOpen {
			// Any probe failure reopens immediately with a fresh openedAt.
			b.transition(Open)
		}
		return
	}

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	case Open:
		// Late result of a call admitted before the circuit opened;
		// already accounted for, do not double-count.
	}
}

func (b *Breaker) releaseProbe(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probesInFlight--
}

// transition moves the breaker to a new phase. Caller holds b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to

	switch to {
	case Open:
		b.openedAt = b.now()
		b.probeSuccesses = 0
	case HalfOpen:
		b.probeSuccesses = 0
		b.probesInFlight = 0
	case Closed:
		b.failures = 0
		b.probeSuccesses = 0
	}

	b.logger.Info("circuit breaker state change",
		"dependency", b.name,
		"old_state", from.String(),
		"new_state", to.String(),
		"consecutive_failures", b.failures,
	)
	if b.hook != nil {
		b.hook(b.name, from, to)
	}
}

// State returns the current phase without forcing a transition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a consistent view of the breaker for health reporting.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Dependency:          b.name,
		State:               b.state.String(),
		ConsecutiveFailures: b.failures,
		ProbeSuccesses:      b.probeSuccesses,
		OpenRejections:      b.openRejections,
	}
	if !b.openedAt.IsZero() {
		t := b.openedAt
		snap.OpenedAt = &t
	}
	return snap
}
