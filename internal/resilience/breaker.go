// Package resilience guards side channels (the capture journal, the health
// probe) so their failures stay contained.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the breaker position.
type State uint32

const (
	Closed   State = iota // calls pass
	Open                  // calls are rejected
	HalfOpen              // probing recovery
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrOpen is returned while the breaker is failing fast.
var ErrOpen = errors.New("circuit breaker open")

// Snapshot is a point-in-time view of a breaker for status endpoints.
type Snapshot struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	Rejected    int64     `json:"rejected"`
	LastFailure time.Time `json:"lastFailure,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
}

// Breaker trips after Threshold consecutive failures, rejects calls for
// ResetTimeout, then lets calls through half-open until HalfOpenSuccesses
// of them succeed.
type Breaker struct {
	name     string
	cfg      Config
	now      func() time.Time
	onChange func(from, to State)

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	rejected    int64
	lastFailure time.Time
	lastErr     string
}

// New creates a closed breaker. name labels its log lines.
func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// WithHook sets a callback run after every state change, outside the lock.
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.onChange = fn
	return b
}

// WithClock replaces the time source used for the reset timeout.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow returns nil when a call may proceed and ErrOpen otherwise. An open
// breaker past its reset timeout moves to half-open and allows the call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	if b.state != Open {
		b.mu.Unlock()
		return nil
	}
	if b.now().Sub(b.lastFailure) <= b.cfg.ResetTimeout {
		b.rejected++
		b.mu.Unlock()
		return ErrOpen
	}
	from := b.moveLocked(HalfOpen)
	b.mu.Unlock()
	b.notify(from, HalfOpen)
	return nil
}

// Success records a call that worked.
func (b *Breaker) Success() {
	b.mu.Lock()
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenSuccesses {
			from := b.moveLocked(Closed)
			b.mu.Unlock()
			b.notify(from, Closed)
			return
		}
	}
	b.mu.Unlock()
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.fail(nil)
}

func (b *Breaker) fail(err error) {
	b.mu.Lock()
	b.lastFailure = b.now()
	b.failures++
	if err != nil {
		b.lastErr = err.Error()
	}

	trip := b.state == HalfOpen || (b.state == Closed && b.failures >= b.cfg.Threshold)
	if !trip {
		b.mu.Unlock()
		return
	}
	from := b.moveLocked(Open)
	b.mu.Unlock()
	b.notify(from, Open)
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot reports the breaker for status output.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		Rejected:    b.rejected,
		LastFailure: b.lastFailure,
		LastError:   b.lastErr,
	}
}

// Execute runs fn unless the breaker is open and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.fail(err)
		return err
	}
	b.Success()
	return nil
}

// moveLocked switches state, resets the counters the new state starts from
// and logs. It returns the previous state.
func (b *Breaker) moveLocked(to State) State {
	from := b.state
	b.state = to
	b.successes = 0

	switch to {
	case Closed:
		b.failures = 0
		slog.Info("circuit breaker closed", "breaker", b.name)
	case Open:
		slog.Warn("circuit breaker opened", "breaker", b.name, "failures", b.failures, "last_error", b.lastErr)
	case HalfOpen:
		slog.Info("circuit breaker half-open", "breaker", b.name)
	}
	return from
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil && from != to {
		b.onChange(from, to)
	}
}
