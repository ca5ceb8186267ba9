package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClocked(cfg Config) (*Breaker, *fakeClock) {
	c := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New("test", cfg).WithClock(c.now), c
}

func TestBreakerInitialState(t *testing.T) {
	b := New("test", DefaultConfig())
	if b.State() != Closed {
		t.Errorf("initial state = %v, want Closed", b.State())
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("test", Config{Threshold: 3, ResetTimeout: time.Hour, HalfOpenSuccesses: 2})

	for i := 0; i < 3; i++ {
		b.Failure()
	}

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
	if err := b.Allow(); err != ErrOpen {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b, clock := newClocked(Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 2})
	b.Failure()

	clock.advance(30 * time.Second)
	if err := b.Allow(); err != ErrOpen {
		t.Fatalf("Allow() before timeout = %v, want ErrOpen", err)
	}

	clock.advance(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after timeout = %v, want nil", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}

	b.Success()
	b.Success()
	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b, clock := newClocked(Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenSuccesses: 3})
	b.Failure()

	clock.advance(2 * time.Second)
	_ = b.Allow()
	b.Failure()

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
}

func TestBreakerExecute(t *testing.T) {
	b := New("test", Config{Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute success = %v, want nil", err)
	}

	testErr := errors.New("test error")
	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return testErr }); err != testErr {
			t.Errorf("Execute failure = %v, want %v", err, testErr)
		}
	}

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != ErrOpen || called {
		t.Errorf("Execute while open = %v (called %v), want ErrOpen without calling", err, called)
	}
}

func TestBreakerSnapshot(t *testing.T) {
	b, clock := newClocked(Config{Threshold: 2, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})
	boom := errors.New("disk full")

	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return nil })

	snap := b.Snapshot()
	if snap.Name != "test" || snap.State != "open" {
		t.Errorf("snapshot = %+v, want open breaker named test", snap)
	}
	if snap.Failures != 2 || snap.Rejected != 1 {
		t.Errorf("failures/rejected = %d/%d, want 2/1", snap.Failures, snap.Rejected)
	}
	if snap.LastError != "disk full" || !snap.LastFailure.Equal(clock.now()) {
		t.Errorf("last failure = %v %q", snap.LastFailure, snap.LastError)
	}

	clock.advance(2 * time.Minute)
	_ = b.Execute(func() error { return nil })
	if snap := b.Snapshot(); snap.State != "closed" || snap.Failures != 0 {
		t.Errorf("after recovery snapshot = %+v", snap)
	}
}

func TestBreakerHook(t *testing.T) {
	var transitions []State
	b, clock := newClocked(Config{Threshold: 1, ResetTimeout: time.Second, HalfOpenSuccesses: 1})
	b.WithHook(func(_, to State) { transitions = append(transitions, to) })

	b.Failure()
	clock.advance(2 * time.Second)
	_ = b.Allow()
	b.Success()

	want := []State{Open, HalfOpen, Closed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestBreakerConcurrentSafety(t *testing.T) {
	b := New("test", Config{Threshold: 100, ResetTimeout: time.Second, HalfOpenSuccesses: 10})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Allow()
			if i%2 == 0 {
				b.Success()
			} else {
				b.Failure()
			}
		}()
	}
	wg.Wait()

	_ = b.State()
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(9), "closed"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.Threshold != DefaultThreshold || cfg.ResetTimeout != DefaultResetTimeout || cfg.HalfOpenSuccesses != DefaultHalfOpenSuccesses {
		t.Errorf("withDefaults() = %+v", cfg)
	}
	if j := JournalConfig(); j.Threshold != JournalThreshold || j.ResetTimeout != JournalResetTimeout {
		t.Errorf("JournalConfig() = %+v", j)
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	b := New("test", Config{Threshold: 3, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}
