package window

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often a Tracker re-reads window bounds.
const DefaultPollInterval = 100 * time.Millisecond

// EventKind distinguishes tracker events.
type EventKind int

const (
	EventUpdate EventKind = iota + 1
	EventClosed
)

// Event is emitted when the tracked window moves, resizes or disappears.
type Event struct {
	Kind   EventKind
	Bounds image.Rectangle
}

// Tracker polls a single window on its own goroutine.
type Tracker struct {
	lister   Lister
	id       uint32
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a tracker for window id. A non-positive interval
// selects DefaultPollInterval.
func NewTracker(l Lister, id uint32, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Tracker{lister: l, id: id, interval: interval}
}

// Start begins polling and returns the event channel. The channel is closed
// after a Closed event, on Stop, or when ctx is cancelled, after which the
// tracker may be started again. Calling Start on a running tracker returns
// nil.
func (t *Tracker) Start(ctx context.Context) <-chan Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 1)
	done := make(chan struct{})
	t.cancel, t.done = cancel, done
	go func() {
		t.run(ctx, events, done)
		t.release(done)
		cancel()
	}()
	return events
}

// release forgets the run that owns done so the tracker can be restarted
// after the window closes or ctx ends. A newer run is left alone.
func (t *Tracker) release(done chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == done {
		t.cancel, t.done = nil, nil
	}
}

// Stop ends polling and waits for the goroutine to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Tracker) run(ctx context.Context, events chan<- Event, done chan struct{}) {
	defer close(done)
	defer close(events)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	var last image.Rectangle
	for {
		info, found, err := FindByID(ctx, t.lister, t.id)
		switch {
		case err != nil:
			slog.Debug("window poll failed", "window", t.id, "error", err)
		case !found:
			slog.Info("tracked window closed", "window", t.id)
			send(ctx, events, Event{Kind: EventClosed})
			return
		case info.Bounds != last:
			last = info.Bounds
			if !send(ctx, events, Event{Kind: EventUpdate, Bounds: last}) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
