// Package orchestrator coordinates a capture scheduler with its consumers:
// event fan-out, the capture journal and the health state.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/capture"
	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/journal"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/resilience"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/syncx"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/trace"
)

// Event is a capture outcome in wire form.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	ID        string `json:"id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	FilePath  string `json:"filePath,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ErrorEvent builds an error event.
func ErrorEvent(sessionID, message string) Event {
	return Event{Type: EventError, SessionID: sessionID, Code: ErrorCode, Message: message}
}

// Status is a snapshot of the coordinator.
type Status struct {
	State       string    `json:"state"`
	SessionID   string    `json:"sessionId,omitempty"`
	Interval    float64   `json:"intervalSeconds,omitempty"`
	Captures    int64     `json:"captures"`
	Failures    int64     `json:"failures"`
	Duplicates  int64     `json:"duplicates"`
	LastCapture time.Time `json:"lastCapture,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
	Subscribers int       `json:"subscribers"`

	Journal *resilience.Snapshot `json:"journal,omitempty"`
}

// Journal receives one record per capture attempt.
type Journal interface {
	Add(journal.Record)
}

// journalHealth is implemented by journals that report write health.
type journalHealth interface {
	Health() resilience.Snapshot
}

// Manager runs one scheduler and distributes what it produces.
type Manager struct {
	sched   *capture.Scheduler
	journal Journal
	dedupe  *Detector
	hub     *Hub

	mu      sync.Mutex // serializes Start and Stop
	onState func(running bool)

	stats *syncx.Guard[Status]
}

// New creates a manager. journal may be nil.
func New(sched *capture.Scheduler, j Journal, maxHashDistance int) *Manager {
	return &Manager{
		sched:   sched,
		journal: j,
		dedupe:  NewDetector(maxHashDistance),
		hub:     NewHub(SubscriberBuffer),
		stats:   syncx.NewGuard(Status{State: capture.StateIdle.String()}),
	}
}

// OnStateChange registers fn to be called with the running state after
// every Start and Stop.
func (m *Manager) OnStateChange(fn func(running bool)) {
	m.mu.Lock()
	m.onState = fn
	m.mu.Unlock()
}

// Run drains scheduler events until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.sched.Events():
			m.handle(ctx, ev)
		}
	}
}

// Start begins a session. Unlike the scheduler, which ignores a second
// Start, the manager reports it so a second client learns it was refused.
func (m *Manager) Start(ctx context.Context, sess capture.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.sched.Session(); ok {
		return apperrors.New(apperrors.CodeInvalidArgument, "capture already in progress").
			WithMetadata("session_id", cur.ID)
	}
	if err := m.sched.Start(sess); err != nil {
		return err
	}

	m.dedupe.Reset()
	m.stats.Write(func(s *Status) {
		*s = Status{State: capture.StateRunning.String(), SessionID: sess.ID, Interval: sess.Interval.Seconds()}
	})
	trace.Logger(ctx).Info("capture session started", "session_id", sess.ID, "interval", sess.Interval)
	m.notify(true)
	return nil
}

// Stop ends the running session, if any.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sched.Session()
	m.sched.Stop()
	if !ok {
		return
	}
	m.stats.Write(func(s *Status) { s.State = capture.StateIdle.String() })
	trace.Logger(context.Background()).Info("capture session stopped", "session_id", sess.ID)
	m.notify(false)
}

func (m *Manager) notify(running bool) {
	if m.onState != nil {
		m.onState(running)
	}
}

// Subscribe returns a channel of events and its cancel func.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.hub.Subscribe()
}

// Status returns a snapshot.
func (m *Manager) Status() Status {
	st := m.stats.Get()
	st.Subscribers = m.hub.Len()
	if h, ok := m.journal.(journalHealth); ok {
		snap := h.Health()
		st.Journal = &snap
	}
	return st
}

// Running reports whether a session is active.
func (m *Manager) Running() bool {
	return m.sched.State() == capture.StateRunning
}

// handle journals every event but only counts and emits those belonging to
// the running session. An event read just before Stop can otherwise reach
// the subscribers of the next session.
func (m *Manager) handle(ctx context.Context, ev capture.Event) {
	log := trace.Logger(ctx)
	rec := journal.Record{SessionID: ev.SessionID, Timestamp: time.Now().UnixMilli()}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	} else {
		res := ev.Result
		rec.Timestamp = res.Timestamp
		rec.FilePath, rec.FileSize = res.FilePath, res.FileSize
		rec.Width, rec.Height = res.Width, res.Height
		rec.PHash = res.PerceptualHash
	}
	if m.journal != nil {
		m.journal.Add(rec)
	}

	if cur, ok := m.sched.Session(); !ok || cur.ID != ev.SessionID {
		log.Debug("dropping event from finished session", "session_id", ev.SessionID)
		return
	}

	var out Event
	if ev.Err != nil {
		out = ErrorEvent(ev.SessionID, ev.Err.Error())
		m.stats.Write(func(s *Status) {
			s.Failures++
			s.LastError = ev.Err.Error()
		})
	} else {
		res := ev.Result
		dup, dist := m.dedupe.Check(res.PerceptualHash)
		if dup {
			log.Debug("capture similar to previous", "id", res.ID, "distance", dist)
		}
		out = Event{
			Type:      EventScreenshot,
			SessionID: ev.SessionID,
			ID:        res.ID,
			Timestamp: res.Timestamp,
			FilePath:  res.FilePath,
			FileSize:  res.FileSize,
			Width:     res.Width,
			Height:    res.Height,
			Duplicate: dup,
		}
		m.stats.Write(func(s *Status) {
			s.Captures++
			if dup {
				s.Duplicates++
			}
			s.LastCapture = time.UnixMilli(res.Timestamp)
		})
	}

	if dropped := m.hub.Emit(out); dropped > 0 {
		log.Warn("subscribers missed capture event", "dropped", dropped, "type", out.Type)
	}
}
