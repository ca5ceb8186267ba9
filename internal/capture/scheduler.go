// Package capture runs the periodic screenshot loop for one session at a
// time and delivers each outcome on a channel.
package capture

import (
	"context"
	"image"
	"strings"
	"sync"
	"time"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/imaging"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/screen"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/store"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/trace"
)

// DefaultInterval is used by callers that receive no interval.
const DefaultInterval = 3 * time.Second

// State is the scheduler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Session is one capture run.
type Session struct {
	ID          string
	Interval    time.Duration
	Target      screen.Selector
	Encode      imaging.Options // zero Format selects imaging.DefaultJPEG
	ExcludeSelf bool
}

// Event is the outcome of one iteration: exactly one of Result and Err is set.
type Event struct {
	SessionID string
	Result    *store.Result
	Err       error
}

// Writer persists an encoded capture.
type Writer interface {
	Write(ctx context.Context, img image.Image, opts imaging.Options, p store.Policy) (store.Result, error)
}

// Options configure a Scheduler.
type Options struct {
	Source  screen.Source
	Store   Writer
	Root    string
	Clock   func() time.Time
	Sleeper func(context.Context, time.Duration) error
}

// Scheduler owns at most one running session. Start and Stop are
// serialized; the last call wins.
type Scheduler struct {
	source  screen.Source
	store   Writer
	root    string
	clock   func() time.Time
	sleeper func(context.Context, time.Duration) error
	events  chan Event

	mu      sync.Mutex
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// New validates opts and returns an idle scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Source == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "capture source is required")
	}
	if opts.Store == nil {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "screenshot store is required")
	}
	if opts.Root == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "storage root is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = defaultSleeper
	}
	return &Scheduler{
		source:  opts.Source,
		store:   opts.Store,
		root:    opts.Root,
		clock:   clock,
		sleeper: sleeper,
		events:  make(chan Event),
	}, nil
}

// Events delivers one event per iteration. The loop blocks until each
// event is received, so iteration N+1 never starts before event N is read.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Start launches the loop for sess. A blank or path-like ID or a
// non-positive interval fails without touching a running session. Starting while running logs a
// warning and keeps the current session.
func (s *Scheduler) Start(sess Session) error {
	if strings.TrimSpace(sess.ID) == "" {
		return apperrors.New(apperrors.CodeMissingOrInvalidSessionID, "session id is required")
	}
	if err := store.ValidateSessionID(sess.ID); err != nil {
		return err
	}
	if sess.Interval <= 0 {
		return apperrors.Newf(apperrors.CodeInvalidArgument, "interval must be positive, got %s", sess.Interval)
	}
	if sess.Encode.Format == "" {
		sess.Encode = imaging.DefaultJPEG
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		trace.Logger(context.Background()).Warn("capture already running, ignoring start",
			"running", s.session.ID, "requested", sess.ID)
		return nil
	}

	ctx, span := trace.StartSpan(context.Background(), "capture_session")
	span.SetAttr("session", sess.ID)
	log := trace.Logger(ctx)
	ctx, cancel := context.WithCancel(ctx)
	s.session = &sess
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, span, sess, s.done)

	log.Info("capture started", "session", sess.ID, "interval", sess.Interval, "target", sess.Target.String(),
		"format", sess.Encode.Format)
	return nil
}

// Stop cancels the running session and returns once its loop has exited.
// Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return
	}
	id := s.session.ID
	s.cancel()
	<-s.done
	s.session, s.cancel, s.done = nil, nil, nil
	trace.Logger(context.Background()).Info("capture stopped", "session", id)
}

// State reports whether a session is running.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return StateIdle
	}
	return StateRunning
}

// Session returns the running session.
func (s *Scheduler) Session() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}

func (s *Scheduler) run(ctx context.Context, span *trace.Span, sess Session, done chan struct{}) {
	defer close(done)
	defer span.End()

	for n := 1; ; n++ {
		ev := s.iterate(ctx, sess, n)
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
		if err := s.sleeper(ctx, sess.Interval); err != nil {
			return
		}
	}
}

// iterate performs one capture. The in-flight capture is not cancelled by
// Stop; only the delivery and the following sleep are.
func (s *Scheduler) iterate(ctx context.Context, sess Session, n int) Event {
	ctx, span := trace.StartSpan(context.WithoutCancel(ctx), "capture_iteration")
	defer span.End()
	span.SetAttr("session", sess.ID)
	span.SetAttr("iteration", n)
	log := trace.Logger(ctx)

	img, err := s.source.Capture(ctx, sess.Target, sess.ExcludeSelf)
	if err != nil {
		span.SetAttr("error", err.Error())
		log.Error("screenshot capture failed", "session", sess.ID, "iteration", n, "error", err)
		return Event{SessionID: sess.ID, Err: err}
	}

	name := imaging.GenerateFileName("fullscreen_"+sess.ID, sess.Encode.Format, true, s.clock())
	res, err := s.store.Write(ctx, img, sess.Encode, store.Policy{Root: s.root, SessionID: sess.ID, FileName: name})
	if err != nil {
		span.SetAttr("error", err.Error())
		log.Error("screenshot save failed", "session", sess.ID, "iteration", n, "error", err)
		return Event{SessionID: sess.ID, Err: err}
	}

	span.SetAttr("file", res.FilePath)
	log.Info("screenshot captured", "session", sess.ID, "iteration", n, "path", res.FilePath,
		"size", res.FileSize, "width", res.Width, "height", res.Height)
	return Event{SessionID: sess.ID, Result: &res}
}

func defaultSleeper(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
