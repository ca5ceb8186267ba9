package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/dustin/go-humanize"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/capture"
	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/imaging"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/journal"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/orchestrator"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/screen"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/store"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/syncx"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/trace"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

// Message is the envelope every client message shares.
type Message struct {
	Type string `json:"type"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// History is the read side of the capture journal.
type History interface {
	List(ctx context.Context, sessionID string, limit int) ([]journal.Record, error)
}

// Deps are the collaborators the server needs. Windows and History may be nil.
type Deps struct {
	Manager  *orchestrator.Manager
	Source   screen.Source
	Store    capture.Writer
	Root     string
	Displays func() ([]screen.Display, error)
	Windows  window.Lister
	History  History
	Defaults Defaults
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	deps   Deps
	stream *syncx.Guard[bool] // held by the WebSocket that owns the session
	now    func() time.Time
}

// New creates a server.
func New(deps Deps) *Server {
	if deps.Defaults.Interval <= 0 {
		deps.Defaults = DefaultDefaults()
	}
	return &Server{deps: deps, stream: syncx.NewGuard(false), now: time.Now}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/displays", s.handleDisplays)
	mux.HandleFunc("GET /api/windows", s.handleWindows)
	mux.HandleFunc("POST /api/screenshot", s.handleScreenshot)
	mux.HandleFunc("GET /api/sessions/{id}/captures", s.handleCaptures)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleWebSocket runs one capture session per connection. The first
// message is the CaptureRequest; {"type":"stop"} or a disconnect ends it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	var raw json.RawMessage
	if err := wsjson.Read(ctx, conn, &raw); err != nil {
		log.Debug("websocket read error", "error", err)
		return
	}
	var req CaptureRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		_ = wsjson.Write(ctx, conn, orchestrator.ErrorEvent("", "invalid capture request: "+err.Error()))
		return
	}
	if tc, ok := trace.ExtractFromJSON(raw); ok {
		ctx = trace.WithContext(ctx, tc)
		log = trace.Logger(ctx)
	}

	if !syncx.Claim(s.stream) {
		log.Warn("capture stream refused", "session_id", req.SessionID)
		_ = wsjson.Write(ctx, conn, orchestrator.ErrorEvent(req.SessionID, BusyMessage))
		return
	}
	defer s.stream.Set(false)

	sess, err := req.Session(ctx, s.deps.Windows, s.deps.Defaults)
	if err != nil {
		_ = wsjson.Write(ctx, conn, orchestrator.ErrorEvent(req.SessionID, err.Error()))
		return
	}

	events, unsubscribe := s.deps.Manager.Subscribe()
	defer unsubscribe()

	if err := s.deps.Manager.Start(ctx, sess); err != nil {
		log.Warn("capture session not started", "session_id", sess.ID, "error", err)
		_ = wsjson.Write(ctx, conn, orchestrator.ErrorEvent(sess.ID, err.Error()))
		return
	}
	defer s.deps.Manager.Stop()

	go s.readControl(ctx, cancel, conn, r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			log.Info("capture stream closed", "session_id", sess.ID)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				log.Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

// readControl watches for the stop message. Any read error ends the stream.
func (s *Server) readControl(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, remote string) {
	defer cancel()
	log := trace.Logger(ctx)
	rl := &rateLimiter{}

	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}
		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", remote)
			_ = wsjson.Write(ctx, conn, orchestrator.ErrorEvent("", "rate limit exceeded"))
			continue
		}
		if msg.Type == "stop" {
			log.Info("stop requested", "remote", remote)
			return
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Manager.Status())
}

func (s *Server) handleDisplays(w http.ResponseWriter, r *http.Request) {
	displays, err := s.deps.Displays()
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, displays)
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	if s.deps.Windows == nil {
		writeError(r.Context(), w, window.ErrUnsupported)
		return
	}
	wins, err := s.deps.Windows.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, wins)
}

// handleScreenshot takes one capture outside any session.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "one_shot_capture")
	defer span.End()

	var req ScreenshotRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(&req); err != nil {
			writeError(ctx, w, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "decode request"))
			return
		}
	}
	if err := store.ValidateSessionID(req.SessionID); err != nil {
		writeError(ctx, w, err)
		return
	}

	target, err := parseTarget(ctx, s.deps.Windows, req.Target)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	opts := parseImageOptions(ctx, req.ImageOptions, s.deps.Defaults.Image)

	img, err := s.deps.Source.Capture(ctx, target, boolOr(req.ExcludeSelf, s.deps.Defaults.ExcludeSelf))
	if err != nil {
		span.SetAttr("error", err.Error())
		writeError(ctx, w, err)
		return
	}

	if req.TargetSizeKB > 0 {
		opts, err = imaging.FitToSize(img, opts, req.TargetSizeKB)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		span.SetAttr("quality", opts.Quality)
	}

	name := req.FileName
	if name == "" {
		name = imaging.GenerateFileName("screenshot", opts.Format, true, s.now())
	}
	res, err := s.deps.Store.Write(ctx, img, opts, store.Policy{Root: s.deps.Root, SessionID: req.SessionID, FileName: name})
	if err != nil {
		span.SetAttr("error", err.Error())
		writeError(ctx, w, err)
		return
	}
	trace.Logger(ctx).Info("screenshot saved", "path", res.FilePath, "size", humanize.IBytes(uint64(res.FileSize)))
	writeJSON(w, http.StatusOK, orchestrator.Event{
		Type:      orchestrator.EventScreenshot,
		SessionID: req.SessionID,
		ID:        res.ID,
		Timestamp: res.Timestamp,
		FilePath:  res.FilePath,
		FileSize:  res.FileSize,
		Width:     res.Width,
		Height:    res.Height,
	})
}

func (s *Server) handleCaptures(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(r.Context(), w, apperrors.New(apperrors.CodeNotConfigured, "capture journal is disabled"))
		return
	}
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(r.Context(), w, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid limit %q", v))
			return
		}
		limit = min(n, MaxHistoryLimit)
	}
	records, err := s.deps.History.List(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the REST error shape.
type errorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := httpStatus(err)
	code := apperrors.CodeOf(err).String()
	if errors.Is(err, window.ErrUnsupported) {
		code = "UNSUPPORTED"
	}
	if status >= http.StatusInternalServerError {
		trace.Logger(ctx).Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Type: orchestrator.EventError, Code: code, Message: err.Error()})
}

func httpStatus(err error) int {
	if errors.Is(err, window.ErrUnsupported) {
		return http.StatusNotImplemented
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidArgument, apperrors.CodeInvalidGeometry,
		apperrors.CodeMissingOrInvalidSessionID, apperrors.CodeUnsupportedFormat:
		return http.StatusBadRequest
	case apperrors.CodeNoDisplayAvailable:
		return http.StatusNotFound
	case apperrors.CodeNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
