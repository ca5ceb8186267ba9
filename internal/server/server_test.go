package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/capture"
	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/imaging"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/journal"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/orchestrator"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/screen"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/store"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

type mockSource struct{ err error }

func (m *mockSource) Capture(context.Context, screen.Selector, bool) (image.Image, error) {
	if m.err != nil {
		return nil, m.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), uint8(x ^ y), 255})
		}
	}
	return img, nil
}

type mockHistory struct {
	gotSession string
	gotLimit   int
}

func (m *mockHistory) List(_ context.Context, sessionID string, limit int) ([]journal.Record, error) {
	m.gotSession, m.gotLimit = sessionID, limit
	return []journal.Record{{ID: 1, SessionID: sessionID, Timestamp: 1, FilePath: "/a.jpg"}}, nil
}

func fastSleep(ctx context.Context, _ time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil
	}
}

func newTestServer(t *testing.T, src screen.Source, deps Deps) (*Server, *orchestrator.Manager) {
	t.Helper()
	root := t.TempDir()
	st := store.New()
	sched, err := capture.New(capture.Options{Source: src, Store: st, Root: root, Sleeper: fastSleep})
	if err != nil {
		t.Fatal(err)
	}
	mgr := orchestrator.New(sched, nil, -1)
	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)
	t.Cleanup(func() {
		mgr.Stop()
		cancel()
	})

	deps.Manager = mgr
	deps.Source = src
	deps.Store = st
	deps.Root = root
	if deps.Displays == nil {
		deps.Displays = func() ([]screen.Display, error) {
			return []screen.Display{{Index: 0, Bounds: image.Rect(0, 0, 64, 48), Primary: true}}, nil
		}
	}
	return New(deps), mgr
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/status", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, OPTIONS" {
		t.Errorf("CORS methods = %q", v)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", http.NoBody)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Errorf("GET should reach the handler, got %d", rec.Code)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin on GET = %q, want %q", v, "*")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{}
	for i := 0; i < RateLimitMessages; i++ {
		if !rl.allow() {
			t.Fatalf("message %d should be allowed", i)
		}
	}
	if rl.allow() {
		t.Error("message over the limit should be refused")
	}
}

func ptr[T any](v T) *T { return &v }

func TestParseImageOptions(t *testing.T) {
	def := imaging.DefaultJPEG
	fit := imaging.Fit(800, 600)

	tests := []struct {
		name string
		req  *ImageOptionsRequest
		want imaging.Options
	}{
		{"absent", nil, def},
		{"missing quality", &ImageOptionsRequest{Format: "jpeg"}, imaging.Options{Format: imaging.FormatJPEG, Quality: 0.9}},
		{"unknown format", &ImageOptionsRequest{Format: "bmp", Quality: ptr(0.5)}, imaging.Options{Format: imaging.FormatJPEG, Quality: 0.5}},
		{"png", &ImageOptionsRequest{Format: "PNG"}, imaging.Options{Format: imaging.FormatPNG, Quality: 0.9}},
		{"quality clamped", &ImageOptionsRequest{Quality: ptr(3.0)}, imaging.Options{Format: imaging.FormatJPEG, Quality: 1}},
		{"unknown resize", &ImageOptionsRequest{Resize: &ResizeRequest{Mode: "stretch"}}, imaging.Options{Format: imaging.FormatJPEG, Quality: 0.9}},
		{"fit", &ImageOptionsRequest{Resize: &ResizeRequest{Mode: "fit", MaxWidth: 800, MaxHeight: 600}}, imaging.Options{Format: imaging.FormatJPEG, Quality: 0.9, Resize: &fit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseImageOptions(context.Background(), tt.req, def)
			if got.Format != tt.want.Format || got.Quality != tt.want.Quality {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if (got.Resize == nil) != (tt.want.Resize == nil) || (got.Resize != nil && *got.Resize != *tt.want.Resize) {
				t.Errorf("resize = %v, want %v", got.Resize, tt.want.Resize)
			}
		})
	}
}

func TestParseResizeModes(t *testing.T) {
	tests := []struct {
		req  ResizeRequest
		want imaging.ResizeMode
	}{
		{ResizeRequest{Mode: "exact", Width: 10, Height: 20}, imaging.Exact(10, 20)},
		{ResizeRequest{Mode: "fill", Width: 10, Height: 20}, imaging.Fill(10, 20)},
		{ResizeRequest{Mode: "scale", Factor: 0.5}, imaging.Scale(0.5)},
		{ResizeRequest{Mode: "Width", Width: 50}, imaging.Width(50)},
		{ResizeRequest{Mode: "height", Height: 50}, imaging.Height(50)},
	}
	for _, tt := range tests {
		got, ok := parseResize(tt.req)
		if !ok || got != tt.want {
			t.Errorf("parseResize(%+v) = %v, %v; want %v", tt.req, got, ok, tt.want)
		}
	}
}

func TestCaptureRequestSession(t *testing.T) {
	ctx := context.Background()

	sess, err := CaptureRequest{SessionID: " abc "}.Session(ctx, nil, DefaultDefaults())
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != "abc" || sess.Interval != 3*time.Second || !sess.ExcludeSelf {
		t.Errorf("session = %+v", sess)
	}
	if sess.Encode.Format != imaging.FormatJPEG || sess.Encode.Quality != 0.9 {
		t.Errorf("encode = %+v", sess.Encode)
	}

	sess, err = CaptureRequest{
		SessionID:       "r",
		IntervalSeconds: 0.5,
		Target:          &TargetRequest{Type: "region", X: 10, Y: 20, Width: 30, Height: 40},
		ExcludeSelf:     ptr(false),
	}.Session(ctx, nil, DefaultDefaults())
	if err != nil {
		t.Fatal(err)
	}
	if sess.Interval != 500*time.Millisecond || sess.ExcludeSelf {
		t.Errorf("session = %+v", sess)
	}
	if sess.Target.Kind != screen.TargetRegion || sess.Target.Region != image.Rect(10, 20, 40, 60) {
		t.Errorf("target = %+v", sess.Target)
	}

	if _, err := (CaptureRequest{SessionID: "x", IntervalSeconds: -1}).Session(ctx, nil, DefaultDefaults()); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Errorf("negative interval error = %v", err)
	}
}

func TestParseTargetWindow(t *testing.T) {
	ctx := context.Background()
	lister := window.ListerFunc(func(context.Context) ([]window.Info, error) {
		return []window.Info{{ID: 7, Title: "Notes", Owner: "gedit"}}, nil
	})

	sel, err := parseTarget(ctx, lister, &TargetRequest{Type: "window", Owner: "GEDIT"})
	if err != nil || sel.Kind != screen.TargetWindow || sel.WindowID != 7 {
		t.Errorf("by owner = %+v, %v", sel, err)
	}
	sel, err = parseTarget(ctx, nil, &TargetRequest{Type: "window", WindowID: 9})
	if err != nil || sel.WindowID != 9 {
		t.Errorf("by id = %+v, %v", sel, err)
	}
	if _, err := parseTarget(ctx, lister, &TargetRequest{Type: "window", Title: "missing"}); !apperrors.IsCode(err, apperrors.CodeNoDisplayAvailable) {
		t.Errorf("no match error = %v", err)
	}
	if _, err := parseTarget(ctx, lister, &TargetRequest{Type: "window"}); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Errorf("no criteria error = %v", err)
	}
	if _, err := parseTarget(ctx, nil, &TargetRequest{Type: "region"}); !apperrors.IsCode(err, apperrors.CodeInvalidGeometry) {
		t.Errorf("empty region error = %v", err)
	}
	if _, err := parseTarget(ctx, nil, &TargetRequest{Type: "monitor"}); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Errorf("unknown type error = %v", err)
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRESTEndpoints(t *testing.T) {
	hist := &mockHistory{}
	srv, _ := newTestServer(t, &mockSource{}, Deps{History: hist})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/status", "")
	var st orchestrator.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil || st.State != "idle" {
		t.Errorf("status = %+v, %v", st, err)
	}

	rec = do(t, h, http.MethodGet, "/api/displays", "")
	var displays []screen.Display
	if err := json.NewDecoder(rec.Body).Decode(&displays); err != nil || len(displays) != 1 {
		t.Errorf("displays = %+v, %v", displays, err)
	}

	rec = do(t, h, http.MethodGet, "/api/windows", "")
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("windows without lister = %d, want 501", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/sessions/abc/captures?limit=5", "")
	if rec.Code != http.StatusOK || hist.gotSession != "abc" || hist.gotLimit != 5 {
		t.Errorf("captures = %d, session %q, limit %d", rec.Code, hist.gotSession, hist.gotLimit)
	}
	rec = do(t, h, http.MethodGet, "/api/sessions/abc/captures?limit=zero", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", rec.Code)
	}
}

func TestCapturesWithoutJournal(t *testing.T) {
	srv, _ := newTestServer(t, &mockSource{}, Deps{})
	rec := do(t, srv.Handler(), http.MethodGet, "/api/sessions/abc/captures", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestScreenshotEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &mockSource{}, Deps{})
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/screenshot", `{"sessionId":"one","imageOptions":{"format":"png","resize":{"mode":"width","width":32}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var ev orchestrator.Event
	if err := json.NewDecoder(rec.Body).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "screenshot" || ev.Width != 32 || ev.Height != 24 || !strings.HasSuffix(ev.FilePath, ".png") {
		t.Errorf("event = %+v", ev)
	}
	if !strings.Contains(ev.FilePath, "one") {
		t.Errorf("file %q should live under the session directory", ev.FilePath)
	}

	rec = do(t, h, http.MethodPost, "/api/screenshot", `{"targetSizeKB":2}`)
	if rec.Code != http.StatusOK {
		t.Errorf("target size status = %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, h, http.MethodPost, "/api/screenshot", `{"imageOptions":{"format":"png"},"targetSizeKB":2}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("png target size status = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/screenshot", `{`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestScreenshotRejectsTraversal(t *testing.T) {
	srv, _ := newTestServer(t, &mockSource{}, Deps{})
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/screenshot", `{"sessionId":"../../outside"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body errorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Code != "MISSING_OR_INVALID_SESSION_ID" {
		t.Errorf("body = %+v", body)
	}

	rec = do(t, h, http.MethodPost, "/api/screenshot", `{"sessionId":"s1","fileName":"../../../pwned","imageOptions":{"format":"png"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var ev orchestrator.Event
	if err := json.NewDecoder(rec.Body).Decode(&ev); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(ev.FilePath, "/s1/screenshots/pwned.png") {
		t.Errorf("file %q should stay in the session directory", ev.FilePath)
	}
}

func TestScreenshotNoDisplay(t *testing.T) {
	src := &mockSource{err: apperrors.New(apperrors.CodeNoDisplayAvailable, "no display")}
	srv, _ := newTestServer(t, src, Deps{})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/screenshot", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body errorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Type != "error" || body.Code != "NO_DISPLAY_AVAILABLE" {
		t.Errorf("body = %+v", body)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) orchestrator.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ev orchestrator.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestWebSocketSession(t *testing.T) {
	srv, mgr := newTestServer(t, &mockSource{}, Deps{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	ctx := context.Background()
	if err := wsjson.Write(ctx, conn, CaptureRequest{SessionID: "ws1", IntervalSeconds: 0.01, ImageOptions: &ImageOptionsRequest{Format: "png"}}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		ev := readEvent(t, conn)
		if ev.Type != "screenshot" || ev.SessionID != "ws1" || ev.Width != 64 {
			t.Fatalf("event %d = %+v", i, ev)
		}
	}

	second := dial(t, ts)
	if err := wsjson.Write(ctx, second, CaptureRequest{SessionID: "ws2"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, second); ev.Type != "error" || ev.Code != "SCREENSHOT_ERROR" || ev.Message != BusyMessage {
		t.Errorf("second stream got %+v", ev)
	}

	if err := wsjson.Write(ctx, conn, Message{Type: "stop"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for mgr.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if mgr.Running() {
		t.Fatal("stop message should end the session")
	}
}

func TestWebSocketErrorEvents(t *testing.T) {
	src := &mockSource{err: apperrors.New(apperrors.CodeCaptureFailed, "boom")}
	srv, _ := newTestServer(t, src, Deps{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	if err := wsjson.Write(context.Background(), conn, CaptureRequest{SessionID: "e"}); err != nil {
		t.Fatal(err)
	}
	ev := readEvent(t, conn)
	if ev.Type != "error" || ev.Code != "SCREENSHOT_ERROR" || !strings.Contains(ev.Message, "boom") {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebSocketRejectsPathLikeSession(t *testing.T) {
	srv, mgr := newTestServer(t, &mockSource{}, Deps{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	if err := wsjson.Write(context.Background(), conn, CaptureRequest{SessionID: "../escape"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != "error" {
		t.Errorf("event = %+v, want error", ev)
	}
	if mgr.Running() {
		t.Error("a path-like session id must not start capture")
	}
}

func TestWebSocketBlankSession(t *testing.T) {
	srv, _ := newTestServer(t, &mockSource{}, Deps{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dial(t, ts)
	if err := wsjson.Write(context.Background(), conn, CaptureRequest{}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != "error" {
		t.Errorf("event = %+v, want error", ev)
	}
}
