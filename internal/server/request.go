package server

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/capture"
	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/imaging"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/screen"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/trace"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

// ResizeRequest is the wire form of imaging.ResizeMode.
type ResizeRequest struct {
	Mode      string  `json:"mode"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	MaxWidth  int     `json:"maxWidth,omitempty"`
	MaxHeight int     `json:"maxHeight,omitempty"`
	Factor    float64 `json:"factor,omitempty"`
}

// ImageOptionsRequest is the wire form of imaging.Options.
type ImageOptionsRequest struct {
	Format  string         `json:"format,omitempty"`
	Quality *float64       `json:"quality,omitempty"`
	Resize  *ResizeRequest `json:"resize,omitempty"`
}

// TargetRequest selects what to capture. A window may be named by id or,
// failing that, by owner or title.
type TargetRequest struct {
	Type     string `json:"type"` // display, region or window
	Display  int    `json:"display,omitempty"`
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	WindowID uint32 `json:"windowId,omitempty"`
	Owner    string `json:"owner,omitempty"`
	Title    string `json:"title,omitempty"`
}

// CaptureRequest opens a WebSocket session.
type CaptureRequest struct {
	SessionID       string               `json:"sessionId"`
	IntervalSeconds float64              `json:"intervalSeconds,omitempty"`
	ImageOptions    *ImageOptionsRequest `json:"imageOptions,omitempty"`
	Target          *TargetRequest       `json:"target,omitempty"`
	ExcludeSelf     *bool                `json:"excludeSelf,omitempty"`
}

// ScreenshotRequest is the body of POST /api/screenshot.
type ScreenshotRequest struct {
	SessionID    string               `json:"sessionId,omitempty"`
	FileName     string               `json:"fileName,omitempty"`
	ImageOptions *ImageOptionsRequest `json:"imageOptions,omitempty"`
	Target       *TargetRequest       `json:"target,omitempty"`
	ExcludeSelf  *bool                `json:"excludeSelf,omitempty"`
	TargetSizeKB int                  `json:"targetSizeKB,omitempty"`
}

// Defaults fill whatever a request leaves out.
type Defaults struct {
	Interval    time.Duration
	Image       imaging.Options
	ExcludeSelf bool
}

// DefaultDefaults matches the documented request defaults.
func DefaultDefaults() Defaults {
	return Defaults{Interval: capture.DefaultInterval, Image: imaging.DefaultJPEG, ExcludeSelf: true}
}

// Session turns the request into a scheduler session. Session id and
// interval validation is left to the scheduler.
func (r CaptureRequest) Session(ctx context.Context, lister window.Lister, d Defaults) (capture.Session, error) {
	interval := d.Interval
	if r.IntervalSeconds > 0 {
		interval = time.Duration(r.IntervalSeconds * float64(time.Second))
	} else if r.IntervalSeconds < 0 {
		return capture.Session{}, apperrors.Newf(apperrors.CodeInvalidArgument, "intervalSeconds must be positive, got %g", r.IntervalSeconds)
	}

	target, err := parseTarget(ctx, lister, r.Target)
	if err != nil {
		return capture.Session{}, err
	}

	return capture.Session{
		ID:          strings.TrimSpace(r.SessionID),
		Interval:    interval,
		Target:      target,
		Encode:      parseImageOptions(ctx, r.ImageOptions, d.Image),
		ExcludeSelf: boolOr(r.ExcludeSelf, d.ExcludeSelf),
	}, nil
}

// parseImageOptions never fails: an unknown format falls back to JPEG and
// an unknown resize mode to no resize, each with a warning.
func parseImageOptions(ctx context.Context, req *ImageOptionsRequest, def imaging.Options) imaging.Options {
	if req == nil {
		return def
	}
	log := trace.Logger(ctx)

	opts := def
	if req.Format != "" {
		f, err := imaging.ParseFormat(req.Format)
		if err != nil {
			log.Warn("unknown image format, using jpeg", "format", req.Format)
			f = imaging.FormatJPEG
		}
		opts.Format = f
	}
	if opts.Format == "" {
		opts.Format = imaging.FormatJPEG
	}

	if opts.Quality <= 0 {
		opts.Quality = imaging.DefaultQuality
	}
	if req.Quality != nil {
		opts.Quality = *req.Quality
	}
	opts = imaging.NewOptions(opts.Format, opts.Quality, nil)

	if req.Resize != nil {
		mode, ok := parseResize(*req.Resize)
		if ok {
			opts.Resize = &mode
		} else {
			log.Warn("unknown resize mode, not resizing", "mode", req.Resize.Mode)
		}
	}
	return opts
}

func parseResize(r ResizeRequest) (imaging.ResizeMode, bool) {
	switch strings.ToLower(r.Mode) {
	case "exact":
		return imaging.Exact(r.Width, r.Height), true
	case "fit":
		return imaging.Fit(r.MaxWidth, r.MaxHeight), true
	case "fill":
		return imaging.Fill(r.Width, r.Height), true
	case "scale":
		return imaging.Scale(r.Factor), true
	case "width":
		return imaging.Width(r.Width), true
	case "height":
		return imaging.Height(r.Height), true
	default:
		return imaging.ResizeMode{}, false
	}
}

func parseTarget(ctx context.Context, lister window.Lister, t *TargetRequest) (screen.Selector, error) {
	if t == nil {
		return screen.PrimaryDisplay(), nil
	}
	switch strings.ToLower(t.Type) {
	case "", "display":
		return screen.DisplaySelector(t.Display), nil
	case "region":
		if t.Width <= 0 || t.Height <= 0 {
			return screen.Selector{}, apperrors.Newf(apperrors.CodeInvalidGeometry, "region %dx%d is empty", t.Width, t.Height)
		}
		return screen.RegionSelector(image.Rect(t.X, t.Y, t.X+t.Width, t.Y+t.Height)), nil
	case "window":
		if t.WindowID != 0 {
			return screen.WindowSelector(t.WindowID), nil
		}
		return findWindow(ctx, lister, t)
	default:
		return screen.Selector{}, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown target type %q", t.Type)
	}
}

func findWindow(ctx context.Context, lister window.Lister, t *TargetRequest) (screen.Selector, error) {
	if lister == nil {
		return screen.Selector{}, apperrors.New(apperrors.CodeNoDisplayAvailable, "window lookup is not available")
	}
	var (
		matches []window.Info
		err     error
	)
	switch {
	case t.Owner != "":
		matches, err = window.FindByOwner(ctx, lister, t.Owner)
	case t.Title != "":
		matches, err = window.FindByTitle(ctx, lister, t.Title)
	default:
		return screen.Selector{}, apperrors.New(apperrors.CodeInvalidArgument, "window target needs windowId, owner or title")
	}
	if err != nil {
		return screen.Selector{}, apperrors.Wrap(err, apperrors.CodeNoDisplayAvailable, "list windows")
	}
	if len(matches) == 0 {
		return screen.Selector{}, apperrors.New(apperrors.CodeNoDisplayAvailable, "no matching window").
			WithMetadata("owner", t.Owner).WithMetadata("title", t.Title)
	}
	return screen.WindowSelector(matches[0].ID), nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
