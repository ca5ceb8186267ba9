package screen

import (
	"context"
	"image"
	"log/slog"

	"github.com/kbinani/screenshot"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

// platform is the slice of the screenshot library the native source uses.
type platform interface {
	NumActiveDisplays() int
	GetDisplayBounds(index int) image.Rectangle
	CaptureRect(r image.Rectangle) (*image.RGBA, error)
}

type kbinani struct{}

func (kbinani) NumActiveDisplays() int                             { return screenshot.NumActiveDisplays() }
func (kbinani) GetDisplayBounds(i int) image.Rectangle             { return screenshot.GetDisplayBounds(i) }
func (kbinani) CaptureRect(r image.Rectangle) (*image.RGBA, error) { return screenshot.CaptureRect(r) }

// NativeSource captures through the operating system's screen APIs.
//
// excludeOwnProcess is best-effort: the underlying API composites every
// visible window, so the flag only suppresses window targets owned by this
// process.
type NativeSource struct {
	platform platform
	windows  window.Lister
}

// NewNative returns a source backed by github.com/kbinani/screenshot.
func NewNative(windows window.Lister) *NativeSource {
	return &NativeSource{platform: kbinani{}, windows: windows}
}

func (s *NativeSource) Capture(ctx context.Context, sel Selector, excludeOwnProcess bool) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "capture cancelled")
	}

	rect, err := resolve(ctx, displayBounds(s.platform), s.windows, sel)
	if err != nil {
		return nil, err
	}
	if excludeOwnProcess && sel.Kind == TargetWindow {
		if err := refuseOwnWindow(ctx, s.windows, sel.WindowID); err != nil {
			return nil, err
		}
	}

	img, err := s.platform.CaptureRect(rect)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeCaptureFailed, "capture %s", sel)
	}
	slog.Debug("captured", "target", sel.String(), "bounds", rect.String())
	return img, nil
}

// ListDisplays reports the active displays, index 0 being primary.
func (s *NativeSource) ListDisplays() ([]Display, error) {
	return listDisplays(s.platform)
}

// ListDisplays reports the active displays using the native backend.
func ListDisplays() ([]Display, error) {
	return listDisplays(kbinani{})
}

func listDisplays(p platform) ([]Display, error) {
	bounds := displayBounds(p)
	if len(bounds) == 0 {
		return nil, apperrors.New(apperrors.CodeNoDisplayAvailable, "no active displays")
	}
	out := make([]Display, len(bounds))
	for i, b := range bounds {
		out[i] = Display{Index: i, Bounds: b, Primary: i == 0}
	}
	return out, nil
}

func displayBounds(p platform) []image.Rectangle {
	n := p.NumActiveDisplays()
	out := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, p.GetDisplayBounds(i))
	}
	return out
}

func refuseOwnWindow(ctx context.Context, l window.Lister, id uint32) error {
	info, found, err := window.FindByID(ctx, l, id)
	if err != nil || !found {
		return nil
	}
	if info.OwnerPID == ownPID {
		return apperrors.Newf(apperrors.CodeNoDisplayAvailable, "window %d belongs to this process", id)
	}
	return nil
}
