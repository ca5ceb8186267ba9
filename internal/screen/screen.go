// Package screen grabs bitmaps of displays, screen regions and windows.
package screen

import (
	"context"
	"fmt"
	"image"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

// TargetKind selects what a Selector points at.
type TargetKind int

const (
	TargetDisplay TargetKind = iota
	TargetRegion
	TargetWindow
)

// Selector picks the capture target. The zero value is the primary display.
type Selector struct {
	Kind     TargetKind
	Display  int
	Region   image.Rectangle
	WindowID uint32
}

func PrimaryDisplay() Selector                  { return Selector{} }
func DisplaySelector(index int) Selector        { return Selector{Kind: TargetDisplay, Display: index} }
func RegionSelector(r image.Rectangle) Selector { return Selector{Kind: TargetRegion, Region: r} }
func WindowSelector(id uint32) Selector         { return Selector{Kind: TargetWindow, WindowID: id} }

func (s Selector) String() string {
	switch s.Kind {
	case TargetRegion:
		return fmt.Sprintf("region%v", s.Region)
	case TargetWindow:
		return fmt.Sprintf("window(%d)", s.WindowID)
	default:
		return fmt.Sprintf("display(%d)", s.Display)
	}
}

// Source produces one bitmap per call. Implementations don't retry.
type Source interface {
	Capture(ctx context.Context, sel Selector, excludeOwnProcess bool) (image.Image, error)
}

// Display describes an active display.
type Display struct {
	Index   int             `json:"index"`
	Bounds  image.Rectangle `json:"bounds"`
	Primary bool            `json:"primary"`
}

// Backend names accepted by New.
const (
	BackendNative  = "native"
	BackendCommand = "command"
)

// New builds the source for backend. windows resolves window selectors and
// may be nil when window capture is not needed.
func New(backend string, windows window.Lister) (Source, error) {
	switch backend {
	case "", BackendNative:
		return NewNative(windows), nil
	case BackendCommand:
		return NewCommand(windows)
	default:
		return nil, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown capture backend %q", backend)
	}
}

// resolve turns a selector into absolute screen bounds using the current
// display layout.
func resolve(ctx context.Context, displays []image.Rectangle, windows window.Lister, sel Selector) (image.Rectangle, error) {
	if len(displays) == 0 {
		return image.Rectangle{}, apperrors.New(apperrors.CodeNoDisplayAvailable, "no active displays")
	}

	switch sel.Kind {
	case TargetDisplay:
		if sel.Display < 0 || sel.Display >= len(displays) {
			return image.Rectangle{}, apperrors.Newf(apperrors.CodeNoDisplayAvailable, "display %d not found (%d active)", sel.Display, len(displays))
		}
		return displays[sel.Display], nil

	case TargetRegion:
		return clip(displays, sel.Region, sel.String())

	case TargetWindow:
		if windows == nil {
			return image.Rectangle{}, apperrors.New(apperrors.CodeCaptureFailed, "window capture requires a window lister")
		}
		info, found, err := window.FindByID(ctx, windows, sel.WindowID)
		if err != nil {
			return image.Rectangle{}, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "list windows")
		}
		if !found {
			return image.Rectangle{}, apperrors.Newf(apperrors.CodeNoDisplayAvailable, "window %d not found", sel.WindowID)
		}
		return clip(displays, info.Bounds, sel.String())

	default:
		return image.Rectangle{}, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown capture target %d", sel.Kind)
	}
}

// clip intersects r with the desktop; an empty result means nothing of r is
// on any display.
func clip(displays []image.Rectangle, r image.Rectangle, what string) (image.Rectangle, error) {
	out := r.Canon().Intersect(desktop(displays))
	if out.Empty() {
		return image.Rectangle{}, apperrors.Newf(apperrors.CodeNoDisplayAvailable, "%s is not on any display", what)
	}
	return out, nil
}

func desktop(displays []image.Rectangle) image.Rectangle {
	var out image.Rectangle
	for _, d := range displays {
		out = out.Union(d)
	}
	return out
}
