package screen

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

var ownPID = os.Getpid()

// commandBackend runs a platform screenshot tool that writes the full
// desktop (or one display) to path.
type commandBackend interface {
	name() string
	perDisplay() bool
	command(ctx context.Context, display int, path string) (*exec.Cmd, error)
}

// CommandSource shells out to the platform screenshot tool and decodes its
// output. Regions and windows are cropped from the captured desktop.
type CommandSource struct {
	mu      sync.Mutex
	backend commandBackend
	windows window.Lister
	tempDir string
	layout  func() []image.Rectangle
}

// NewCommand prepares a scratch directory for the tool's output.
func NewCommand(windows window.Lister) (*CommandSource, error) {
	tmpDir, err := os.MkdirTemp("", "shadowshot-screen-*")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFileSystemError, "create temp dir for screenshots")
	}
	return &CommandSource{
		backend: newCommandBackend(),
		windows: windows,
		tempDir: tmpDir,
		layout:  func() []image.Rectangle { return displayBounds(kbinani{}) },
	}, nil
}

func (c *CommandSource) Capture(ctx context.Context, sel Selector, excludeOwnProcess bool) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	displays := c.layout()
	rect, err := resolve(ctx, displays, c.windows, sel)
	if err != nil {
		return nil, err
	}
	if excludeOwnProcess && sel.Kind == TargetWindow {
		if err := refuseOwnWindow(ctx, c.windows, sel.WindowID); err != nil {
			return nil, err
		}
	}

	// The tool writes either one display or the whole desktop; rect is
	// translated into the output's coordinates before cropping.
	display := -1
	origin := desktop(displays).Min
	if c.backend.perDisplay() {
		display = sel.Display
		if sel.Kind != TargetDisplay {
			display = displayAt(displays, rect)
		}
		origin = displays[display].Min
	}

	img, err := c.run(ctx, display)
	if err != nil {
		return nil, err
	}
	return crop(img, rect.Sub(origin)), nil
}

func (c *CommandSource) run(ctx context.Context, display int) (image.Image, error) {
	tmpFile := filepath.Join(c.tempDir, "screenshot.png")
	defer os.Remove(tmpFile)

	cmd, err := c.backend.command(ctx, display, tmpFile)
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Error("screenshot command failed", "tool", c.backend.name(), "error", err, "stderr", stderr.String())
		return nil, apperrors.Wrapf(err, apperrors.CodeCaptureFailed, "%s failed", c.backend.name()).
			WithMetadata("stderr", stderr.String())
	}

	f, err := os.Open(tmpFile)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "read screenshot")
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "decode screenshot")
	}
	return img, nil
}

// Close removes the scratch directory.
func (c *CommandSource) Close() {
	if c.tempDir != "" {
		os.RemoveAll(c.tempDir)
	}
}

// displayAt returns the display sharing the most area with r.
func displayAt(displays []image.Rectangle, r image.Rectangle) int {
	best, bestArea := 0, -1
	for i, d := range displays {
		in := d.Intersect(r)
		if area := in.Dx() * in.Dy(); area > bestArea {
			best, bestArea = i, area
		}
	}
	return best
}

// crop copies r (relative to img's origin) into a fresh RGBA.
func crop(img image.Image, r image.Rectangle) image.Image {
	b := img.Bounds()
	r = r.Add(b.Min).Intersect(b)
	if r == b {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}
