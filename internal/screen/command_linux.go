//go:build linux

package screen

import (
	"context"
	"os/exec"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
)

type linuxBackend struct{ tool string }

func newCommandBackend() commandBackend {
	// Try gnome-screenshot first, fall back to scrot
	for _, tool := range []string{"gnome-screenshot", "scrot"} {
		if _, err := exec.LookPath(tool); err == nil {
			return linuxBackend{tool: tool}
		}
	}
	return linuxBackend{}
}

func (l linuxBackend) name() string     { return l.tool }
func (l linuxBackend) perDisplay() bool { return false }

// Both tools capture the whole X screen; per-display output is cropped by
// the caller.
func (l linuxBackend) command(ctx context.Context, _ int, path string) (*exec.Cmd, error) {
	switch l.tool {
	case "gnome-screenshot":
		return exec.CommandContext(ctx, "gnome-screenshot", "-f", path), nil
	case "scrot":
		return exec.CommandContext(ctx, "scrot", "-o", path), nil
	default:
		return nil, apperrors.New(apperrors.CodeCaptureFailed, "no screenshot tool found (install gnome-screenshot or scrot)")
	}
}
