//go:build darwin

package screen

import (
	"context"
	"os/exec"
	"strconv"
)

type darwinBackend struct{}

func newCommandBackend() commandBackend { return darwinBackend{} }

func (darwinBackend) name() string     { return "screencapture" }
func (darwinBackend) perDisplay() bool { return true }

// -x: no sound, -t png: lossless output, -D: 1-based display index.
func (darwinBackend) command(ctx context.Context, display int, path string) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", "-D", strconv.Itoa(display+1), path), nil
}
