//go:build !darwin && !linux && !windows

package screen

import (
	"context"
	"os/exec"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
)

type noBackend struct{}

func newCommandBackend() commandBackend { return noBackend{} }

func (noBackend) name() string     { return "none" }
func (noBackend) perDisplay() bool { return false }

func (noBackend) command(context.Context, int, string) (*exec.Cmd, error) {
	return nil, apperrors.New(apperrors.CodeCaptureFailed, "no screenshot command on this platform")
}
