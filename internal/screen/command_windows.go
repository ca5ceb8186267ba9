//go:build windows

package screen

import (
	"context"
	"fmt"
	"os/exec"
)

type windowsBackend struct{}

func newCommandBackend() commandBackend { return windowsBackend{} }

func (windowsBackend) name() string     { return "powershell" }
func (windowsBackend) perDisplay() bool { return false }

const psCapture = `Add-Type -AssemblyName System.Windows.Forms,System.Drawing
$b = [System.Windows.Forms.SystemInformation]::VirtualScreen
$bmp = New-Object System.Drawing.Bitmap $b.Width, $b.Height
$g = [System.Drawing.Graphics]::FromImage($bmp)
$g.CopyFromScreen($b.Left, $b.Top, 0, 0, $bmp.Size)
$bmp.Save('%s', [System.Drawing.Imaging.ImageFormat]::Png)
$g.Dispose(); $bmp.Dispose()`

// The virtual screen is captured whole; displays are cropped by the caller.
func (windowsBackend) command(ctx context.Context, _ int, path string) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", fmt.Sprintf(psCapture, path)), nil
}
