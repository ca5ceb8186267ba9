package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/config"
	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/imaging"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/journal"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/screen"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

type fakeSource struct {
	calls []screen.Selector
}

func (f *fakeSource) Capture(_ context.Context, sel screen.Selector, _ bool) (image.Image, error) {
	f.calls = append(f.calls, sel)
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 10), 128, 255})
		}
	}
	return img, nil
}

var testWindows = window.ListerFunc(func(context.Context) ([]window.Info, error) {
	return []window.Info{
		{ID: 7, Title: "Notes", Owner: "notes", OwnerPID: 70, Bounds: image.Rect(0, 0, 100, 80)},
		{ID: 9, Title: "Terminal", Owner: "term", OwnerPID: 90, Bounds: image.Rect(10, 10, 410, 310)},
	}, nil
})

// executeCommand runs the root command with args and returns captured output
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// setupTestEnvironment points storage and config at a temp dir and swaps in
// fake platform hooks.
func setupTestEnvironment(t *testing.T) (string, *fakeSource) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("SHADOWSHOT_STORAGE_ROOT", dir)
	t.Setenv("SHADOWSHOT_LOGGING_CONSOLE", "false")

	src := &fakeSource{}
	origSource, origLister, origDisplays := newSource, newLister, listDisplays
	newSource = func(string, window.Lister) (screen.Source, error) { return src, nil }
	newLister = func() window.Lister { return testWindows }
	listDisplays = func() ([]screen.Display, error) {
		return []screen.Display{
			{Index: 0, Bounds: image.Rect(0, 0, 1920, 1080), Primary: true},
			{Index: 1, Bounds: image.Rect(1920, 0, 4480, 1440)},
		}, nil
	}

	cfgFile = ""
	captureTarget, captureImage = targetFlags{}, imageFlags{}
	captureSession, captureName, captureTargetKB, captureAllowSelf = "", "", 0, false
	historyLimit, historyPrune = 20, false
	windowsOwner, windowsFollow = "", 0

	t.Cleanup(func() {
		newSource, newLister, listDisplays = origSource, origLister, origDisplays
	})
	return dir, src
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "shadowshot", rootCmd.Use)

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "capture", "record", "displays", "windows", "history", "status", "version"} {
		assert.True(t, names[want], "expected subcommand %q", want)
	}
}

func TestVersionCommand(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "shadowshot "+Version)
}

func TestDisplaysCommand(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "displays")
	require.NoError(t, err)
	assert.Contains(t, out, "1920x1080")
	assert.Contains(t, out, "2560x1440")
	assert.Contains(t, out, "1920,0")
}

func TestWindowsCommand(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "windows", "--owner", "term")
	require.NoError(t, err)
	assert.Contains(t, out, "Terminal")
	assert.NotContains(t, out, "Notes")
}

func TestCaptureCommandWritesFile(t *testing.T) {
	dir, src := setupTestEnvironment(t)

	out, err := executeCommand(t, "capture", "--session", "s1", "--name", "shot.jpg", "--format", "png", "--display", "1")
	require.NoError(t, err)

	want := filepath.Join(dir, config.Default().Storage.Namespace, "s1", "screenshots", "shot.png")
	assert.Contains(t, out, want)
	assert.FileExists(t, want)
	require.Len(t, src.calls, 1)
	assert.Equal(t, screen.DisplaySelector(1), src.calls[0])
}

func TestCaptureCommandRejectsBadRegion(t *testing.T) {
	setupTestEnvironment(t)

	_, err := executeCommand(t, "capture", "--region", "1,2,3")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidGeometry))
}

func TestHistoryCommand(t *testing.T) {
	dir, _ := setupTestEnvironment(t)
	path := filepath.Join(dir, config.Default().Storage.Namespace, "journal.db")

	j, err := journal.Open(path)
	require.NoError(t, err)
	now := time.Now().UnixMilli()
	require.NoError(t, j.Insert(context.Background(), []journal.Record{
		{SessionID: "s1", Timestamp: now - 1000, FilePath: "/tmp/s1/a.jpg", FileSize: 2048, Width: 64, Height: 48},
		{SessionID: "s1", Timestamp: now, Error: "no display available"},
		{SessionID: "s2", Timestamp: now, FilePath: "/tmp/s2/b.jpg", FileSize: 10, Width: 1, Height: 1},
	}))
	require.NoError(t, j.Close())

	out, err := executeCommand(t, "history", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "a.jpg")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "no display available")
	assert.NotContains(t, out, "b.jpg")
}

func TestHistoryCommandEmpty(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No captures recorded")
}

func TestParseRegion(t *testing.T) {
	r, err := parseRegion("10, 20, 300, 200")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(10, 20, 310, 220), r)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "0,0,0,10", "0,0,10,-1"} {
		_, err := parseRegion(bad)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidGeometry), "parseRegion(%q)", bad)
	}
}

func TestParseSize(t *testing.T) {
	w, h, err := parseSize("800X600")
	require.NoError(t, err)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	_, _, err = parseSize("800")
	assert.Error(t, err)
	_, _, err = parseSize("0x600")
	assert.Error(t, err)
}

func TestTargetFlagsSelector(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		flags targetFlags
		want  screen.Selector
	}{
		{"default", targetFlags{}, screen.PrimaryDisplay()},
		{"display", targetFlags{display: 2}, screen.DisplaySelector(2)},
		{"window wins over region", targetFlags{windowID: 5, region: "0,0,1,1"}, screen.WindowSelector(5)},
		{"owner", targetFlags{owner: "TERM"}, screen.WindowSelector(9)},
		{"region", targetFlags{region: "0,0,10,10"}, screen.RegionSelector(image.Rect(0, 0, 10, 10))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.selector(ctx, testWindows)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	missing := targetFlags{owner: "nobody"}
	_, err := missing.selector(ctx, testWindows)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))
}

func TestImageFlagsOptions(t *testing.T) {
	c := config.Default()

	opts, err := (&imageFlags{}).options(c)
	require.NoError(t, err)
	assert.Equal(t, imaging.FormatJPEG, opts.Format)
	assert.InDelta(t, 0.9, opts.Quality, 1e-9)
	assert.Nil(t, opts.Resize)

	opts, err = (&imageFlags{preset: "thumbnail", quality: 0.5}).options(c)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, opts.Quality, 1e-9)
	require.NotNil(t, opts.Resize)
	assert.Equal(t, imaging.Fit(200, 200), *opts.Resize)

	opts, err = (&imageFlags{format: "png", fit: "640x480", scale: 0.5}).options(c)
	require.NoError(t, err)
	assert.Equal(t, imaging.FormatPNG, opts.Format)
	assert.Equal(t, imaging.Fit(640, 480), *opts.Resize)

	_, err = (&imageFlags{preset: "poster"}).options(c)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))

	_, err = (&imageFlags{format: "gif"}).options(c)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnsupportedFormat))
}
