// Package store persists encoded screenshots under a per-session directory
// tree and reports what actually landed on disk.
package store

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/dustin/go-humanize"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/imaging"
)

const screenshotsDir = "screenshots"

// Policy says where one capture is written.
type Policy struct {
	Root      string
	SessionID string // optional subdirectory
	FileName  string // generated when empty; extension is corrected
}

// Result describes a stored capture as read back from disk.
type Result struct {
	ID             string         `json:"id"`
	Timestamp      int64          `json:"timestamp"`
	FilePath       string         `json:"filePath"`
	FileSize       int64          `json:"fileSize"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	Format         imaging.Format `json:"format"`
	PerceptualHash uint64         `json:"perceptualHash,omitempty"`
}

// Store writes captures to the local filesystem.
type Store struct {
	now func() time.Time
}

// New creates a store using the wall clock.
func New() *Store {
	return &Store{now: time.Now}
}

// Dir returns the directory captures for sessionID are written to.
func Dir(root, sessionID string) string {
	if sessionID == "" {
		return filepath.Join(root, screenshotsDir)
	}
	return filepath.Join(root, sessionID, screenshotsDir)
}

// ValidateSessionID rejects ids that would not name a single directory
// directly under the storage root. An empty id is valid and means no
// session subdirectory.
func ValidateSessionID(id string) error {
	if id == "" {
		return nil
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || !filepath.IsLocal(id) {
		return apperrors.Newf(apperrors.CodeMissingOrInvalidSessionID, "invalid session id %q", id)
	}
	return nil
}

// Write encodes img with opts and stores it according to p.
func (s *Store) Write(ctx context.Context, img image.Image, opts imaging.Options, p Policy) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if p.Root == "" {
		return Result{}, apperrors.New(apperrors.CodeFileSystemError, "storage root not set")
	}
	if err := ValidateSessionID(p.SessionID); err != nil {
		return Result{}, err
	}
	now := s.now()
	name, err := fileName(p.FileName, opts.Format, now)
	if err != nil {
		return Result{}, err
	}
	dir := Dir(p.Root, p.SessionID)
	path := filepath.Join(dir, name)
	if !within(p.Root, dir, path) {
		return Result{}, apperrors.Newf(apperrors.CodeFileSystemError, "%s escapes storage root", path)
	}

	data, err := imaging.Encode(img, opts)
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, apperrors.Wrapf(err, apperrors.CodeFileSystemError, "create %s", dir)
	}
	if err := writeAtomic(dir, path, data); err != nil {
		return Result{}, err
	}

	res, err := inspect(path, opts.Format)
	if err != nil {
		return Result{}, err
	}
	res.ID = strings.TrimSuffix(name, filepath.Ext(name))
	res.Timestamp = now.UnixMilli()

	slog.Debug("screenshot stored", "path", path, "size", humanize.IBytes(uint64(res.FileSize)),
		"width", res.Width, "height", res.Height)
	return res, nil
}

// fileName drops any directory part of name and corrects or adds the
// canonical extension for format.
func fileName(name string, format imaging.Format, now time.Time) (string, error) {
	if name == "" {
		return imaging.GenerateFileName("screenshot", format, true, now), nil
	}
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "file name must name a file")
	}
	ext := filepath.Ext(name)
	if _, known := imaging.FormatForExtension(ext); known {
		name = strings.TrimSuffix(name, ext)
	}
	return name + "." + format.Extension(), nil
}

// within reports whether path sits directly in dir and dir under root.
func within(root, dir, path string) bool {
	if filepath.Dir(path) != filepath.Clean(dir) {
		return false
	}
	rel, err := filepath.Rel(root, path)
	return err == nil && filepath.IsLocal(rel)
}

// writeAtomic writes to a temp file in dir and renames it over path so
// readers never see a partial file.
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".capture-*")
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeFileSystemError, "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeFileSystemError, "write capture")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeFileSystemError, "close capture")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(err, apperrors.CodeFileSystemError, "chmod capture")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrapf(err, apperrors.CodeFileSystemError, "rename to %s", path)
	}
	return nil
}

// inspect re-reads the stored file for size, dimensions and perceptual hash.
func inspect(path string, format imaging.Format) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CodeFileSystemError, "stat capture")
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CodeFileSystemError, "open capture")
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.CodeInvalidImageProperties, "stored file is not a readable image").
			WithMetadata("path", path)
	}
	b := img.Bounds()

	res := Result{
		FilePath: path,
		FileSize: info.Size(),
		Width:    b.Dx(),
		Height:   b.Dy(),
		Format:   format,
	}
	if h, err := goimagehash.PerceptionHash(img); err == nil {
		res.PerceptualHash = h.GetHash()
	} else {
		slog.Debug("perceptual hash failed", "path", path, "error", err)
	}
	return res, nil
}

// Distance is the Hamming distance between two perceptual hashes.
func Distance(a, b uint64) int {
	d, err := goimagehash.NewImageHash(a, goimagehash.PHash).Distance(goimagehash.NewImageHash(b, goimagehash.PHash))
	if err != nil {
		return 64
	}
	return d
}
