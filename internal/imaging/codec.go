package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"time"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
)

// DefaultQuality is used when a request carries no quality.
const DefaultQuality = 0.9

// Options describe how a bitmap is turned into file bytes.
type Options struct {
	Format  Format
	Quality float64
	Resize  *ResizeMode
}

// NewOptions clamps quality into [0,1].
func NewOptions(format Format, quality float64, resize *ResizeMode) Options {
	return Options{Format: format, Quality: clampQuality(quality), Resize: resize}
}

// EffectiveQuality returns the clamped quality, or -1 for lossless formats.
func (o Options) EffectiveQuality() float64 {
	if !o.Format.SupportsQuality() {
		return -1
	}
	return clampQuality(o.Quality)
}

// Encode resizes img when requested and encodes it in the chosen format.
func Encode(img image.Image, opts Options) ([]byte, error) {
	if !opts.Format.IsSupported() {
		return nil, apperrors.Newf(apperrors.CodeUnsupportedFormat, "format %q cannot be encoded on this host", string(opts.Format)).
			WithMetadata("format", string(opts.Format))
	}
	if img == nil {
		return nil, apperrors.New(apperrors.CodeEncodingFailed, "no image to encode")
	}

	if opts.Resize != nil {
		resized, err := Resize(img, *opts.Resize)
		if err != nil {
			return nil, err
		}
		img = resized
	}

	var buf bytes.Buffer
	var err error
	switch opts.Format {
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality(opts.Quality)})
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeEncodingFailed, "encode %s", opts.Format)
	}
	return buf.Bytes(), nil
}

// EstimateSize encodes img and returns the byte count.
func EstimateSize(img image.Image, opts Options) (int, error) {
	data, err := Encode(img, opts)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// GenerateFileName builds "<prefix>_<yyyyMMdd_HHmmss>.<ext>". Two calls in
// the same second with the same prefix collide; callers scope the prefix.
func GenerateFileName(prefix string, format Format, includeTimestamp bool, now time.Time) string {
	if prefix == "" {
		prefix = "screenshot"
	}
	name := prefix
	if includeTimestamp {
		name = prefix + "_" + now.Format(TimestampLayout)
	}
	return name + "." + format.Extension()
}

// TimestampLayout is the second-resolution stamp used in file names.
const TimestampLayout = "20060102_150405"

func clampQuality(q float64) float64 {
	if math.IsNaN(q) {
		return DefaultQuality
	}
	return math.Min(math.Max(q, 0), 1)
}

// jpegQuality maps [0,1] onto the encoder's 1..100 scale.
func jpegQuality(q float64) int {
	return min(max(int(math.Round(clampQuality(q)*100)), 1), 100)
}
