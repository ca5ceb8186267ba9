// Package imaging converts captured bitmaps into encoded image files:
// resize geometry, format-aware encoding, size estimation and a quality
// search for lossy formats. Everything here is a pure function of its
// inputs.
package imaging

import (
	"strings"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
)

// Format is an output image format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatHEIC Format = "heic"
)

// ParseFormat accepts png, jpeg, jpg and heic in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "heic":
		return FormatHEIC, nil
	default:
		return "", apperrors.Newf(apperrors.CodeUnsupportedFormat, "format %q is not supported for writing; supported formats: PNG, JPEG, HEIC", s)
	}
}

// Extension returns the canonical file extension without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatHEIC:
		return "heic"
	default:
		return "png"
	}
}

// SupportsQuality reports whether the format has a lossy quality axis.
func (f Format) SupportsQuality() bool {
	return f == FormatJPEG || f == FormatHEIC
}

// IsSupported reports whether this host can encode the format. There is no
// HEIC encoder available to the process, so HEIC is recognised but refused.
func (f Format) IsSupported() bool {
	return f == FormatPNG || f == FormatJPEG
}

// SupportedFormats lists the formats Encode accepts on this host.
func SupportedFormats() []Format {
	var out []Format
	for _, f := range []Format{FormatPNG, FormatJPEG, FormatHEIC} {
		if f.IsSupported() {
			out = append(out, f)
		}
	}
	return out
}

// FormatForExtension maps a file extension (with or without the dot) to a format.
func FormatForExtension(ext string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return FormatPNG, true
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "heic":
		return FormatHEIC, true
	default:
		return "", false
	}
}
