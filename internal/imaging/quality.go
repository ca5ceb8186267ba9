package imaging

import (
	"image"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
)

// Quality search bounds.
const (
	MinSearchQuality  = 0.1
	MaxSearchQuality  = 1.0
	QualitySearchRuns = 10
	DefaultTolerance  = 0.1
)

// SizeFunc reports the encoded size in bytes at the given quality.
type SizeFunc func(quality float64) (int, error)

// QualitySearch is the outcome of SearchQuality.
type QualitySearch struct {
	Quality float64
	Size    int
	Probes  int
	Matched bool // size landed inside the tolerance band
}

// SearchQuality bisects [0.1, 1.0] for at most ten probes, stopping as soon
// as a probe lands within target*(1±tolerance). When no probe does, the
// last midpoint is returned.
func SearchQuality(size SizeFunc, targetKB int, tolerance float64) (QualitySearch, error) {
	if targetKB <= 0 {
		return QualitySearch{}, apperrors.Newf(apperrors.CodeInvalidArgument, "target size must be positive, got %d KB", targetKB)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	target := float64(targetKB * 1024)
	lower, upper := target*(1-tolerance), target*(1+tolerance)

	lo, hi := MinSearchQuality, MaxSearchQuality
	var res QualitySearch
	for res.Probes < QualitySearchRuns {
		mid := (lo + hi) / 2
		n, err := size(mid)
		if err != nil {
			return QualitySearch{}, err
		}
		res.Probes++
		res.Quality, res.Size = mid, n

		switch {
		case float64(n) < lower:
			lo = mid
		case float64(n) > upper:
			hi = mid
		default:
			res.Matched = true
			return res, nil
		}
	}
	return res, nil
}

// FindQuality returns the lossy quality whose encoded size best approaches
// targetKB. Formats without a quality axis fail with UnsupportedFormat.
func FindQuality(img image.Image, targetKB int, format Format, tolerance float64) (float64, error) {
	if !format.SupportsQuality() {
		return 0, apperrors.Newf(apperrors.CodeUnsupportedFormat, "format %s doesn't support quality adjustment", format)
	}
	if !format.IsSupported() {
		return 0, apperrors.Newf(apperrors.CodeUnsupportedFormat, "format %q cannot be encoded on this host", string(format))
	}
	res, err := SearchQuality(func(q float64) (int, error) {
		return EstimateSize(img, Options{Format: format, Quality: q})
	}, targetKB, tolerance)
	if err != nil {
		return 0, err
	}
	return res.Quality, nil
}

// FitToSize returns opts with the quality FindQuality picks for targetKB.
// The search runs on the resized bitmap so the estimate matches the file
// Encode will produce.
func FitToSize(img image.Image, opts Options, targetKB int) (Options, error) {
	probe := img
	if opts.Resize != nil {
		resized, err := Resize(img, *opts.Resize)
		if err != nil {
			return opts, err
		}
		probe = resized
	}
	q, err := FindQuality(probe, targetKB, opts.Format, DefaultTolerance)
	if err != nil {
		return opts, err
	}
	opts.Quality = q
	return opts, nil
}
