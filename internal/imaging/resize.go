package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"

	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
)

// ResizeKind selects how target dimensions are derived.
type ResizeKind int

const (
	ResizeExact ResizeKind = iota + 1
	ResizeFit
	ResizeFill
	ResizeScale
	ResizeWidth
	ResizeHeight
)

func (k ResizeKind) String() string {
	switch k {
	case ResizeExact:
		return "exact"
	case ResizeFit:
		return "fit"
	case ResizeFill:
		return "fill"
	case ResizeScale:
		return "scale"
	case ResizeWidth:
		return "width"
	case ResizeHeight:
		return "height"
	default:
		return "unknown"
	}
}

// ResizeMode is a resize policy. For Fit, Width and Height are the bounding
// box; for Scale only Factor is used.
type ResizeMode struct {
	Kind   ResizeKind
	Width  int
	Height int
	Factor float64
}

func Exact(w, h int) ResizeMode       { return ResizeMode{Kind: ResizeExact, Width: w, Height: h} }
func Fit(maxW, maxH int) ResizeMode   { return ResizeMode{Kind: ResizeFit, Width: maxW, Height: maxH} }
func Fill(w, h int) ResizeMode        { return ResizeMode{Kind: ResizeFill, Width: w, Height: h} }
func Scale(factor float64) ResizeMode { return ResizeMode{Kind: ResizeScale, Factor: factor} }
func Width(w int) ResizeMode          { return ResizeMode{Kind: ResizeWidth, Width: w} }
func Height(h int) ResizeMode         { return ResizeMode{Kind: ResizeHeight, Height: h} }

func (m ResizeMode) String() string {
	switch m.Kind {
	case ResizeScale:
		return fmt.Sprintf("scale(%g)", m.Factor)
	case ResizeWidth:
		return fmt.Sprintf("width(%d)", m.Width)
	case ResizeHeight:
		return fmt.Sprintf("height(%d)", m.Height)
	default:
		return fmt.Sprintf("%s(%d,%d)", m.Kind, m.Width, m.Height)
	}
}

// ComputeDimensions returns the output size for an origW×origH bitmap.
//
// Fill returns the requested size verbatim, exactly like Exact: it neither
// preserves aspect ratio nor crops. Derived sides are rounded to the
// nearest pixel; a side that rounds to 0 is InvalidGeometry.
func ComputeDimensions(origW, origH int, mode ResizeMode) (int, int, error) {
	if origW <= 0 || origH <= 0 {
		return 0, 0, apperrors.Newf(apperrors.CodeInvalidGeometry, "invalid source dimensions %dx%d", origW, origH)
	}
	w, h, err := dimensions(origW, origH, mode)
	if err != nil {
		return 0, 0, err
	}
	if w < 1 || h < 1 {
		return 0, 0, apperrors.Newf(apperrors.CodeInvalidGeometry, "%s of %dx%d rounds to %dx%d", mode, origW, origH, w, h)
	}
	return w, h, nil
}

func dimensions(origW, origH int, mode ResizeMode) (int, int, error) {
	aspect := float64(origW) / float64(origH)

	switch mode.Kind {
	case ResizeExact, ResizeFill:
		if mode.Width <= 0 || mode.Height <= 0 {
			return 0, 0, invalidMode(mode)
		}
		return mode.Width, mode.Height, nil

	case ResizeFit:
		if mode.Width <= 0 || mode.Height <= 0 {
			return 0, 0, invalidMode(mode)
		}
		box := float64(mode.Width) / float64(mode.Height)
		if aspect > box {
			return mode.Width, roundSide(float64(mode.Width) / aspect), nil
		}
		return roundSide(float64(mode.Height) * aspect), mode.Height, nil

	case ResizeScale:
		if mode.Factor <= 0 || math.IsNaN(mode.Factor) || math.IsInf(mode.Factor, 0) {
			return 0, 0, invalidMode(mode)
		}
		return roundSide(float64(origW) * mode.Factor), roundSide(float64(origH) * mode.Factor), nil

	case ResizeWidth:
		if mode.Width <= 0 {
			return 0, 0, invalidMode(mode)
		}
		return mode.Width, roundSide(float64(mode.Width) / aspect), nil

	case ResizeHeight:
		if mode.Height <= 0 {
			return 0, 0, invalidMode(mode)
		}
		return roundSide(float64(mode.Height) * aspect), mode.Height, nil

	default:
		return 0, 0, apperrors.Newf(apperrors.CodeInvalidGeometry, "unknown resize mode %d", mode.Kind)
	}
}

// Resize resamples img to the dimensions chosen by mode. The source is
// never modified; when the size is unchanged img itself is returned.
func Resize(img image.Image, mode ResizeMode) (image.Image, error) {
	b := img.Bounds()
	w, h, err := ComputeDimensions(b.Dx(), b.Dy(), mode)
	if err != nil {
		return nil, err
	}
	if w == b.Dx() && h == b.Dy() {
		return img, nil
	}
	return resize.Resize(uint(w), uint(h), img, resize.Lanczos3), nil
}

func roundSide(v float64) int {
	return int(math.Round(v))
}

func invalidMode(mode ResizeMode) error {
	return apperrors.Newf(apperrors.CodeInvalidGeometry, "invalid resize parameters %s", mode)
}
