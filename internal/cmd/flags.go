package cmd

import (
	"context"
	"image"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/config"
	apperrors "github.com/phoneixtaperlabs/shadow-screenshot/internal/errors"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/imaging"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/screen"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/window"
)

// targetFlags select what to capture. Precedence: window id, owner, region, display.
type targetFlags struct {
	display  int
	windowID uint32
	owner    string
	region   string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.display, "display", 0, "Display index to capture")
	fs.Uint32Var(&f.windowID, "window-id", 0, "Capture the window with this id")
	fs.StringVar(&f.owner, "owner", "", "Capture the first window owned by this application")
	fs.StringVar(&f.region, "region", "", "Capture a desktop region given as x,y,width,height")
}

func (f *targetFlags) selector(ctx context.Context, l window.Lister) (screen.Selector, error) {
	switch {
	case f.windowID != 0:
		return screen.WindowSelector(f.windowID), nil
	case f.owner != "":
		wins, err := window.FindByOwner(ctx, l, f.owner)
		if err != nil {
			return screen.Selector{}, err
		}
		if len(wins) == 0 {
			return screen.Selector{}, apperrors.Newf(apperrors.CodeInvalidArgument, "no window owned by %q", f.owner)
		}
		return screen.WindowSelector(wins[0].ID), nil
	case f.region != "":
		r, err := parseRegion(f.region)
		if err != nil {
			return screen.Selector{}, err
		}
		return screen.RegionSelector(r), nil
	default:
		return screen.DisplaySelector(f.display), nil
	}
}

// parseRegion reads "x,y,width,height".
func parseRegion(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, apperrors.Newf(apperrors.CodeInvalidGeometry, "region %q must be x,y,width,height", s)
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, apperrors.Wrapf(err, apperrors.CodeInvalidGeometry, "region %q", s)
		}
		n[i] = v
	}
	if n[2] <= 0 || n[3] <= 0 {
		return image.Rectangle{}, apperrors.Newf(apperrors.CodeInvalidGeometry, "region %q has an empty size", s)
	}
	return image.Rect(n[0], n[1], n[0]+n[2], n[1]+n[3]), nil
}

// imageFlags override the configured encoding. A preset replaces the
// configured options; format, quality and resize flags then apply on top.
type imageFlags struct {
	preset  string
	format  string
	quality float64
	scale   float64
	fit     string
}

func (f *imageFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.preset, "preset", "", "Encoding preset ("+strings.Join(imaging.PresetNames(), ", ")+")")
	fs.StringVar(&f.format, "format", "", "Image format (jpeg or png)")
	fs.Float64Var(&f.quality, "quality", 0, "JPEG quality between 0 and 1")
	fs.Float64Var(&f.scale, "scale", 0, "Scale factor applied before encoding")
	fs.StringVar(&f.fit, "fit", "", "Fit the image inside WIDTHxHEIGHT")
}

func (f *imageFlags) options(c *config.Config) (imaging.Options, error) {
	opts := configImage(c)
	if f.preset != "" {
		p, ok := imaging.LookupPreset(f.preset)
		if !ok {
			return opts, apperrors.Newf(apperrors.CodeInvalidArgument, "unknown preset %q (available: %s)",
				f.preset, strings.Join(imaging.PresetNames(), ", "))
		}
		opts = p
	}
	if f.format != "" {
		format, err := imaging.ParseFormat(f.format)
		if err != nil {
			return opts, err
		}
		opts.Format = format
	}
	if f.quality > 0 {
		opts.Quality = f.quality
	}

	switch {
	case f.fit != "":
		w, h, err := parseSize(f.fit)
		if err != nil {
			return opts, err
		}
		m := imaging.Fit(w, h)
		opts.Resize = &m
	case f.scale > 0:
		m := imaging.Scale(f.scale)
		opts.Resize = &m
	}
	return imaging.NewOptions(opts.Format, opts.Quality, opts.Resize), nil
}

// parseSize reads "WIDTHxHEIGHT".
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, apperrors.Newf(apperrors.CodeInvalidGeometry, "size %q must be WIDTHxHEIGHT", s)
	}
	w, errW := strconv.Atoi(strings.TrimSpace(ws))
	h, errH := strconv.Atoi(strings.TrimSpace(hs))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, apperrors.Newf(apperrors.CodeInvalidGeometry, "size %q must be WIDTHxHEIGHT", s)
	}
	return w, h, nil
}
