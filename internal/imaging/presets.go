package imaging

import "strings"

var (
	thumbnailBox = Fit(200, 200)
	webBox       = Fit(1200, 1200)
	hdSize       = Exact(1920, 1080)
	half         = Scale(0.5)
)

// Named option presets.
var (
	DefaultPNG      = Options{Format: FormatPNG}
	DefaultJPEG     = Options{Format: FormatJPEG, Quality: DefaultQuality}
	HighQualityJPEG = Options{Format: FormatJPEG, Quality: 1.0}
	CompressedJPEG  = Options{Format: FormatJPEG, Quality: 0.7}
	ThumbnailJPEG   = Options{Format: FormatJPEG, Quality: 0.85, Resize: &thumbnailBox}
	WebJPEG         = Options{Format: FormatJPEG, Quality: 0.85, Resize: &webBox}
	HDJPEG          = Options{Format: FormatJPEG, Quality: 0.9, Resize: &hdSize}
	HalfSize        = Options{Format: FormatJPEG, Quality: 0.9, Resize: &half}
)

var presets = map[string]Options{
	"png":        DefaultPNG,
	"jpeg":       DefaultJPEG,
	"jpeg-high":  HighQualityJPEG,
	"compressed": CompressedJPEG,
	"thumbnail":  ThumbnailJPEG,
	"web":        WebJPEG,
	"hd":         HDJPEG,
	"half":       HalfSize,
}

// LookupPreset finds a preset by name.
func LookupPreset(name string) (Options, bool) {
	o, ok := presets[strings.ToLower(name)]
	return o, ok
}

// PresetNames lists the registered preset names.
func PresetNames() []string {
	return []string{"png", "jpeg", "jpeg-high", "compressed", "thumbnail", "web", "hd", "half"}
}
