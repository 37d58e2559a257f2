package preprocess

import (
	"github.com/adverant/nexus/ocr-worker/internal/config"
)

// Rect is a crop rectangle in pixel coordinates relative to the image origin.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Params holds the per-call transform parameters. A zero Params disables
// every optional stage except grayscale conversion and DPI normalization;
// neutral factors are 1.0, so use DefaultParams or NeutralParams as a base.
type Params struct {
	Contrast   float64
	Brightness float64
	Gamma      float64

	// NoiseLevel and SharpenLevel are pass counts, clamped to [0,3]
	NoiseLevel   int
	SharpenLevel int

	Deskew bool

	// Rotation in degrees, clockwise
	Rotation float64

	// Crop is nil when cropping is disabled
	Crop *Rect
}

// NeutralParams returns parameters that leave tone untouched and disable
// every optional stage.
func NeutralParams() Params {
	return Params{Contrast: 1, Brightness: 1, Gamma: 1}
}

// DefaultParams returns the parameters applied to every detailed call.
func DefaultParams(cfg config.Config) Params {
	p := Params{
		Contrast:     1.2,
		Brightness:   1.0,
		Gamma:        1.0,
		NoiseLevel:   1,
		SharpenLevel: 1,
		Deskew:       cfg.EnableDeskew,
	}
	if !cfg.EnableDenoising {
		p.NoiseLevel = 0
	}
	return p
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 3 {
		return 3
	}
	return level
}
