package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/adverant/nexus/ocr-worker/internal/raster"
)

// keepDepth converts out back to 8-bit grayscale when src was already at
// or below 8 bits, so no stage after conversion widens the buffer again.
func keepDepth(src, out image.Image) image.Image {
	if raster.Depth(src) <= 8 {
		if _, ok := out.(*image.Gray); ok {
			return out
		}
		return raster.ToGray(out)
	}
	return out
}

func needsGrayscale(img image.Image, _ Params) bool {
	return raster.Depth(img) > 8
}

func toGrayscale(img image.Image, _ Params) (image.Image, error) {
	return raster.ToGray(img), nil
}

// crop extracts the requested rectangle. A rectangle that is empty or not
// fully inside the image leaves the image untouched.
func crop(img image.Image, p Params) (image.Image, error) {
	c := p.Crop
	b := img.Bounds()
	if c.Width <= 0 || c.Height <= 0 || c.X < 0 || c.Y < 0 {
		return img, nil
	}
	r := image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height).Add(b.Min)
	if !r.In(b) {
		return img, nil
	}

	if g, ok := img.(*image.Gray); ok {
		return raster.Copy(g.SubImage(r)), nil
	}
	return keepDepth(img, imaging.Crop(img, r)), nil
}

// rotateClockwise rotates by angle degrees clockwise, filling exposed
// corners with white. The canvas grows to fit the rotated content.
func rotateClockwise(img image.Image, angle float64) image.Image {
	return keepDepth(img, imaging.Rotate(img, -angle, color.White))
}

func rotate(img image.Image, p Params) (image.Image, error) {
	return rotateClockwise(img, p.Rotation), nil
}

func (pl *Pipeline) deskew(img image.Image, _ Params) (image.Image, error) {
	angle, conf := EstimateSkew(img)
	if conf <= MinSkewConfidence || math.Abs(angle) < MinSkewAngle {
		pl.logger.Debug("Skew correction not applied", "angle", angle, "confidence", conf)
		return img, nil
	}
	pl.logger.Info("Skew detected and corrected", "angle", angle, "confidence", conf)
	return rotateClockwise(img, -angle), nil
}

func toneEnabled(_ image.Image, p Params) bool {
	return math.Abs(p.Contrast-1) > 0.01 ||
		math.Abs(p.Brightness-1) > 0.01 ||
		math.Abs(p.Gamma-1) > 0.01
}

// tone applies gamma, brightness and contrast normalization in that order.
func tone(img image.Image, p Params) (image.Image, error) {
	if p.Contrast <= 0 || p.Brightness <= 0 || p.Gamma <= 0 {
		return nil, fmt.Errorf("tone factors must be positive: contrast=%.2f brightness=%.2f gamma=%.2f",
			p.Contrast, p.Brightness, p.Gamma)
	}

	var out image.Image = img
	if math.Abs(p.Gamma-1) > 0.01 {
		out = imaging.AdjustGamma(out, p.Gamma)
	}
	if math.Abs(p.Brightness-1) > 0.01 {
		out = imaging.AdjustBrightness(out, clampPercent((p.Brightness-1)*100))
	}
	if math.Abs(p.Contrast-1) > 0.01 {
		out = stretchContrast(out)
		out = imaging.AdjustContrast(out, clampPercent((p.Contrast-1)*100))
	}
	return keepDepth(img, out), nil
}

func clampPercent(v float64) float64 {
	return math.Max(-100, math.Min(100, v))
}

func denoise(img image.Image, p Params) (image.Image, error) {
	g := raster.ToGrayShared(img)
	for i := 0; i < clampLevel(p.NoiseLevel); i++ {
		g = median3x3(g)
	}
	return g, nil
}

func sharpen(img image.Image, p Params) (image.Image, error) {
	g := raster.ToGrayShared(img)
	for i := 0; i < clampLevel(p.SharpenLevel); i++ {
		g = unsharpMask(g, UnsharpRadius, UnsharpAmount)
	}
	return g, nil
}

// ScaleFactor returns the resize factor that brings a w×h image towards
// dpi, assuming a 72 DPI source. Images already at least dpi pixels in both
// dimensions keep factor 1. The result is clamped to [0.5, 4].
func ScaleFactor(w, h, dpi int) float64 {
	if dpi <= 0 || w <= 0 || h <= 0 {
		return 1
	}
	factor := float64(dpi) / 72.0
	if w >= dpi && h >= dpi {
		factor = 1
	}
	return math.Max(0.5, math.Min(4, factor))
}

func (pl *Pipeline) normalize(img image.Image, _ Params) (image.Image, error) {
	if pl.TargetDPI <= 0 {
		return nil, fmt.Errorf("invalid target DPI %d", pl.TargetDPI)
	}
	b := img.Bounds()
	factor := ScaleFactor(b.Dx(), b.Dy(), pl.TargetDPI)
	if math.Abs(factor-1) < 0.1 {
		return img, nil
	}

	w := int(math.Round(float64(b.Dx()) * factor))
	h := int(math.Round(float64(b.Dy()) * factor))
	if w < 1 || h < 1 {
		return img, nil
	}
	pl.logger.Info("Image scaled for DPI optimization", "factor", factor, "width", w, "height", h)
	return keepDepth(img, imaging.Resize(img, w, h, imaging.Linear)), nil
}
