package preprocess

import (
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	UnsharpRadius = 3
	UnsharpAmount = 0.5

	// stretch percentiles for contrast normalization
	stretchLow  = 0.01
	stretchHigh = 0.99
)

// median3x3 replaces each pixel with the median of its 3×3 neighbourhood.
// Border pixels use edge replication.
func median3x3(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	var win [9]uint8

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				yy := clampInt(y+dy, 0, h-1)
				row := src.Pix[yy*src.Stride:]
				for dx := -1; dx <= 1; dx++ {
					win[n] = row[clampInt(x+dx, 0, w-1)]
					n++
				}
			}
			dst.Pix[y*dst.Stride+x] = median9(win)
		}
	}
	return dst
}

func median9(v [9]uint8) uint8 {
	// insertion sort; nine elements
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
	return v[4]
}

// unsharpMask sharpens src by adding amount × (src − blur(src)).
func unsharpMask(src *image.Gray, radius int, amount float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	blurred := imaging.Blur(src, float64(radius)/2)
	dst := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := float64(src.Pix[y*src.Stride+x])
			b := float64(blurred.Pix[y*blurred.Stride+x*4])
			dst.Pix[y*dst.Stride+x] = clampByte(s + amount*(s-b))
		}
	}
	return dst
}

// stretchContrast linearly maps the 1st..99th luminance percentile range
// onto the full 0..255 range. Flat images are returned unchanged.
func stretchContrast(img image.Image) image.Image {
	src := imaging.Clone(img)
	n := len(src.Pix) / 4
	if n == 0 {
		return img
	}

	lum := make([]int, 0, n)
	for i := 0; i+3 < len(src.Pix); i += 4 {
		r, g, b := int(src.Pix[i]), int(src.Pix[i+1]), int(src.Pix[i+2])
		lum = append(lum, (299*r+587*g+114*b)/1000)
	}
	sort.Ints(lum)
	lo := lum[int(float64(n-1)*stretchLow)]
	hi := lum[int(float64(n-1)*stretchHigh)]
	if hi-lo < 8 {
		return img
	}

	scale := 255.0 / float64(hi-lo)
	mapc := func(v uint8) uint8 {
		return clampByte(float64(int(v)-lo) * scale)
	}
	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: mapc(c.R), G: mapc(c.G), B: mapc(c.B), A: c.A}
	})
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
