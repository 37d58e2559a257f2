// Package raster validates, decodes and owns the images that flow through
// the preprocessing pipeline.
package raster

import (
	"image"
	"image/color"
	"image/draw"
)

// Image is a decoded raster buffer owned by exactly one stage at a time.
// Stages hand ownership forward by returning a new Image; the previous
// owner must not touch a buffer after handing it off.
type Image struct {
	pix image.Image
}

// New wraps an already-decoded image. A nil image yields a released Image.
func New(img image.Image) *Image {
	return &Image{pix: img}
}

// Pix returns the underlying image, or nil after Release.
func (i *Image) Pix() image.Image {
	if i == nil {
		return nil
	}
	return i.pix
}

// Width returns the pixel width, or zero after Release.
func (i *Image) Width() int {
	if i == nil || i.pix == nil {
		return 0
	}
	return i.pix.Bounds().Dx()
}

// Height returns the pixel height, or zero after Release.
func (i *Image) Height() int {
	if i == nil || i.pix == nil {
		return 0
	}
	return i.pix.Bounds().Dy()
}

// Depth returns the bits per pixel of the underlying colour model.
func (i *Image) Depth() int {
	if i == nil || i.pix == nil {
		return 0
	}
	return Depth(i.pix)
}

// Released reports whether the buffer has been dropped.
func (i *Image) Released() bool {
	return i == nil || i.pix == nil
}

// Release drops the buffer. Safe to call more than once.
func (i *Image) Release() {
	if i != nil {
		i.pix = nil
	}
}

// Clone returns an independently owned copy of the image.
func (i *Image) Clone() *Image {
	if i.Released() {
		return &Image{}
	}
	return &Image{pix: Copy(i.pix)}
}

// Depth reports bits per pixel for img's colour model.
func Depth(img image.Image) int {
	switch m := img.(type) {
	case *image.Gray:
		return 8
	case *image.Gray16:
		return 16
	case *image.Alpha:
		return 8
	case *image.Alpha16:
		return 16
	case *image.Paletted:
		return palettedDepth(len(m.Palette))
	case *image.RGBA64, *image.NRGBA64:
		return 64
	case *image.YCbCr:
		return 24
	case *image.CMYK:
		return 32
	}
	return 32
}

func palettedDepth(colors int) int {
	switch {
	case colors <= 2:
		return 1
	case colors <= 4:
		return 2
	case colors <= 16:
		return 4
	}
	return 8
}

// Copy returns a deep copy of img, preserving 8-bit grayscale buffers.
func Copy(img image.Image) image.Image {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok {
		out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(out, out.Bounds(), g, b.Min, draw.Src)
		return out
	}
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// ToGrayShared returns img itself when it is already an 8-bit grayscale
// buffer with origin (0,0), and a converted copy otherwise. Callers must
// treat the result as read-only.
func ToGrayShared(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	return ToGray(img)
}

// ToGray converts img to an 8-bit grayscale buffer with origin (0,0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.SetGray(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return out
}
