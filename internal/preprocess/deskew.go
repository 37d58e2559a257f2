package preprocess

import (
	"image"
	"math"

	"github.com/adverant/nexus/ocr-worker/internal/raster"
)

const (
	// MinSkewConfidence is the confidence a skew estimate must exceed
	// before the image is rotated.
	MinSkewConfidence = 2.0
	// MinSkewAngle is the smallest correction worth a rotation, in degrees.
	MinSkewAngle = 0.1

	skewSweepRange = 7.0
	skewSweepStep  = 0.25
	skewSearchStep = 0.05
	skewReduction  = 2
	inkThreshold   = 128
	minInkPixels   = 50
)

// EstimateSkew finds the text-line slope of img in degrees using a
// projection-profile sweep over ±7°. A positive angle means lines descend
// to the right; rotating counter-clockwise by that angle levels them.
// The confidence is the ratio of the best to the worst profile score and
// is zero when the image carries too little ink to judge.
func EstimateSkew(img image.Image) (angle, conf float64) {
	g := raster.ToGrayShared(img)
	pts, w, h := inkPoints(g, skewReduction)
	if len(pts) < minInkPixels {
		return 0, 0
	}

	bestScore, minScore := -1.0, math.MaxFloat64
	steps := int(math.Round(2 * skewSweepRange / skewSweepStep))
	for i := 0; i <= steps; i++ {
		a := -skewSweepRange + float64(i)*skewSweepStep
		s := profileScore(pts, a, w, h)
		if s > bestScore {
			bestScore, angle = s, a
		}
		if s < minScore {
			minScore = s
		}
	}
	if minScore <= 0 {
		return 0, 0
	}
	conf = bestScore / minScore

	// refine around the coarse peak
	center := angle
	fine := int(math.Round(2 * skewSweepStep / skewSearchStep))
	for i := 0; i <= fine; i++ {
		a := center - skewSweepStep + float64(i)*skewSearchStep
		if s := profileScore(pts, a, w, h); s > bestScore {
			bestScore, angle = s, a
		}
	}
	return angle, conf
}

// inkPoints returns the dark pixels of g on a grid reduced by factor, where
// a reduced cell counts as ink when any of its source pixels is dark.
func inkPoints(g *image.Gray, factor int) ([]image.Point, int, int) {
	w := (g.Rect.Dx() + factor - 1) / factor
	h := (g.Rect.Dy() + factor - 1) / factor
	var pts []image.Point

	for ry := 0; ry < h; ry++ {
		for rx := 0; rx < w; rx++ {
			if cellHasInk(g, rx*factor, ry*factor, factor) {
				pts = append(pts, image.Point{X: rx, Y: ry})
			}
		}
	}
	return pts, w, h
}

func cellHasInk(g *image.Gray, x0, y0, size int) bool {
	maxX, maxY := g.Rect.Dx(), g.Rect.Dy()
	for y := y0; y < y0+size && y < maxY; y++ {
		row := g.Pix[y*g.Stride:]
		for x := x0; x < x0+size && x < maxX; x++ {
			if row[x] < inkThreshold {
				return true
			}
		}
	}
	return false
}

// profileScore projects every ink point along a line of slope deg and sums
// the squared differences of adjacent row counts. Aligned text lines give
// sharp profiles and high scores.
func profileScore(pts []image.Point, deg float64, w, h int) float64 {
	t := math.Tan(deg * math.Pi / 180)
	shift := int(math.Ceil(float64(w)*math.Abs(t))) + 1
	rows := make([]int, h+2*shift+1)

	for _, p := range pts {
		r := int(math.Round(float64(p.Y)-float64(p.X)*t)) + shift
		if r >= 0 && r < len(rows) {
			rows[r]++
		}
	}

	var score float64
	for i := 1; i < len(rows); i++ {
		d := float64(rows[i] - rows[i-1])
		score += d * d
	}
	return score
}
