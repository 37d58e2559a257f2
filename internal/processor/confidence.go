package processor

import (
	"math"
)

// NotComputed marks a confidence that could not be determined.
const NotComputed = -1.0

const (
	meanWeight = 0.7
	wordWeight = 0.3
)

// Score combines the engine's document mean confidence with the average of
// its per-word confidences: 0.7·mean + 0.3·avg(words). Without word
// confidences the mean is used alone. The result is clamped to [0,100];
// a negative or NaN mean yields NotComputed.
func Score(mean float64, words []float64) float64 {
	if math.IsNaN(mean) || mean < 0 {
		return NotComputed
	}

	score := mean
	var sum float64
	var n int
	for _, w := range words {
		if math.IsNaN(w) || w < 0 {
			continue
		}
		sum += w
		n++
	}
	if n > 0 {
		score = meanWeight*mean + wordWeight*(sum/float64(n))
	}

	return math.Max(0, math.Min(100, score))
}
