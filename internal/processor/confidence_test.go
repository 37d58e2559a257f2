package processor

import (
	"math"
	"math/rand"
	"testing"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		mean  float64
		words []float64
		want  float64
	}{
		{"mean only", 80, nil, 80},
		{"weighted", 80, []float64{60, 100}, 0.7*80 + 0.3*80},
		{"weighted uneven", 90, []float64{50}, 0.7*90 + 0.3*50},
		{"zero", 0, []float64{0}, 0},
		{"negative mean", -1, []float64{90}, NotComputed},
		{"nan mean", math.NaN(), nil, NotComputed},
		{"invalid words ignored", 70, []float64{math.NaN(), -5}, 70},
		{"clamped high", 150, nil, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.mean, tt.words); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		mean := rng.Float64() * 100
		words := make([]float64, rng.Intn(20))
		for j := range words {
			words[j] = rng.Float64() * 100
		}
		if got := Score(mean, words); got < 0 || got > 100 {
			t.Fatalf("Score(%v, %v) = %v out of [0,100]", mean, words, got)
		}
	}
}
