/**
 * Recognition engine adapter
 *
 * The OCR engine itself is external. This package describes the small
 * capability surface the worker needs from it and drives every call through
 * a single-use Session.
 */

package engine

import (
	"context"
	stderrors "errors"
	"image"
)

// ErrLanguageUnsupported is returned (wrapped) by NewInstance when the
// engine has no trained data for a requested language.
var ErrLanguageUnsupported = stderrors.New("language not installed")

// Word is one recognized word with its confidence in [0,100].
type Word struct {
	Text       string
	Confidence float64
	Box        image.Rectangle
}

// Recognition is the raw engine output for one image.
type Recognition struct {
	Text           string
	Words          []Word
	MeanConfidence float64
}

// WordConfidences returns the per-word confidences in reading order.
func (r *Recognition) WordConfidences() []float64 {
	out := make([]float64, 0, len(r.Words))
	for _, w := range r.Words {
		out = append(out, w.Confidence)
	}
	return out
}

// Engine creates recognition instances. Implementations must be safe for
// concurrent NewInstance calls; instances themselves are not shared.
type Engine interface {
	Name() string
	Version() string
	// Languages lists the installed language codes
	Languages() ([]string, error)
	NewInstance(language string) (Instance, error)
}

// Instance is one initialized engine handle bound to a language.
type Instance interface {
	Configure(settings Settings) error
	SetImage(img image.Image) error
	Recognize(ctx context.Context) (*Recognition, error)
	Close() error
}
