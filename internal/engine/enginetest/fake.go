// Package enginetest provides an in-memory recognition engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/adverant/nexus/ocr-worker/internal/engine"
)

// Engine is a scripted engine. Every instance returns a copy of Result
// unless RecognizeFunc is set.
type Engine struct {
	Installed []string
	Result    engine.Recognition

	RecognizeFunc func(img image.Image) (*engine.Recognition, error)

	InitErr      error
	ConfigureErr error
	SetImageErr  error
	RecognizeErr error

	mu           sync.Mutex
	opened       int
	closed       int
	lastSettings engine.Settings
	lastImage    image.Image
}

// New returns a fake engine with eng and fra installed that recognizes
// text with the given mean confidence. Words are derived from text and all
// carry the mean confidence.
func New(text string, mean float64) *Engine {
	var words []engine.Word
	for _, w := range strings.Fields(text) {
		words = append(words, engine.Word{Text: w, Confidence: mean})
	}
	return &Engine{
		Installed: []string{"eng", "fra"},
		Result:    engine.Recognition{Text: text, Words: words, MeanConfidence: mean},
	}
}

func (e *Engine) Name() string    { return "fake" }
func (e *Engine) Version() string { return "0.0.0-test" }

func (e *Engine) Languages() ([]string, error) {
	return append([]string(nil), e.Installed...), nil
}

func (e *Engine) NewInstance(language string) (engine.Instance, error) {
	if e.InitErr != nil {
		return nil, e.InitErr
	}
	if missing := engine.Missing(language, e.Installed); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", engine.ErrLanguageUnsupported, strings.Join(missing, ","))
	}
	e.mu.Lock()
	e.opened++
	e.mu.Unlock()
	return &instance{e: e}, nil
}

// Opened returns how many instances were created.
func (e *Engine) Opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened
}

// Closed returns how many instances were closed.
func (e *Engine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// LastSettings returns the settings of the most recently configured instance.
func (e *Engine) LastSettings() engine.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSettings
}

// LastImage returns the most recently bound image.
func (e *Engine) LastImage() image.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastImage
}

type instance struct {
	e      *Engine
	img    image.Image
	closed bool
}

func (i *instance) Configure(s engine.Settings) error {
	if i.e.ConfigureErr != nil {
		return i.e.ConfigureErr
	}
	i.e.mu.Lock()
	i.e.lastSettings = s
	i.e.mu.Unlock()
	return nil
}

func (i *instance) SetImage(img image.Image) error {
	if i.e.SetImageErr != nil {
		return i.e.SetImageErr
	}
	if img == nil {
		return fmt.Errorf("nil image")
	}
	i.img = img
	i.e.mu.Lock()
	i.e.lastImage = img
	i.e.mu.Unlock()
	return nil
}

func (i *instance) Recognize(ctx context.Context) (*engine.Recognition, error) {
	if i.e.RecognizeErr != nil {
		return nil, i.e.RecognizeErr
	}
	if i.e.RecognizeFunc != nil {
		return i.e.RecognizeFunc(i.img)
	}
	rec := i.e.Result
	rec.Words = append([]engine.Word(nil), i.e.Result.Words...)
	return &rec, nil
}

func (i *instance) Close() error {
	if i.closed {
		return fmt.Errorf("instance closed twice")
	}
	i.closed = true
	i.e.mu.Lock()
	i.e.closed++
	i.e.mu.Unlock()
	return nil
}
