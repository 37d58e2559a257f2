/**
 * Tesseract recognition engine
 *
 * Implements engine.Engine on top of libtesseract through gosseract. Every
 * instance owns its own client; clients are never shared or pooled.
 */

package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/ocr-worker/internal/engine"
)

// Engine creates gosseract-backed instances.
type Engine struct {
	// TessdataPrefix overrides the trained data directory when set
	TessdataPrefix string
}

// New creates a Tesseract engine.
func New(tessdataPrefix string) *Engine {
	return &Engine{TessdataPrefix: tessdataPrefix}
}

func (e *Engine) Name() string { return "tesseract" }

// Version returns the linked libtesseract version.
func (e *Engine) Version() string { return gosseract.Version() }

// Languages lists installed trained data, from TessdataPrefix when set.
func (e *Engine) Languages() ([]string, error) {
	if e.TessdataPrefix == "" {
		return gosseract.GetAvailableLanguages()
	}
	matches, err := filepath.Glob(filepath.Join(e.TessdataPrefix, "*.traineddata"))
	if err != nil {
		return nil, fmt.Errorf("list trained data: %w", err)
	}
	langs := make([]string, 0, len(matches))
	for _, m := range matches {
		langs = append(langs, strings.TrimSuffix(filepath.Base(m), ".traineddata"))
	}
	sort.Strings(langs)
	return langs, nil
}

// NewInstance validates the language tag against installed trained data and
// creates a client for it.
func (e *Engine) NewInstance(language string) (engine.Instance, error) {
	installed, err := e.Languages()
	if err != nil {
		return nil, fmt.Errorf("failed to list installed languages: %w", err)
	}
	if missing := engine.Missing(language, installed); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", engine.ErrLanguageUnsupported, strings.Join(missing, ","))
	}

	client := gosseract.NewClient()
	if e.TessdataPrefix != "" {
		client.TessdataPrefix = e.TessdataPrefix
	}
	if err := client.SetLanguage(engine.SplitLanguages(language)...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	return &instance{client: client}, nil
}

type instance struct {
	client *gosseract.Client
}

func (i *instance) Configure(s engine.Settings) error {
	if err := i.client.SetPageSegMode(gosseract.PageSegMode(s.PageSegMode)); err != nil {
		return fmt.Errorf("set page segmentation mode: %w", err)
	}

	vars := map[string]string{
		"tessedit_ocr_engine_mode": s.EngineMode,
	}
	if s.PreserveInterwordSpaces {
		vars["preserve_interword_spaces"] = "1"
	}
	if s.DPI > 0 {
		vars["user_defined_dpi"] = strconv.Itoa(s.DPI)
	}
	for k, v := range vars {
		if err := i.client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return fmt.Errorf("set variable %s: %w", k, err)
		}
	}

	if s.Whitelist != "" {
		if err := i.client.SetWhitelist(s.Whitelist); err != nil {
			return fmt.Errorf("set whitelist: %w", err)
		}
	}
	if s.Blacklist != "" {
		if err := i.client.SetBlacklist(s.Blacklist); err != nil {
			return fmt.Errorf("set blacklist: %w", err)
		}
	}
	return nil
}

// SetImage hands the image to the client as PNG bytes.
func (i *instance) SetImage(img image.Image) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("encode image: %w", err)
	}
	if err := i.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	return nil
}

// Recognize runs the engine. libtesseract cannot be interrupted, so the
// context is only consulted before the run starts.
func (i *instance) Recognize(ctx context.Context) (*engine.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := i.client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	boxes, err := i.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("word boxes: %w", err)
	}

	rec := &engine.Recognition{Text: text}
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		rec.Words = append(rec.Words, engine.Word{Text: b.Word, Confidence: b.Confidence, Box: b.Box})
	}
	rec.MeanConfidence = meanConfidence(rec.Words)
	return rec, nil
}

func (i *instance) Close() error {
	return i.client.Close()
}

// meanConfidence weights each word's confidence by its length in
// characters, matching how the engine reports mean text confidence.
func meanConfidence(words []engine.Word) float64 {
	var sum float64
	var chars int
	for _, w := range words {
		n := utf8.RuneCountInString(w.Text)
		sum += w.Confidence * float64(n)
		chars += n
	}
	if chars == 0 {
		return 0
	}
	return sum / float64(chars)
}
