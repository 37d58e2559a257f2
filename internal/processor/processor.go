/**
 * OCR Processor
 *
 * Orchestrates one recognition call:
 * - Load and validate the image (file or memory)
 * - Preprocess (grayscale, crop, rotate, deskew, tone, denoise, sharpen, DPI)
 * - Run a single-use engine session
 * - Score confidence and sanitize the text
 *
 * Every call works on its own configuration snapshot and its own engine
 * instance, so independent calls may run in parallel.
 */

package processor

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/engine"
	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/preprocess"
	"github.com/adverant/nexus/ocr-worker/internal/raster"
)

// Processor runs the load → preprocess → recognize → score → sanitize chain.
type Processor struct {
	engine engine.Engine
	logger *logging.Logger
}

// NewProcessor creates a processor over e.
func NewProcessor(e engine.Engine) *Processor {
	return &Processor{
		engine: e,
		logger: logging.NewLogger("processor"),
	}
}

// Engine returns the recognition engine.
func (p *Processor) Engine() engine.Engine {
	return p.engine
}

// ProcessFileDetailed recognizes the image at path. An empty language falls
// back to cfg.Language. The caller owns the result and should Release it.
func (p *Processor) ProcessFileDetailed(ctx context.Context, cfg config.Config, path, language string) *OCRResult {
	start := time.Now()
	res := NewOCRResult()
	res.Language = resolveLanguage(cfg, language)
	defer func() { res.ProcessingTime = time.Since(start) }()

	p.logger.Info("Starting OCR processing", "request_id", res.RequestID, "path", path, "language", res.Language)

	img, err := raster.Load(path, limits(cfg))
	if err != nil {
		p.logger.Error("Failed to load image", "request_id", res.RequestID, "path", path, "error", err)
		return res.fail(err)
	}
	return p.recognize(ctx, cfg, img, res)
}

// ProcessMemoryDetailed recognizes an encoded image held in memory.
func (p *Processor) ProcessMemoryDetailed(ctx context.Context, cfg config.Config, data []byte, language string) *OCRResult {
	start := time.Now()
	res := NewOCRResult()
	res.Language = resolveLanguage(cfg, language)
	defer func() { res.ProcessingTime = time.Since(start) }()

	p.logger.Info("Starting memory OCR processing", "request_id", res.RequestID, "size", len(data), "language", res.Language)

	img, err := raster.LoadFromMemory(data, res.Language, limits(cfg))
	if err != nil {
		p.logger.Error("Failed to decode image", "request_id", res.RequestID, "error", err)
		return res.fail(err)
	}
	return p.recognize(ctx, cfg, img, res)
}

// Confidence returns the score for the image at path, or NotComputed on any
// failure.
func (p *Processor) Confidence(ctx context.Context, cfg config.Config, path, language string) float64 {
	res := p.ProcessFileDetailed(ctx, cfg, path, language)
	defer res.Release()
	if !res.Succeeded() {
		return NotComputed
	}
	return res.Confidence
}

// recognize takes ownership of img.
func (p *Processor) recognize(ctx context.Context, cfg config.Config, img *raster.Image, res *OCRResult) *OCRResult {
	work := img
	defer func() { work.Release() }()

	res.ImageWidth, res.ImageHeight, res.ImageDepth = work.Width(), work.Height(), work.Depth()

	if err := ctx.Err(); err != nil {
		return res.fail(errors.NewTimeoutError("preprocess", err))
	}

	if cfg.EnablePreprocessing {
		out, err := preprocess.NewPipeline(cfg.TargetDPI).Run(ctx, work, preprocess.DefaultParams(cfg))
		work = out
		if err != nil {
			return res.fail(err)
		}
		p.saveDebugImage(cfg, work, res.RequestID)
	}
	res.Image = work.Clone()

	if err := ctx.Err(); err != nil {
		return res.fail(errors.NewTimeoutError("recognize", err))
	}

	sess := engine.NewSession(p.engine)
	defer sess.Close()

	if err := sess.Open(res.Language); err != nil {
		return res.fail(err)
	}
	if err := sess.Configure(engine.SettingsFor(cfg, res.Language)); err != nil {
		return res.fail(err)
	}
	if err := sess.Bind(work); err != nil {
		return res.fail(err)
	}
	rec, err := sess.Extract(ctx)
	if err != nil {
		p.logger.Error("Text extraction failed", "request_id", res.RequestID, "error", err)
		return res.fail(err)
	}

	text := Sanitizer{Corrections: cfg.EnableCorrections}.Sanitize(rec.Text)
	res.Text = &text
	res.Confidence = Score(rec.MeanConfidence, rec.WordConfidences())
	res.WordCount = CountWords(text)
	res.CharCount = CountChars(text)
	res.Words = convertWords(rec.Words)

	if res.Confidence >= 0 && res.Confidence < cfg.MinConfidence {
		p.logger.Warn("Low confidence result",
			"request_id", res.RequestID, "confidence", res.Confidence, "min_confidence", cfg.MinConfidence)
	}

	p.logger.Info("OCR processing completed",
		"request_id", res.RequestID,
		"confidence", res.Confidence,
		"words", res.WordCount,
		"chars", res.CharCount)
	return res
}

func (p *Processor) saveDebugImage(cfg config.Config, img *raster.Image, requestID string) {
	if !cfg.EnableLogging || cfg.DebugImageDir == "" {
		return
	}
	path, err := preprocess.SaveDebugImage(img, cfg.DebugImageDir, "preprocessed")
	if err != nil {
		p.logger.Warn("Failed to save debug image", "request_id", requestID, "error", err)
		return
	}
	p.logger.Debug("Preprocessed image saved", "request_id", requestID, "path", path)
}

func convertWords(words []engine.Word) []OCRWord {
	if len(words) == 0 {
		return nil
	}
	out := make([]OCRWord, 0, len(words))
	for _, w := range words {
		out = append(out, OCRWord{
			Text:        w.Text,
			Confidence:  w.Confidence,
			BoundingBox: boxOf(w.Box),
		})
	}
	return out
}

func boxOf(r image.Rectangle) BoundingBox {
	return BoundingBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func resolveLanguage(cfg config.Config, language string) string {
	if strings.TrimSpace(language) != "" {
		return language
	}
	return cfg.Language
}

func limits(cfg config.Config) raster.Limits {
	return raster.Limits{MaxWidth: cfg.MaxWidth, MaxHeight: cfg.MaxHeight}
}
