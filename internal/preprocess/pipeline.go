/**
 * Preprocessing pipeline
 *
 * Ordered, parameterized image transforms applied before recognition:
 * grayscale, crop, rotate, deskew, tone, denoise, sharpen, DPI normalize.
 * Every stage is best-effort: a failing stage leaves the pre-stage image in
 * place and the pipeline carries on.
 */

package preprocess

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/raster"
)

// Stage names, in execution order.
const (
	StageGrayscale = "grayscale"
	StageCrop      = "crop"
	StageRotate    = "rotate"
	StageDeskew    = "deskew"
	StageTone      = "tone"
	StageDenoise   = "denoise"
	StageSharpen   = "sharpen"
	StageNormalize = "dpi-normalize"
)

// stage is one transform. apply may return its input unchanged to signal
// a no-op; it must never mutate its input.
type stage struct {
	name    string
	enabled func(img image.Image, p Params) bool
	apply   func(img image.Image, p Params) (image.Image, error)
}

// Pipeline runs the ordered preprocessing stages.
type Pipeline struct {
	TargetDPI int
	logger    *logging.Logger
	stages    []stage

	// hook lets tests inject failures into a named stage
	hook func(name string) error
}

// NewPipeline creates a pipeline normalizing towards targetDPI.
func NewPipeline(targetDPI int) *Pipeline {
	p := &Pipeline{
		TargetDPI: targetDPI,
		logger:    logging.NewLogger("preprocess"),
	}
	p.stages = []stage{
		{StageGrayscale, needsGrayscale, toGrayscale},
		{StageCrop, func(_ image.Image, prm Params) bool { return prm.Crop != nil }, crop},
		{StageRotate, func(_ image.Image, prm Params) bool { return absf(prm.Rotation) > 0.1 }, rotate},
		{StageDeskew, func(_ image.Image, prm Params) bool { return prm.Deskew }, p.deskew},
		{StageTone, toneEnabled, tone},
		{StageDenoise, func(_ image.Image, prm Params) bool { return clampLevel(prm.NoiseLevel) > 0 }, denoise},
		{StageSharpen, func(_ image.Image, prm Params) bool { return clampLevel(prm.SharpenLevel) > 0 }, sharpen},
		{StageNormalize, func(image.Image, Params) bool { return true }, p.normalize},
	}
	return p
}

// Run consumes in and returns the processed image. The caller owns the
// result; in must not be used afterwards. The only error is a cancelled or
// expired context, in which case every buffer has already been released.
func (p *Pipeline) Run(ctx context.Context, in *raster.Image, params Params) (*raster.Image, error) {
	if in.Released() {
		return nil, errors.NewInvalidParameterError("pipeline input image is released")
	}

	start := time.Now()
	p.logger.Info("Starting image preprocessing", "width", in.Width(), "height", in.Height(), "depth", in.Depth())

	cur := in
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			cur.Release()
			return nil, errors.NewTimeoutError(s.name, err)
		}
		if !s.enabled(cur.Pix(), params) {
			continue
		}

		out, err := p.runStage(s, cur.Pix(), params)
		if err != nil {
			p.logger.Warn("Stage failed, keeping previous image", "stage", s.name, "error", err)
			continue
		}
		if out == nil || out == cur.Pix() {
			continue
		}

		next := raster.New(out)
		cur.Release()
		cur = next
		p.logger.Debug("Stage applied", "stage", s.name, "width", cur.Width(), "height", cur.Height(), "depth", cur.Depth())
	}

	p.logger.Info("Image preprocessing completed", "width", cur.Width(), "height", cur.Height(), "duration", time.Since(start))
	return cur, nil
}

// runStage isolates a stage so that a panic inside image code degrades to a
// skipped stage.
func (p *Pipeline) runStage(s stage, img image.Image, params Params) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic in stage %s: %v", s.name, r)
		}
	}()
	if p.hook != nil {
		if err := p.hook(s.name); err != nil {
			return nil, err
		}
	}
	return s.apply(img, params)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
