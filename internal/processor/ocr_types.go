/**
 * OCR Types - Shared data structures for OCR operations
 *
 * The per-call result record returned by every recognition entry point.
 */

package processor

import (
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/raster"
)

// OCRResult represents the result of OCR processing. Text is nil exactly
// when ErrorCode is not SUCCESS.
type OCRResult struct {
	RequestID string

	Text       *string
	Confidence float64 // [0,100], or NotComputed
	WordCount  int
	CharCount  int

	ProcessingTime time.Duration
	ErrorCode      errors.ErrorCode
	ErrorMessage   string

	// Image is a retained copy of the final processed image; nil on failure
	// before preprocessing completed. Owned by the result.
	Image *raster.Image

	// Original image dimensions and depth
	ImageWidth  int
	ImageHeight int
	ImageDepth  int

	Language string
	Words    []OCRWord
}

// OCRWord represents a single recognized word with its bounding box
type OCRWord struct {
	Text        string
	Confidence  float64
	BoundingBox BoundingBox
}

// BoundingBox represents coordinates of a region
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// NewOCRResult returns an empty result: no text, confidence not computed,
// SUCCESS until a stage fails.
func NewOCRResult() *OCRResult {
	return &OCRResult{
		RequestID:  uuid.New().String(),
		Confidence: NotComputed,
		ErrorCode:  errors.CodeSuccess,
	}
}

// Succeeded reports whether text was extracted.
func (r *OCRResult) Succeeded() bool {
	return r.ErrorCode == errors.CodeSuccess && r.Text != nil
}

// TextOrEmpty returns the extracted text, or "" on failure.
func (r *OCRResult) TextOrEmpty() string {
	if r.Text == nil {
		return ""
	}
	return *r.Text
}

// Err returns the failure as an *errors.OCRError, or nil on success.
func (r *OCRResult) Err() error {
	if r.ErrorCode == errors.CodeSuccess {
		return nil
	}
	return errors.New(r.ErrorCode, r.ErrorMessage, nil)
}

// Release drops the retained image. Safe to call more than once.
func (r *OCRResult) Release() {
	if r.Image != nil {
		r.Image.Release()
		r.Image = nil
	}
}

func (r *OCRResult) fail(err error) *OCRResult {
	r.Release()
	r.Text = nil
	r.ErrorCode = errors.CodeOf(err)
	r.ErrorMessage = err.Error()
	r.Confidence = NotComputed
	r.WordCount, r.CharCount = 0, 0
	r.Words = nil
	return r
}
