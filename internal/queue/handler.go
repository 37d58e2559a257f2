package queue

import (
	"context"
	stderrors "errors"
	"log"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/processor"
)

// Handler runs one OCR job through the service. It is shared by the Redis
// LIST consumer and the asynq consumer and is safe for concurrent use.
type Handler struct {
	service    *processor.Service
	downloader *Downloader
	sink       processor.ResultSink
}

// NewHandler creates a handler. sink may be nil.
func NewHandler(svc *processor.Service, sink processor.ResultSink) *Handler {
	return &Handler{
		service:    svc,
		downloader: NewDownloader(),
		sink:       sink,
	}
}

// Handle recognizes the job input under the configured timeout. On success
// it returns the result summary stored in Redis; on failure an error
// carrying the OCR error code.
func (h *Handler) Handle(ctx context.Context, p *JobPayload) (map[string]interface{}, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.NewInvalidParameterError(err.Error())
	}

	timeout := h.service.Config().Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	log.Printf("[Job %s] Processing timeout set to: %v", p.JobID, timeout)

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := h.run(jobCtx, p)
	defer res.Release()
	res.RequestID = p.JobID

	if h.sink != nil {
		if err := h.sink.Record(ctx, p.Source(), res); err != nil {
			log.Printf("[Job %s] Warning: Failed to record result: %v", p.JobID, err)
		}
	}

	if !res.Succeeded() {
		if stderrors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			log.Printf("[Job %s] Processing timed out after %v (timeout: %v)", p.JobID, time.Since(start), timeout)
		}
		return nil, res.Err()
	}

	log.Printf("[Job %s] Processing completed in %v: confidence=%.2f, words=%d",
		p.JobID, time.Since(start), res.Confidence, res.WordCount)
	return ResultMap(res), nil
}

func (h *Handler) run(ctx context.Context, p *JobPayload) *processor.OCRResult {
	if p.FilePath != "" {
		return h.service.ProcessFileDetailed(ctx, p.FilePath, p.Language)
	}

	data, err := loadBuffer(ctx, h.downloader, p)
	if err != nil {
		log.Printf("[Job %s] Failed to load input: %v", p.JobID, err)
		res := processor.NewOCRResult()
		res.Language = p.Language
		res.ErrorCode = errors.CodeOf(err)
		res.ErrorMessage = err.Error()
		return res
	}
	return h.service.ProcessMemoryDetailed(ctx, data, p.Language)
}

// ResultMap is the completed-job record published to the results hash.
func ResultMap(res *processor.OCRResult) map[string]interface{} {
	return map[string]interface{}{
		"jobId":            res.RequestID,
		"text":             res.TextOrEmpty(),
		"confidence":       res.Confidence,
		"wordCount":        res.WordCount,
		"charCount":        res.CharCount,
		"language":         res.Language,
		"imageWidth":       res.ImageWidth,
		"imageHeight":      res.ImageHeight,
		"processingTimeMs": res.ProcessingTime.Milliseconds(),
	}
}

// ErrorMap is the failed-job record published to the errors hash.
func ErrorMap(err error, attempts int) map[string]interface{} {
	var m map[string]interface{}
	var oe *errors.OCRError
	if stderrors.As(err, &oe) {
		m = oe.ToMap()
	} else {
		m = map[string]interface{}{
			"error_code": string(errors.CodeProcessingFailure),
			"status":     errors.CodeProcessingFailure.Status(),
		}
	}
	m["error"] = err.Error()
	m["attempts"] = attempts
	return m
}

// Retryable reports whether a failed job is worth another attempt. Input
// problems fail the same way every time and are not retried.
func Retryable(err error) bool {
	switch errors.CodeOf(err) {
	case errors.CodeTimeout, errors.CodeProcessingFailure, errors.CodeInitFailure,
		errors.CodeMemoryAllocation, errors.CodeDiskSpace:
		return true
	}
	return false
}
