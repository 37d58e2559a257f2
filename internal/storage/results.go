package storage

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/ocr-worker/internal/processor"
)

// RecordFromResult converts a recognition result into its persisted form.
// An empty jobID falls back to the result's request id.
func RecordFromResult(jobID, source string, res *processor.OCRResult) *ResultRecord {
	if jobID == "" {
		jobID = res.RequestID
	}

	rec := &ResultRecord{
		JobID:            jobID,
		Source:           source,
		Language:         res.Language,
		Status:           string(res.ErrorCode),
		Confidence:       res.Confidence,
		WordCount:        res.WordCount,
		CharCount:        res.CharCount,
		ProcessingTimeMs: res.ProcessingTime.Milliseconds(),
		Metadata: map[string]interface{}{
			"request_id":   res.RequestID,
			"image_width":  res.ImageWidth,
			"image_height": res.ImageHeight,
			"image_depth":  res.ImageDepth,
		},
	}

	if res.Succeeded() {
		text := res.TextOrEmpty()
		rec.Text = &text
		rec.Words = make([]string, len(res.Words))
		for i, w := range res.Words {
			rec.Words[i] = w.Text
		}
	} else {
		rec.ErrorCode = string(res.ErrorCode)
		rec.ErrorMessage = res.ErrorMessage
	}
	return rec
}

// ResultSink persists batch and queue results through a PostgresClient.
type ResultSink struct {
	Client *PostgresClient
}

// Record implements processor.ResultSink. The result's request id is the
// row key.
func (s *ResultSink) Record(ctx context.Context, source string, res *processor.OCRResult) error {
	if err := s.Client.SaveResult(ctx, RecordFromResult(res.RequestID, source, res)); err != nil {
		return fmt.Errorf("failed to persist result for %s: %w", source, err)
	}
	return nil
}
