package storage

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/processor"
)

func TestSanitizeConfidence(t *testing.T) {
	tests := []struct {
		in        float64
		want      float64
		wantValid bool
	}{
		{87.456, 87.46, true},
		{0, 0, true},
		{100.004, 100, true},
		{250, 100, true},
		{-1, 0, false},
		{math.NaN(), 0, false},
	}
	for _, tt := range tests {
		got := sanitizeConfidence(tt.in)
		if got.Valid != tt.wantValid || (got.Valid && math.Abs(got.Float64-tt.want) > 1e-9) {
			t.Errorf("sanitizeConfidence(%v) = %+v, want %v valid=%v", tt.in, got, tt.want, tt.wantValid)
		}
	}
}

func TestSanitizeText(t *testing.T) {
	if got := sanitizeText("a\x00b\x00"); got != "ab" {
		t.Errorf("sanitizeText() = %q", got)
	}
}

func successResult() *processor.OCRResult {
	res := processor.NewOCRResult()
	text := "INVOICE 2024"
	res.Text = &text
	res.Confidence = 91.5
	res.WordCount, res.CharCount = 2, 12
	res.Language = "eng"
	res.ProcessingTime = 1500 * time.Millisecond
	res.ImageWidth, res.ImageHeight, res.ImageDepth = 800, 600, 8
	res.Words = []processor.OCRWord{{Text: "INVOICE", Confidence: 92}, {Text: "2024", Confidence: 91}}
	return res
}

func TestRecordFromResultSuccess(t *testing.T) {
	res := successResult()
	rec := RecordFromResult("job-1", "/in/scan.png", res)

	if rec.JobID != "job-1" || rec.Source != "/in/scan.png" || rec.Status != "SUCCESS" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Text == nil || *rec.Text != "INVOICE 2024" || len(rec.Words) != 2 || rec.Words[1] != "2024" {
		t.Errorf("text/words = %v %v", rec.Text, rec.Words)
	}
	if rec.ProcessingTimeMs != 1500 || rec.ErrorCode != "" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Metadata["request_id"] != res.RequestID || rec.Metadata["image_width"] != 800 {
		t.Errorf("metadata = %v", rec.Metadata)
	}
}

func TestRecordFromResultFailure(t *testing.T) {
	res := processor.NewOCRResult()
	res.ErrorCode = errors.CodeInvalidImage
	res.ErrorMessage = "Invalid image: decode failed"

	rec := RecordFromResult("", "<memory>", res)
	if rec.JobID != res.RequestID {
		t.Errorf("JobID = %q, want request id", rec.JobID)
	}
	if rec.Status != "INVALID_IMAGE" || rec.ErrorCode != "INVALID_IMAGE" || rec.Text != nil {
		t.Errorf("record = %+v", rec)
	}
	if rec.Confidence != processor.NotComputed {
		t.Errorf("Confidence = %v", rec.Confidence)
	}
}

// postgresClient connects to DATABASE_URL or skips the test.
func postgresClient(t *testing.T) *PostgresClient {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	client, err := NewPostgresClient(url)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	if err := client.EnsureSchema(context.Background()); err != nil {
		client.Close()
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return client
}

func TestSaveAndGetResult(t *testing.T) {
	client := postgresClient(t)
	defer client.Close()
	ctx := context.Background()

	jobID := uuid.New().String()
	sink := &ResultSink{Client: client}
	res := successResult()
	res.RequestID = jobID
	if err := sink.Record(ctx, "/in/scan.png", res); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := client.GetResult(ctx, jobID)
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	if got.Status != "SUCCESS" || got.Text == nil || *got.Text != "INVOICE 2024" || got.Confidence != 91.5 {
		t.Errorf("result = %+v", got)
	}

	// a retried job overwrites its row
	res.ErrorCode = errors.CodeTimeout
	res.ErrorMessage = "deadline"
	res.Text = nil
	res.Confidence = processor.NotComputed
	if err := sink.Record(ctx, "/in/scan.png", res); err != nil {
		t.Fatal(err)
	}
	got, err = client.GetResult(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "TIMEOUT" || got.Text != nil || got.Confidence != -1 {
		t.Errorf("overwritten result = %+v", got)
	}

	counts, err := client.CountByStatus(ctx)
	if err != nil || counts["TIMEOUT"] < 1 {
		t.Errorf("CountByStatus() = %v, %v", counts, err)
	}
}
