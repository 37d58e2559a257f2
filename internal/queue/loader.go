package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
)

const (
	// MaxDownloadSize bounds a fileUrl download
	MaxDownloadSize = 256 * 1024 * 1024

	downloadAttempts = 5
	downloadTimeout  = 10 * time.Minute
)

// Downloader fetches job inputs referenced by URL, retrying with
// exponential backoff.
type Downloader struct {
	Client         *http.Client
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxSize        int64
}

// NewDownloader returns a downloader with the worker defaults: 5 attempts,
// backoff from 1s doubling up to 32s.
func NewDownloader() *Downloader {
	return &Downloader{
		Client:         &http.Client{Timeout: downloadTimeout},
		Attempts:       downloadAttempts,
		InitialBackoff: time.Second,
		MaxBackoff:     32 * time.Second,
		MaxSize:        MaxDownloadSize,
	}
}

func (d *Downloader) backoff(attempt int) time.Duration {
	delay := d.InitialBackoff << uint(attempt-1)
	if delay > d.MaxBackoff || delay <= 0 {
		delay = d.MaxBackoff
	}
	return delay
}

// Fetch downloads url. Client errors (4xx) are not retried.
func (d *Downloader) Fetch(ctx context.Context, jobID, url string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= d.Attempts; attempt++ {
		log.Printf("[Job %s] Download attempt %d/%d from: %s", jobID, attempt, d.Attempts, url)

		data, retry, err := d.fetchOnce(ctx, url)
		if err == nil {
			log.Printf("[Job %s] Download successful on attempt %d: %d bytes", jobID, attempt, len(data))
			return data, nil
		}
		lastErr = err
		log.Printf("[Job %s] Download attempt %d failed: %v", jobID, attempt, err)

		if !retry || attempt == d.Attempts {
			break
		}

		delay := d.backoff(attempt)
		log.Printf("[Job %s] Retrying in %v...", jobID, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.NewTimeoutError("download", ctx.Err())
		}
	}

	if ctx.Err() != nil {
		return nil, errors.NewTimeoutError("download", ctx.Err())
	}
	return nil, errors.New(errors.CodeFileNotFound,
		fmt.Sprintf("failed to download %s", url), lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if d.MaxSize > 0 && resp.ContentLength > d.MaxSize {
		return nil, false, fmt.Errorf("file size exceeds maximum: %d > %d bytes", resp.ContentLength, d.MaxSize)
	}

	limit := d.MaxSize
	if limit <= 0 {
		limit = MaxDownloadSize
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, true, err
	}
	if int64(len(data)) > limit {
		return nil, false, fmt.Errorf("file size exceeds maximum: %d bytes", limit)
	}
	return data, false, nil
}

// DetectImageType names the image format from the leading magic bytes, or
// returns "" when the data is not a recognized image.
func DetectImageType(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	switch {
	case len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "gif"
	case len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "webp"
	case bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return "tiff"
	case bytes.HasPrefix(data, []byte("BM")):
		return "bmp"
	case data[0] == 'P' && data[1] >= '1' && data[1] <= '6' && isSpace(data[2]):
		return "pnm"
	}
	return ""
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// loadBuffer returns the encoded image for a payload without a file path.
func loadBuffer(ctx context.Context, d *Downloader, p *JobPayload) ([]byte, error) {
	data := p.FileBuffer
	if len(data) > 0 {
		log.Printf("[Job %s] Using file buffer (%d bytes)", p.JobID, len(data))
	} else {
		log.Printf("[Job %s] Downloading file from URL: %s", p.JobID, p.FileURL)
		var err error
		if data, err = d.Fetch(ctx, p.JobID, p.FileURL); err != nil {
			return nil, err
		}
	}

	if bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, errors.NewInvalidImageError(p.Source(), "PDF input is not supported", nil)
	}
	if DetectImageType(data) == "" {
		return nil, errors.NewInvalidImageError(p.Source(), "unrecognized image format", nil)
	}
	return data, nil
}
