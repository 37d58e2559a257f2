package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/raster"
)

// ResultSink receives every per-file batch result before it is released.
// It may be called from several goroutines at once.
type ResultSink interface {
	Record(ctx context.Context, source string, res *OCRResult) error
}

// BatchOptions tunes a batch run.
type BatchOptions struct {
	// Workers > 1 processes files in parallel; the default is sequential
	Workers int
	Sink    ResultSink
}

// BatchFailure describes one file that produced no output.
type BatchFailure struct {
	File    string           `json:"file"`
	Code    errors.ErrorCode `json:"error_code"`
	Message string           `json:"message"`
}

// BatchReport summarizes a batch run. Status is SUCCESS when at least one
// file was processed, whatever the per-file outcomes.
type BatchReport struct {
	RunID     string           `json:"run_id"`
	Processed int              `json:"processed"`
	Succeeded int              `json:"succeeded"`
	Failed    []BatchFailure   `json:"failed,omitempty"`
	Status    errors.ErrorCode `json:"status"`
	Duration  time.Duration    `json:"duration"`
}

// OutputName derives the text output file name for an input image.
func OutputName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
}

// BatchProcess recognizes every supported image in inputDir and writes one
// .txt file per image into outputDir. Per-file failures are logged and
// recorded in the report; they never stop the batch.
func (p *Processor) BatchProcess(ctx context.Context, cfg config.Config, inputDir, outputDir, language string, opts BatchOptions) (*BatchReport, error) {
	start := time.Now()
	report := &BatchReport{RunID: uuid.New().String(), Status: errors.CodeFileNotFound}
	defer func() { report.Duration = time.Since(start) }()

	if inputDir == "" || outputDir == "" {
		return report, errors.NewInvalidParameterError("input and output directories are required")
	}

	info, err := os.Stat(inputDir)
	if err != nil || !info.IsDir() {
		p.logger.Error("Cannot open input directory", "run_id", report.RunID, "dir", inputDir)
		return report, errors.NewFileNotFoundError(inputDir, err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		p.logger.Error("Cannot create output directory", "run_id", report.RunID, "dir", outputDir, "error", err)
		return report, writeError(outputDir, err)
	}

	files, err := listImages(inputDir)
	if err != nil {
		return report, errors.NewPermissionDeniedError(inputDir, err)
	}

	p.logger.Info("Starting batch processing",
		"run_id", report.RunID, "input", inputDir, "output", outputDir, "files", len(files), "workers", opts.Workers)

	var mu sync.Mutex
	handle := func(path string) {
		failure := p.processBatchFile(ctx, cfg, path, outputDir, language, opts.Sink)

		mu.Lock()
		defer mu.Unlock()
		report.Processed++
		if failure == nil {
			report.Succeeded++
		} else {
			report.Failed = append(report.Failed, *failure)
		}
	}

	cancelled := runBatch(ctx, files, opts.Workers, handle)

	if report.Processed > 0 {
		report.Status = errors.CodeSuccess
	}

	p.logger.Info("Batch processing completed",
		"run_id", report.RunID,
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"failed", len(report.Failed))

	if cancelled != nil {
		return report, errors.NewTimeoutError("batch", cancelled)
	}
	if report.Status != errors.CodeSuccess {
		return report, errors.New(errors.CodeFileNotFound, fmt.Sprintf("no processable images in %s", inputDir), nil)
	}
	return report, nil
}

// runBatch feeds files to handle, sequentially or through a bounded worker
// pool. It stops scheduling new files once ctx is done and returns the
// context error in that case.
func runBatch(ctx context.Context, files []string, workers int, handle func(string)) error {
	if workers <= 1 {
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			handle(f)
		}
		return nil
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				handle(f)
			}
		}()
	}

	var err error
feed:
	for _, f := range files {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- f:
		}
	}
	close(jobs)
	wg.Wait()
	return err
}

func (p *Processor) processBatchFile(ctx context.Context, cfg config.Config, path, outputDir, language string, sink ResultSink) *BatchFailure {
	name := filepath.Base(path)
	p.logger.Info("Processing batch file", "file", name)

	res := p.ProcessFileDetailed(ctx, cfg, path, language)
	defer res.Release()

	if sink != nil {
		if err := sink.Record(ctx, path, res); err != nil {
			p.logger.Warn("Failed to record batch result", "file", name, "error", err)
		}
	}

	if !res.Succeeded() {
		p.logger.Error("Batch file failed", "file", name, "error_code", res.ErrorCode, "error", res.ErrorMessage)
		return &BatchFailure{File: name, Code: res.ErrorCode, Message: res.ErrorMessage}
	}

	out := filepath.Join(outputDir, OutputName(name))
	if err := os.WriteFile(out, []byte(res.TextOrEmpty()), 0644); err != nil {
		werr := writeError(out, err)
		p.logger.Error("Cannot write batch output", "file", out, "error", err)
		return &BatchFailure{File: name, Code: errors.CodeOf(werr), Message: werr.Error()}
	}

	p.logger.Info("Batch file written", "file", name, "output", out, "confidence", res.Confidence)
	return nil
}

// listImages returns the regular files in dir with a supported extension,
// sorted by name. Symlinks are followed.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !raster.IsSupported(e.Name()) {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

func writeError(path string, err error) error {
	if stderrors.Is(err, syscall.ENOSPC) {
		return errors.NewDiskSpaceError(path, err)
	}
	if stderrors.Is(err, fs.ErrPermission) {
		return errors.NewPermissionDeniedError(path, err)
	}
	return errors.New(errors.CodePermissionDenied, fmt.Sprintf("cannot write %s", path), err)
}
