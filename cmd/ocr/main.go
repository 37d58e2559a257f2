// ocr is the command-line front end of the OCR worker.
//
// Usage:
//
//	ocr [options] <command> [arguments]
//
// Commands:
//
//	ocr <image_path> [language]     Perform OCR on a single image
//	batch <input_dir> <output_dir>  Batch process a directory
//	benchmark <image_path>          Run a performance benchmark
//	test                            Test the engine installation
//	languages                       List supported languages
//	version                         Show version information
//	info                            Print system information as JSON
//	enqueue <image_path> [language] Submit an image to the worker queue
//
// A single existing file argument is treated as "ocr <file>".
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/engine"
	"github.com/adverant/nexus/ocr-worker/internal/engine/tesseract"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/processor"
	"github.com/adverant/nexus/ocr-worker/internal/queue"
)

// newEngine is replaced in tests
var newEngine = func(tessdataPrefix string) engine.Engine {
	return tesseract.New(tessdataPrefix)
}

type options struct {
	language        string
	confidence      float64
	dpi             int
	noPreprocessing bool
	noDeskew        bool
	logFile         string
	quiet           bool
	workers         int
	iterations      int
	backend         string
}

func main() {
	godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseArgs(args []string, stderr io.Writer) (*options, []string, error) {
	opts := &options{}
	fs := flag.NewFlagSet("ocr", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	fs.StringVar(&opts.language, "language", "", "OCR language, e.g. fra+eng")
	fs.Float64Var(&opts.confidence, "confidence", 0, "minimum confidence threshold")
	fs.IntVar(&opts.dpi, "dpi", 0, "target DPI")
	fs.BoolVar(&opts.noPreprocessing, "no-preprocessing", false, "disable image preprocessing")
	fs.BoolVar(&opts.noDeskew, "no-deskew", false, "disable auto-deskewing")
	fs.StringVar(&opts.logFile, "log-file", "", "log file path")
	fs.BoolVar(&opts.quiet, "quiet", false, "disable logging")
	fs.IntVar(&opts.workers, "workers", 1, "parallel workers for batch")
	fs.IntVar(&opts.iterations, "iterations", processor.DefaultBenchmarkIterations, "benchmark iterations")
	fs.StringVar(&opts.backend, "backend", "", "queue backend for enqueue: list or asynq")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return opts, fs.Args(), nil
}

// configFor layers the command-line options over the environment.
func configFor(opts *options, stderr io.Writer) config.Config {
	cfg := config.Default()
	if loaded, err := config.LoadConfig(); err != nil {
		fmt.Fprintf(stderr, "Warning: %v; using defaults\n", err)
	} else {
		cfg = *loaded
	}

	if opts.language != "" {
		cfg.Language = opts.language
	}
	if opts.confidence > 0 {
		cfg.MinConfidence = opts.confidence
	}
	if opts.dpi > 0 {
		cfg.TargetDPI = opts.dpi
	}
	if opts.noPreprocessing {
		cfg.EnablePreprocessing = false
	}
	if opts.noDeskew {
		cfg.EnableDeskew = false
	}
	if opts.logFile != "" {
		cfg.LogFile = opts.logFile
	}
	if opts.quiet {
		cfg.EnableLogging = false
	}
	if opts.backend != "" {
		cfg.QueueBackend = opts.backend
	}
	return cfg
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, rest, err := parseArgs(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if len(rest) == 0 {
		usage(stderr)
		return 1
	}

	cfg := configFor(opts, stderr)
	if err := logging.Configure(cfg.EnableLogging, cfg.LogFile); err != nil {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	}
	svc := processor.NewService(cfg, newEngine(cfg.TessdataPrefix))
	svc.BatchWorkers = opts.workers

	command, params := rest[0], rest[1:]
	param := func(i int) string {
		if i < len(params) {
			return params[i]
		}
		return ""
	}

	switch command {
	case "help":
		usage(stdout)
		return 0

	case "version":
		fmt.Fprintf(stdout, "OCR worker %s\n", processor.Version)
		fmt.Fprintf(stdout, "Engine: %s %s\n", svc.SystemInfo().Engine, svc.SystemInfo().EngineVersion)
		fmt.Fprintf(stdout, "Imaging: %s\n", processor.ImagingLibrary)
		return 0

	case "info":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(svc.SystemInfo()); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0

	case "test":
		if !svc.TestInstallation() {
			fmt.Fprintln(stdout, "Installation test FAILED")
			return 1
		}
		fmt.Fprintln(stdout, "Installation test passed")
		return 0

	case "languages":
		fmt.Fprintln(stdout, "Supported languages:")
		for _, l := range svc.Languages() {
			mark := " "
			if l.Available {
				mark = "x"
			}
			fmt.Fprintf(stdout, "  [%s] %-8s %-12s %s\n", mark, l.Code, l.Name, l.Description)
		}
		return 0

	case "ocr":
		if param(0) == "" {
			fmt.Fprintln(stderr, "Error: Image path required for OCR command")
			usage(stderr)
			return 1
		}
		return runOCR(ctx, svc, cfg, param(0), param(1), stdout, stderr)

	case "batch":
		if param(0) == "" || param(1) == "" {
			fmt.Fprintln(stderr, "Error: Input and output directories required for batch command")
			usage(stderr)
			return 1
		}
		return runBatch(ctx, svc, cfg, param(0), param(1), stdout, stderr)

	case "benchmark":
		if param(0) == "" {
			fmt.Fprintln(stderr, "Error: Test image path required for benchmark command")
			usage(stderr)
			return 1
		}
		return runBenchmark(ctx, svc, cfg, param(0), opts.iterations, stdout, stderr)

	case "enqueue":
		if param(0) == "" {
			fmt.Fprintln(stderr, "Error: Image path required for enqueue command")
			usage(stderr)
			return 1
		}
		return runEnqueue(ctx, cfg, param(0), param(1), stdout, stderr)
	}

	if len(rest) == 1 {
		if info, err := os.Stat(command); err == nil && info.Mode().IsRegular() {
			return runOCR(ctx, svc, cfg, command, "", stdout, stderr)
		}
	}

	fmt.Fprintf(stderr, "Unknown command: %s\n", command)
	usage(stderr)
	return 1
}

func initService(svc *processor.Service, cfg config.Config, stderr io.Writer) bool {
	if err := svc.Init(cfg.Language, cfg.MinConfidence, cfg.EnablePreprocessing); err != nil {
		fmt.Fprintf(stderr, "Failed to initialize OCR: %v\n", err)
		return false
	}
	return true
}

func runOCR(ctx context.Context, svc *processor.Service, cfg config.Config, path, language string, stdout, stderr io.Writer) int {
	if !initService(svc, cfg, stderr) {
		return 1
	}
	if language == "" {
		language = cfg.Language
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	fmt.Fprintf(stdout, "Performing OCR on: %s\n", path)
	fmt.Fprintf(stdout, "Language: %s\n", language)

	res := svc.ProcessFileDetailed(ctx, path, language)
	defer res.Release()
	if !res.Succeeded() {
		fmt.Fprintf(stderr, "OCR failed: %s\n", res.ErrorMessage)
		return 1
	}

	fmt.Fprintln(stdout, "\n=== OCR Result ===")
	fmt.Fprintln(stdout, res.TextOrEmpty())
	fmt.Fprintln(stdout, "\n=== Statistics ===")
	fmt.Fprintf(stdout, "Confidence: %.2f%%\n", res.Confidence)
	fmt.Fprintf(stdout, "Words: %d\n", res.WordCount)
	fmt.Fprintf(stdout, "Characters: %d\n", res.CharCount)
	fmt.Fprintf(stdout, "Processing time: %.3fs\n", res.ProcessingTime.Seconds())
	fmt.Fprintf(stdout, "Image: %dx%d, %d bpp\n", res.ImageWidth, res.ImageHeight, res.ImageDepth)
	if res.Confidence < cfg.MinConfidence {
		fmt.Fprintf(stdout, "Warning: confidence below threshold (%.2f%%)\n", cfg.MinConfidence)
	}
	return 0
}

func runBatch(ctx context.Context, svc *processor.Service, cfg config.Config, in, out string, stdout, stderr io.Writer) int {
	if !initService(svc, cfg, stderr) {
		return 1
	}

	fmt.Fprintf(stdout, "Batch processing: %s -> %s\n", in, out)
	report, err := svc.BatchProcess(ctx, in, out, "")
	if err != nil {
		fmt.Fprintf(stderr, "Batch processing failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Processed %d files (%d succeeded, %d failed) in %v\n",
		report.Processed, report.Succeeded, len(report.Failed), report.Duration)
	for _, f := range report.Failed {
		fmt.Fprintf(stdout, "  %s: %s\n", f.File, f.Code)
	}
	fmt.Fprintln(stdout, "Batch processing completed successfully")
	return 0
}

func runBenchmark(ctx context.Context, svc *processor.Service, cfg config.Config, path string, iterations int, stdout, stderr io.Writer) int {
	if !initService(svc, cfg, stderr) {
		return 1
	}

	fmt.Fprintf(stdout, "Benchmarking: %s (%d iterations)\n", path, iterations)
	report, err := svc.Benchmark(ctx, path, iterations)
	if err != nil {
		fmt.Fprintf(stderr, "Benchmark failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Successful runs: %d/%d\n", report.Successful, report.Iterations)
	fmt.Fprintf(stdout, "Total time: %.3fs\n", report.TotalTime.Seconds())
	fmt.Fprintf(stdout, "Average time: %.3fs\n", report.AverageTime.Seconds())
	fmt.Fprintf(stdout, "Average confidence: %.2f%%\n", report.AverageConfidence)
	fmt.Fprintf(stdout, "Images per second: %.2f\n", report.ImagesPerSecond)
	return 0
}

func runEnqueue(ctx context.Context, cfg config.Config, path, language string, stdout, stderr io.Writer) int {
	abs, err := filepath.Abs(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	payload := queue.JobPayload{FilePath: abs, Filename: filepath.Base(abs), Language: language}

	var id string
	switch cfg.QueueBackend {
	case config.QueueBackendAsynq:
		producer, perr := queue.NewProducer(cfg.RedisURL, cfg.QueueName, cfg.MaxRetries)
		if perr != nil {
			fmt.Fprintf(stderr, "Error: %v\n", perr)
			return 1
		}
		defer producer.Close()
		id, err = producer.Enqueue(ctx, payload)

	case config.QueueBackendList:
		opt, perr := redis.ParseURL(cfg.RedisURL)
		if perr != nil {
			fmt.Fprintf(stderr, "Error: failed to parse Redis URL: %v\n", perr)
			return 1
		}
		client := redis.NewClient(opt)
		defer client.Close()
		id, err = queue.PushJob(ctx, client, cfg.QueueName, payload, cfg.MaxRetries)

	default:
		err = fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}

	if err != nil {
		fmt.Fprintf(stderr, "Enqueue failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Enqueued job %s on %s (%s)\n", id, cfg.QueueName, cfg.QueueBackend)
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `Usage: ocr [OPTIONS] <command> [arguments]

Commands:
  ocr <image_path> [language]     - Perform OCR on single image
  batch <input_dir> <output_dir>  - Batch process directory
  benchmark <image_path>          - Run performance benchmark
  test                            - Test system installation
  languages                       - List supported languages
  version                         - Show version information
  info                            - Print system information as JSON
  enqueue <image_path> [language] - Submit an image to the worker queue
  help                            - Show this help message

Options:
  --language <lang>               - Set OCR language (default: %s)
  --confidence <threshold>        - Set minimum confidence (default: %.1f)
  --dpi <value>                   - Set target DPI (default: %d)
  --no-preprocessing              - Disable image preprocessing
  --no-deskew                     - Disable auto-deskewing
  --log-file <path>               - Set log file path
  --quiet                         - Disable logging
  --workers <n>                   - Parallel workers for batch (default: 1)
  --iterations <n>                - Benchmark iterations (default: %d)
  --backend <list|asynq>          - Queue backend for enqueue

Examples:
  ocr ocr invoice.png fra
  ocr batch ./images ./output
  ocr --confidence 70 ocr document.png
  ocr benchmark test_image.jpg
`, config.DefaultLanguage, config.DefaultMinConfidence, config.DefaultTargetDPI, processor.DefaultBenchmarkIterations)
}
