package processor

import (
	"context"
	"time"

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/engine"
	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
)

const (
	// Version of the OCR service
	Version = "2.0.1"

	// ImagingLibrary performs decoding and preprocessing
	ImagingLibrary = "github.com/disintegration/imaging"

	DefaultBenchmarkIterations = 5

	// read-only configuration keys
	KeyVersion       = "version"
	KeyEngineVersion = "tesseract_version"
)

// SystemInfo is the fixed-schema description of the running service.
type SystemInfo struct {
	Version              string  `json:"version"`
	Engine               string  `json:"engine"`
	EngineVersion        string  `json:"tesseract_version"`
	ImagingLibrary       string  `json:"imaging_library"`
	Language             string  `json:"language"`
	MinConfidence        float64 `json:"min_confidence"`
	TargetDPI            int     `json:"target_dpi"`
	PreprocessingEnabled bool    `json:"preprocessing_enabled"`
	LoggingEnabled       bool    `json:"logging_enabled"`
}

// BenchmarkReport summarizes repeated recognition of one image.
type BenchmarkReport struct {
	Path              string        `json:"path"`
	Iterations        int           `json:"iterations"`
	Successful        int           `json:"successful"`
	TotalTime         time.Duration `json:"total_time"`
	AverageTime       time.Duration `json:"average_time"`
	AverageConfidence float64       `json:"average_confidence"`
	ImagesPerSecond   float64       `json:"images_per_second"`
}

// Service is the public surface of the OCR core: a guarded configuration
// store plus a processor. Every call snapshots the configuration when it
// starts, so concurrent SetConfig calls never affect an in-flight call.
type Service struct {
	store     *config.Store
	processor *Processor
	logger    *logging.Logger

	// Batch options used by BatchProcess
	BatchWorkers int
	BatchSink    ResultSink
}

// NewService creates a service with cfg as its initial configuration.
func NewService(cfg config.Config, e engine.Engine) *Service {
	return &Service{
		store:     config.NewStore(cfg),
		processor: NewProcessor(e),
		logger:    logging.NewLogger("ocr"),
	}
}

// Config returns a snapshot of the current configuration.
func (s *Service) Config() config.Config {
	return s.store.Snapshot()
}

// Init checks that the engine starts with language (the current language
// when empty), then applies it together with the minimum confidence (when
// positive) and the preprocessing toggle. Nothing is applied on failure.
func (s *Service) Init(language string, minConfidence float64, enablePreprocessing bool) error {
	if language == "" {
		language = s.store.Snapshot().Language
	}

	sess := engine.NewSession(s.processor.Engine())
	defer sess.Close()
	if err := sess.Open(language); err != nil {
		s.logger.Error("OCR initialization failed", "language", language, "error", err)
		return err
	}

	s.store.Update(func(c *config.Config) {
		c.Language = language
		if minConfidence > 0 {
			c.MinConfidence = minConfidence
		}
		c.EnablePreprocessing = enablePreprocessing
	})
	cfg := s.store.Snapshot()

	if err := logging.Configure(cfg.EnableLogging, cfg.LogFile); err != nil {
		s.logger.Warn("Failed to open log file", "path", cfg.LogFile, "error", err)
	}

	s.logger.Info("OCR initialized",
		"version", Version,
		"engine", s.processor.Engine().Name(),
		"engine_version", s.processor.Engine().Version(),
		"language", cfg.Language,
		"min_confidence", cfg.MinConfidence,
		"preprocessing", cfg.EnablePreprocessing)
	return nil
}

// SetConfig sets one runtime key. Unknown keys are ignored and reported
// as false.
func (s *Service) SetConfig(key, value string) bool {
	if !s.store.Set(key, value) {
		s.logger.Warn("Unknown configuration key", "key", key)
		return false
	}
	if key == config.KeyEnableLogging || key == config.KeyLogFile {
		cfg := s.store.Snapshot()
		if err := logging.Configure(cfg.EnableLogging, cfg.LogFile); err != nil {
			s.logger.Warn("Failed to open log file", "path", cfg.LogFile, "error", err)
		}
	}
	s.logger.Debug("Configuration updated", "key", key, "value", value)
	return true
}

// GetConfig returns the formatted value of key. Besides the runtime keys
// it answers "version" and "tesseract_version".
func (s *Service) GetConfig(key string) (string, bool) {
	switch key {
	case KeyVersion:
		return Version, true
	case KeyEngineVersion:
		return s.processor.Engine().Version(), true
	}
	return s.store.Get(key)
}

// ProcessFile returns the sanitized text of the image at path.
func (s *Service) ProcessFile(ctx context.Context, path, language string) (string, error) {
	res := s.processor.ProcessFileDetailed(ctx, s.store.Snapshot(), path, language)
	defer res.Release()
	if !res.Succeeded() {
		return "", res.Err()
	}
	return res.TextOrEmpty(), nil
}

// ProcessFileDetailed returns the full result for the image at path. The
// caller owns the result and should Release it.
func (s *Service) ProcessFileDetailed(ctx context.Context, path, language string) *OCRResult {
	return s.processor.ProcessFileDetailed(ctx, s.store.Snapshot(), path, language)
}

// ProcessMemory returns the sanitized text of an encoded in-memory image.
func (s *Service) ProcessMemory(ctx context.Context, data []byte, language string) (string, error) {
	res := s.processor.ProcessMemoryDetailed(ctx, s.store.Snapshot(), data, language)
	defer res.Release()
	if !res.Succeeded() {
		return "", res.Err()
	}
	return res.TextOrEmpty(), nil
}

// ProcessMemoryDetailed returns the full result for an in-memory image.
func (s *Service) ProcessMemoryDetailed(ctx context.Context, data []byte, language string) *OCRResult {
	return s.processor.ProcessMemoryDetailed(ctx, s.store.Snapshot(), data, language)
}

// GetConfidence returns the confidence score for path, or NotComputed.
func (s *Service) GetConfidence(ctx context.Context, path, language string) float64 {
	return s.processor.Confidence(ctx, s.store.Snapshot(), path, language)
}

// BatchProcess runs a batch over inputDir. language overrides the
// configured language for this call only.
func (s *Service) BatchProcess(ctx context.Context, inputDir, outputDir, language string) (*BatchReport, error) {
	return s.processor.BatchProcess(ctx, s.store.Snapshot(), inputDir, outputDir, language, BatchOptions{
		Workers: s.BatchWorkers,
		Sink:    s.BatchSink,
	})
}

// SystemInfo describes the engine and the current configuration.
func (s *Service) SystemInfo() SystemInfo {
	cfg := s.store.Snapshot()
	e := s.processor.Engine()
	return SystemInfo{
		Version:              Version,
		Engine:               e.Name(),
		EngineVersion:        e.Version(),
		ImagingLibrary:       ImagingLibrary,
		Language:             cfg.Language,
		MinConfidence:        cfg.MinConfidence,
		TargetDPI:            cfg.TargetDPI,
		PreprocessingEnabled: cfg.EnablePreprocessing,
		LoggingEnabled:       cfg.EnableLogging,
	}
}

// TestInstallation reports whether the engine starts with English.
func (s *Service) TestInstallation() bool {
	sess := engine.NewSession(s.processor.Engine())
	defer sess.Close()
	if err := sess.Open("eng"); err != nil {
		s.logger.Error("Installation test failed", "error", err)
		return false
	}
	s.logger.Info("Installation test passed", "engine_version", s.processor.Engine().Version())
	return true
}

// Languages lists the language catalog with installation status.
func (s *Service) Languages() []engine.LanguageInfo {
	installed, err := s.processor.Engine().Languages()
	if err != nil {
		s.logger.Warn("Failed to list installed languages", "error", err)
	}
	return engine.Catalog(installed)
}

// Benchmark recognizes path iterations times (DefaultBenchmarkIterations
// when not positive) and reports averages over the successful runs.
func (s *Service) Benchmark(ctx context.Context, path string, iterations int) (*BenchmarkReport, error) {
	if iterations <= 0 {
		iterations = DefaultBenchmarkIterations
	}
	cfg := s.store.Snapshot()
	report := &BenchmarkReport{Path: path, Iterations: iterations}

	var confSum float64
	var lastErr error
	start := time.Now()
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return report, errors.NewTimeoutError("benchmark", err)
		}
		res := s.processor.ProcessFileDetailed(ctx, cfg, path, "")
		if res.Succeeded() {
			report.Successful++
			confSum += res.Confidence
		} else {
			lastErr = res.Err()
		}
		res.Release()
	}
	report.TotalTime = time.Since(start)

	if report.Successful == 0 {
		return report, lastErr
	}
	report.AverageTime = report.TotalTime / time.Duration(iterations)
	report.AverageConfidence = confSum / float64(report.Successful)
	if secs := report.AverageTime.Seconds(); secs > 0 {
		report.ImagesPerSecond = 1 / secs
	}

	s.logger.Info("Benchmark completed",
		"path", path,
		"iterations", iterations,
		"average_time", report.AverageTime,
		"average_confidence", report.AverageConfidence)
	return report, nil
}
