/**
 * Configuration for the OCR worker
 *
 * Loads defaults, then an optional YAML file (OCR_CONFIG_FILE), then
 * environment variables, which always win.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine modes accepted by the recognition engine adapter.
const (
	EngineModeTesseractOnly = "tesseract-only"
	EngineModeLSTMOnly      = "lstm-only"
	EngineModeCombined      = "combined"
	EngineModeDefault       = "default"
)

// Queue backends the worker can consume from.
const (
	QueueBackendList  = "list"  // plain Redis LIST shared with the API
	QueueBackendAsynq = "asynq" // asynq task queue
)

const (
	DefaultLanguage      = "fra+eng"
	DefaultMinConfidence = 30.0
	DefaultTargetDPI     = 300
	DefaultMaxDimension  = 5000
	DefaultPageSegMode   = 6 // single uniform block of text
	DefaultTimeout       = 120 * time.Second
	DefaultLogFile       = "ocr_debug.log"
)

// Config holds worker configuration
type Config struct {
	// Recognition settings
	Language      string  `yaml:"language"`
	PageSegMode   int     `yaml:"page_seg_mode"`
	EngineMode    string  `yaml:"engine_mode"`
	MinConfidence float64 `yaml:"min_confidence"`
	Whitelist     string  `yaml:"whitelist_chars"`
	Blacklist     string  `yaml:"blacklist_chars"`

	// TessdataPrefix overrides the engine's trained data location
	TessdataPrefix string `yaml:"tessdata_prefix"`

	// Preprocessing settings
	EnablePreprocessing bool `yaml:"enable_preprocessing"`
	EnableDeskew        bool `yaml:"enable_deskew"`
	EnableDenoising     bool `yaml:"enable_denoising"`
	TargetDPI           int  `yaml:"target_dpi"`
	MaxWidth            int  `yaml:"max_width"`
	MaxHeight           int  `yaml:"max_height"`

	// Heuristic text corrections (rn->m and friends)
	EnableCorrections bool `yaml:"enable_corrections"`

	// Logging
	EnableLogging bool   `yaml:"enable_logging"`
	LogFile       string `yaml:"log_file"`
	DebugImageDir string `yaml:"debug_image_dir"`

	// Timeout is applied by callers that wrap a call in a deadline
	Timeout time.Duration `yaml:"timeout"`

	// Worker configuration
	RedisURL          string `yaml:"redis_url"`
	QueueName         string `yaml:"queue_name"`
	QueueBackend      string `yaml:"queue_backend"`
	WorkerConcurrency int    `yaml:"worker_concurrency"`
	MaxRetries        int    `yaml:"max_retries"`
	DatabaseURL       string `yaml:"database_url"`
	NodeEnv           string `yaml:"node_env"`
}

// Default returns the configuration the engine starts with
func Default() Config {
	return Config{
		Language:            DefaultLanguage,
		PageSegMode:         DefaultPageSegMode,
		EngineMode:          EngineModeCombined,
		MinConfidence:       DefaultMinConfidence,
		EnablePreprocessing: true,
		EnableDeskew:        true,
		EnableDenoising:     true,
		TargetDPI:           DefaultTargetDPI,
		MaxWidth:            DefaultMaxDimension,
		MaxHeight:           DefaultMaxDimension,
		EnableCorrections:   true,
		EnableLogging:       true,
		LogFile:             DefaultLogFile,
		Timeout:             DefaultTimeout,
		RedisURL:            "redis://localhost:6379",
		QueueName:           "ocr:jobs",
		QueueBackend:        QueueBackendList,
		WorkerConcurrency:   4,
		MaxRetries:          3,
		NodeEnv:             "development",
	}
}

// LoadConfig loads configuration from the optional YAML file and environment variables
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("OCR_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Language = getEnvOrDefault("OCR_LANGUAGE", cfg.Language)
	cfg.PageSegMode = getEnvAsIntOrDefault("OCR_PAGE_SEG_MODE", cfg.PageSegMode)
	cfg.EngineMode = getEnvOrDefault("OCR_ENGINE_MODE", cfg.EngineMode)
	cfg.MinConfidence = getEnvAsFloatOrDefault("OCR_MIN_CONFIDENCE", cfg.MinConfidence)
	cfg.Whitelist = getEnvOrDefault("OCR_WHITELIST", cfg.Whitelist)
	cfg.Blacklist = getEnvOrDefault("OCR_BLACKLIST", cfg.Blacklist)
	cfg.TessdataPrefix = getEnvOrDefault("TESSDATA_PREFIX", cfg.TessdataPrefix)
	cfg.EnablePreprocessing = getEnvAsBoolOrDefault("OCR_ENABLE_PREPROCESSING", cfg.EnablePreprocessing)
	cfg.EnableDeskew = getEnvAsBoolOrDefault("OCR_ENABLE_DESKEW", cfg.EnableDeskew)
	cfg.EnableDenoising = getEnvAsBoolOrDefault("OCR_ENABLE_DENOISING", cfg.EnableDenoising)
	cfg.TargetDPI = getEnvAsIntOrDefault("OCR_TARGET_DPI", cfg.TargetDPI)
	cfg.MaxWidth = getEnvAsIntOrDefault("OCR_MAX_WIDTH", cfg.MaxWidth)
	cfg.MaxHeight = getEnvAsIntOrDefault("OCR_MAX_HEIGHT", cfg.MaxHeight)
	cfg.EnableCorrections = getEnvAsBoolOrDefault("OCR_ENABLE_CORRECTIONS", cfg.EnableCorrections)
	cfg.EnableLogging = getEnvAsBoolOrDefault("OCR_ENABLE_LOGGING", cfg.EnableLogging)
	cfg.LogFile = getEnvOrDefault("OCR_LOG_FILE", cfg.LogFile)
	cfg.DebugImageDir = getEnvOrDefault("OCR_DEBUG_IMAGE_DIR", cfg.DebugImageDir)
	cfg.Timeout = time.Duration(getEnvAsIntOrDefault("OCR_TIMEOUT_SECONDS", int(cfg.Timeout/time.Second))) * time.Second
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.QueueName = getEnvOrDefault("OCR_QUEUE_NAME", cfg.QueueName)
	cfg.QueueBackend = getEnvOrDefault("OCR_QUEUE_BACKEND", cfg.QueueBackend)
	cfg.WorkerConcurrency = getEnvAsIntOrDefault("WORKER_CONCURRENCY", cfg.WorkerConcurrency)
	cfg.MaxRetries = getEnvAsIntOrDefault("OCR_MAX_RETRIES", cfg.MaxRetries)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.NodeEnv = getEnvOrDefault("NODE_ENV", cfg.NodeEnv)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Language) == "" {
		return fmt.Errorf("language is required")
	}

	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("min_confidence must be between 0 and 100, got %.2f", c.MinConfidence)
	}

	if c.TargetDPI < 1 || c.TargetDPI > 2400 {
		return fmt.Errorf("target_dpi must be between 1 and 2400, got %d", c.TargetDPI)
	}

	if c.MaxWidth < 1 || c.MaxHeight < 1 {
		return fmt.Errorf("max dimensions must be positive, got %dx%d", c.MaxWidth, c.MaxHeight)
	}

	if c.PageSegMode < 0 || c.PageSegMode > 13 {
		return fmt.Errorf("page_seg_mode must be between 0 and 13, got %d", c.PageSegMode)
	}

	switch c.EngineMode {
	case EngineModeTesseractOnly, EngineModeLSTMOnly, EngineModeCombined, EngineModeDefault:
	default:
		return fmt.Errorf("unknown engine_mode %q", c.EngineMode)
	}

	switch c.QueueBackend {
	case QueueBackendList, QueueBackendAsynq:
	default:
		return fmt.Errorf("unknown queue_backend %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, ok := parseBool(valueStr)
	if !ok {
		return defaultValue
	}

	return value
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	// atoi semantics: any other integer is truthy when non-zero
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n != 0, true
	}
	return false, false
}
