package config

import (
	"strconv"
	"strings"
	"sync"
)

// Runtime configuration keys accepted by Store.Set and Store.Get.
const (
	KeyLanguage            = "language"
	KeyMinConfidence       = "min_confidence"
	KeyTargetDPI           = "target_dpi"
	KeyEnablePreprocessing = "enable_preprocessing"
	KeyEnableDeskew        = "enable_deskew"
	KeyLogFile             = "log_file"
	KeyEnableLogging       = "enable_logging"
)

// Keys lists the runtime configuration keys.
var Keys = []string{
	KeyLanguage, KeyMinConfidence, KeyTargetDPI, KeyEnablePreprocessing,
	KeyEnableDeskew, KeyLogFile, KeyEnableLogging,
}

// Store is the process-wide mutable configuration. Calls take a Snapshot
// at start and never observe later mutation.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Snapshot returns an immutable copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update mutates several fields under the lock.
func (s *Store) Update(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
}

// Set assigns a runtime key. Unknown keys are ignored and reported as false.
// Numbers parse leniently: unparsable input becomes zero.
func (s *Store) Set(key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case KeyLanguage:
		s.cfg.Language = value
	case KeyMinConfidence:
		s.cfg.MinConfidence = lenientFloat(value)
	case KeyTargetDPI:
		s.cfg.TargetDPI = lenientInt(value)
	case KeyEnablePreprocessing:
		s.cfg.EnablePreprocessing = lenientBool(value)
	case KeyEnableDeskew:
		s.cfg.EnableDeskew = lenientBool(value)
	case KeyLogFile:
		s.cfg.LogFile = value
	case KeyEnableLogging:
		s.cfg.EnableLogging = lenientBool(value)
	default:
		return false
	}
	return true
}

// Get returns the formatted value of a runtime key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch key {
	case KeyLanguage:
		return s.cfg.Language, true
	case KeyMinConfidence:
		return strconv.FormatFloat(s.cfg.MinConfidence, 'f', 2, 64), true
	case KeyTargetDPI:
		return strconv.Itoa(s.cfg.TargetDPI), true
	case KeyEnablePreprocessing:
		return formatBool(s.cfg.EnablePreprocessing), true
	case KeyEnableDeskew:
		return formatBool(s.cfg.EnableDeskew), true
	case KeyLogFile:
		return s.cfg.LogFile, true
	case KeyEnableLogging:
		return formatBool(s.cfg.EnableLogging), true
	}
	return "", false
}

func lenientFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	// atof stops at the first invalid character
	end := 0
	for end < len(s) && strings.ContainsRune("+-.0123456789", rune(s[end])) {
		end++
	}
	for end > 0 {
		if v, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return v
		}
		end--
	}
	return 0
}

func lenientInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return v
}

func lenientBool(s string) bool {
	if b, ok := parseBool(s); ok {
		return b
	}
	return lenientInt(s) != 0
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
