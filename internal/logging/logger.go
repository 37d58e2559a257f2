package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// sink is shared by every Logger so that the log file and the enable toggle
// from the configuration apply process-wide.
var sink = &output{w: os.Stdout}

type output struct {
	mu      sync.Mutex
	w       io.Writer
	file    *os.File
	enabled bool
	path    string
}

func init() {
	sink.enabled = true
}

func (o *output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.enabled {
		return len(p), nil
	}
	return o.w.Write(p)
}

// Configure applies the logging toggle and log file path. An empty path
// logs to stdout only. Reconfiguring with the same values is a no-op.
func Configure(enabled bool, path string) error {
	sink.mu.Lock()
	defer sink.mu.Unlock()

	sink.enabled = enabled
	if path == sink.path && (path == "" || sink.file != nil) {
		return nil
	}

	if sink.file != nil {
		sink.file.Close()
		sink.file = nil
	}
	sink.path = path
	sink.w = os.Stdout

	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	sink.file = f
	sink.w = io.MultiWriter(os.Stdout, f)
	return nil
}

// SetOutput redirects all loggers to w. Used by tests to capture output.
func SetOutput(w io.Writer) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.file != nil {
		sink.file.Close()
		sink.file = nil
	}
	sink.path = ""
	sink.w = w
	sink.enabled = true
}

// Logger provides structured logging for the worker
type Logger struct {
	prefix string
	logger *log.Logger
}

// NewLogger creates a new logger with a prefix
func NewLogger(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		logger: log.New(sink, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
	}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV("INFO", msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV("WARN", msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV("ERROR", msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logWithKV("DEBUG", msg, keysAndValues...)
}

func (l *Logger) logWithKV(level, msg string, keysAndValues ...interface{}) {
	kvStr := ""
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			kvStr += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
		}
	}
	l.logger.Printf("[%s] %s%s", level, msg, kvStr)
}
