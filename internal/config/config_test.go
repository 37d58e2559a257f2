package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestStoreMinConfidenceRoundTrip(t *testing.T) {
	s := NewStore(Default())

	if !s.Set("min_confidence", "70") {
		t.Fatal("Set(min_confidence) reported unknown key")
	}
	got, ok := s.Get("min_confidence")
	if !ok || got != "70.00" {
		t.Errorf("Get(min_confidence) = %q, %v; want \"70.00\", true", got, ok)
	}
}

func TestStoreKeys(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"language", "deu+eng", "deu+eng"},
		{"target_dpi", "150", "150"},
		{"target_dpi", "200dpi", "200"},
		{"target_dpi", "abc", "0"},
		{"min_confidence", "42.5%", "42.50"},
		{"enable_preprocessing", "0", "0"},
		{"enable_deskew", "true", "1"},
		{"enable_logging", "2", "1"},
		{"log_file", "/tmp/x.log", "/tmp/x.log"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			s := NewStore(Default())
			s.Set(tt.key, tt.value)
			if got, _ := s.Get(tt.key); got != tt.want {
				t.Errorf("Get(%s) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestStoreIgnoresUnknownKeys(t *testing.T) {
	s := NewStore(Default())
	before := s.Snapshot()

	if s.Set("max_width", "10") {
		t.Error("Set(max_width) should report unknown key")
	}
	if _, ok := s.Get("max_width"); ok {
		t.Error("Get(max_width) should report unknown key")
	}
	if s.Snapshot() != before {
		t.Error("unknown key mutated configuration")
	}
}

func TestSnapshotIsolatedFromMutation(t *testing.T) {
	s := NewStore(Default())
	snap := s.Snapshot()
	s.Set("language", "jpn")
	if snap.Language != DefaultLanguage {
		t.Errorf("snapshot language changed to %q", snap.Language)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore(Default())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set("target_dpi", "200")
		}()
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
	if s.Snapshot().TargetDPI != 200 {
		t.Errorf("TargetDPI = %d", s.Snapshot().TargetDPI)
	}
}

func TestLoadConfigLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ocr.yaml")
	yamlData := "language: deu\ntarget_dpi: 150\nmin_confidence: 55\ntimeout: 30s\n"
	if err := os.WriteFile(path, []byte(yamlData), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OCR_CONFIG_FILE", path)
	t.Setenv("OCR_TARGET_DPI", "200")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Language != "deu" {
		t.Errorf("Language = %q, want deu (from file)", cfg.Language)
	}
	if cfg.TargetDPI != 200 {
		t.Errorf("TargetDPI = %d, want 200 (env wins)", cfg.TargetDPI)
	}
	if cfg.MinConfidence != 55 {
		t.Errorf("MinConfidence = %v", cfg.MinConfidence)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"confidence too high", func(c *Config) { c.MinConfidence = 101 }, true},
		{"zero dpi", func(c *Config) { c.TargetDPI = 0 }, true},
		{"empty language", func(c *Config) { c.Language = " " }, true},
		{"bad engine mode", func(c *Config) { c.EngineMode = "neural" }, true},
		{"bad psm", func(c *Config) { c.PageSegMode = 14 }, true},
		{"concurrency", func(c *Config) { c.WorkerConcurrency = 0 }, true},
		{"asynq backend", func(c *Config) { c.QueueBackend = QueueBackendAsynq }, false},
		{"bad backend", func(c *Config) { c.QueueBackend = "kafka" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
