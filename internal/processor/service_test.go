package processor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/engine/enginetest"
	"github.com/adverant/nexus/ocr-worker/internal/errors"
)

func newTestService(fake *enginetest.Engine) *Service {
	cfg := testConfig()
	cfg.EnableLogging = false
	return NewService(cfg, fake)
}

func TestServiceConfigRoundTrip(t *testing.T) {
	s := newTestService(enginetest.New("x", 90))

	if !s.SetConfig(config.KeyMinConfidence, "70") {
		t.Fatal("min_confidence should be accepted")
	}
	if got, ok := s.GetConfig(config.KeyMinConfidence); !ok || got != "70.00" {
		t.Errorf("GetConfig(min_confidence) = %q, %v, want 70.00", got, ok)
	}

	if s.SetConfig("color_mode", "sepia") {
		t.Error("unknown keys must be ignored")
	}
	if _, ok := s.GetConfig("color_mode"); ok {
		t.Error("unknown key should not be readable")
	}

	if got, _ := s.GetConfig(KeyVersion); got != Version {
		t.Errorf("version = %q", got)
	}
	if got, _ := s.GetConfig(KeyEngineVersion); got != "0.0.0-test" {
		t.Errorf("engine version = %q", got)
	}
}

func TestServiceInit(t *testing.T) {
	s := newTestService(enginetest.New("x", 90))

	if err := s.Init("eng", 55, false); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	cfg := s.Config()
	if cfg.Language != "eng" || cfg.MinConfidence != 55 || cfg.EnablePreprocessing {
		t.Errorf("config after Init = %+v", cfg)
	}

	if err := s.Init("", 0, true); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if cfg := s.Config(); cfg.Language != "eng" || cfg.MinConfidence != 55 {
		t.Error("empty language and non-positive confidence must keep current values")
	}

	if err := s.Init("tlh", 0, true); errors.CodeOf(err) != errors.CodeLanguageUnsupported {
		t.Errorf("Init(tlh) code = %s, want LANGUAGE_UNSUPPORTED", errors.CodeOf(err))
	}
}

func TestServiceProcessFile(t *testing.T) {
	s := newTestService(enginetest.New("Hello  World", 85))
	path := writeImage(t, t.TempDir(), "page.png")

	text, err := s.ProcessFile(context.Background(), path, "eng")
	if err != nil || text != "Hello World" {
		t.Errorf("ProcessFile() = %q, %v", text, err)
	}

	_, err = s.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "none.png"), "")
	if errors.CodeOf(err) != errors.CodeFileNotFound {
		t.Errorf("missing file code = %s", errors.CodeOf(err))
	}

	if got := s.GetConfidence(context.Background(), path, ""); !approx(got, 85) {
		t.Errorf("GetConfidence() = %v", got)
	}

	text, err = s.ProcessMemory(context.Background(), pngBytes(t, pageImage(20, 20)), "")
	if err != nil || text != "Hello World" {
		t.Errorf("ProcessMemory() = %q, %v", text, err)
	}
}

func TestServiceBatchLanguageDoesNotLeak(t *testing.T) {
	s := newTestService(enginetest.New("x", 90))
	report, err := s.BatchProcess(context.Background(), batchDir(t), t.TempDir(), "eng")
	if err != nil || report.Processed != 3 {
		t.Fatalf("BatchProcess() = %+v, %v", report, err)
	}
	if got := s.Config().Language; got != config.DefaultLanguage {
		t.Errorf("language = %q, per-call override must not persist", got)
	}
}

func TestServiceSystemInfo(t *testing.T) {
	s := newTestService(enginetest.New("x", 90))
	info := s.SystemInfo()

	if info.Version != Version || info.Engine != "fake" || info.EngineVersion != "0.0.0-test" {
		t.Errorf("info = %+v", info)
	}
	if info.Language != config.DefaultLanguage || info.MinConfidence != 30 || info.TargetDPI != 300 {
		t.Errorf("config snapshot = %+v", info)
	}
	if !info.PreprocessingEnabled || info.LoggingEnabled || info.ImagingLibrary == "" {
		t.Errorf("toggles = %+v", info)
	}
}

func TestServiceInstallationAndLanguages(t *testing.T) {
	fake := enginetest.New("x", 90)
	s := newTestService(fake)
	if !s.TestInstallation() {
		t.Error("installation with eng should pass")
	}

	langs := s.Languages()
	if len(langs) != 10 {
		t.Fatalf("languages = %d", len(langs))
	}
	for _, l := range langs {
		want := l.Code == "eng" || l.Code == "fra"
		if l.Available != want {
			t.Errorf("%s available = %v, want %v", l.Code, l.Available, want)
		}
	}

	fake.Installed = []string{"fra"}
	if s.TestInstallation() {
		t.Error("installation without eng should fail")
	}
}

func TestServiceBenchmark(t *testing.T) {
	fake := enginetest.New("bench", 70)
	s := newTestService(fake)
	path := writeImage(t, t.TempDir(), "page.png")

	report, err := s.Benchmark(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("Benchmark() error = %v", err)
	}
	if report.Iterations != DefaultBenchmarkIterations || report.Successful != DefaultBenchmarkIterations {
		t.Errorf("report = %+v", report)
	}
	if !approx(report.AverageConfidence, 70) || report.AverageTime <= 0 {
		t.Errorf("averages = %+v", report)
	}

	if _, err := s.Benchmark(context.Background(), path+".gone", 2); errors.CodeOf(err) != errors.CodeFileNotFound {
		t.Errorf("missing file benchmark code = %s", errors.CodeOf(err))
	}
}

func TestServiceConcurrentConfigAndProcessing(t *testing.T) {
	s := newTestService(enginetest.New("x", 90))
	path := writeImage(t, t.TempDir(), "page.png")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetConfig(config.KeyTargetDPI, "150")
			s.SetConfig(config.KeyEnablePreprocessing, "0")
		}()
		go func() {
			defer wg.Done()
			if _, err := s.ProcessFile(context.Background(), path, "eng"); err != nil {
				t.Errorf("ProcessFile() error = %v", err)
			}
		}()
	}
	wg.Wait()
}
