package engine_test

import (
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/engine"
	"github.com/adverant/nexus/ocr-worker/internal/engine/enginetest"
	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/raster"
)

func testImage() *raster.Image {
	return raster.New(image.NewGray(image.Rect(0, 0, 10, 10)))
}

func TestSessionHappyPath(t *testing.T) {
	fake := enginetest.New("INVOICE 2024", 91)
	s := engine.NewSession(fake)

	steps := []struct {
		name string
		run  func() error
		want engine.State
	}{
		{"open", func() error { return s.Open("eng") }, engine.StateInitialized},
		{"configure", func() error { return s.Configure(engine.SettingsFor(config.Default(), "eng")) }, engine.StateConfigured},
		{"bind", func() error { return s.Bind(testImage()) }, engine.StateImageBound},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if s.State() != step.want {
			t.Fatalf("after %s state = %s, want %s", step.name, s.State(), step.want)
		}
	}

	rec, err := s.Extract(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if rec.Text != "INVOICE 2024" || len(rec.Words) != 2 {
		t.Errorf("recognition = %+v", rec)
	}
	if s.State() != engine.StateTextExtracted {
		t.Errorf("state = %s, want text-extracted", s.State())
	}

	s.Close()
	s.Close()
	if s.State() != engine.StateDisposed {
		t.Errorf("state = %s, want disposed", s.State())
	}
	if fake.Opened() != 1 || fake.Closed() != 1 {
		t.Errorf("opened=%d closed=%d, want 1/1", fake.Opened(), fake.Closed())
	}
}

func TestSessionFailuresDispose(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*enginetest.Engine)
		language string
		want     errors.ErrorCode
	}{
		{"unknown language", nil, "klingon", errors.CodeLanguageUnsupported},
		{"partly unknown language", nil, "fra+tlh", errors.CodeLanguageUnsupported},
		{"empty language", nil, "", errors.CodeInvalidParameter},
		{"init failure", func(e *enginetest.Engine) { e.InitErr = fmt.Errorf("no tessdata") }, "eng", errors.CodeInitFailure},
		{"configure failure", func(e *enginetest.Engine) { e.ConfigureErr = fmt.Errorf("bad psm") }, "eng", errors.CodeInitFailure},
		{"bind failure", func(e *enginetest.Engine) { e.SetImageErr = fmt.Errorf("bad pix") }, "eng", errors.CodeProcessingFailure},
		{"recognize failure", func(e *enginetest.Engine) { e.RecognizeErr = fmt.Errorf("crash") }, "eng", errors.CodeProcessingFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := enginetest.New("text", 80)
			if tt.setup != nil {
				tt.setup(fake)
			}
			s := engine.NewSession(fake)
			defer s.Close()

			err := s.Open(tt.language)
			if err == nil {
				err = s.Configure(engine.Settings{PageSegMode: 6})
			}
			if err == nil {
				err = s.Bind(testImage())
			}
			if err == nil {
				_, err = s.Extract(context.Background())
			}

			if got := errors.CodeOf(err); got != tt.want {
				t.Fatalf("code = %s, want %s", got, tt.want)
			}
			if s.State() != engine.StateDisposed {
				t.Errorf("state = %s, want disposed", s.State())
			}
			if errors.CodeOf(s.Err()) != tt.want {
				t.Errorf("Err() = %v", s.Err())
			}
			if fake.Opened() != fake.Closed() {
				t.Errorf("leaked instance: opened=%d closed=%d", fake.Opened(), fake.Closed())
			}
		})
	}
}

func TestSessionOutOfOrder(t *testing.T) {
	s := engine.NewSession(enginetest.New("x", 50))
	defer s.Close()

	if err := s.Bind(testImage()); errors.CodeOf(err) != errors.CodeInvalidParameter {
		t.Errorf("bind before open: %v", err)
	}
	if s.State() != engine.StateUninitialized {
		t.Errorf("out-of-order call must not change state, got %s", s.State())
	}

	if err := s.Open("eng"); err != nil {
		t.Fatal(err)
	}
	if err := s.Open("eng"); errors.CodeOf(err) != errors.CodeInvalidParameter {
		t.Errorf("second open: %v", err)
	}

	s.Close()
	if err := s.Configure(engine.Settings{}); errors.CodeOf(err) != errors.CodeInvalidParameter {
		t.Errorf("configure after close: %v", err)
	}
}

func TestSessionExtractCancelled(t *testing.T) {
	fake := enginetest.New("x", 50)
	s := engine.NewSession(fake)
	defer s.Close()

	if err := s.Open("eng"); err != nil {
		t.Fatal(err)
	}
	if err := s.Configure(engine.Settings{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Bind(testImage()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Extract(ctx); errors.CodeOf(err) != errors.CodeTimeout {
		t.Errorf("code = %s, want TIMEOUT", errors.CodeOf(err))
	}
	if fake.Closed() != 1 {
		t.Error("instance should be closed after a failed extract")
	}
}

func TestBindReleasedImage(t *testing.T) {
	s := engine.NewSession(enginetest.New("x", 50))
	defer s.Close()
	_ = s.Open("eng")
	_ = s.Configure(engine.Settings{})

	img := testImage()
	img.Release()
	if err := s.Bind(img); errors.CodeOf(err) != errors.CodeInvalidParameter {
		t.Errorf("code = %s, want INVALID_PARAMETER", errors.CodeOf(err))
	}
}
