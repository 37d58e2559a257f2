package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/raster"
)

// State is a Session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateConfigured
	StateImageBound
	StateTextExtracted
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateConfigured:
		return "configured"
	case StateImageBound:
		return "image-bound"
	case StateTextExtracted:
		return "text-extracted"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session drives one engine instance through
// Uninitialized → Initialized → Configured → ImageBound → TextExtracted →
// Disposed. A failure before TextExtracted disposes the instance at once and
// records the error. Sessions are single-use and not safe for concurrent use.
type Session struct {
	engine   Engine
	language string
	inst     Instance
	state    State
	err      error
	logger   *logging.Logger
}

// NewSession returns an uninitialized session over e.
func NewSession(e Engine) *Session {
	return &Session{
		engine: e,
		logger: logging.NewLogger("engine"),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Err returns the error that disposed the session, if any.
func (s *Session) Err() error { return s.err }

// Language returns the language tag the session was opened with.
func (s *Session) Language() string { return s.language }

// Open creates the engine instance for language.
func (s *Session) Open(language string) error {
	if err := s.expect(StateUninitialized, "open"); err != nil {
		return err
	}
	s.language = language

	if strings.TrimSpace(language) == "" {
		return s.fail(errors.NewInvalidParameterError("language is required"))
	}

	inst, err := s.engine.NewInstance(language)
	if err != nil {
		s.logger.Error("Failed to initialize engine", "engine", s.engine.Name(), "language", language, "error", err)
		if stderrors.Is(err, ErrLanguageUnsupported) {
			return s.fail(errors.NewLanguageUnsupportedError(language, err))
		}
		return s.fail(errors.NewInitFailureError(s.engine.Name(), err))
	}

	s.inst = inst
	s.state = StateInitialized
	s.logger.Debug("Engine initialized", "engine", s.engine.Name(), "language", language)
	return nil
}

// Configure applies settings to the instance.
func (s *Session) Configure(settings Settings) error {
	if err := s.expect(StateInitialized, "configure"); err != nil {
		return err
	}
	if err := s.inst.Configure(settings); err != nil {
		return s.fail(errors.NewInitFailureError(s.engine.Name(), fmt.Errorf("configure: %w", err)))
	}
	s.state = StateConfigured
	s.logger.Debug("Engine configured", "psm", settings.PageSegMode, "oem", settings.EngineMode)
	return nil
}

// Bind hands img to the instance. The session does not take ownership of
// img; the caller releases it.
func (s *Session) Bind(img *raster.Image) error {
	if err := s.expect(StateConfigured, "bind"); err != nil {
		return err
	}
	if img.Released() {
		return s.fail(errors.NewInvalidParameterError("cannot bind a released image"))
	}
	if err := s.inst.SetImage(img.Pix()); err != nil {
		return s.fail(errors.NewProcessingError("bind", err))
	}
	s.state = StateImageBound
	return nil
}

// Extract runs recognition on the bound image.
func (s *Session) Extract(ctx context.Context) (*Recognition, error) {
	if err := s.expect(StateImageBound, "extract"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, s.fail(errors.NewTimeoutError("recognize", err))
	}

	rec, err := s.inst.Recognize(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, s.fail(errors.NewTimeoutError("recognize", err))
		}
		return nil, s.fail(errors.NewProcessingError("recognize", err))
	}
	if rec == nil {
		return nil, s.fail(errors.NewProcessingError("recognize", fmt.Errorf("engine returned no result")))
	}

	s.state = StateTextExtracted
	return rec, nil
}

// Close disposes the instance. Safe to call in any state, more than once.
func (s *Session) Close() {
	s.release()
	s.state = StateDisposed
}

func (s *Session) expect(want State, op string) error {
	if s.state == want {
		return nil
	}
	if s.state == StateDisposed {
		return errors.NewInvalidParameterError(fmt.Sprintf("%s on disposed session", op))
	}
	return errors.NewInvalidParameterError(fmt.Sprintf("%s called in state %s, want %s", op, s.state, want))
}

func (s *Session) fail(err error) error {
	s.release()
	s.state = StateDisposed
	s.err = err
	return err
}

func (s *Session) release() {
	if s.inst == nil {
		return
	}
	if err := s.inst.Close(); err != nil {
		s.logger.Warn("Failed to close engine instance", "error", err)
	}
	s.inst = nil
}
