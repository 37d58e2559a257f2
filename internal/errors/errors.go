package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the OCR worker
 *
 * Every failure surfaced by the pipeline carries exactly one ErrorCode from
 * the closed set below. Low confidence is never an error.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	CodeSuccess ErrorCode = "SUCCESS"

	// Engine errors
	CodeInitFailure         ErrorCode = "INIT_FAILURE"
	CodeLanguageUnsupported ErrorCode = "LANGUAGE_UNSUPPORTED"

	// Input errors
	CodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"
	CodeInvalidImage     ErrorCode = "INVALID_IMAGE"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Processing errors
	CodeMemoryAllocation  ErrorCode = "MEMORY_ALLOCATION"
	CodeProcessingFailure ErrorCode = "PROCESSING_FAILURE"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeDiskSpace         ErrorCode = "DISK_SPACE"
)

// statusCodes mirrors the numeric statuses exposed to non-Go collaborators.
var statusCodes = map[ErrorCode]int{
	CodeSuccess:             0,
	CodeInitFailure:         -1,
	CodeFileNotFound:        -2,
	CodeInvalidImage:        -3,
	CodeMemoryAllocation:    -4,
	CodeProcessingFailure:   -5,
	CodeTimeout:             -6,
	CodeInvalidParameter:    -7,
	CodeLanguageUnsupported: -8,
	CodePermissionDenied:    -9,
	CodeDiskSpace:           -10,
}

// Codes returns every member of the taxonomy in status order.
func Codes() []ErrorCode {
	return []ErrorCode{
		CodeSuccess, CodeInitFailure, CodeFileNotFound, CodeInvalidImage,
		CodeMemoryAllocation, CodeProcessingFailure, CodeTimeout,
		CodeInvalidParameter, CodeLanguageUnsupported, CodePermissionDenied,
		CodeDiskSpace,
	}
}

// Status returns the numeric status for the code (0 for success, negative otherwise).
func (c ErrorCode) Status() int {
	if s, ok := statusCodes[c]; ok {
		return s
	}
	return statusCodes[CodeProcessingFailure]
}

// Valid reports whether c belongs to the taxonomy.
func (c ErrorCode) Valid() bool {
	_, ok := statusCodes[c]
	return ok
}

// OCRError represents a structured pipeline error
type OCRError struct {
	Code      ErrorCode
	Message   string
	Path      string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *OCRError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *OCRError) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the ErrorCode carried by err. Errors that do not carry one
// are reported as processing failures.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeSuccess
	}
	var oe *OCRError
	if stderrors.As(err, &oe) {
		return oe.Code
	}
	return CodeProcessingFailure
}

// New builds an OCRError with the given code.
func New(code ErrorCode, message string, cause error) *OCRError {
	return &OCRError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// Factory functions for common errors

func NewFileNotFoundError(path string, cause error) *OCRError {
	return &OCRError{
		Code:      CodeFileNotFound,
		Message:   fmt.Sprintf("File does not exist: %s", path),
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewPermissionDeniedError(path string, cause error) *OCRError {
	return &OCRError{
		Code:      CodePermissionDenied,
		Message:   fmt.Sprintf("No read permission for: %s", path),
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewInvalidParameterError(message string) *OCRError {
	return &OCRError{
		Code:      CodeInvalidParameter,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewInvalidImageError(path string, reason string, cause error) *OCRError {
	return &OCRError{
		Code:      CodeInvalidImage,
		Message:   fmt.Sprintf("Invalid image: %s", reason),
		Path:      path,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"reason": reason,
		},
		Cause: cause,
	}
}

func NewLanguageUnsupportedError(language string, cause error) *OCRError {
	return &OCRError{
		Code:      CodeLanguageUnsupported,
		Message:   fmt.Sprintf("Failed to initialize with language: %s", language),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"language": language,
		},
		Cause: cause,
	}
}

func NewInitFailureError(engine string, cause error) *OCRError {
	return &OCRError{
		Code:      CodeInitFailure,
		Message:   fmt.Sprintf("Failed to create %s instance", engine),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
		},
		Cause: cause,
	}
}

func NewProcessingError(stage string, cause error) *OCRError {
	return &OCRError{
		Code:      CodeProcessingFailure,
		Message:   fmt.Sprintf("Processing failed at stage: %s", stage),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"stage": stage,
		},
		Cause: cause,
	}
}

func NewTimeoutError(stage string, cause error) *OCRError {
	return &OCRError{
		Code:      CodeTimeout,
		Message:   fmt.Sprintf("Processing deadline exceeded before stage: %s", stage),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"stage": stage,
		},
		Cause: cause,
	}
}

func NewDiskSpaceError(path string, cause error) *OCRError {
	return &OCRError{
		Code:      CodeDiskSpace,
		Message:   fmt.Sprintf("Insufficient disk space writing: %s", path),
		Path:      path,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *OCRError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"status":     e.Code.Status(),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Path != "" {
		result["path"] = e.Path
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
