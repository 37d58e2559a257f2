package errors

import (
	"fmt"
	"os"
	"testing"
)

func TestStatusCodesAreDistinct(t *testing.T) {
	seen := map[int]ErrorCode{}
	for _, code := range Codes() {
		if !code.Valid() {
			t.Fatalf("code %s not valid", code)
		}
		s := code.Status()
		if prev, ok := seen[s]; ok {
			t.Fatalf("status %d shared by %s and %s", s, prev, code)
		}
		seen[s] = code
	}
	if CodeSuccess.Status() != 0 {
		t.Errorf("success status = %d, want 0", CodeSuccess.Status())
	}
	if CodeDiskSpace.Status() != -10 {
		t.Errorf("disk space status = %d, want -10", CodeDiskSpace.Status())
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeSuccess},
		{"direct", NewFileNotFoundError("/x", nil), CodeFileNotFound},
		{"wrapped", fmt.Errorf("load: %w", NewInvalidImageError("/x", "bad", nil)), CodeInvalidImage},
		{"foreign", os.ErrClosed, CodeProcessingFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestToMapIncludesCause(t *testing.T) {
	err := NewLanguageUnsupportedError("xyz", os.ErrNotExist)
	m := err.ToMap()
	if m["error_code"] != "LANGUAGE_UNSUPPORTED" {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["language"] != "xyz" {
		t.Errorf("language = %v", m["language"])
	}
	if m["cause"] != os.ErrNotExist.Error() {
		t.Errorf("cause = %v", m["cause"])
	}
	if m["status"] != -8 {
		t.Errorf("status = %v", m["status"])
	}
}
