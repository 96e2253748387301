package errors

import (
	"fmt"
	"testing"
)

func TestUnpackError_Error(t *testing.T) {
	err := &UnpackError{
		Code:    ErrNotFound,
		Message: "not found: model.json",
	}

	expected := "NOT_FOUND: not found: model.json"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestUnpackError_ErrorWithStage(t *testing.T) {
	err := &UnpackError{
		Code:    ErrFatalConfig,
		Stage:   StageManifest,
		Message: "failed to retrieve lpk config",
	}

	expected := "FATAL_CONFIG: manifest: failed to retrieve lpk config"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewFatalConfig(t *testing.T) {
	cause := fmt.Errorf("unexpected end of JSON input")
	err := NewFatalConfig(StageManifest, "invalid config.mlve", cause)

	if err.Code != ErrFatalConfig {
		t.Errorf("Code = %q, want %q", err.Code, ErrFatalConfig)
	}
	if err.Stage != StageManifest {
		t.Errorf("Stage = %q, want %q", err.Stage, StageManifest)
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
	if !err.Fatal() {
		t.Error("Fatal() = false, want true")
	}
}

func TestNewDecodeFailure(t *testing.T) {
	err := NewDecodeFailure("0123456789abcdef0123456789abcdef.bin")

	if err.Code != ErrDecodeFailure {
		t.Errorf("Code = %q, want %q", err.Code, ErrDecodeFailure)
	}
	if err.Details["entry"] != "0123456789abcdef0123456789abcdef.bin" {
		t.Errorf("Details[entry] = %v", err.Details["entry"])
	}
	if err.Fatal() {
		t.Error("Fatal() = true, want false (recoverable)")
	}
}

func TestNewPerEntry(t *testing.T) {
	err := NewPerEntry("textures/a.png", fmt.Errorf("zip: checksum error"))

	if err.Code != ErrPerEntry {
		t.Errorf("Code = %q, want %q", err.Code, ErrPerEntry)
	}
	if err.Message != "textures/a.png: zip: checksum error" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Fatal() {
		t.Error("Fatal() = true, want false")
	}
}

func TestNewUnsupportedVariant(t *testing.T) {
	err := NewUnsupportedVariant("STD3_0")

	if err.Code != ErrUnsupportedVariant {
		t.Errorf("Code = %q, want %q", err.Code, ErrUnsupportedVariant)
	}
	if err.Stage != StageDispatch {
		t.Errorf("Stage = %q, want %q", err.Stage, StageDispatch)
	}
	if err.Details["type"] != "STD3_0" {
		t.Errorf("Details[type] = %v, want %q", err.Details["type"], "STD3_0")
	}
}

func TestNewInternal_NilCause(t *testing.T) {
	err := NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestWithStage(t *testing.T) {
	err := WithStage(NewInvalidRequest("bad"), StageWalk)
	if StageOf(err) != StageWalk {
		t.Errorf("StageOf() = %q, want %q", StageOf(err), StageWalk)
	}

	// An existing stage is kept.
	err = WithStage(NewUnsupportedVariant("X"), StageWalk)
	if StageOf(err) != StageDispatch {
		t.Errorf("StageOf() = %q, want %q", StageOf(err), StageDispatch)
	}

	// Foreign errors become internal errors at the given stage.
	err = WithStage(fmt.Errorf("disk full"), StageFinalize)
	if !Is(err, ErrInternal) {
		t.Errorf("expected INTERNAL, got %v", err)
	}
	if StageOf(err) != StageFinalize {
		t.Errorf("StageOf() = %q, want %q", StageOf(err), StageFinalize)
	}

	if WithStage(nil, StageWalk) != nil {
		t.Error("WithStage(nil) should be nil")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     ErrorCode
		expected bool
	}{
		{"matching code", NewNotFound("x"), ErrNotFound, true},
		{"different code", NewNotFound("x"), ErrInternal, false},
		{"non-UnpackError", fmt.Errorf("plain"), ErrInternal, false},
		{"nil error", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}
