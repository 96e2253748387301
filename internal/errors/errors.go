package errors

import "fmt"

// ErrorCode represents an unpacker error code.
type ErrorCode string

const (
	ErrFatalConfig        ErrorCode = "FATAL_CONFIG"        // archive aborted, no retry
	ErrDecodeFailure      ErrorCode = "DECODE_FAILURE"      // recoverable until key recovery is exhausted
	ErrPerEntry           ErrorCode = "PER_ENTRY"           // logged and skipped
	ErrUnsupportedVariant ErrorCode = "UNSUPPORTED_VARIANT" // fatal at dispatch
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrCancelled          ErrorCode = "CANCELLED"
	ErrInternal           ErrorCode = "INTERNAL"
)

// Stage names the extraction stage an error was raised in.
type Stage string

const (
	StageOpen     Stage = "open"
	StageManifest Stage = "manifest"
	StageSecrets  Stage = "secrets"
	StageDispatch Stage = "dispatch"
	StageRecovery Stage = "recovery"
	StageWalk     Stage = "walk"
	StageFinalize Stage = "finalize"
	StageFallback Stage = "fallback"
)

// UnpackError represents a structured error with code, stage, and details.
type UnpackError struct {
	Code    ErrorCode
	Stage   Stage
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *UnpackError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *UnpackError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error aborts the whole archive.
func (e *UnpackError) Fatal() bool {
	switch e.Code {
	case ErrPerEntry, ErrDecodeFailure:
		return false
	}
	return true
}

// NewFatalConfig creates an error for an unreadable or unusable manifest or secret document.
func NewFatalConfig(stage Stage, msg string, cause error) *UnpackError {
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &UnpackError{
		Code:    ErrFatalConfig,
		Stage:   stage,
		Message: msg,
		Err:     cause,
	}
}

// NewDecodeFailure creates an error for decrypted bytes that are not valid text.
func NewDecodeFailure(entry string) *UnpackError {
	return &UnpackError{
		Code:    ErrDecodeFailure,
		Stage:   StageRecovery,
		Message: fmt.Sprintf("decrypted entry is not valid UTF-8: %s", entry),
		Details: map[string]any{"entry": entry},
	}
}

// NewPerEntry wraps a failure scoped to a single container entry.
func NewPerEntry(entry string, cause error) *UnpackError {
	msg := "entry failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &UnpackError{
		Code:    ErrPerEntry,
		Stage:   StageFallback,
		Message: fmt.Sprintf("%s: %s", entry, msg),
		Details: map[string]any{"entry": entry},
		Err:     cause,
	}
}

// NewUnsupportedVariant creates an error for a schema variant with no dispatch branch.
func NewUnsupportedVariant(variant string) *UnpackError {
	return &UnpackError{
		Code:    ErrUnsupportedVariant,
		Stage:   StageDispatch,
		Message: fmt.Sprintf("unsupported lpk type %q", variant),
		Details: map[string]any{"type": variant},
	}
}

// NewInvalidRequest creates an error for invalid request parameters.
func NewInvalidRequest(msg string) *UnpackError {
	return &UnpackError{
		Code:    ErrInvalidRequest,
		Message: msg,
	}
}

// NewNotFound creates an error for a missing archive, entry, or run.
func NewNotFound(identifier string) *UnpackError {
	return &UnpackError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewCancelled creates an error for an operation stopped by its context.
func NewCancelled(operation string) *UnpackError {
	return &UnpackError{
		Code:    ErrCancelled,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewInternal creates an error for unexpected internal errors.
func NewInternal(err error) *UnpackError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &UnpackError{
		Code:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// WithStage returns err with its stage set when it is an *UnpackError
// without one. Other errors are wrapped as internal errors at that stage.
func WithStage(err error, stage Stage) error {
	if err == nil {
		return nil
	}
	if uErr, ok := err.(*UnpackError); ok {
		if uErr.Stage == "" {
			uErr.Stage = stage
		}
		return uErr
	}
	wrapped := NewInternal(err)
	wrapped.Stage = stage
	return wrapped
}

// Is checks if an error is an UnpackError with the given code.
func Is(err error, code ErrorCode) bool {
	if uErr, ok := err.(*UnpackError); ok {
		return uErr.Code == code
	}
	return false
}

// StageOf returns the stage recorded on err, or "" for foreign errors.
func StageOf(err error) Stage {
	if uErr, ok := err.(*UnpackError); ok {
		return uErr.Stage
	}
	return ""
}
