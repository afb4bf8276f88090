package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig      = "CONFIG"
	ErrSSH         = "SSH"
	ErrExec        = "EXEC"
	ErrUnreachable = "UNREACHABLE"
	ErrAuth        = "AUTH"
	ErrConnLost    = "CONNLOST"
	ErrTimeout     = "TIMEOUT"
	ErrParse       = "PARSE"
	ErrExhausted   = "EXHAUSTED"
	ErrNotFound    = "NOTFOUND"
	ErrInternal    = "INTERNAL"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrSSH code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSSH,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface with formatted output.
func (e *Error) Error() string {
	var b strings.Builder

	// First line: failure symbol + main message
	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	// Include cause if present (why it failed)
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	// Include suggestion if present (how to fix)
	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode reports whether any structured Error in err's chain carries the code.
// Wrapping an error with a broader code does not hide the original one.
func IsCode(err error, code string) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Code == code {
			return true
		}
		err = fe.Cause
	}
	return false
}

// Code returns the outermost structured code in err's chain, or empty.
func Code(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// ExitError carries a remote command's non-success exit code so callers can
// propagate it as the process exit status.
type ExitError struct {
	Code int
}

// NewExitError creates an ExitError for the given exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// GetExitCode extracts the exit code from an error chain, if present.
func GetExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
