package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig      = "CONFIG"
	ErrSSH         = "SSH"
	ErrConnection  = "CONNECTION"
	ErrTimeout     = "TIMEOUT"
	ErrExit        = "EXIT"
	ErrParse       = "PARSE"
	ErrAggregation = "AGGREGATION"
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

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var fwErr *Error
	if errors.As(err, &fwErr) {
		return fwErr.Code == code
	}
	return false
}

// Kind classifies err into one of the collection failure codes.
// Context deadlines count as timeouts even when wrapped in another code,
// anything unrecognized is treated as a connection problem.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if _, ok := GetExitCode(err); ok {
		return ErrExit
	}
	var fwErr *Error
	if errors.As(err, &fwErr) {
		switch fwErr.Code {
		case ErrSSH:
			return ErrConnection
		default:
			return fwErr.Code
		}
	}
	return ErrConnection
}

// Short returns the one-line message of a structured error, or err.Error()
// for anything else. Snapshot failure details use this so JSON consumers
// don't get the multi-line terminal rendering.
func Short(err error) string {
	if err == nil {
		return ""
	}
	var fwErr *Error
	if errors.As(err, &fwErr) {
		if fwErr.Cause != nil {
			return fwErr.Message + ": " + Short(fwErr.Cause)
		}
		return fwErr.Message
	}
	return err.Error()
}

// ExitError reports a remote command that ran but exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

// NewExitError creates an ExitError for the given exit status.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// GetExitCode extracts the exit status from an ExitError anywhere in the chain.
func GetExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
