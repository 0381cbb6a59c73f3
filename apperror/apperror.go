// Package apperror defines the error kinds returned by the row-query
// engine and their flat-string rendering for callers across the shell
// boundary (see spec §7).
package apperror

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an AppError.
type Kind int

const (
	// Internal marks a mask-evaluator inconsistency or other condition
	// that should be unreachable.
	Internal Kind = iota
	// NotFound marks a missing project or table file.
	NotFound
	// ParseError marks malformed CSV/JSON/IOC input.
	ParseError
	// IoError marks a filesystem or cache failure.
	IoError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case ParseError:
		return "parse_error"
	case IoError:
		return "io_error"
	default:
		return "internal"
	}
}

// AppError is a typed, wrappable error carrying a Kind for callers that
// need to branch on error category, and a flat message for callers (the
// desktop shell) that only want text.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates an AppError with no underlying cause.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps cause with a Kind and message, preserving the chain for
// errors.Is/As and Unwrap.
func Wrap(cause error, kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: errors.WithStack(cause)}
}

// Wrapf wraps cause with a Kind and a formatted message.
func Wrapf(cause error, kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Flatten renders err (an *AppError or any other error) as the flat string
// the shell boundary expects, matching the original AppError -> String
// contract.
func Flatten(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
