package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error is a typed scheduling error. Two errors match under errors.Is when their codes match.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code
func (e *Error) Is(target error) bool {
	var other *Error
	if e == nil || !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

func New(code string, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and a message to an existing error.
func Wrap(err error, code string, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Clone returns a copy of err with the message replaced (when not empty).
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Clonef is Clone with a formatted message.
func Clonef(err *Error, format string, args ...any) *Error {
	return Clone(err, fmt.Sprintf(format, args...))
}

const (
	CodeValidation   = "VALIDATION"
	CodeInfeasible   = "INFEASIBLE"
	CodeTimedOut     = "TIMED_OUT"
	CodeUnresolvable = "UNRESOLVABLE"
	CodeModel        = "MODEL"
	CodeCancelled    = "CANCELLED"
	CodeInternal     = "INTERNAL"
)

var (
	// Malformed input, rejected before any search begins
	ErrValidation = New(CodeValidation, "validation failed")
	// No complete schedule exists under the current inputs
	ErrInfeasible = New(CodeInfeasible, "no complete schedule exists")
	// Budget exhausted before the search finished
	ErrTimedOut = New(CodeTimedOut, "time budget exhausted")
	// A repair found no valid substitute
	ErrUnresolvable = New(CodeUnresolvable, "repair has no valid substitute")
	// Independent sub-problems reused a shared resource
	ErrModel     = New(CodeModel, "inconsistent problem decomposition")
	ErrCancelled = New(CodeCancelled, "planning run cancelled")
	ErrInternal  = New(CodeInternal, "internal error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, CodeCancelled, ErrCancelled.Message)
	}
	return Wrap(err, CodeInternal, ErrInternal.Message)
}

// Code returns the code carried by err, or CodeInternal for foreign errors.
func Code(err error) string {
	if e := FromError(err); e != nil {
		return e.Code
	}
	return ""
}
