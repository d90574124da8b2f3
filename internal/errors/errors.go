// Package errors defines the coded application errors the audit service returns across
// package boundaries.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable, machine-readable category of an AppError.
type ErrorCode string

const (
	ErrCodeInvalidTarget     ErrorCode = "invalid_target"
	ErrCodeNotFound          ErrorCode = "not_found"
	ErrCodeNotReady          ErrorCode = "not_ready" // result requested before the job finished
	ErrCodeIllegalTransition ErrorCode = "illegal_transition"
	ErrCodeConflict          ErrorCode = "conflict"
	ErrCodeValidation        ErrorCode = "validation"
	ErrCodeShuttingDown      ErrorCode = "shutting_down"
	ErrCodeTimeout           ErrorCode = "timeout"
	ErrCodeCanceled          ErrorCode = "canceled"
	ErrCodeInternal          ErrorCode = "internal"
)

// AppError carries a code, a message safe to show callers and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending input, when there is one.
	Field string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New returns an AppError with a literal message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// InvalidTarget reports a rejected audit target URL.
func InvalidTarget(target, reason string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidTarget,
		Message: fmt.Sprintf("invalid audit target %q: %s", target, reason),
		Field:   "url",
	}
}

func NotFound(message string) *AppError { return New(ErrCodeNotFound, message) }

func NotFoundf(format string, args ...any) *AppError { return newf(ErrCodeNotFound, format, args...) }

// NotReadyf reports a result that is not available yet.
func NotReadyf(format string, args ...any) *AppError { return newf(ErrCodeNotReady, format, args...) }

// IllegalTransitionf reports a job lifecycle move the state table forbids.
func IllegalTransitionf(format string, args ...any) *AppError {
	return newf(ErrCodeIllegalTransition, format, args...)
}

func Conflict(message string) *AppError { return New(ErrCodeConflict, message) }

func Validation(message string) *AppError { return New(ErrCodeValidation, message) }

// ValidationField reports invalid input in a named field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

func Internalf(format string, args ...any) *AppError { return newf(ErrCodeInternal, format, args...) }

// Is reports whether err wraps an AppError with code.
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

func IsInvalidTarget(err error) bool { return Is(err, ErrCodeInvalidTarget) }

func IsNotFound(err error) bool { return Is(err, ErrCodeNotFound) }

func IsNotReady(err error) bool { return Is(err, ErrCodeNotReady) }

func IsIllegalTransition(err error) bool { return Is(err, ErrCodeIllegalTransition) }

func IsConflict(err error) bool { return Is(err, ErrCodeConflict) }

// GetCode returns the code of the outermost AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field of the outermost AppError in err's chain, or "".
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
