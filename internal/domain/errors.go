package domain

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	ErrCodeNotFound    Code = "NOT_FOUND"
	ErrCodeValidation  Code = "VALIDATION_FAILED"
	ErrCodePersistence Code = "PERSISTENCE_FAILED"
	ErrCodeRollback    Code = "ROLLBACK_FAILED"
	ErrCodeLocked      Code = "LOCKED"
	ErrCodeBusy        Code = "BUSY"
)

// Error is a categorised editor error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error wrapping cause.
func WrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsCode reports whether any *Error in err's chain carries code.
func IsCode(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode returns the outermost error code, or "" for foreign errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ── shorthands ─────────────────────────────────────────────

func ErrNotFound(kind, id string) *Error {
	return NewError(ErrCodeNotFound, "%s %s not found", kind, id)
}

func ErrValidation(format string, args ...any) *Error {
	return NewError(ErrCodeValidation, format, args...)
}

func ErrPersistence(cause error, op string) *Error {
	return WrapError(ErrCodePersistence, cause, "%s", op)
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return IsCode(err, ErrCodeNotFound) }

// IsValidation reports whether err is a ValidationFailure.
func IsValidation(err error) bool { return IsCode(err, ErrCodeValidation) }
