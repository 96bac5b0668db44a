package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrValidation
	ErrDoctorUnavailable
	ErrSlotConflict
	ErrInvalidTransition
	ErrInvalidAmount
	ErrIdentifierExhausted
	ErrInternal
)

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Err:     err,
	}
}

func DoctorUnavailable(message string) *AppError {
	return &AppError{
		Code:    ErrDoctorUnavailable,
		Message: message,
	}
}

func SlotConflict(message string) *AppError {
	return &AppError{
		Code:    ErrSlotConflict,
		Message: message,
	}
}

func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("cannot transition appointment from %s to %s", from, to),
	}
}

func InvalidAmount(message string) *AppError {
	return &AppError{
		Code:    ErrInvalidAmount,
		Message: message,
	}
}

func IdentifierExhausted(prefix string, attempts int) *AppError {
	return &AppError{
		Code:    ErrIdentifierExhausted,
		Message: fmt.Sprintf("could not generate a unique %s identifier after %d attempts", prefix, attempts),
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Code extracts the ErrorCode from err, unwrapping as needed.
// Non-application errors map to ErrInternal.
func Code(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is reports whether err carries the given application error code.
func Is(err error, code ErrorCode) bool {
	return Code(err) == code
}
