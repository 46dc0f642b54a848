package service

import (
	"errors"
	"fmt"
)

// Sentinels the handler layer maps onto HTTP statuses. Anything not listed
// here is an internal error and surfaces as a 500 without detail.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrUnauthenticated      = errors.New("authentication required")
	ErrDuplicateUser        = errors.New("username or email already registered")
	ErrNotFound             = errors.New("photo not found")
	ErrConfirmationRequired = errors.New("deletion must be confirmed")
	ErrStorageUnavailable   = errors.New("photo storage unavailable")
	ErrTooManyAttempts      = errors.New("too many login attempts, try again later")
)

// InvalidInputError carries the user-facing reason for a validation failure.
// It matches errors.Is(err, ErrInvalidInput).
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return e.Reason }

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

func invalidInput(format string, args ...any) error {
	return &InvalidInputError{Reason: fmt.Sprintf(format, args...)}
}
