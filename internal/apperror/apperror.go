package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInternal         = errors.New("internal error")
)

// Reason explains why a paste is unavailable. The JSON API reports it
// verbatim unless opaque not-found responses are configured.
type Reason string

const (
	ReasonMissing   Reason = "Paste not found"
	ReasonExpired   Reason = "Paste expired"
	ReasonViewLimit Reason = "View limit exceeded"
)

type AppError struct {
	Err     error  // sentinel class
	Message string // safe to show to clients
	Field   string // input field at fault, validation only
	Reason  Reason // not-found only
	Cause   error  // underlying failure, logged but never shown
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel class and the underlying cause.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func NotFound(reason Reason) *AppError {
	if reason == "" {
		reason = ReasonMissing
	}
	return &AppError{
		Err:     ErrNotFound,
		Message: string(reason),
		Reason:  reason,
	}
}

// StoreUnavailable wraps a storage failure for operation op.
func StoreUnavailable(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStoreUnavailable,
		Message: fmt.Sprintf("store unavailable during %s", op),
		Cause:   cause,
	}
}

func Internal(cause error) *AppError {
	return &AppError{
		Err:     ErrInternal,
		Message: "internal server error",
		Cause:   cause,
	}
}

// ReasonOf returns the not-found reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && errors.Is(appErr.Err, ErrNotFound) {
		return appErr.Reason, true
	}
	return "", false
}
