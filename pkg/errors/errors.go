package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Booking and ledger taxonomy. These are expected business
	// conditions and always surface as structured responses.
	ErrSubjectNotConfigured = New("SUBJECT_NOT_CONFIGURED", http.StatusUnprocessableEntity, "subject has no pricing rule")
	ErrInvalidTimeFormat    = New("INVALID_TIME_FORMAT", http.StatusBadRequest, "start time must be HH:MM")
	ErrTooSoon              = New("TOO_SOON", http.StatusUnprocessableEntity, "requested date is inside the booking lead time")
	ErrOutsideAvailability  = New("OUTSIDE_AVAILABILITY", http.StatusUnprocessableEntity, "no availability block covers the requested time")
	ErrSlotTaken            = New("SLOT_TAKEN", http.StatusConflict, "the requested slot has already been booked")
	ErrInvalidAmount        = New("INVALID_AMOUNT", http.StatusBadRequest, "amount must be positive")
	ErrInsufficientPoints   = New("INSUFFICIENT_POINTS", http.StatusPreconditionFailed, "not enough points available")
	ErrInvalidTransition    = New("INVALID_TRANSITION", http.StatusConflict, "session status does not allow this action")
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
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
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
