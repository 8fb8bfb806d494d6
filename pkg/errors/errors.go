package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
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

// Is matches any AppError carrying the same code, so callers can test
// errors.Is(err, errors.ErrAuthKind) style sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// StatusCode maps the error kind onto an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest, ErrMalformedEvent:
		return http.StatusBadRequest
	case ErrPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrMalformedEvent
	ErrCredential
	ErrAuth
	ErrPersistence
	ErrDelivery
	ErrPayloadTooLarge
)

// Kind sentinels for errors.Is.
var (
	NotFoundKind       = &AppError{Code: ErrNotFound}
	MalformedEventKind = &AppError{Code: ErrMalformedEvent}
	CredentialKind     = &AppError{Code: ErrCredential}
	AuthKind           = &AppError{Code: ErrAuth}
	PersistenceKind    = &AppError{Code: ErrPersistence}
	DeliveryKind       = &AppError{Code: ErrDelivery}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

// MalformedEvent reports a webhook body without the expected shape.
func MalformedEvent(message string, err error) *AppError {
	return &AppError{Code: ErrMalformedEvent, Message: message, Err: err}
}

// Credential reports unusable signing key material.
func Credential(message string, err error) *AppError {
	return &AppError{Code: ErrCredential, Message: message, Err: err}
}

// Auth reports a rejected assertion or a token response without a token.
// Body carries the raw provider response.
func Auth(message string, body string) *AppError {
	var err error
	if body != "" {
		err = stderrors.New(body)
	}
	return &AppError{Code: ErrAuth, Message: message, Err: err}
}

// Persistence reports a store failure.
func Persistence(op string, err error) *AppError {
	return &AppError{Code: ErrPersistence, Message: fmt.Sprintf("failed to %s", op), Err: err}
}

// Delivery reports a single push send failure.
func Delivery(message string, err error) *AppError {
	return &AppError{Code: ErrDelivery, Message: message, Err: err}
}

// PayloadTooLarge reports a request body cut off by the size limit.
func PayloadTooLarge(limit int64, err error) *AppError {
	return &AppError{Code: ErrPayloadTooLarge, Message: fmt.Sprintf("request body exceeds %d bytes", limit), Err: err}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

// As is errors.As specialised to *AppError.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is re-exports the standard library helper so callers need one import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
