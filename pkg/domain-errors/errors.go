// Package domainerrors defines the client-facing error taxonomy. Services
// translate store-level sentinel errors into coded errors here; the HTTP
// transport maps codes to status lines in exactly one place.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code enumerates every error kind a caller can observe at the boundary.
type Code string

const (
	CodeInvalidInput    Code = "invalid_input"
	CodeUnauthorized    Code = "unauthorized"
	CodeTooManyRequests Code = "too_many_requests"
	CodeCooldownActive  Code = "cooldown_active"
	CodeNotFound        Code = "not_found"
	CodeInvalidState    Code = "invalid_state"
	CodeCodeExhausted   Code = "code_exhausted"
	CodeIssuanceFailed  Code = "issuance_failed"
	CodeTimeout         Code = "timeout"
	CodeInternal        Code = "internal"
)

// Error carries a code, a human-readable message, and optional structured
// fields the transport folds into the response envelope (e.g. next_spin_at).
type Error struct {
	Code    Code
	Message string
	Fields  map[string]any
	cause   error
}

// New builds a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a coded error around an underlying cause. The cause is kept for
// logs and errors.Is/As; only code and fields cross the API boundary.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithField attaches a structured field to the error and returns it.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, 1)
	}
	e.Fields[key] = value
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the Code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// FieldsOf extracts structured fields from an error chain, or nil.
func FieldsOf(err error) map[string]any {
	var de *Error
	if errors.As(err, &de) {
		return de.Fields
	}
	return nil
}

// HTTPStatus maps an error code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeInvalidState:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeCooldownActive:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeCodeExhausted, CodeIssuanceFailed:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
