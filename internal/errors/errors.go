// Package errors defines the stable error codes reported by contractforge.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable error code string.
type Code string

// Error codes. These strings are part of the HTTP contract.
const (
	// EValidation means required input was missing or malformed.
	EValidation Code = "E_VALIDATION"
	// EConfig means a required credential or setting is absent.
	EConfig Code = "E_CONFIG"
	// EExternal means the text-generation service failed.
	EExternal Code = "E_EXTERNAL"
	// ETimeout means an external call exceeded its deadline. Retryable unless
	// a transaction had already been submitted.
	ETimeout Code = "E_TIMEOUT"
	// EChain means the chain node, the signer or the transaction failed.
	EChain Code = "E_CHAIN"
	// ENotFound means the referenced contract does not exist.
	ENotFound Code = "E_NOT_FOUND"
	// EPersistence means the contract store could not be read or written.
	EPersistence Code = "E_PERSISTENCE"
	// EConflict means a record with the same address already exists.
	EConflict Code = "E_CONFLICT"
	EInternal Code = "E_INTERNAL"
)

// ServiceError is the standard error type returned by the service layer.
type ServiceError struct {
	Code      Code
	Msg       string
	Cause     error
	Retryable bool
}

// Error returns the stable error format: "CODE: message".
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Detail returns the human-readable detail shown to callers.
func (e *ServiceError) Detail() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return ""
}

// New creates a new ServiceError with the given code and message.
func New(code Code, msg string) error {
	return &ServiceError{Code: code, Msg: msg}
}

// Wrap creates a new ServiceError wrapping an underlying error.
// A cause that is a context deadline is promoted to ETimeout.
func Wrap(code Code, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ServiceError{Code: ETimeout, Msg: msg, Cause: err, Retryable: true}
	}
	return &ServiceError{Code: code, Msg: msg, Cause: err}
}

// Final wraps err like Wrap but never marks the result retryable. It is
// used once a chain transaction has been submitted, where repeating the
// request would submit another one.
func Final(code Code, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		code = ETimeout
	}
	return &ServiceError{Code: code, Msg: msg, Cause: err}
}

// Retryable wraps err and marks the result as safe to retry.
func Retryable(code Code, msg string, err error) error {
	return &ServiceError{Code: code, Msg: msg, Cause: err, Retryable: true}
}

// GetCode extracts the error code from an error, or empty string if not a ServiceError.
func GetCode(err error) Code {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// AsServiceError returns (*ServiceError, true) if err is or wraps a ServiceError.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryable reports whether the caller may safely repeat the failed action.
func IsRetryable(err error) bool {
	se, ok := AsServiceError(err)
	return ok && se.Retryable
}

// HTTPStatus maps an error code to the status used by the HTTP API.
func HTTPStatus(code Code) int {
	switch code {
	case EValidation:
		return http.StatusBadRequest
	case ENotFound:
		return http.StatusNotFound
	case EConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
