// Package domainerrors provides coded errors for the domain layer.
//
// Stores surface sentinel errors (pkg/sentinel); services wrap them here with
// a Code that the transport layer maps onto protocol error bodies. Codes
// classify the failure for the caller, the message is for humans.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeInvalidInput marks input that violates grammar or policy. Always
	// recoverable by resubmitting different input.
	CodeInvalidInput Code = "invalid_input"
	// CodeConflict marks a uniqueness collision, whether detected by an
	// advisory check or at commit time.
	CodeConflict Code = "conflict"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeForbidden marks a rejected credential or disallowed operation.
	CodeForbidden Code = "forbidden"
	// CodeUnauthorized marks a missing or invalid bearer token.
	CodeUnauthorized Code = "unauthorized"
	// CodeNotSupported marks an operation the server does not implement.
	// Used instead of panicking on unimplemented paths.
	CodeNotSupported Code = "not_supported"
	// CodeInternal marks infrastructure failure. Opaque to clients.
	CodeInternal Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// GetCode extracts the code from err, walking the wrap chain.
// Returns CodeInternal for nil-code and non-domain errors.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
