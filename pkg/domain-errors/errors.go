// Package domainerrors defines the error taxonomy surfaced to API callers.
//
// Services return *Error values carrying a Code; the transport layer maps the
// code to an HTTP status and the public internalCode. Infrastructure layers
// return sentinel errors (pkg/platform/sentinel) which services translate.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable, client-visible identifier of an error kind.
type Code string

const (
	CodeValidation       Code = "validationError"
	CodeInvalidJSON      Code = "invalidJSON"
	CodeInvalidSignature Code = "invalidSignatures"
	CodeOlderEntry       Code = "olderEntryError"
	CodeSubjectExists    Code = "subjectExistsError"
	CodeSubjectNotFound  Code = "subjectNotFoundError"
	CodePropertyNotFound Code = "propertyNotFoundError"
	CodeStore            Code = "dbError"
	CodeTimeout          Code = "requestTimeout"
	CodeUnmapped         Code = "unmappedError"
)

// Error is a domain error with a code, a safe message and optional details.
type Error struct {
	Code    Code
	Message string
	// Details is rendered instead of the message envelope when present
	// (validation violations).
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause is kept
// for logging and errors.Is checks but never rendered to clients.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// As extracts the domain error from err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the code of err, or CodeUnmapped for foreign errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeUnmapped
}

// ToHTTPStatus maps a code to its HTTP status.
//
// CodeSubjectExists deliberately maps to 500: existing clients depend on the
// registry's historical behaviour for duplicate subjects.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidJSON, CodeInvalidSignature, CodeOlderEntry:
		return http.StatusBadRequest
	case CodeSubjectNotFound, CodePropertyNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusRequestTimeout
	case CodeSubjectExists, CodeStore, CodeUnmapped:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
