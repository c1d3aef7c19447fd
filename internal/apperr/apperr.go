// Package apperr defines the stable error taxonomy used across the
// analysis pipeline. Every error a handler can surface to a caller is
// wrapped in an Error so the HTTP layer can map it to a status code and
// a machine-readable tag without string-matching.
package apperr

import "fmt"

// Code is a stable, machine-readable error tag.
type Code string

const (
	CodeInvalidInput       Code = "invalid_input"
	CodeParseError         Code = "parse_error"
	CodeNotFound           Code = "not_found"
	CodeInternal           Code = "internal"
	CodeProductionRejected Code = "production_rejected"
)

// Error is the error type returned by every pipeline component that can
// fail in a way a caller needs to distinguish.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error carrying a wrapped cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	if ok {
		return ae, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if ae, ok := err.(*Error); ok {
			return ae, true
		}
	}
	return nil, false
}
