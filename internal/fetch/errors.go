package fetch

import (
	"errors"
	"fmt"
)

// Code is a machine-readable fetch failure kind.
type Code string

// Failure kinds surfaced to the tool dispatcher.
const (
	CodeInvalidURL  Code = "FETCH_INVALID_URL"
	CodeBlocked     Code = "FETCH_BLOCKED"
	CodeTimeout     Code = "FETCH_TIMEOUT"
	CodeContentType Code = "FETCH_CONTENT_TYPE"
	CodeFailed      Code = "FETCH_FAILED"
)

// Error is the only error type the pipeline returns. Message and Details are
// safe to show to the caller; Err is kept for logs and never serialized.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the fetch code carried by err, or empty string if err is not
// a *Error.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func newError(code Code, msg string, details map[string]any, cause error) *Error {
	return &Error{Code: code, Message: msg, Details: details, Err: cause}
}

func invalidURL(msg string, cause error) *Error {
	return newError(CodeInvalidURL, msg, nil, cause)
}

func blocked(msg, host string) *Error {
	return newError(CodeBlocked, msg, map[string]any{"hostname": host}, nil)
}
