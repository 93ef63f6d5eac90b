package services

import (
	"errors"
	"fmt"
)

// Code classifies operation failures so callers can tell business-rule
// rejections (retrying the same call is pointless) from infrastructure
// failures (retry may help).
type Code string

const (
	CodeInvalid   Code = "invalid_argument"
	CodeNotFound  Code = "not_found"
	CodeConflict  Code = "conflict"
	CodeForbidden Code = "forbidden"
	CodeInternal  Code = "internal"
)

type Error struct {
	Code   Code
	Reason string

	// cause is the underlying infrastructure error; kept for errors.Is/As
	// chains and logs, never exposed to clients.
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.cause }

func Invalid(reason string) error   { return &Error{Code: CodeInvalid, Reason: reason} }
func NotFound(reason string) error  { return &Error{Code: CodeNotFound, Reason: reason} }
func Conflict(reason string) error  { return &Error{Code: CodeConflict, Reason: reason} }
func Forbidden(reason string) error { return &Error{Code: CodeForbidden, Reason: reason} }

// Internal wraps an unexpected persistence/transport error behind a generic
// reason; the underlying error is for logs, never for clients.
func Internal(err error) error {
	return &Error{Code: CodeInternal, Reason: "server error", cause: err}
}

// CodeOf extracts the failure code; unclassified errors count as internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ReasonOf returns the human-readable reason for the failure.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "server error"
}
