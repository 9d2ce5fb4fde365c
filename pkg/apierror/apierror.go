// Package apierror carries the control plane's error taxonomy as plain Go
// errors internally; only the gRPC façade (pkg/csi) converts them to
// status codes, mirroring the teacher's pkg/api/server.go split between
// plain-error-internally and convert-at-the-boundary.
package apierror

import (
	"errors"
	"fmt"
)

// Code is one of the error kinds of the spec's error-handling design,
// independent of any particular transport.
type Code string

const (
	CodeInvalidArgument   Code = "invalid_argument"
	CodeNotFound          Code = "not_found"
	CodeAlreadyExists     Code = "already_exists"
	CodeResourceExhausted Code = "resource_exhausted"
	CodeFailedPrecondition Code = "failed_precondition"
	CodeUnavailable       Code = "unavailable"
	CodeDeadlineExceeded  Code = "deadline_exceeded"
	CodeInternal          Code = "internal"
	CodeUnimplemented     Code = "unimplemented"
)

// Error is a taxonomy-tagged error with a single-line reason suitable for
// surfacing verbatim in a CR's status.reason or a CSI status message.
type Error struct {
	Code   Code
	Reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an Error with no wrapped cause.
func New(code Code, reason string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(reason, args...)}
}

// Wrap builds an Error carrying cause, preserving it for errors.Is/As while
// keeping Reason as the short human-facing line.
func Wrap(code Code, cause error, reason string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(reason, args...), cause: cause}
}

// Is reports whether err is an *Error of the given code, looking through
// wrapping.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
