package agentclient

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error wraps an agent RPC failure with its gRPC status code, letting
// callers distinguish transient failures from permanent ones without
// importing grpc/status themselves.
type Error struct {
	Code codes.Code
	err  error
}

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

// Retryable reports whether higher layers should retry this call on the
// next tick rather than surface it, per the error taxonomy: UNAVAILABLE and
// DEADLINE_EXCEEDED are retryable, everything else is not.
func (e *Error) Retryable() bool {
	return e.Code == codes.Unavailable || e.Code == codes.DeadlineExceeded
}

// Classify converts an arbitrary error returned by a gRPC call into an
// *Error carrying its status code, defaulting to codes.Unknown if the error
// did not originate from the gRPC stack.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return already
	}
	st, ok := status.FromError(err)
	if !ok {
		return &Error{Code: codes.Unknown, err: err}
	}
	return &Error{Code: st.Code(), err: err}
}

// IsRetryable is a convenience wrapper over Classify(err).Retryable() for
// callers that only have the original error in hand.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable()
}
