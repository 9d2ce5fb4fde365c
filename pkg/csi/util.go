package csi

import (
	"errors"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/nexusvol/control-plane/pkg/apierror"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func boolValue(b bool) *wrapperspb.BoolValue {
	return &wrapperspb.BoolValue{Value: b}
}

// toStatusErr maps an apierror.Error (or an already-a-status-error) to a
// gRPC status error per spec.md §7's error-kind table. Errors that are
// neither are reported as INTERNAL rather than leaking unknown codes.
func toStatusErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var ae *apierror.Error
	if !errors.As(err, &ae) {
		return status.Error(codes.Internal, err.Error())
	}
	return status.Error(grpcCode(ae.Code), ae.Reason)
}

func grpcCode(c apierror.Code) codes.Code {
	switch c {
	case apierror.CodeInvalidArgument:
		return codes.InvalidArgument
	case apierror.CodeNotFound:
		return codes.NotFound
	case apierror.CodeAlreadyExists:
		return codes.AlreadyExists
	case apierror.CodeResourceExhausted:
		return codes.ResourceExhausted
	case apierror.CodeFailedPrecondition:
		return codes.FailedPrecondition
	case apierror.CodeUnavailable:
		return codes.Unavailable
	case apierror.CodeDeadlineExceeded:
		return codes.DeadlineExceeded
	case apierror.CodeUnimplemented:
		return codes.Unimplemented
	default:
		return codes.Internal
	}
}
