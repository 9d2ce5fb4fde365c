package csi

import (
	"errors"
	"testing"

	"github.com/nexusvol/control-plane/pkg/apierror"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatusErrNilIsNil(t *testing.T) {
	require.NoError(t, toStatusErr(nil))
}

func TestToStatusErrPassesThroughExistingStatus(t *testing.T) {
	orig := status.Error(codes.FailedPrecondition, "already a status")
	require.Equal(t, orig, toStatusErr(orig))
}

func TestToStatusErrMapsAPIError(t *testing.T) {
	err := apierror.New(apierror.CodeNotFound, "volume %s not found", "vol-1")
	got := toStatusErr(err)
	require.Equal(t, codes.NotFound, status.Code(got))
}

func TestToStatusErrStringWrappedAPIErrorIsInternal(t *testing.T) {
	inner := apierror.New(apierror.CodeInvalidArgument, "bad spec")
	wrapped := errors.New("create volume: " + inner.Error())
	// A plain wrap that does not preserve the apierror type falls back to Internal.
	require.Equal(t, codes.Internal, status.Code(toStatusErr(wrapped)))
}

func TestToStatusErrUnknownErrorIsInternal(t *testing.T) {
	got := toStatusErr(errors.New("boom"))
	require.Equal(t, codes.Internal, status.Code(got))
}

func TestGrpcCodeMapsAllKnownCodes(t *testing.T) {
	cases := map[apierror.Code]codes.Code{
		apierror.CodeInvalidArgument:    codes.InvalidArgument,
		apierror.CodeNotFound:           codes.NotFound,
		apierror.CodeAlreadyExists:      codes.AlreadyExists,
		apierror.CodeResourceExhausted:  codes.ResourceExhausted,
		apierror.CodeFailedPrecondition: codes.FailedPrecondition,
		apierror.CodeUnavailable:        codes.Unavailable,
		apierror.CodeDeadlineExceeded:   codes.DeadlineExceeded,
		apierror.CodeUnimplemented:      codes.Unimplemented,
	}
	for in, want := range cases {
		require.Equal(t, want, grpcCode(in))
	}
}
