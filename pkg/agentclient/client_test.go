package agentclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nexusvol/control-plane/api/agentpb"
	"github.com/nexusvol/control-plane/pkg/grpcjson"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeAgent struct {
	agentpb.UnimplementedAgentServiceServer
	pools []agentpb.PoolMsg
	fail  codes.Code
}

func (f *fakeAgent) ListPools(ctx context.Context, _ *agentpb.ListPoolsRequest) (*agentpb.ListPoolsResponse, error) {
	if f.fail != codes.OK {
		return nil, status.Error(f.fail, "injected failure")
	}
	return &agentpb.ListPoolsResponse{Pools: f.pools}, nil
}

func startFakeAgent(t *testing.T, agent *fakeAgent) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	agentpb.RegisterAgentServiceServer(srv, agent)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return lis.Addr().String()
}

func TestClientListPools(t *testing.T) {
	_ = grpcjson.Name // ensure codec package is linked
	addr := startFakeAgent(t, &fakeAgent{pools: []agentpb.PoolMsg{{Name: "pool-a", Capacity: 100}}})

	c, err := Dial(addr, WithTimeout(2*time.Second))
	require.NoError(t, err)
	defer c.Close()

	pools, err := c.ListPools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "pool-a", pools[0].Name)
}

func TestClientClassifiesUnavailableAsRetryable(t *testing.T) {
	addr := startFakeAgent(t, &fakeAgent{fail: codes.Unavailable})

	c, err := Dial(addr, WithTimeout(2*time.Second))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ListPools(context.Background())
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, codes.Unavailable, ce.Code)
}

func TestClientClassifiesInvalidArgumentAsNotRetryable(t *testing.T) {
	addr := startFakeAgent(t, &fakeAgent{fail: codes.InvalidArgument})

	c, err := Dial(addr, WithTimeout(2*time.Second))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ListPools(context.Background())
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}
