package operator

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/nexusvol/control-plane/api/agentpb"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// fakeAgent is a minimal stateful in-memory agentpb server, scoped to what
// the pool operator exercises: pool CRUD plus the listing RPCs the Node
// sync loop polls.
type fakeAgent struct {
	agentpb.UnimplementedAgentServiceServer

	mu    sync.Mutex
	pools map[string]*agentpb.PoolMsg
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{pools: make(map[string]*agentpb.PoolMsg)}
}

func (f *fakeAgent) ListPools(ctx context.Context, _ *agentpb.ListPoolsRequest) (*agentpb.ListPoolsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &agentpb.ListPoolsResponse{}
	for _, p := range f.pools {
		resp.Pools = append(resp.Pools, *p)
	}
	return resp, nil
}

func (f *fakeAgent) ListReplicas(ctx context.Context, _ *agentpb.ListReplicasRequest) (*agentpb.ListReplicasResponse, error) {
	return &agentpb.ListReplicasResponse{}, nil
}

func (f *fakeAgent) ListNexus(ctx context.Context, _ *agentpb.ListNexusRequest) (*agentpb.ListNexusResponse, error) {
	return &agentpb.ListNexusResponse{}, nil
}

func (f *fakeAgent) CreatePool(ctx context.Context, req *agentpb.CreatePoolRequest) (*agentpb.CreatePoolResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := agentpb.PoolMsg{Name: req.Name, Disks: req.Disks, Capacity: 1 << 30, Used: 0, State: "online"}
	f.pools[req.Name] = &p
	return &agentpb.CreatePoolResponse{Pool: p}, nil
}

func (f *fakeAgent) DestroyPool(ctx context.Context, req *agentpb.DestroyPoolRequest) (*agentpb.DestroyPoolResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pools, req.Name)
	return &agentpb.DestroyPoolResponse{}, nil
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
