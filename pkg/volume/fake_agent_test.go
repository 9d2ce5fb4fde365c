package volume

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/nexusvol/control-plane/api/agentpb"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// fakeAgent is a stateful in-memory storage-agent, enough of the protocol to
// drive a real Volume FSA through scale-up, share correction, nexus
// placement and publish the way a real agent would (mirrors
// pkg/agentclient/client_test.go's fakeAgent, extended with mutable state
// instead of canned responses).
type fakeAgent struct {
	agentpb.UnimplementedAgentServiceServer

	mu       sync.Mutex
	pools    map[string]*agentpb.PoolMsg
	replicas map[string]*agentpb.ReplicaMsg
	nexus    map[string]*agentpb.NexusMsg
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		pools:    make(map[string]*agentpb.PoolMsg),
		replicas: make(map[string]*agentpb.ReplicaMsg),
		nexus:    make(map[string]*agentpb.NexusMsg),
	}
}

// withPool seeds a pool before the agent is served, so the node's first sync
// observes it without a CreatePool round-trip.
func (f *fakeAgent) withPool(name string, capacity int64) *fakeAgent {
	f.pools[name] = &agentpb.PoolMsg{Name: name, State: "online", Capacity: capacity, Used: 0}
	return f
}

func (f *fakeAgent) ListPools(ctx context.Context, _ *agentpb.ListPoolsRequest) (*agentpb.ListPoolsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agentpb.PoolMsg, 0, len(f.pools))
	for _, p := range f.pools {
		out = append(out, *p)
	}
	return &agentpb.ListPoolsResponse{Pools: out}, nil
}

func (f *fakeAgent) ListReplicas(ctx context.Context, _ *agentpb.ListReplicasRequest) (*agentpb.ListReplicasResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agentpb.ReplicaMsg, 0, len(f.replicas))
	for _, r := range f.replicas {
		out = append(out, *r)
	}
	return &agentpb.ListReplicasResponse{Replicas: out}, nil
}

func (f *fakeAgent) ListNexus(ctx context.Context, _ *agentpb.ListNexusRequest) (*agentpb.ListNexusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agentpb.NexusMsg, 0, len(f.nexus))
	for _, n := range f.nexus {
		out = append(out, *n)
	}
	return &agentpb.ListNexusResponse{Nexus: out}, nil
}

func (f *fakeAgent) CreatePool(ctx context.Context, req *agentpb.CreatePoolRequest) (*agentpb.CreatePoolResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &agentpb.PoolMsg{Name: req.Name, Disks: req.Disks, State: "online", Capacity: 1 << 30}
	f.pools[req.Name] = p
	return &agentpb.CreatePoolResponse{Pool: *p}, nil
}

func (f *fakeAgent) DestroyPool(ctx context.Context, req *agentpb.DestroyPoolRequest) (*agentpb.DestroyPoolResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pools, req.Name)
	return &agentpb.DestroyPoolResponse{}, nil
}

func (f *fakeAgent) CreateReplica(ctx context.Context, req *agentpb.CreateReplicaRequest) (*agentpb.CreateReplicaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &agentpb.ReplicaMsg{
		UUID: req.UUID, Pool: req.Pool, Size: req.Size,
		Share: "none", URI: fmt.Sprintf("bdev:///%s", req.UUID), State: "online",
	}
	f.replicas[req.UUID] = r
	if p, ok := f.pools[req.Pool]; ok {
		p.Used += req.Size
	}
	return &agentpb.CreateReplicaResponse{Replica: *r}, nil
}

func (f *fakeAgent) DestroyReplica(ctx context.Context, req *agentpb.DestroyReplicaRequest) (*agentpb.DestroyReplicaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.replicas, req.UUID)
	return &agentpb.DestroyReplicaResponse{}, nil
}

func (f *fakeAgent) ShareReplica(ctx context.Context, req *agentpb.ShareReplicaRequest) (*agentpb.ShareReplicaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.replicas[req.UUID]
	if !ok {
		return nil, fmt.Errorf("replica %s not found", req.UUID)
	}
	r.Share = req.Protocol
	if req.Protocol == "nvmf" {
		r.URI = fmt.Sprintf("nvmf://fake-target/%s", req.UUID)
	} else {
		r.URI = fmt.Sprintf("bdev:///%s", req.UUID)
	}
	return &agentpb.ShareReplicaResponse{Replica: *r}, nil
}

func (f *fakeAgent) CreateNexus(ctx context.Context, req *agentpb.CreateNexusRequest) (*agentpb.CreateNexusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	children := make([]agentpb.NexusChildMsg, 0, len(req.ChildrenURIs))
	for _, uri := range req.ChildrenURIs {
		children = append(children, agentpb.NexusChildMsg{URI: uri, State: "online"})
	}
	n := &agentpb.NexusMsg{UUID: req.UUID, Size: req.Size, State: "online", Children: children}
	f.nexus[req.UUID] = n
	return &agentpb.CreateNexusResponse{Nexus: *n}, nil
}

func (f *fakeAgent) DestroyNexus(ctx context.Context, req *agentpb.DestroyNexusRequest) (*agentpb.DestroyNexusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nexus, req.UUID)
	return &agentpb.DestroyNexusResponse{}, nil
}

func (f *fakeAgent) PublishNexus(ctx context.Context, req *agentpb.PublishNexusRequest) (*agentpb.PublishNexusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nexus[req.UUID]
	if !ok {
		return nil, fmt.Errorf("nexus %s not found", req.UUID)
	}
	n.DeviceURI = fmt.Sprintf("%s://fake-host/%s", req.Protocol, req.UUID)
	return &agentpb.PublishNexusResponse{DeviceURI: n.DeviceURI}, nil
}

func (f *fakeAgent) UnpublishNexus(ctx context.Context, req *agentpb.UnpublishNexusRequest) (*agentpb.UnpublishNexusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nexus[req.UUID]; ok {
		n.DeviceURI = ""
	}
	return &agentpb.UnpublishNexusResponse{}, nil
}

func (f *fakeAgent) AddChildNexus(ctx context.Context, req *agentpb.AddChildNexusRequest) (*agentpb.AddChildNexusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nexus[req.NexusUUID]
	if !ok {
		return nil, fmt.Errorf("nexus %s not found", req.NexusUUID)
	}
	n.Children = append(n.Children, agentpb.NexusChildMsg{URI: req.ChildURI, State: "online"})
	return &agentpb.AddChildNexusResponse{Nexus: *n}, nil
}

func (f *fakeAgent) RemoveChildNexus(ctx context.Context, req *agentpb.RemoveChildNexusRequest) (*agentpb.RemoveChildNexusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nexus[req.NexusUUID]
	if !ok {
		return &agentpb.RemoveChildNexusResponse{}, nil
	}
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c.URI != req.ChildURI {
			kept = append(kept, c)
		}
	}
	n.Children = kept
	return &agentpb.RemoveChildNexusResponse{}, nil
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
