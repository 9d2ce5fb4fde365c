// Package agentclient dials one gRPC connection per storage-agent node
// endpoint and exposes typed request/response calls (C1). Dialing follows
// the teacher's pkg/worker/pkg/client idiom (grpc.NewClient, a default
// per-call timeout overridable by the caller); the wire codec is
// pkg/grpcjson rather than compiled protobuf, per DESIGN.md.
package agentclient

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusvol/control-plane/api/agentpb"
	"github.com/nexusvol/control-plane/pkg/grpcjson"
	"github.com/nexusvol/control-plane/pkg/log"
	"github.com/nexusvol/control-plane/pkg/metrics"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultTimeout is the per-call deadline used when no WithTimeout option
// overrides it.
const DefaultTimeout = 30 * time.Second

// Client is one logical connection to a single storage-agent endpoint.
type Client struct {
	endpoint string
	conn     *grpc.ClientConn
	raw      agentpb.AgentServiceClient
	timeout  time.Duration
}

// Option configures a Client at Dial time.
type Option func(*Client)

// WithTimeout overrides the default per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Dial opens one gRPC connection to endpoint. Concurrent calls on the
// returned Client are allowed; the transport does not preserve call
// ordering and callers must not rely on it.
func Dial(endpoint string, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcjson.Name)),
	)
	if err != nil {
		return nil, fmt.Errorf("agentclient: dial %s: %w", endpoint, err)
	}

	c := &Client{
		endpoint: endpoint,
		conn:     conn,
		raw:      agentpb.NewAgentServiceClient(conn),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Endpoint returns the dialed node endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	timer := metrics.NewTimer()
	err := fn(ctx)
	timer.ObserveDurationVec(metrics.AgentRPCDuration, method)

	if err != nil {
		ce := Classify(err)
		metrics.AgentRPCErrorsTotal.WithLabelValues(method, ce.Code.String()).Inc()
		log.WithComponent("agentclient").Debug().
			Str("node_endpoint", c.endpoint).
			Str("method", method).
			Err(ce).
			Msg("agent rpc failed")
		return ce
	}
	return nil
}

func (c *Client) ListPools(ctx context.Context) ([]agentpb.PoolMsg, error) {
	var resp *agentpb.ListPoolsResponse
	err := c.call(ctx, "ListPools", func(ctx context.Context) error {
		var err error
		resp, err = c.raw.ListPools(ctx, &agentpb.ListPoolsRequest{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp.Pools, nil
}

func (c *Client) ListReplicas(ctx context.Context) ([]agentpb.ReplicaMsg, error) {
	var resp *agentpb.ListReplicasResponse
	err := c.call(ctx, "ListReplicas", func(ctx context.Context) error {
		var err error
		resp, err = c.raw.ListReplicas(ctx, &agentpb.ListReplicasRequest{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp.Replicas, nil
}

func (c *Client) ListNexus(ctx context.Context) ([]agentpb.NexusMsg, error) {
	var resp *agentpb.ListNexusResponse
	err := c.call(ctx, "ListNexus", func(ctx context.Context) error {
		var err error
		resp, err = c.raw.ListNexus(ctx, &agentpb.ListNexusRequest{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp.Nexus, nil
}

func (c *Client) CreatePool(ctx context.Context, name string, disks []string) (*agentpb.PoolMsg, error) {
	var resp *agentpb.CreatePoolResponse
	err := c.call(ctx, "CreatePool", func(ctx context.Context) error {
		var err error
		resp, err = c.raw.CreatePool(ctx, &agentpb.CreatePoolRequest{Name: name, Disks: disks})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &resp.Pool, nil
}

func (c *Client) DestroyPool(ctx context.Context, name string) error {
	return c.call(ctx, "DestroyPool", func(ctx context.Context) error {
		_, err := c.raw.DestroyPool(ctx, &agentpb.DestroyPoolRequest{Name: name})
		return err
	})
}

func (c *Client) CreateReplica(ctx context.Context, pool, uuid string, size int64) (*agentpb.ReplicaMsg, error) {
	var resp *agentpb.CreateReplicaResponse
	err := c.call(ctx, "CreateReplica", func(ctx context.Context) error {
		var err error
		resp, err = c.raw.CreateReplica(ctx, &agentpb.CreateReplicaRequest{Pool: pool, UUID: uuid, Size: size})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &resp.Replica, nil
}

func (c *Client) DestroyReplica(ctx context.Context, uuid string) error {
	return c.call(ctx, "DestroyReplica", func(ctx context.Context) error {
		_, err := c.raw.DestroyReplica(ctx, &agentpb.DestroyReplicaRequest{UUID: uuid})
		return err
	})
}

func (c *Client) ShareReplica(ctx context.Context, uuid, protocol string) (*agentpb.ReplicaMsg, error) {
	var resp *agentpb.ShareReplicaResponse
	err := c.call(ctx, "ShareReplica", func(ctx context.Context) error {
		var err error
		resp, err = c.raw.ShareReplica(ctx, &agentpb.ShareReplicaRequest{UUID: uuid, Protocol: protocol})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &resp.Replica, nil
}

func (c *Client) CreateNexus(ctx context.Context, uuid string, size int64, children []string) (*agentpb.NexusMsg, error) {
	var resp *agentpb.CreateNexusResponse
	err := c.call(ctx, "CreateNexus", func(ctx context.Context) error {
		var err error
		resp, err = c.raw.CreateNexus(ctx, &agentpb.CreateNexusRequest{UUID: uuid, Size: size, ChildrenURIs: children})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &resp.Nexus, nil
}

func (c *Client) DestroyNexus(ctx context.Context, uuid string) error {
	return c.call(ctx, "DestroyNexus", func(ctx context.Context) error {
		_, err := c.raw.DestroyNexus(ctx, &agentpb.DestroyNexusRequest{UUID: uuid})
		return err
	})
}

func (c *Client) PublishNexus(ctx context.Context, uuid, protocol string) (string, error) {
	var resp *agentpb.PublishNexusResponse
	err := c.call(ctx, "PublishNexus", func(ctx context.Context) error {
		var err error
		resp, err = c.raw.PublishNexus(ctx, &agentpb.PublishNexusRequest{UUID: uuid, Protocol: protocol})
		return err
	})
	if err != nil {
		return "", err
	}
	return resp.DeviceURI, nil
}

func (c *Client) UnpublishNexus(ctx context.Context, uuid string) error {
	return c.call(ctx, "UnpublishNexus", func(ctx context.Context) error {
		_, err := c.raw.UnpublishNexus(ctx, &agentpb.UnpublishNexusRequest{UUID: uuid})
		return err
	})
}

func (c *Client) AddChildNexus(ctx context.Context, nexusUUID, childURI string) (*agentpb.NexusMsg, error) {
	var resp *agentpb.AddChildNexusResponse
	err := c.call(ctx, "AddChildNexus", func(ctx context.Context) error {
		var err error
		resp, err = c.raw.AddChildNexus(ctx, &agentpb.AddChildNexusRequest{NexusUUID: nexusUUID, ChildURI: childURI})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &resp.Nexus, nil
}

func (c *Client) RemoveChildNexus(ctx context.Context, nexusUUID, childURI string) error {
	return c.call(ctx, "RemoveChildNexus", func(ctx context.Context) error {
		_, err := c.raw.RemoveChildNexus(ctx, &agentpb.RemoveChildNexusRequest{NexusUUID: nexusUUID, ChildURI: childURI})
		return err
	})
}
