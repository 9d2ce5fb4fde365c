package agentpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	serviceName = "agentpb.AgentService"

	MethodListPools        = "/" + serviceName + "/ListPools"
	MethodListReplicas     = "/" + serviceName + "/ListReplicas"
	MethodListNexus        = "/" + serviceName + "/ListNexus"
	MethodCreatePool       = "/" + serviceName + "/CreatePool"
	MethodDestroyPool      = "/" + serviceName + "/DestroyPool"
	MethodCreateReplica    = "/" + serviceName + "/CreateReplica"
	MethodDestroyReplica   = "/" + serviceName + "/DestroyReplica"
	MethodShareReplica     = "/" + serviceName + "/ShareReplica"
	MethodCreateNexus      = "/" + serviceName + "/CreateNexus"
	MethodDestroyNexus     = "/" + serviceName + "/DestroyNexus"
	MethodPublishNexus     = "/" + serviceName + "/PublishNexus"
	MethodUnpublishNexus   = "/" + serviceName + "/UnpublishNexus"
	MethodAddChildNexus    = "/" + serviceName + "/AddChildNexus"
	MethodRemoveChildNexus = "/" + serviceName + "/RemoveChildNexus"
)

// AgentServiceClient is the typed client for the storage agent's gRPC
// surface, one implementation per node endpoint (pkg/agentclient).
type AgentServiceClient interface {
	ListPools(ctx context.Context, in *ListPoolsRequest, opts ...grpc.CallOption) (*ListPoolsResponse, error)
	ListReplicas(ctx context.Context, in *ListReplicasRequest, opts ...grpc.CallOption) (*ListReplicasResponse, error)
	ListNexus(ctx context.Context, in *ListNexusRequest, opts ...grpc.CallOption) (*ListNexusResponse, error)
	CreatePool(ctx context.Context, in *CreatePoolRequest, opts ...grpc.CallOption) (*CreatePoolResponse, error)
	DestroyPool(ctx context.Context, in *DestroyPoolRequest, opts ...grpc.CallOption) (*DestroyPoolResponse, error)
	CreateReplica(ctx context.Context, in *CreateReplicaRequest, opts ...grpc.CallOption) (*CreateReplicaResponse, error)
	DestroyReplica(ctx context.Context, in *DestroyReplicaRequest, opts ...grpc.CallOption) (*DestroyReplicaResponse, error)
	ShareReplica(ctx context.Context, in *ShareReplicaRequest, opts ...grpc.CallOption) (*ShareReplicaResponse, error)
	CreateNexus(ctx context.Context, in *CreateNexusRequest, opts ...grpc.CallOption) (*CreateNexusResponse, error)
	DestroyNexus(ctx context.Context, in *DestroyNexusRequest, opts ...grpc.CallOption) (*DestroyNexusResponse, error)
	PublishNexus(ctx context.Context, in *PublishNexusRequest, opts ...grpc.CallOption) (*PublishNexusResponse, error)
	UnpublishNexus(ctx context.Context, in *UnpublishNexusRequest, opts ...grpc.CallOption) (*UnpublishNexusResponse, error)
	AddChildNexus(ctx context.Context, in *AddChildNexusRequest, opts ...grpc.CallOption) (*AddChildNexusResponse, error)
	RemoveChildNexus(ctx context.Context, in *RemoveChildNexusRequest, opts ...grpc.CallOption) (*RemoveChildNexusResponse, error)
}

type agentServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAgentServiceClient wraps a dialed *grpc.ClientConn.
func NewAgentServiceClient(cc grpc.ClientConnInterface) AgentServiceClient {
	return &agentServiceClient{cc}
}

func (c *agentServiceClient) ListPools(ctx context.Context, in *ListPoolsRequest, opts ...grpc.CallOption) (*ListPoolsResponse, error) {
	out := new(ListPoolsResponse)
	if err := c.cc.Invoke(ctx, MethodListPools, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) ListReplicas(ctx context.Context, in *ListReplicasRequest, opts ...grpc.CallOption) (*ListReplicasResponse, error) {
	out := new(ListReplicasResponse)
	if err := c.cc.Invoke(ctx, MethodListReplicas, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) ListNexus(ctx context.Context, in *ListNexusRequest, opts ...grpc.CallOption) (*ListNexusResponse, error) {
	out := new(ListNexusResponse)
	if err := c.cc.Invoke(ctx, MethodListNexus, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) CreatePool(ctx context.Context, in *CreatePoolRequest, opts ...grpc.CallOption) (*CreatePoolResponse, error) {
	out := new(CreatePoolResponse)
	if err := c.cc.Invoke(ctx, MethodCreatePool, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) DestroyPool(ctx context.Context, in *DestroyPoolRequest, opts ...grpc.CallOption) (*DestroyPoolResponse, error) {
	out := new(DestroyPoolResponse)
	if err := c.cc.Invoke(ctx, MethodDestroyPool, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) CreateReplica(ctx context.Context, in *CreateReplicaRequest, opts ...grpc.CallOption) (*CreateReplicaResponse, error) {
	out := new(CreateReplicaResponse)
	if err := c.cc.Invoke(ctx, MethodCreateReplica, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) DestroyReplica(ctx context.Context, in *DestroyReplicaRequest, opts ...grpc.CallOption) (*DestroyReplicaResponse, error) {
	out := new(DestroyReplicaResponse)
	if err := c.cc.Invoke(ctx, MethodDestroyReplica, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) ShareReplica(ctx context.Context, in *ShareReplicaRequest, opts ...grpc.CallOption) (*ShareReplicaResponse, error) {
	out := new(ShareReplicaResponse)
	if err := c.cc.Invoke(ctx, MethodShareReplica, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) CreateNexus(ctx context.Context, in *CreateNexusRequest, opts ...grpc.CallOption) (*CreateNexusResponse, error) {
	out := new(CreateNexusResponse)
	if err := c.cc.Invoke(ctx, MethodCreateNexus, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) DestroyNexus(ctx context.Context, in *DestroyNexusRequest, opts ...grpc.CallOption) (*DestroyNexusResponse, error) {
	out := new(DestroyNexusResponse)
	if err := c.cc.Invoke(ctx, MethodDestroyNexus, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) PublishNexus(ctx context.Context, in *PublishNexusRequest, opts ...grpc.CallOption) (*PublishNexusResponse, error) {
	out := new(PublishNexusResponse)
	if err := c.cc.Invoke(ctx, MethodPublishNexus, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) UnpublishNexus(ctx context.Context, in *UnpublishNexusRequest, opts ...grpc.CallOption) (*UnpublishNexusResponse, error) {
	out := new(UnpublishNexusResponse)
	if err := c.cc.Invoke(ctx, MethodUnpublishNexus, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) AddChildNexus(ctx context.Context, in *AddChildNexusRequest, opts ...grpc.CallOption) (*AddChildNexusResponse, error) {
	out := new(AddChildNexusResponse)
	if err := c.cc.Invoke(ctx, MethodAddChildNexus, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentServiceClient) RemoveChildNexus(ctx context.Context, in *RemoveChildNexusRequest, opts ...grpc.CallOption) (*RemoveChildNexusResponse, error) {
	out := new(RemoveChildNexusResponse)
	if err := c.cc.Invoke(ctx, MethodRemoveChildNexus, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AgentServiceServer is the interface a fake/real storage agent implements;
// used by pkg/agentclient's tests to stand up an in-process fake.
type AgentServiceServer interface {
	ListPools(context.Context, *ListPoolsRequest) (*ListPoolsResponse, error)
	ListReplicas(context.Context, *ListReplicasRequest) (*ListReplicasResponse, error)
	ListNexus(context.Context, *ListNexusRequest) (*ListNexusResponse, error)
	CreatePool(context.Context, *CreatePoolRequest) (*CreatePoolResponse, error)
	DestroyPool(context.Context, *DestroyPoolRequest) (*DestroyPoolResponse, error)
	CreateReplica(context.Context, *CreateReplicaRequest) (*CreateReplicaResponse, error)
	DestroyReplica(context.Context, *DestroyReplicaRequest) (*DestroyReplicaResponse, error)
	ShareReplica(context.Context, *ShareReplicaRequest) (*ShareReplicaResponse, error)
	CreateNexus(context.Context, *CreateNexusRequest) (*CreateNexusResponse, error)
	DestroyNexus(context.Context, *DestroyNexusRequest) (*DestroyNexusResponse, error)
	PublishNexus(context.Context, *PublishNexusRequest) (*PublishNexusResponse, error)
	UnpublishNexus(context.Context, *UnpublishNexusRequest) (*UnpublishNexusResponse, error)
	AddChildNexus(context.Context, *AddChildNexusRequest) (*AddChildNexusResponse, error)
	RemoveChildNexus(context.Context, *RemoveChildNexusRequest) (*RemoveChildNexusResponse, error)
}

// UnimplementedAgentServiceServer embeds into fakes that only need to
// override a subset of methods.
type UnimplementedAgentServiceServer struct{}

func (UnimplementedAgentServiceServer) ListPools(context.Context, *ListPoolsRequest) (*ListPoolsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListPools not implemented")
}
func (UnimplementedAgentServiceServer) ListReplicas(context.Context, *ListReplicasRequest) (*ListReplicasResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListReplicas not implemented")
}
func (UnimplementedAgentServiceServer) ListNexus(context.Context, *ListNexusRequest) (*ListNexusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListNexus not implemented")
}
func (UnimplementedAgentServiceServer) CreatePool(context.Context, *CreatePoolRequest) (*CreatePoolResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreatePool not implemented")
}
func (UnimplementedAgentServiceServer) DestroyPool(context.Context, *DestroyPoolRequest) (*DestroyPoolResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DestroyPool not implemented")
}
func (UnimplementedAgentServiceServer) CreateReplica(context.Context, *CreateReplicaRequest) (*CreateReplicaResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateReplica not implemented")
}
func (UnimplementedAgentServiceServer) DestroyReplica(context.Context, *DestroyReplicaRequest) (*DestroyReplicaResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DestroyReplica not implemented")
}
func (UnimplementedAgentServiceServer) ShareReplica(context.Context, *ShareReplicaRequest) (*ShareReplicaResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ShareReplica not implemented")
}
func (UnimplementedAgentServiceServer) CreateNexus(context.Context, *CreateNexusRequest) (*CreateNexusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateNexus not implemented")
}
func (UnimplementedAgentServiceServer) DestroyNexus(context.Context, *DestroyNexusRequest) (*DestroyNexusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DestroyNexus not implemented")
}
func (UnimplementedAgentServiceServer) PublishNexus(context.Context, *PublishNexusRequest) (*PublishNexusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PublishNexus not implemented")
}
func (UnimplementedAgentServiceServer) UnpublishNexus(context.Context, *UnpublishNexusRequest) (*UnpublishNexusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UnpublishNexus not implemented")
}
func (UnimplementedAgentServiceServer) AddChildNexus(context.Context, *AddChildNexusRequest) (*AddChildNexusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AddChildNexus not implemented")
}
func (UnimplementedAgentServiceServer) RemoveChildNexus(context.Context, *RemoveChildNexusRequest) (*RemoveChildNexusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveChildNexus not implemented")
}

// RegisterAgentServiceServer registers srv on s, for in-process fakes used
// by tests.
func RegisterAgentServiceServer(s grpc.ServiceRegistrar, srv AgentServiceServer) {
	s.RegisterService(&AgentService_ServiceDesc, srv)
}

func handlerFor[Req any, Resp any](call func(AgentServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AgentServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AgentServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AgentService_ServiceDesc is the grpc.ServiceDesc for AgentService, in the
// exact shape protoc-gen-go-grpc emits.
var AgentService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AgentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListPools", Handler: agentServiceListPoolsHandler},
		{MethodName: "ListReplicas", Handler: agentServiceListReplicasHandler},
		{MethodName: "ListNexus", Handler: agentServiceListNexusHandler},
		{MethodName: "CreatePool", Handler: agentServiceCreatePoolHandler},
		{MethodName: "DestroyPool", Handler: agentServiceDestroyPoolHandler},
		{MethodName: "CreateReplica", Handler: agentServiceCreateReplicaHandler},
		{MethodName: "DestroyReplica", Handler: agentServiceDestroyReplicaHandler},
		{MethodName: "ShareReplica", Handler: agentServiceShareReplicaHandler},
		{MethodName: "CreateNexus", Handler: agentServiceCreateNexusHandler},
		{MethodName: "DestroyNexus", Handler: agentServiceDestroyNexusHandler},
		{MethodName: "PublishNexus", Handler: agentServicePublishNexusHandler},
		{MethodName: "UnpublishNexus", Handler: agentServiceUnpublishNexusHandler},
		{MethodName: "AddChildNexus", Handler: agentServiceAddChildNexusHandler},
		{MethodName: "RemoveChildNexus", Handler: agentServiceRemoveChildNexusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agentpb/agent.proto",
}

func agentServiceListPoolsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.ListPools)(srv, ctx, dec, interceptor)
}
func agentServiceListReplicasHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.ListReplicas)(srv, ctx, dec, interceptor)
}
func agentServiceListNexusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.ListNexus)(srv, ctx, dec, interceptor)
}
func agentServiceCreatePoolHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.CreatePool)(srv, ctx, dec, interceptor)
}
func agentServiceDestroyPoolHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.DestroyPool)(srv, ctx, dec, interceptor)
}
func agentServiceCreateReplicaHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.CreateReplica)(srv, ctx, dec, interceptor)
}
func agentServiceDestroyReplicaHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.DestroyReplica)(srv, ctx, dec, interceptor)
}
func agentServiceShareReplicaHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.ShareReplica)(srv, ctx, dec, interceptor)
}
func agentServiceCreateNexusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.CreateNexus)(srv, ctx, dec, interceptor)
}
func agentServiceDestroyNexusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.DestroyNexus)(srv, ctx, dec, interceptor)
}
func agentServicePublishNexusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.PublishNexus)(srv, ctx, dec, interceptor)
}
func agentServiceUnpublishNexusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.UnpublishNexus)(srv, ctx, dec, interceptor)
}
func agentServiceAddChildNexusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.AddChildNexus)(srv, ctx, dec, interceptor)
}
func agentServiceRemoveChildNexusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return handlerFor(AgentServiceServer.RemoveChildNexus)(srv, ctx, dec, interceptor)
}
