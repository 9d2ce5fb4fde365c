// Package agentpb holds the wire messages and gRPC service stubs for the
// storage-agent protocol (C1/C2). The shape mirrors what protoc-gen-go-grpc
// would emit for a real .proto (a ServiceDesc plus a thin *Client wrapping
// cc.Invoke) so that real protobuf codegen can be dropped in later without
// reshaping pkg/agentclient; the messages themselves are plain JSON-tagged
// structs carried over pkg/grpcjson rather than generated from a .proto,
// since the agent's proto file is outside this repository's scope.
package agentpb

// PoolMsg is the wire shape of a Pool as reported by the storage agent.
type PoolMsg struct {
	Name     string   `json:"name"`
	Disks    []string `json:"disks"`
	State    string   `json:"state"`
	Capacity int64    `json:"capacity"`
	Used     int64    `json:"used"`
}

// ReplicaMsg is the wire shape of a Replica as reported by the storage agent.
type ReplicaMsg struct {
	UUID  string `json:"uuid"`
	Pool  string `json:"pool"`
	Size  int64  `json:"size"`
	Share string `json:"share"`
	URI   string `json:"uri"`
	State string `json:"state"`
}

// NexusChildMsg is the wire shape of one child within a NexusMsg.
type NexusChildMsg struct {
	URI             string `json:"uri"`
	State           string `json:"state"`
	RebuildProgress int    `json:"rebuildProgress"`
}

// NexusMsg is the wire shape of a Nexus as reported by the storage agent.
type NexusMsg struct {
	UUID      string          `json:"uuid"`
	Size      int64           `json:"size"`
	DeviceURI string          `json:"deviceUri"`
	State     string          `json:"state"`
	Children  []NexusChildMsg `json:"children"`
}

type ListPoolsRequest struct{}
type ListPoolsResponse struct {
	Pools []PoolMsg `json:"pools"`
}

type ListReplicasRequest struct{}
type ListReplicasResponse struct {
	Replicas []ReplicaMsg `json:"replicas"`
}

type ListNexusRequest struct{}
type ListNexusResponse struct {
	Nexus []NexusMsg `json:"nexus"`
}

type CreatePoolRequest struct {
	Name  string   `json:"name"`
	Disks []string `json:"disks"`
}
type CreatePoolResponse struct {
	Pool PoolMsg `json:"pool"`
}

type DestroyPoolRequest struct {
	Name string `json:"name"`
}
type DestroyPoolResponse struct{}

type CreateReplicaRequest struct {
	Pool string `json:"pool"`
	UUID string `json:"uuid"`
	Size int64  `json:"size"`
}
type CreateReplicaResponse struct {
	Replica ReplicaMsg `json:"replica"`
}

type DestroyReplicaRequest struct {
	UUID string `json:"uuid"`
}
type DestroyReplicaResponse struct{}

type ShareReplicaRequest struct {
	UUID     string `json:"uuid"`
	Protocol string `json:"protocol"`
}
type ShareReplicaResponse struct {
	Replica ReplicaMsg `json:"replica"`
}

type CreateNexusRequest struct {
	UUID         string   `json:"uuid"`
	Size         int64    `json:"size"`
	ChildrenURIs []string `json:"childrenUris"`
}
type CreateNexusResponse struct {
	Nexus NexusMsg `json:"nexus"`
}

type DestroyNexusRequest struct {
	UUID string `json:"uuid"`
}
type DestroyNexusResponse struct{}

type PublishNexusRequest struct {
	UUID     string `json:"uuid"`
	Protocol string `json:"protocol"`
}
type PublishNexusResponse struct {
	DeviceURI string `json:"deviceUri"`
}

type UnpublishNexusRequest struct {
	UUID string `json:"uuid"`
}
type UnpublishNexusResponse struct{}

type AddChildNexusRequest struct {
	NexusUUID string `json:"nexusUuid"`
	ChildURI  string `json:"childUri"`
}
type AddChildNexusResponse struct {
	Nexus NexusMsg `json:"nexus"`
}

type RemoveChildNexusRequest struct {
	NexusUUID string `json:"nexusUuid"`
	ChildURI  string `json:"childUri"`
}
type RemoveChildNexusResponse struct{}
