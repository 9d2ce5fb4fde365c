package types

import "time"

// NodeSyncState reflects how recently a Node's storage agent has been
// reachable over gRPC.
type NodeSyncState string

const (
	NodeSyncOffline NodeSyncState = "offline"
	NodeSyncSyncing NodeSyncState = "syncing"
	NodeSyncOnline  NodeSyncState = "online"
)

// Node is a storage-agent endpoint. Name and endpoint are operator-assigned;
// name is unique within the registry, and so is endpoint.
type Node struct {
	Name         string
	Endpoint     string
	SyncState    NodeSyncState
	BadSyncCount int
	Pools        map[string]struct{}
	Nexuses      map[string]struct{}
	LastSyncedAt time.Time
	CreatedAt    time.Time
}

// PoolState mirrors the agent-reported state of a Pool, or is synthesised as
// Offline when the owning node is out of sync.
type PoolState string

const (
	PoolOnline   PoolState = "online"
	PoolDegraded PoolState = "degraded"
	PoolFaulted  PoolState = "faulted"
	PoolOffline  PoolState = "offline"
	PoolUnknown  PoolState = "unknown"
)

// Pool is a local storage container on a Node aggregating one or more disks.
// Pool↔Node binding is exclusive; pool names are cluster-unique.
type Pool struct {
	Name     string
	Node     string
	Disks    []string
	State    PoolState
	Capacity int64
	Used     int64
	Replicas map[string]struct{}
}

// Free reports bytes available for a new replica.
func (p *Pool) Free() int64 {
	return p.Capacity - p.Used
}

// Admissible reports whether the pool can host a new replica per the
// pool-selection policy.
func (p *Pool) Admissible() bool {
	return p.State == PoolOnline || p.State == PoolDegraded
}

// ShareProtocol is the transport a Replica is exposed over when it must be
// reachable from a nexus on a different node.
type ShareProtocol string

const (
	ShareNone  ShareProtocol = "none"
	ShareNvmf  ShareProtocol = "nvmf"
	ShareIscsi ShareProtocol = "iscsi"
)

// ReplicaState mirrors the agent-reported replica state.
type ReplicaState string

const (
	ReplicaOnline   ReplicaState = "online"
	ReplicaDegraded ReplicaState = "degraded"
	ReplicaFaulted  ReplicaState = "faulted"
	ReplicaOffline  ReplicaState = "offline"
)

// Replica is a durable child of a Nexus, living in exactly one Pool.
type Replica struct {
	UUID  string
	Pool  string
	Node  string
	Size  int64
	Share ShareProtocol
	URI   string
	State ReplicaState
}

// RealUUID extracts the device-level uuid query parameter carried in the
// replica's URI, used by the persistent store to match children
// independently of the logical replica uuid. Returns "" if the URI carries
// no uuid parameter.
func (r *Replica) RealUUID() string {
	return uriParam(r.URI, "uuid")
}

// ChildState mirrors the agent-reported state of a nexus child.
type ChildState string

const (
	ChildOnline   ChildState = "online"
	ChildDegraded ChildState = "degraded"
	ChildFaulted  ChildState = "faulted"
)

// NexusChild is one replica as seen from its owning Nexus.
type NexusChild struct {
	URI             string
	State           ChildState
	RebuildProgress int
}

// NexusState mirrors the agent-reported state of a Nexus.
type NexusState string

const (
	NexusOnline   NexusState = "online"
	NexusDegraded NexusState = "degraded"
	NexusFaulted  NexusState = "faulted"
	NexusOffline  NexusState = "offline"
)

// Nexus is the I/O front-end of a Volume: it fans writes to its Children and
// reads from one. A Nexus has at most one owning Node. Its uuid always
// equals the owning Volume's uuid.
type Nexus struct {
	UUID      string
	Node      string
	Size      int64
	DeviceURI string
	State     NexusState
	Children  []*NexusChild
}

// VolumeState is the externally visible state derived by the FSA.
type VolumeState string

const (
	VolumePending   VolumeState = "pending"
	VolumeHealthy   VolumeState = "healthy"
	VolumeDegraded  VolumeState = "degraded"
	VolumeFaulted   VolumeState = "faulted"
	VolumeOffline   VolumeState = "offline"
	VolumeDestroyed VolumeState = "destroyed"
	VolumeUnknown   VolumeState = "unknown"
)

// VolumeProtocol is the publish-time wire protocol of a Volume's Nexus.
type VolumeProtocol string

const (
	ProtocolNvmf  VolumeProtocol = "nvmf"
	ProtocolIscsi VolumeProtocol = "iscsi"
)

// VolumeSpec is the declarative request the FSA continuously reconciles
// actual registry state toward.
type VolumeSpec struct {
	ReplicaCount   int
	Local          bool
	PreferredNodes []string
	RequiredNodes  []string
	RequiredBytes  int64
	LimitBytes     int64
	Protocol       VolumeProtocol
	IOTimeout      *time.Duration
}

// Volume is the unit pkg/volume's FSA reconciles. Replicas and Nexus are held
// as weak references by key (node name / uuid), resolved against the
// Registry on every FSA tick; Volume never holds direct object pointers
// across a suspension point.
type Volume struct {
	UUID        string
	Spec        VolumeSpec
	State       VolumeState
	Size        int64
	PublishedOn string
	Replicas    map[string]string // nodeName -> replica uuid
	NexusUUID   string
}
