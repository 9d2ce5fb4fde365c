/*
Package types defines the core data structures shared by every component of
the control plane.

# Core Types

Cluster topology:
  - Node: a storage-agent endpoint, owning Pools and Nexuses
  - Pool: a local storage container aggregating disks, owned by one Node
  - Replica: a durable child of a Nexus, living in exactly one Pool
  - Nexus: the I/O front-end of a Volume, fanning writes to Replicas
  - Volume: the declared spec and derived state reconciled by the FSA

# Ownership

Registry owns Nodes; Nodes own Pools and Nexuses; Pools own Replicas. Volume
holds weak references by key (node name, uuid) to its Replicas and Nexus,
resolved against the Registry on every FSA tick, and never holds direct
object pointers across a suspension point — see pkg/volume.

# Identifiers

Every entity uses a UUIDv4 except Nodes and Pools, which use operator-
assigned names unique within the cluster.
*/
package types
