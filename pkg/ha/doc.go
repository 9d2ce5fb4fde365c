/*
Package ha elects a single leader among control-plane replicas using
hashicorp/raft, repurposed from the teacher's pkg/manager (which raft-
replicates its entire cluster state machine). Here raft carries no domain
state: the Registry and volume Manager are reconstructed from live agents
(spec.md §4.7) and never raft-replicated, so the FSM applies nothing beyond
a leadership heartbeat no-op. IsLeader() is the readiness gate
cmd/nexus-controller wires into pkg/csi.Server, so only the leader's CSI
surface serves requests; the watchers and operators run on every replica.
*/
package ha
