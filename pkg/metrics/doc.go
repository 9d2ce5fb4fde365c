/*
Package metrics exposes Prometheus instrumentation for the control plane.

Metrics are grouped by the component that produces them:

  - Registry: NodesTotal, PoolsTotal, ReplicasTotal, NexusesTotal, VolumesTotal
  - HA: RaftLeader, RaftPeers
  - Agent RPC client: AgentRPCDuration, AgentRPCErrorsTotal
  - Node sync loop: NodeSyncDuration, NodeSyncFailuresTotal
  - Volume FSA: FSATickDuration, FSATicksTotal (labeled by the rule that fired)
  - Watcher: WatcherRestartsTotal, WatcherEventsTotal
  - CSI Controller: CSIRequestsTotal, CSIRequestDuration
  - Persistent store: ChildStoreBreakerOpen

All metrics register themselves at package init via prometheus.MustRegister;
Handler() returns the HTTP handler to mount at /metrics.

Usage:

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDuration(metrics.FSATickDuration)
*/
package metrics
