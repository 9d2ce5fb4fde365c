package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexus_nodes_total",
			Help: "Total number of registered nodes by sync state",
		},
		[]string{"sync_state"},
	)

	PoolsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexus_pools_total",
			Help: "Total number of pools by state",
		},
		[]string{"state"},
	)

	ReplicasTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexus_replicas_total",
			Help: "Total number of replicas by state",
		},
		[]string{"state"},
	)

	NexusesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexus_nexuses_total",
			Help: "Total number of nexuses by state",
		},
		[]string{"state"},
	)

	VolumesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexus_volumes_total",
			Help: "Total number of volumes by state",
		},
		[]string{"state"},
	)

	// Raft / HA metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_raft_is_leader",
			Help: "Whether this control-plane replica is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_raft_peers_total",
			Help: "Total number of Raft peers in the control-plane quorum",
		},
	)

	// Agent RPC metrics
	AgentRPCDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_agent_rpc_duration_seconds",
			Help:    "Agent RPC duration in seconds by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	AgentRPCErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_agent_rpc_errors_total",
			Help: "Total number of agent RPC errors by method and gRPC status code",
		},
		[]string{"method", "code"},
	)

	// Node sync metrics
	NodeSyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nexus_node_sync_duration_seconds",
			Help:    "Time taken for one node sync pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	NodeSyncFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_node_sync_failures_total",
			Help: "Total number of failed node sync passes",
		},
	)

	// Volume FSA metrics
	FSATickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nexus_fsa_tick_duration_seconds",
			Help:    "Time taken for one volume FSA tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FSATicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_fsa_ticks_total",
			Help: "Total number of volume FSA ticks by rule that fired",
		},
		[]string{"rule"},
	)

	// Watcher metrics
	WatcherRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_watcher_restarts_total",
			Help: "Total number of watcher cache restarts by resource",
		},
		[]string{"resource"},
	)

	WatcherEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_watcher_events_total",
			Help: "Total number of watcher events by resource and event type",
		},
		[]string{"resource", "event_type"},
	)

	// CSI metrics
	CSIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_csi_requests_total",
			Help: "Total number of CSI requests by method and status",
		},
		[]string{"method", "status"},
	)

	CSIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_csi_request_duration_seconds",
			Help:    "CSI request duration in seconds by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Persistent store metrics
	ChildStoreBreakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_childstore_breaker_open",
			Help: "Whether the persistent-store circuit breaker is currently open (1 = open)",
		},
	)

	// EventStream metrics
	EventStreamDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_event_stream_dropped_total",
			Help: "Total number of mod events coalesced/dropped by the event stream under back-pressure",
		},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		PoolsTotal,
		ReplicasTotal,
		NexusesTotal,
		VolumesTotal,
		RaftLeader,
		RaftPeers,
		AgentRPCDuration,
		AgentRPCErrorsTotal,
		NodeSyncDuration,
		NodeSyncFailuresTotal,
		FSATickDuration,
		FSATicksTotal,
		WatcherRestartsTotal,
		WatcherEventsTotal,
		CSIRequestsTotal,
		CSIRequestDuration,
		ChildStoreBreakerOpen,
		EventStreamDroppedTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
