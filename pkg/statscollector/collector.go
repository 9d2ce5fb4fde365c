package statscollector

import (
	"time"

	"github.com/nexusvol/control-plane/pkg/metrics"
	"github.com/nexusvol/control-plane/pkg/registry"
	"github.com/nexusvol/control-plane/pkg/volume"
)

// DefaultPeriod matches the teacher collector's 15s ticker.
const DefaultPeriod = 15 * time.Second

// Collector samples the Registry and volume Manager into the gauge vectors
// declared in pkg/metrics.
type Collector struct {
	reg    *registry.Registry
	mgr    *volume.Manager
	period time.Duration
	stopCh chan struct{}
}

// New builds a Collector. Start must be called to begin sampling.
func New(reg *registry.Registry, mgr *volume.Manager, period time.Duration) *Collector {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Collector{reg: reg, mgr: mgr, period: period, stopCh: make(chan struct{})}
}

// Start begins the sampling loop in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.period)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodes()
	c.collectPoolsAndReplicas()
	c.collectNexuses()
	c.collectVolumes()
}

func (c *Collector) collectNodes() {
	counts := make(map[string]int)
	for _, n := range c.reg.ListNodes() {
		counts[string(n.SyncState())]++
	}
	metrics.NodesTotal.Reset()
	for state, count := range counts {
		metrics.NodesTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectPoolsAndReplicas() {
	poolCounts := make(map[string]int)
	replicaCounts := make(map[string]int)
	for _, p := range c.reg.ListPools() {
		snap := p.Snapshot()
		poolCounts[string(snap.State)]++
		for _, r := range p.Replicas() {
			replicaCounts[string(r.Snapshot().State)]++
		}
	}
	metrics.PoolsTotal.Reset()
	for state, count := range poolCounts {
		metrics.PoolsTotal.WithLabelValues(state).Set(float64(count))
	}
	metrics.ReplicasTotal.Reset()
	for state, count := range replicaCounts {
		metrics.ReplicasTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectNexuses() {
	counts := make(map[string]int)
	for _, n := range c.reg.ListNodes() {
		for _, nx := range n.Nexuses() {
			counts[string(nx.Snapshot().State)]++
		}
	}
	metrics.NexusesTotal.Reset()
	for state, count := range counts {
		metrics.NexusesTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectVolumes() {
	counts := make(map[string]int)
	for _, v := range c.mgr.ListVolumes() {
		counts[string(v.State)]++
	}
	metrics.VolumesTotal.Reset()
	for state, count := range counts {
		metrics.VolumesTotal.WithLabelValues(state).Set(float64(count))
	}
}
