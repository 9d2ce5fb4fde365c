// Package statscollector periodically samples the Registry and the volume
// Manager into the nexus_{nodes,pools,replicas,nexuses,volumes}_total gauge
// vectors, grounded in the teacher's pkg/metrics.Collector (itself polling
// pkg/manager.Manager on a 15s ticker). It cannot live in pkg/metrics
// itself: pkg/registry and pkg/volume already import pkg/metrics to update
// their own counters/histograms inline, so a collector importing them back
// into pkg/metrics would be an import cycle.
package statscollector
