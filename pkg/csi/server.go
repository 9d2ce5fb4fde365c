package csi

import (
	csipb "github.com/container-storage-interface/spec/lib/go/csi"

	"github.com/nexusvol/control-plane/pkg/registry"
	"github.com/nexusvol/control-plane/pkg/volume"
)

const (
	pluginName    = "io.nexusvol.csi"
	pluginVersion = "1.0.0"

	// topologyKey is the only accessibility-topology key this driver
	// understands; any other key in accessibility_requirements.requisite
	// is rejected.
	topologyKey = "kubernetes.io/hostname"
)

// ReadyFunc reports whether the server may accept traffic. cmd/nexus-controller
// wires this to raft leadership alone, and builds the server only after the
// watcher caches have synced (SPEC_FULL.md §2).
type ReadyFunc func() bool

// Server implements csi.ControllerServer and csi.IdentityServer over a
// volume.Manager and the Registry it manages.
type Server struct {
	csipb.UnimplementedControllerServer
	csipb.UnimplementedIdentityServer

	mgr   *volume.Manager
	reg   *registry.Registry
	ready ReadyFunc
}

// New builds a Server. ready may be nil, in which case the server always
// reports itself ready (useful in tests).
func New(mgr *volume.Manager, reg *registry.Registry, ready ReadyFunc) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Server{mgr: mgr, reg: reg, ready: ready}
}

var _ csipb.ControllerServer = (*Server)(nil)
var _ csipb.IdentityServer = (*Server)(nil)
