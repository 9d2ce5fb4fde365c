package volume

import (
	"context"
	"sync"
	"time"

	"github.com/nexusvol/control-plane/pkg/apierror"
	"github.com/nexusvol/control-plane/pkg/log"
	"github.com/nexusvol/control-plane/pkg/metrics"
	"github.com/nexusvol/control-plane/pkg/registry"
	"github.com/nexusvol/control-plane/pkg/types"
	"github.com/nexusvol/control-plane/pkg/volume/keylock"
)

// Manager indexes volumes by uuid and serialises mutating operations per
// uuid with a fair mutex (C7), so duplicate concurrent creates/deletes
// collapse and publish/unpublish on the same volume never interleave.
type Manager struct {
	mu      sync.RWMutex
	volumes map[string]*Volume

	reg   *registry.Registry
	store ChildStore
	cfg   Config
	locks *keylock.Locker

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager constructs an empty Manager bound to reg and store (store may
// be nil in tests/deployments without a persistent store configured, in
// which case rule 3's gating is skipped per DESIGN.md).
func NewManager(ctx context.Context, reg *registry.Registry, store ChildStore, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		volumes: make(map[string]*Volume),
		reg:     reg,
		store:   store,
		cfg:     cfg,
		locks:   keylock.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ListVolumes implements registry.VolumeSource for the EventStream replay
// phase.
func (m *Manager) ListVolumes() []types.Volume {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Volume, 0, len(m.volumes))
	for _, v := range m.volumes {
		out = append(out, v.Snapshot())
	}
	return out
}

// Get returns a snapshot of one volume.
func (m *Manager) Get(uuid string) (types.Volume, bool) {
	m.mu.RLock()
	v, ok := m.volumes[uuid]
	m.mu.RUnlock()
	if !ok {
		return types.Volume{}, false
	}
	return v.Snapshot(), true
}

// List returns a snapshot of every volume.
func (m *Manager) List() []types.Volume {
	return m.ListVolumes()
}

// CreateVolume is idempotent: an identical existing spec returns the
// existing volume; an allowed-differing spec updates it; a
// forbidden-differing spec fails INVALID_ARGUMENT.
func (m *Manager) CreateVolume(ctx context.Context, uuid string, spec types.VolumeSpec) (types.Volume, error) {
	m.locks.Lock(uuid)
	defer m.locks.Unlock(uuid)

	if v, ok := m.lookup(uuid); ok {
		existing := v.SpecSnapshot()
		if specsEqual(existing, spec) {
			return v.Snapshot(), nil
		}
		if err := validateSpecUpdate(existing, spec); err != nil {
			return types.Volume{}, err
		}
		v.mu.Lock()
		v.data.Spec = spec
		v.mu.Unlock()
		v.Kick()
		return v.Snapshot(), nil
	}

	v := newVolume(m.reg, m.store, m.cfg, types.Volume{
		UUID:  uuid,
		Spec:  spec,
		State: types.VolumePending,
	})
	m.mu.Lock()
	m.volumes[uuid] = v
	m.mu.Unlock()
	v.start(m.ctx)

	metrics.VolumesTotal.WithLabelValues(string(types.VolumePending)).Inc()
	log.WithVolumeID(uuid).Info().Msg("volume created")
	return v.Snapshot(), nil
}

// DestroyVolume is idempotent: a second call issues no RPCs.
func (m *Manager) DestroyVolume(ctx context.Context, uuid string) error {
	m.locks.Lock(uuid)
	defer m.locks.Unlock(uuid)

	v, ok := m.lookup(uuid)
	if !ok {
		return nil
	}

	// Stop the FSA actor first so its background tick cannot race with the
	// teardown RPCs issued directly below.
	v.Stop()

	live := v.resolveLiveReplicas()
	for _, l := range live {
		if err := v.dropReplica(ctx, live, l.node); err != nil {
			return apierror.Wrap(apierror.CodeInternal, err, "destroy replica during volume %s teardown", uuid)
		}
	}
	if nexus, ok := m.reg.GetNexus(uuid); ok {
		if err := nexus.Destroy(ctx); err != nil {
			return apierror.Wrap(apierror.CodeInternal, err, "destroy nexus during volume %s teardown", uuid)
		}
	}
	if m.store != nil {
		if err := m.store.DestroyNexus(ctx, uuid); err != nil {
			return apierror.Wrap(apierror.CodeInternal, err, "destroy persistent-store record for %s", uuid)
		}
	}

	v.setState(types.VolumeDestroyed)
	metrics.VolumesTotal.WithLabelValues(string(types.VolumeDestroyed)).Inc()

	m.mu.Lock()
	delete(m.volumes, uuid)
	m.mu.Unlock()
	return nil
}

// Publish sets publishedOn and waits for the FSA to converge on a device
// URI, or fails per spec.md §4.6.
func (m *Manager) Publish(ctx context.Context, uuid, node string, protocol types.VolumeProtocol) (string, error) {
	m.locks.Lock(uuid)
	defer m.locks.Unlock(uuid)

	v, ok := m.lookup(uuid)
	if !ok {
		return "", apierror.New(apierror.CodeNotFound, "volume %s not found", uuid)
	}
	if v.Snapshot().State == types.VolumeFaulted {
		return "", apierror.New(apierror.CodeInternal, "volume %s is faulted", uuid)
	}
	if _, ok := m.reg.GetNode(node); !ok {
		return "", apierror.New(apierror.CodeInternal, "node %s not found", node)
	}

	v.mu.Lock()
	v.data.PublishedOn = node
	v.data.Spec.Protocol = protocol
	v.mu.Unlock()
	v.Kick()

	deadline := time.Now().Add(m.cfg.RPCTimeout * 4)
	for time.Now().Before(deadline) {
		if nexus, ok := m.reg.GetNexus(uuid); ok {
			if snap := nexus.Snapshot(); snap.DeviceURI != "" {
				return snap.DeviceURI, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", apierror.Wrap(apierror.CodeDeadlineExceeded, ctx.Err(), "publish volume %s", uuid)
		case <-time.After(100 * time.Millisecond):
		}
	}
	return "", apierror.New(apierror.CodeDeadlineExceeded, "volume %s did not converge on publish", uuid)
}

// Unpublish clears publishedOn; the FSA tears the nexus down (synthetically
// if its node is offline).
func (m *Manager) Unpublish(ctx context.Context, uuid string) error {
	m.locks.Lock(uuid)
	defer m.locks.Unlock(uuid)

	v, ok := m.lookup(uuid)
	if !ok {
		return apierror.New(apierror.CodeNotFound, "volume %s not found", uuid)
	}
	v.mu.Lock()
	v.data.PublishedOn = ""
	v.mu.Unlock()
	v.Kick()
	return nil
}

// Update applies an allowed spec mutation and schedules an FSA tick, or
// fails INVALID_ARGUMENT for a forbidden one.
func (m *Manager) Update(ctx context.Context, uuid string, spec types.VolumeSpec) (types.Volume, error) {
	m.locks.Lock(uuid)
	defer m.locks.Unlock(uuid)

	v, ok := m.lookup(uuid)
	if !ok {
		return types.Volume{}, apierror.New(apierror.CodeNotFound, "volume %s not found", uuid)
	}
	existing := v.SpecSnapshot()
	if err := validateSpecUpdate(existing, spec); err != nil {
		return types.Volume{}, err
	}
	v.mu.Lock()
	v.data.Spec = spec
	v.mu.Unlock()
	v.Kick()
	return v.Snapshot(), nil
}

// ImportVolume reconstructs a volume from what the Registry already knows
// on manager start: the nexus whose uuid equals the volume's, and every
// known replica whose URI is one of that nexus's children. Replicas that are
// not children of such a nexus are not attributed to the volume, so a
// volume with no nexus is imported with no replicas. The imported volume's
// state is "unknown" until the first FSA tick classifies it.
func (m *Manager) ImportVolume(ctx context.Context, uuid string, spec types.VolumeSpec) {
	m.mu.Lock()
	if _, exists := m.volumes[uuid]; exists {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	data := types.Volume{UUID: uuid, Spec: spec, State: types.VolumeUnknown, Replicas: make(map[string]string)}

	// The nexus uuid always equals the volume uuid; match its children's
	// URIs back to live replicas to reconstruct the node->replica map
	// (replica uuids themselves carry no volume affiliation).
	if nexus, ok := m.reg.GetNexus(uuid); ok {
		snap := nexus.Snapshot()
		data.NexusUUID = snap.UUID
		if snap.DeviceURI != "" {
			data.PublishedOn = snap.Node
		}

		childURIs := make(map[string]bool, len(snap.Children))
		for _, c := range snap.Children {
			childURIs[c.URI] = true
		}
		for _, n := range m.reg.ListNodes() {
			for _, p := range n.Pools() {
				for _, r := range p.Replicas() {
					if childURIs[r.Snapshot().URI] {
						data.Replicas[n.Name()] = r.UUID()
					}
				}
			}
		}
	}

	v := newVolume(m.reg, m.store, m.cfg, data)
	m.mu.Lock()
	m.volumes[uuid] = v
	m.mu.Unlock()
	v.start(m.ctx)
}

// HandleRegistryEvent dispatches a pool|replica|nexus event to the matching
// volume by uuid/key and schedules a tick. Unknown kinds are ignored.
func (m *Manager) HandleRegistryEvent(e registry.Event) {
	switch e.Kind {
	case registry.KindReplica, registry.KindNexus:
		// Replica/nexus uuids carry no volume affiliation of their own;
		// every tracked volume that references this key is kicked. In
		// practice a replica/nexus belongs to at most one volume.
		m.mu.RLock()
		for _, v := range m.volumes {
			v.mu.Lock()
			match := v.data.NexusUUID == e.Key
			for _, repUUID := range v.data.Replicas {
				if repUUID == e.Key {
					match = true
				}
			}
			v.mu.Unlock()
			if match {
				v.Kick()
			}
		}
		m.mu.RUnlock()
	case registry.KindPool:
		m.mu.RLock()
		for _, v := range m.volumes {
			v.Kick()
		}
		m.mu.RUnlock()
	}
}

// Run subscribes to the registry and dispatches events to volumes until ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context) {
	sub, unsub := m.reg.Subscribe()
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			m.HandleRegistryEvent(e)
		}
	}
}

// Close stops every volume's FSA loop.
func (m *Manager) Close() {
	m.cancel()
	m.mu.RLock()
	vols := make([]*Volume, 0, len(m.volumes))
	for _, v := range m.volumes {
		vols = append(vols, v)
	}
	m.mu.RUnlock()
	for _, v := range vols {
		v.Stop()
	}
}

func (m *Manager) lookup(uuid string) (*Volume, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.volumes[uuid]
	return v, ok
}

func specsEqual(a, b types.VolumeSpec) bool {
	if a.ReplicaCount != b.ReplicaCount || a.Local != b.Local || a.RequiredBytes != b.RequiredBytes ||
		a.LimitBytes != b.LimitBytes || a.Protocol != b.Protocol {
		return false
	}
	return stringSliceEqual(a.PreferredNodes, b.PreferredNodes) && stringSliceEqual(a.RequiredNodes, b.RequiredNodes)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// validateSpecUpdate enforces spec.md §4.6's Update rule: replicaCount,
// preferredNodes, requiredNodes, local, and a non-decreasing requiredBytes
// (within limitBytes) may change; protocol changes, shrinking, or growing
// past limitBytes are rejected.
func validateSpecUpdate(existing, next types.VolumeSpec) error {
	if next.Protocol != existing.Protocol {
		return apierror.New(apierror.CodeInvalidArgument, "volume protocol cannot be changed")
	}
	if next.RequiredBytes < existing.RequiredBytes {
		return apierror.New(apierror.CodeInvalidArgument, "volume size cannot shrink")
	}
	if next.LimitBytes > 0 && next.RequiredBytes > next.LimitBytes {
		return apierror.New(apierror.CodeInvalidArgument, "volume size cannot exceed limitBytes")
	}
	return nil
}
