package volume

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nexusvol/control-plane/pkg/apierror"
	"github.com/nexusvol/control-plane/pkg/registry"
	"github.com/nexusvol/control-plane/pkg/types"
)

// liveReplica pairs a bookkeeping entry with its resolved registry object,
// dropping entries whose pool or replica has disappeared (rule 2).
type liveReplica struct {
	node string
	rep  *registry.Replica
}

// step evaluates the ten rules of spec.md §4.6 top-down, first match wins,
// executing at most one corrective action and returning whether one was
// taken (acted) so the caller can loop until the volume has converged.
// forced indicates the tick should stop immediately (e.g. the terminal
// guard, or an offline-publish-target classification) without further
// rule evaluation this tick.
func (v *Volume) step(ctx context.Context) (acted bool, forced bool, rule string, err error) {
	v.mu.Lock()
	state := v.data.State
	v.mu.Unlock()

	// Rule 1: terminal guard.
	if state == types.VolumeDestroyed {
		return false, true, "terminal", nil
	}

	live := v.resolveLiveReplicas()

	// Rule 2: broken replicas (pool or replica vanished from the registry).
	if node, ok := v.pruneBroken(live); ok {
		v.mu.Lock()
		delete(v.data.Replicas, node)
		v.mu.Unlock()
		return true, false, "prune-broken", nil
	}

	// Rule 3: persistent-store gating on first assembly.
	if acted, err := v.gateFirstAssembly(ctx, live); err != nil {
		return false, false, "gate-assembly", err
	} else if acted {
		return true, false, "gate-assembly", nil
	}

	spec := v.SpecSnapshot()

	// Rule 4: scale up.
	if len(live) < spec.ReplicaCount {
		acted, err := v.scaleUp(ctx, live, spec, nil)
		return acted, false, "scale-up", err
	}

	// Rule 5: replace offline replicas past the grace period.
	if node, ok := v.offlineTooLong(live); ok {
		if err := v.dropReplica(ctx, live, node); err != nil {
			return false, false, "replace-offline", err
		}
		return true, false, "replace-offline", nil
	}

	nexus, hasNexus := v.reg.GetNexus(v.UUID())
	rebuilding := hasNexus && nexusHasRebuildingChild(nexus)

	// Rule 6: scale down.
	if len(live) > spec.ReplicaCount && !rebuilding {
		node := leastPreferredReplica(live)
		if node != "" {
			if err := v.dropReplica(ctx, live, node); err != nil {
				return false, false, "scale-down", err
			}
			return true, false, "scale-down", nil
		}
	}

	// Rule 7: share protocols.
	if node, target, ok := v.mismatchedShare(live, nexus); ok {
		if err := v.fixShare(ctx, live, node, target); err != nil {
			return false, false, "fix-share", err
		}
		return true, false, "fix-share", nil
	}

	publishedOn := v.PublishedOn()

	// Rule 8: nexus placement.
	if publishedOn != "" {
		target, ok := v.reg.GetNode(publishedOn)
		if !ok {
			v.setState(types.VolumeOffline)
			return false, true, "nexus-placement", nil
		}
		if hasNexus && nexus.Snapshot().Node != publishedOn {
			if err := nexus.Destroy(ctx); err != nil {
				return false, false, "nexus-placement", err
			}
			return true, false, "nexus-placement", nil
		}
		if !hasNexus {
			acted, err := v.createAndPublishNexus(ctx, target, live, spec)
			return acted, false, "nexus-placement", err
		}
	}

	// Rule 9: nexus teardown.
	if publishedOn == "" && hasNexus && !rebuilding {
		if err := nexus.Unpublish(ctx); err != nil {
			return false, false, "nexus-teardown", err
		}
		if err := nexus.Destroy(ctx); err != nil {
			return false, false, "nexus-teardown", err
		}
		return true, false, "nexus-teardown", nil
	}

	return false, false, "", nil
}

// resolveLiveReplicas re-reads bookkeeping against the registry fresh on
// every call, never caching across a suspension point, and updates the
// offline-grace bookkeeping as a side effect.
func (v *Volume) resolveLiveReplicas() []liveReplica {
	v.mu.Lock()
	entries := make(map[string]string, len(v.data.Replicas))
	for node, uuid := range v.data.Replicas {
		entries[node] = uuid
	}
	v.mu.Unlock()

	out := make([]liveReplica, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for node, uuid := range entries {
		rep, ok := v.reg.GetReplica(uuid)
		if !ok {
			continue
		}
		if _, ok := v.reg.GetPool(rep.Pool().Name()); !ok {
			continue
		}
		out = append(out, liveReplica{node: node, rep: rep})
		seen[node] = true

		if rep.Snapshot().State == types.ReplicaOffline {
			v.mu.Lock()
			if _, tracked := v.offlineSince[node]; !tracked {
				v.offlineSince[node] = time.Now()
			}
			v.mu.Unlock()
		} else {
			v.mu.Lock()
			delete(v.offlineSince, node)
			v.mu.Unlock()
		}
	}

	v.mu.Lock()
	for node := range v.offlineSince {
		if !seen[node] {
			delete(v.offlineSince, node)
		}
	}
	v.mu.Unlock()

	return out
}

func (v *Volume) pruneBroken(live []liveReplica) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	liveNodes := make(map[string]bool, len(live))
	for _, l := range live {
		liveNodes[l.node] = true
	}
	for node := range v.data.Replicas {
		if !liveNodes[node] {
			return node, true
		}
	}
	return "", false
}

func (v *Volume) gateFirstAssembly(ctx context.Context, live []liveReplica) (bool, error) {
	v.mu.Lock()
	assembled := v.assembled
	v.mu.Unlock()
	if assembled {
		return false, nil
	}
	if v.store == nil || len(live) == 0 {
		v.mu.Lock()
		v.assembled = true
		v.mu.Unlock()
		return false, nil
	}

	reqCtx, cancel := v.ctx(ctx)
	defer cancel()

	snaps := make([]types.Replica, 0, len(live))
	for _, l := range live {
		snaps = append(snaps, l.rep.Snapshot())
	}
	allowed, err := v.store.FilterReplicas(reqCtx, v.UUID(), snaps)
	if err != nil {
		return false, apierror.Wrap(apierror.CodeUnavailable, err, "gate first nexus assembly for %s", v.UUID())
	}
	allowedUUIDs := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedUUIDs[a.UUID] = true
	}

	v.mu.Lock()
	pruned := false
	for node, uuid := range v.data.Replicas {
		if !allowedUUIDs[uuid] {
			delete(v.data.Replicas, node)
			pruned = true
		}
	}
	v.assembled = true
	v.mu.Unlock()

	return pruned, nil
}

func (v *Volume) offlineTooLong(live []liveReplica) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, l := range live {
		since, tracked := v.offlineSince[l.node]
		if !tracked {
			continue
		}
		if time.Since(since) > v.cfg.OfflineReplicaGrace {
			return l.node, true
		}
	}
	return "", false
}

// scaleUp creates one replica on the best admissible pool excluding nodes
// already holding a replica of this volume, shares it appropriately, and
// adds it to the nexus if one exists.
func (v *Volume) scaleUp(ctx context.Context, live []liveReplica, spec types.VolumeSpec, _ []string) (bool, error) {
	used := make(map[string]bool, len(live))
	for _, l := range live {
		used[l.node] = true
	}

	candidates := v.reg.SelectPools(spec.RequiredBytes, spec.RequiredNodes, spec.PreferredNodes)
	var pool *registry.Pool
	for _, p := range candidates {
		if !used[p.Node().Name()] {
			pool = p
			break
		}
	}
	if pool == nil {
		return false, apierror.New(apierror.CodeResourceExhausted, "no admissible pool for volume %s", v.UUID())
	}

	reqCtx, cancel := v.ctx(ctx)
	defer cancel()

	rep, err := pool.Node().CreateReplica(reqCtx, pool, uuid.New().String(), spec.RequiredBytes)
	if err != nil {
		return false, err
	}

	v.mu.Lock()
	v.data.Replicas[pool.Node().Name()] = rep.UUID()
	v.mu.Unlock()

	nexus, hasNexus := v.reg.GetNexus(v.UUID())
	if err := v.syncReplicaShare(ctx, rep, nexus, hasNexus); err != nil {
		return true, err
	}
	if hasNexus {
		addCtx, cancel := v.ctx(ctx)
		defer cancel()
		if err := nexus.AddChild(addCtx, rep.Snapshot().URI); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (v *Volume) dropReplica(ctx context.Context, live []liveReplica, node string) error {
	var target *registry.Replica
	for _, l := range live {
		if l.node == node {
			target = l.rep
			break
		}
	}
	if target == nil {
		v.mu.Lock()
		delete(v.data.Replicas, node)
		v.mu.Unlock()
		return nil
	}

	if nexus, ok := v.reg.GetNexus(v.UUID()); ok {
		rmCtx, cancel := v.ctx(ctx)
		defer cancel()
		if err := nexus.RemoveChild(rmCtx, target.Snapshot().URI); err != nil {
			return err
		}
	}

	destroyCtx, cancel := v.ctx(ctx)
	defer cancel()
	if err := target.Destroy(destroyCtx); err != nil {
		return err
	}

	v.mu.Lock()
	delete(v.data.Replicas, node)
	delete(v.offlineSince, node)
	v.mu.Unlock()
	return nil
}

// leastPreferredReplica picks the replica to remove on scale-down: offline
// first, then worst pool state, then most-used pool.
func leastPreferredReplica(live []liveReplica) string {
	if len(live) == 0 {
		return ""
	}
	sorted := append([]liveReplica(nil), live...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].rep, sorted[j].rep
		aSnap, bSnap := a.Snapshot(), b.Snapshot()

		aOffline := aSnap.State == types.ReplicaOffline
		bOffline := bSnap.State == types.ReplicaOffline
		if aOffline != bOffline {
			return aOffline
		}

		aPool, bPool := a.Pool().Snapshot(), b.Pool().Snapshot()
		if rank := poolStateRank(aPool.State) - poolStateRank(bPool.State); rank != 0 {
			return rank > 0
		}

		return aPool.Used > bPool.Used
	})
	return sorted[0].node
}

func poolStateRank(s types.PoolState) int {
	switch s {
	case types.PoolOnline:
		return 0
	case types.PoolDegraded:
		return 1
	case types.PoolFaulted:
		return 2
	case types.PoolOffline:
		return 3
	default:
		return 4
	}
}

// mismatchedShare finds the first live replica whose share protocol does
// not match what nexus topology requires.
func (v *Volume) mismatchedShare(live []liveReplica, nexus *registry.Nexus) (string, types.ShareProtocol, bool) {
	var nexusNode string
	hasNexus := nexus != nil
	if hasNexus {
		nexusNode = nexus.Snapshot().Node
	}
	for _, l := range live {
		snap := l.rep.Snapshot()
		local := !hasNexus || l.node == nexusNode
		target := types.ShareNvmf
		if local {
			target = types.ShareNone
		}
		if snap.Share != target {
			return l.node, target, true
		}
	}
	return "", "", false
}

func (v *Volume) fixShare(ctx context.Context, live []liveReplica, node string, target types.ShareProtocol) error {
	for _, l := range live {
		if l.node == node {
			shareCtx, cancel := v.ctx(ctx)
			defer cancel()
			return l.rep.Share(shareCtx, target)
		}
	}
	return nil
}

func (v *Volume) syncReplicaShare(ctx context.Context, rep *registry.Replica, nexus *registry.Nexus, hasNexus bool) error {
	local := !hasNexus || rep.Pool().Node().Name() == nexus.Snapshot().Node
	target := types.ShareNvmf
	if local {
		target = types.ShareNone
	}
	if rep.Snapshot().Share == target {
		return nil
	}
	shareCtx, cancel := v.ctx(ctx)
	defer cancel()
	return rep.Share(shareCtx, target)
}

func (v *Volume) createAndPublishNexus(ctx context.Context, target *registry.Node, live []liveReplica, spec types.VolumeSpec) (bool, error) {
	uris := make([]string, 0, len(live))
	for _, l := range live {
		uris = append(uris, l.rep.Snapshot().URI)
	}

	createCtx, cancel := v.ctx(ctx)
	defer cancel()
	nexus, err := target.CreateNexus(createCtx, v.UUID(), spec.RequiredBytes, uris)
	if err != nil {
		return false, err
	}

	pubCtx, cancel2 := v.ctx(ctx)
	defer cancel2()
	deviceURI, err := nexus.Publish(pubCtx, spec.Protocol)
	if err != nil {
		return true, err
	}

	v.mu.Lock()
	v.data.NexusUUID = nexus.UUID()
	v.mu.Unlock()
	_ = deviceURI
	return true, nil
}

func nexusHasRebuildingChild(nexus *registry.Nexus) bool {
	for _, c := range nexus.Snapshot().Children {
		if c.State == types.ChildDegraded {
			return true
		}
	}
	return false
}

// deriveState implements rule 10, run once the tick's action loop has
// converged (no more corrective actions to take this pass).
func (v *Volume) deriveState() {
	v.mu.Lock()
	if v.data.State == types.VolumeDestroyed {
		v.mu.Unlock()
		return
	}
	publishedOn := v.data.PublishedOn
	v.mu.Unlock()

	live := v.resolveLiveReplicas()

	if publishedOn != "" {
		node, ok := v.reg.GetNode(publishedOn)
		if !ok || node.Offline() {
			v.setState(types.VolumeOffline)
			return
		}
	}

	if len(live) == 0 {
		v.setState(types.VolumePending)
		return
	}

	nexus, hasNexus := v.reg.GetNexus(v.UUID())

	onlineChildren, degradedChildren, totalChildren := 0, 0, 0
	if hasNexus {
		for _, c := range nexus.Snapshot().Children {
			totalChildren++
			switch c.State {
			case types.ChildOnline:
				onlineChildren++
			case types.ChildDegraded:
				degradedChildren++
			}
		}
	}

	anyReplicaOnline := false
	for _, l := range live {
		if l.rep.Snapshot().State == types.ReplicaOnline {
			anyReplicaOnline = true
			break
		}
	}

	switch {
	case hasNexus && onlineChildren > 0 && degradedChildren == 0:
		v.setState(types.VolumeHealthy)
	case hasNexus && (onlineChildren > 0 || degradedChildren > 0):
		v.setState(types.VolumeDegraded)
	case hasNexus && totalChildren > 0:
		v.setState(types.VolumeFaulted)
	case anyReplicaOnline:
		v.setState(types.VolumeHealthy)
	default:
		v.setState(types.VolumeFaulted)
	}
}

func (v *Volume) setState(s types.VolumeState) {
	v.mu.Lock()
	v.data.State = s
	v.mu.Unlock()
}

// SpecSnapshot returns a value copy of the volume's current spec.
func (v *Volume) SpecSnapshot() types.VolumeSpec {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.data.Spec
}

// PublishedOn returns the currently requested publish target, or "".
func (v *Volume) PublishedOn() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.data.PublishedOn
}
