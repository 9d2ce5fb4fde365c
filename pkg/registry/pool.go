package registry

import (
	"sort"
	"sync"

	"github.com/nexusvol/control-plane/api/agentpb"
	"github.com/nexusvol/control-plane/pkg/types"
)

// Pool is the typed mirror of an agent-reported storage pool (C2). Pool↔Node
// binding is exclusive for the pool's lifetime.
type Pool struct {
	mu       sync.RWMutex
	node     *Node
	data     types.Pool
	replicas map[string]*Replica
}

func newPool(node *Node, data types.Pool) *Pool {
	return &Pool{node: node, data: data, replicas: make(map[string]*Replica)}
}

func (p *Pool) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.Name
}

// Node returns the owning Node.
func (p *Pool) Node() *Node { return p.node }

// Snapshot returns a value copy of the pool's observable state.
func (p *Pool) Snapshot() types.Pool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := p.data
	cp.Replicas = make(map[string]struct{}, len(p.replicas))
	for uuid := range p.replicas {
		cp.Replicas[uuid] = struct{}{}
	}
	return cp
}

// Replicas returns a snapshot slice of this pool's owned replicas.
func (p *Pool) Replicas() []*Replica {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Replica, 0, len(p.replicas))
	for _, r := range p.replicas {
		out = append(out, r)
	}
	return out
}

// merge updates local fields from a fresh agent snapshot, returning true iff
// any observable field changed (§4.2).
func (p *Pool) merge(remote types.Pool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := p.data.State != remote.State ||
		p.data.Capacity != remote.Capacity ||
		p.data.Used != remote.Used ||
		!equalStringSlices(p.data.Disks, remote.Disks)
	p.data.State = remote.State
	p.data.Capacity = remote.Capacity
	p.data.Used = remote.Used
	p.data.Disks = remote.Disks
	return changed
}

// markOffline synthesises the offline state when the owning node drops out
// of sync, returning true iff the state actually changed.
func (p *Pool) markOffline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data.State == types.PoolOffline {
		return false
	}
	p.data.State = types.PoolOffline
	return true
}

// markReplicasOffline cascades offline state to every replica in this pool
// and returns the snapshots of those that actually changed.
func (p *Pool) markReplicasOffline() []*types.Replica {
	p.mu.RLock()
	replicas := make([]*Replica, 0, len(p.replicas))
	for _, r := range p.replicas {
		replicas = append(replicas, r)
	}
	p.mu.RUnlock()

	var changed []*types.Replica
	for _, r := range replicas {
		if snap, ok := r.markOffline(); ok {
			changed = append(changed, snap)
		}
	}
	return changed
}

// diffReplicas diffs the pool's replica set by uuid against a fresh agent
// listing, emitting new/mod/del replica events through the owning node's
// registry. A replica whose pool doesn't match is never passed in by the
// caller (Node.diffReplicas buckets by pool name before calling).
func (p *Pool) diffReplicas(remote []agentpb.ReplicaMsg) {
	seen := make(map[string]struct{}, len(remote))
	for _, rr := range remote {
		seen[rr.UUID] = struct{}{}
		data := types.Replica{
			UUID: rr.UUID, Pool: p.Name(), Node: p.node.Name(), Size: rr.Size,
			Share: types.ShareProtocol(rr.Share), URI: rr.URI, State: types.ReplicaState(rr.State),
		}

		p.mu.Lock()
		r, exists := p.replicas[rr.UUID]
		if !exists {
			r = newReplica(p, data)
			p.replicas[rr.UUID] = r
			p.mu.Unlock()
			snap := r.Snapshot()
			p.node.reg.registerReplica(r)
			p.node.reg.publish(Event{Kind: KindReplica, Type: EventNew, Node: p.node.Name(), Key: rr.UUID, ReplicaObj: &snap})
			continue
		}
		p.mu.Unlock()

		if r.merge(data) {
			snap := r.Snapshot()
			p.node.reg.publish(Event{Kind: KindReplica, Type: EventMod, Node: p.node.Name(), Key: rr.UUID, ReplicaObj: &snap})
		}
	}

	p.mu.Lock()
	var removed []*Replica
	for uuid, r := range p.replicas {
		if _, ok := seen[uuid]; !ok {
			removed = append(removed, r)
			delete(p.replicas, uuid)
		}
	}
	p.mu.Unlock()

	for _, r := range removed {
		p.node.reg.unregisterReplica(r.UUID())
		p.node.reg.publish(Event{Kind: KindReplica, Type: EventDel, Node: p.node.Name(), Key: r.UUID()})
	}
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
