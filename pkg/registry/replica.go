package registry

import (
	"context"
	"sync"

	"github.com/nexusvol/control-plane/pkg/apierror"
	"github.com/nexusvol/control-plane/pkg/types"
)

// Replica is the typed mirror of an agent-reported replica (C2).
type Replica struct {
	mu   sync.RWMutex
	pool *Pool
	data types.Replica
}

func newReplica(pool *Pool, data types.Replica) *Replica {
	return &Replica{pool: pool, data: data}
}

func (r *Replica) UUID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.UUID
}

// Pool returns the owning Pool.
func (r *Replica) Pool() *Pool { return r.pool }

// Snapshot returns a value copy of the replica's observable state.
func (r *Replica) Snapshot() types.Replica {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

func (r *Replica) merge(remote types.Replica) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := r.data.State != remote.State || r.data.Share != remote.Share || r.data.URI != remote.URI
	r.data.State = remote.State
	r.data.Share = remote.Share
	r.data.URI = remote.URI
	r.data.Size = remote.Size
	return changed
}

func (r *Replica) markOffline() (*types.Replica, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data.State == types.ReplicaOffline {
		return nil, false
	}
	r.data.State = types.ReplicaOffline
	snap := r.data
	return &snap, true
}

func (r *Replica) setLocal(remote types.Replica) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = remote
}

// Destroy issues destroyReplica. If the owning node is offline it succeeds
// synthetically (§4.2) and the replica is removed from the pool's index.
func (r *Replica) Destroy(ctx context.Context) error {
	node := r.pool.Node()
	if node.Offline() {
		r.pool.mu.Lock()
		delete(r.pool.replicas, r.UUID())
		r.pool.mu.Unlock()
		node.reg.unregisterReplica(r.UUID())
		node.reg.publish(Event{Kind: KindReplica, Type: EventDel, Node: node.Name(), Key: r.UUID()})
		return nil
	}

	if err := node.client.DestroyReplica(ctx, r.UUID()); err != nil {
		return apierror.Wrap(apierror.CodeInternal, err, "destroy replica %s", r.UUID())
	}

	r.pool.mu.Lock()
	delete(r.pool.replicas, r.UUID())
	r.pool.mu.Unlock()
	node.reg.unregisterReplica(r.UUID())
	node.reg.publish(Event{Kind: KindReplica, Type: EventDel, Node: node.Name(), Key: r.UUID()})
	return nil
}

// Share issues shareReplica for the given protocol. Fails INTERNAL if the
// owning node is offline, since unlike destroy/unpublish there is no
// synthetic success defined for it.
func (r *Replica) Share(ctx context.Context, protocol types.ShareProtocol) error {
	node := r.pool.Node()
	if node.Offline() {
		return apierror.New(apierror.CodeInternal, "node %s is offline", node.Name())
	}

	msg, err := node.client.ShareReplica(ctx, r.UUID(), string(protocol))
	if err != nil {
		return apierror.Wrap(apierror.CodeInternal, err, "share replica %s", r.UUID())
	}

	r.setLocal(types.Replica{
		UUID: r.UUID(), Pool: r.pool.Name(), Node: node.Name(),
		Size: msg.Size, Share: types.ShareProtocol(msg.Share), URI: msg.URI, State: types.ReplicaState(msg.State),
	})
	node.reg.publish(Event{Kind: KindReplica, Type: EventMod, Node: node.Name(), Key: r.UUID(), ReplicaObj: ptr(r.Snapshot())})
	return nil
}

func ptr[T any](v T) *T { return &v }
