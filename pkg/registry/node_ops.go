package registry

import (
	"context"

	"github.com/nexusvol/control-plane/pkg/apierror"
	"github.com/nexusvol/control-plane/pkg/types"
)

// GetPool looks up an owned pool by name.
func (n *Node) GetPool(name string) (*Pool, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.pools[name]
	return p, ok
}

// Pools returns a snapshot slice of owned pools.
func (n *Node) Pools() []*Pool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Pool, 0, len(n.pools))
	for _, p := range n.pools {
		out = append(out, p)
	}
	return out
}

// GetNexus looks up an owned nexus by uuid.
func (n *Node) GetNexus(uuid string) (*Nexus, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	nx, ok := n.nexuses[uuid]
	return nx, ok
}

// Nexuses returns a snapshot slice of owned nexuses.
func (n *Node) Nexuses() []*Nexus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Nexus, 0, len(n.nexuses))
	for _, nx := range n.nexuses {
		out = append(out, nx)
	}
	return out
}

// CreatePool creates a pool on the agent and registers it locally, failing
// INTERNAL if the node is offline (no synthetic-success case for creates,
// per §4.2: only destroy/unpublish succeed synthetically).
func (n *Node) CreatePool(ctx context.Context, name string, disks []string) (*Pool, error) {
	if n.Offline() {
		return nil, apierror.New(apierror.CodeInternal, "node %s is offline", n.name)
	}
	msg, err := n.client.CreatePool(ctx, name, disks)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, err, "create pool %s on node %s", name, n.name)
	}

	data := types.Pool{
		Name: msg.Name, Node: n.name, Disks: msg.Disks,
		State: types.PoolState(msg.State), Capacity: msg.Capacity, Used: msg.Used,
	}
	pool := newPool(n, data)
	n.mu.Lock()
	n.pools[name] = pool
	n.mu.Unlock()
	n.reg.registerPool(pool)
	n.reg.publish(Event{Kind: KindPool, Type: EventNew, Node: n.name, Key: name, PoolObj: ptr(pool.Snapshot())})
	return pool, nil
}

// DestroyPool destroys a pool on the agent. If the node is offline it
// succeeds synthetically.
func (n *Node) DestroyPool(ctx context.Context, name string) error {
	if !n.Offline() {
		if err := n.client.DestroyPool(ctx, name); err != nil {
			return apierror.Wrap(apierror.CodeInternal, err, "destroy pool %s on node %s", name, n.name)
		}
	}
	n.mu.Lock()
	delete(n.pools, name)
	n.mu.Unlock()
	n.reg.unregisterPool(name)
	n.reg.publish(Event{Kind: KindPool, Type: EventDel, Node: n.name, Key: name})
	return nil
}

// CreateReplica creates a replica on the given pool.
func (n *Node) CreateReplica(ctx context.Context, pool *Pool, uuid string, size int64) (*Replica, error) {
	if n.Offline() {
		return nil, apierror.New(apierror.CodeInternal, "node %s is offline", n.name)
	}
	msg, err := n.client.CreateReplica(ctx, pool.Name(), uuid, size)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, err, "create replica %s on pool %s", uuid, pool.Name())
	}

	data := types.Replica{
		UUID: msg.UUID, Pool: pool.Name(), Node: n.name, Size: msg.Size,
		Share: types.ShareProtocol(msg.Share), URI: msg.URI, State: types.ReplicaState(msg.State),
	}
	r := newReplica(pool, data)
	pool.mu.Lock()
	pool.replicas[uuid] = r
	pool.mu.Unlock()
	n.reg.registerReplica(r)
	n.reg.publish(Event{Kind: KindReplica, Type: EventNew, Node: n.name, Key: uuid, ReplicaObj: ptr(r.Snapshot())})
	return r, nil
}

// CreateNexus creates a nexus on this node with the given initial child URIs.
func (n *Node) CreateNexus(ctx context.Context, uuid string, size int64, childURIs []string) (*Nexus, error) {
	if n.Offline() {
		return nil, apierror.New(apierror.CodeInternal, "node %s is offline", n.name)
	}
	msg, err := n.client.CreateNexus(ctx, uuid, size, childURIs)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternal, err, "create nexus %s on node %s", uuid, n.name)
	}

	nx := newNexus(n, toNexusData(*msg, n.name))
	n.mu.Lock()
	n.nexuses[uuid] = nx
	n.mu.Unlock()
	n.reg.registerNexus(nx)
	n.reg.publish(Event{Kind: KindNexus, Type: EventNew, Node: n.name, Key: uuid, NexusObj: ptr(nx.Snapshot())})
	return nx, nil
}
