// Package registry implements the in-memory object graph (C2-C5) that
// tracks nodes, pools, replicas, and nexuses, reconciled periodically with
// each storage agent over gRPC. It is the fleet-wide shared mutable state
// described in the spec's concurrency model: mutations are serialised
// through the node-actor boundary (one goroutine per Node), and consumers
// observe them via Registry.Subscribe in per-producer FIFO order.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/nexusvol/control-plane/pkg/agentclient"
	"github.com/nexusvol/control-plane/pkg/apierror"
	"github.com/nexusvol/control-plane/pkg/log"
	"github.com/nexusvol/control-plane/pkg/types"
)

// Registry indexes nodes by name and relays node|pool|replica|nexus events
// upward (C4).
type Registry struct {
	mu sync.RWMutex

	nodes    map[string]*Node
	pools    map[string]*Pool
	replicas map[string]*Replica
	nexuses  map[string]*Nexus

	nodeCfg NodeConfig
	broker  *broker

	ctx context.Context
}

// New builds an empty Registry. ctx bounds the lifetime of every Node sync
// loop started via AddNode; cancelling it stops all of them.
func New(ctx context.Context, nodeCfg NodeConfig) *Registry {
	return &Registry{
		nodes:    make(map[string]*Node),
		pools:    make(map[string]*Pool),
		replicas: make(map[string]*Replica),
		nexuses:  make(map[string]*Nexus),
		nodeCfg:  nodeCfg,
		broker:   newBroker(),
		ctx:      ctx,
	}
}

// Subscribe registers a new event consumer. Call the returned function to
// unsubscribe and release the channel.
func (r *Registry) Subscribe() (Subscriber, func()) {
	sub := r.broker.subscribe()
	return sub, func() { r.broker.unsubscribe(sub) }
}

func (r *Registry) publish(e Event) {
	r.broker.publish(e)
}

// AddNode creates and connects a Node. If a node with the same name exists
// with a different endpoint, it is disconnected and reconnected (emitting
// mod); the same endpoint is a no-op (§4.4).
func (r *Registry) AddNode(name, endpoint string) error {
	r.mu.Lock()
	existing, ok := r.nodes[name]
	if ok {
		if existing.Endpoint() == endpoint {
			r.mu.Unlock()
			return nil
		}
		delete(r.nodes, name)
	}
	r.mu.Unlock()

	if ok {
		existing.Stop()
	}

	client, err := agentclient.Dial(endpoint)
	if err != nil {
		return apierror.Wrap(apierror.CodeUnavailable, err, "dial node %s at %s", name, endpoint)
	}

	node := newNode(r, name, endpoint, r.nodeCfg, client)
	r.mu.Lock()
	r.nodes[name] = node
	r.mu.Unlock()

	node.start(r.ctx)

	typ := EventNew
	if ok {
		typ = EventMod
	}
	r.publish(Event{Kind: KindNode, Type: typ, Node: name, NodeObj: ptr(node.snapshot())})
	log.WithComponent("registry").Info().Str("node", name).Str("endpoint", endpoint).Msg("node added")
	return nil
}

// RemoveNode unbinds a node and emits del.
func (r *Registry) RemoveNode(name string) error {
	r.mu.Lock()
	node, ok := r.nodes[name]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.nodes, name)
	r.mu.Unlock()

	node.Stop()
	r.publish(Event{Kind: KindNode, Type: EventDel, Node: name})
	return nil
}

// GetNode looks up a node by name.
func (r *Registry) GetNode(name string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[name]
	return n, ok
}

// ListNodes returns a snapshot slice of all nodes.
func (r *Registry) ListNodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// GetPool looks up a pool by its cluster-unique name.
func (r *Registry) GetPool(name string) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[name]
	return p, ok
}

// ListPools returns a snapshot slice of all pools.
func (r *Registry) ListPools() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p)
	}
	return out
}

// GetReplica looks up a replica by uuid.
func (r *Registry) GetReplica(uuid string) (*Replica, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.replicas[uuid]
	return rep, ok
}

// GetNexus looks up a nexus by uuid.
func (r *Registry) GetNexus(uuid string) (*Nexus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nx, ok := r.nexuses[uuid]
	return nx, ok
}

func (r *Registry) registerPool(p *Pool) {
	r.mu.Lock()
	r.pools[p.Name()] = p
	r.mu.Unlock()
}

func (r *Registry) unregisterPool(name string) {
	r.mu.Lock()
	delete(r.pools, name)
	r.mu.Unlock()
}

func (r *Registry) registerReplica(rep *Replica) {
	r.mu.Lock()
	r.replicas[rep.UUID()] = rep
	r.mu.Unlock()
}

func (r *Registry) unregisterReplica(uuid string) {
	r.mu.Lock()
	delete(r.replicas, uuid)
	r.mu.Unlock()
}

func (r *Registry) registerNexus(nx *Nexus) {
	r.mu.Lock()
	r.nexuses[nx.UUID()] = nx
	r.mu.Unlock()
}

func (r *Registry) unregisterNexus(uuid string) {
	r.mu.Lock()
	delete(r.nexuses, uuid)
	r.mu.Unlock()
}

// GetCapacity sums capacity-used over online|degraded pools, optionally
// restricted to one node. nodeName == "" means cluster-wide (§4.4).
func (r *Registry) GetCapacity(nodeName string) (int64, error) {
	if nodeName != "" {
		if _, ok := r.GetNode(nodeName); !ok {
			return 0, apierror.New(apierror.CodeNotFound, "node %s not found", nodeName)
		}
	}

	var total int64
	for _, p := range r.ListPools() {
		snap := p.Snapshot()
		if !snap.Admissible() {
			continue
		}
		if nodeName != "" && snap.Node != nodeName {
			continue
		}
		total += snap.Free()
	}
	return total, nil
}

// SelectPools implements the §4.4 pool-selection policy for a new replica
// of sizeBytes, returning the sorted admissible candidate list. The caller
// picks top-k with at most one pool per node.
func (r *Registry) SelectPools(sizeBytes int64, mustNodes, shouldNodes []string) []*Pool {
	must := toSet(mustNodes)
	should := toSet(shouldNodes)

	var candidates []*Pool
	for _, p := range r.ListPools() {
		snap := p.Snapshot()
		if !snap.Admissible() {
			continue
		}
		if snap.Free() < sizeBytes {
			continue
		}
		if len(must) > 0 {
			if _, ok := must[snap.Node]; !ok {
				continue
			}
		}
		candidates = append(candidates, p)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Snapshot(), candidates[j].Snapshot()

		_, aShould := should[a.Node]
		_, bShould := should[b.Node]
		if aShould != bShould {
			return aShould
		}

		aOnline := a.State == types.PoolOnline
		bOnline := b.State == types.PoolOnline
		if aOnline != bOnline {
			return aOnline
		}

		if len(a.Replicas) != len(b.Replicas) {
			return len(a.Replicas) < len(b.Replicas)
		}

		return a.Free() > b.Free()
	})

	return candidates
}

func toSet(ss []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		out[s] = struct{}{}
	}
	return out
}
