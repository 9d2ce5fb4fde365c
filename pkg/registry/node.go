package registry

import (
	"context"
	"sync"
	"time"

	"github.com/nexusvol/control-plane/api/agentpb"
	"github.com/nexusvol/control-plane/pkg/agentclient"
	"github.com/nexusvol/control-plane/pkg/log"
	"github.com/nexusvol/control-plane/pkg/metrics"
	"github.com/nexusvol/control-plane/pkg/types"
)

// NodeConfig holds the Node sync loop's tunables, generalizing the
// teacher's pkg/reconciler hardcoded 10s tick into configurable fields since
// the spec requires them to be parameters.
type NodeConfig struct {
	SyncPeriod   time.Duration // steady-state interval between syncs
	SyncRetry    time.Duration // interval to retry after a failed sync
	SyncBadLimit int           // consecutive failures tolerated before declaring offline
}

// DefaultNodeConfig mirrors the teacher's reconciler loop's cadence.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		SyncPeriod:   10 * time.Second,
		SyncRetry:    2 * time.Second,
		SyncBadLimit: 2,
	}
}

// Node is a storage-agent endpoint running its own periodic sync loop, the
// registry's per-agent logical actor (§5): at most one sync outstanding at a
// time, agent RPCs issued by the Volume FSA are independent of this loop and
// may run concurrently with it.
type Node struct {
	mu sync.RWMutex

	name     string
	endpoint string
	syncState types.NodeSyncState
	badCount int
	synced   bool // has completed at least one successful sync

	pools   map[string]*Pool
	nexuses map[string]*Nexus

	client *agentclient.Client
	cfg    NodeConfig
	reg    *Registry

	stop   context.CancelFunc
	stopWG sync.WaitGroup
}

func newNode(reg *Registry, name, endpoint string, cfg NodeConfig, client *agentclient.Client) *Node {
	return &Node{
		name:      name,
		endpoint:  endpoint,
		syncState: types.NodeSyncSyncing,
		pools:     make(map[string]*Pool),
		nexuses:   make(map[string]*Nexus),
		client:    client,
		cfg:       cfg,
		reg:       reg,
	}
}

// Name returns the node's operator-assigned name.
func (n *Node) Name() string { return n.name }

// Endpoint returns the node's gRPC endpoint.
func (n *Node) Endpoint() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.endpoint
}

// SyncState reports the node's current connectivity state.
func (n *Node) SyncState() types.NodeSyncState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.syncState
}

// Offline reports whether operations against this node must be treated as
// synthetic (per §4.2).
func (n *Node) Offline() bool {
	return n.SyncState() == types.NodeSyncOffline
}

func (n *Node) snapshot() types.Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	pools := make(map[string]struct{}, len(n.pools))
	for name := range n.pools {
		pools[name] = struct{}{}
	}
	nexuses := make(map[string]struct{}, len(n.nexuses))
	for uuid := range n.nexuses {
		nexuses[uuid] = struct{}{}
	}
	return types.Node{
		Name:         n.name,
		Endpoint:     n.endpoint,
		SyncState:    n.syncState,
		BadSyncCount: n.badCount,
		Pools:        pools,
		Nexuses:      nexuses,
	}
}

// start launches the sync loop on its own goroutine, stopped by ctx
// cancellation or Stop().
func (n *Node) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.stop = cancel
	n.stopWG.Add(1)
	go n.run(ctx)
}

func (n *Node) Stop() {
	if n.stop != nil {
		n.stop()
	}
	n.stopWG.Wait()
	if n.client != nil {
		_ = n.client.Close()
	}
}

func (n *Node) run(ctx context.Context) {
	defer n.stopWG.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(n.doSync(ctx))
		}
	}
}

func (n *Node) doSync(ctx context.Context) time.Duration {
	t := metrics.NewTimer()
	err := n.trySync(ctx)
	t.ObserveDuration(metrics.NodeSyncDuration)

	if err != nil {
		metrics.NodeSyncFailuresTotal.Inc()
		log.WithNodeID(n.name).Warn().Err(err).Msg("node sync failed")
		n.mu.Lock()
		n.badCount++
		bad := n.badCount
		n.mu.Unlock()
		if bad > n.cfg.SyncBadLimit {
			n.declareOffline()
		}
		return n.cfg.SyncRetry
	}

	n.mu.Lock()
	wasOffline := n.syncState == types.NodeSyncOffline
	n.badCount = 0
	firstSync := !n.synced
	n.synced = true
	n.syncState = types.NodeSyncOnline
	n.mu.Unlock()

	if firstSync {
		n.reg.publish(Event{Kind: KindNode, Type: EventSync, Node: n.name})
	} else if wasOffline {
		snap := n.snapshot()
		n.reg.publish(Event{Kind: KindNode, Type: EventMod, Node: n.name, NodeObj: &snap})
	}

	return n.cfg.SyncPeriod
}

func (n *Node) trySync(ctx context.Context) error {
	remotePools, err := n.client.ListPools(ctx)
	if err != nil {
		return err
	}
	remoteReplicas, err := n.client.ListReplicas(ctx)
	if err != nil {
		return err
	}
	remoteNexus, err := n.client.ListNexus(ctx)
	if err != nil {
		return err
	}

	n.diffPools(remotePools)
	n.diffReplicas(remoteReplicas)
	n.diffNexus(remoteNexus)
	return nil
}

func (n *Node) diffPools(remote []agentpb.PoolMsg) {
	seen := make(map[string]struct{}, len(remote))
	for _, rp := range remote {
		seen[rp.Name] = struct{}{}
		data := types.Pool{
			Name: rp.Name, Node: n.name, Disks: rp.Disks,
			State: types.PoolState(rp.State), Capacity: rp.Capacity, Used: rp.Used,
		}

		n.mu.Lock()
		pool, exists := n.pools[rp.Name]
		if !exists {
			pool = newPool(n, data)
			n.pools[rp.Name] = pool
			n.mu.Unlock()
			n.reg.registerPool(pool)
			snap := pool.Snapshot()
			n.reg.publish(Event{Kind: KindPool, Type: EventNew, Node: n.name, Key: rp.Name, PoolObj: &snap})
			continue
		}
		n.mu.Unlock()

		if pool.merge(data) {
			snap := pool.Snapshot()
			n.reg.publish(Event{Kind: KindPool, Type: EventMod, Node: n.name, Key: rp.Name, PoolObj: &snap})
		}
	}

	n.mu.Lock()
	var removed []*Pool
	for name, p := range n.pools {
		if _, ok := seen[name]; !ok {
			removed = append(removed, p)
			delete(n.pools, name)
		}
	}
	n.mu.Unlock()

	for _, p := range removed {
		n.reg.unregisterPool(p.Name())
		n.reg.publish(Event{Kind: KindPool, Type: EventDel, Node: n.name, Key: p.Name()})
	}
}

func (n *Node) diffReplicas(remote []agentpb.ReplicaMsg) {
	byPool := make(map[string][]agentpb.ReplicaMsg)
	for _, r := range remote {
		byPool[r.Pool] = append(byPool[r.Pool], r)
	}

	n.mu.RLock()
	pools := make([]*Pool, 0, len(n.pools))
	for _, p := range n.pools {
		pools = append(pools, p)
	}
	n.mu.RUnlock()

	for _, pool := range pools {
		pool.diffReplicas(byPool[pool.Name()])
	}
}

func (n *Node) diffNexus(remote []agentpb.NexusMsg) {
	seen := make(map[string]struct{}, len(remote))
	for _, rn := range remote {
		seen[rn.UUID] = struct{}{}
		data := toNexusData(rn, n.name)

		n.mu.Lock()
		nex, exists := n.nexuses[rn.UUID]
		if !exists {
			nex = newNexus(n, data)
			n.nexuses[rn.UUID] = nex
			n.mu.Unlock()
			n.reg.registerNexus(nex)
			snap := nex.Snapshot()
			n.reg.publish(Event{Kind: KindNexus, Type: EventNew, Node: n.name, Key: rn.UUID, NexusObj: &snap})
			continue
		}
		n.mu.Unlock()

		if nex.merge(data) {
			snap := nex.Snapshot()
			n.reg.publish(Event{Kind: KindNexus, Type: EventMod, Node: n.name, Key: rn.UUID, NexusObj: &snap})
		}
	}

	n.mu.Lock()
	var removed []*Nexus
	for uuid, nx := range n.nexuses {
		if _, ok := seen[uuid]; !ok {
			removed = append(removed, nx)
			delete(n.nexuses, uuid)
		}
	}
	n.mu.Unlock()

	for _, nx := range removed {
		n.reg.unregisterNexus(nx.UUID())
		n.reg.publish(Event{Kind: KindNexus, Type: EventDel, Node: n.name, Key: nx.UUID()})
	}
}

// declareOffline cascades offline state to every owned pool, replica, and
// nexus, per §4.3's syncBadLimit+1 rule.
func (n *Node) declareOffline() {
	n.mu.Lock()
	if n.syncState == types.NodeSyncOffline {
		n.mu.Unlock()
		return
	}
	n.syncState = types.NodeSyncOffline
	pools := make([]*Pool, 0, len(n.pools))
	for _, p := range n.pools {
		pools = append(pools, p)
	}
	nexuses := make([]*Nexus, 0, len(n.nexuses))
	for _, nx := range n.nexuses {
		nexuses = append(nexuses, nx)
	}
	n.mu.Unlock()

	for _, p := range pools {
		if p.markOffline() {
			snap := p.Snapshot()
			n.reg.publish(Event{Kind: KindPool, Type: EventMod, Node: n.name, Key: p.Name(), PoolObj: &snap})
		}
		for _, r := range p.markReplicasOffline() {
			n.reg.publish(Event{Kind: KindReplica, Type: EventMod, Node: n.name, Key: r.UUID(), ReplicaObj: r})
		}
	}
	for _, nx := range nexuses {
		if nx.markOffline() {
			snap := nx.Snapshot()
			n.reg.publish(Event{Kind: KindNexus, Type: EventMod, Node: n.name, Key: nx.UUID(), NexusObj: &snap})
		}
	}

	snap := n.snapshot()
	n.reg.publish(Event{Kind: KindNode, Type: EventMod, Node: n.name, NodeObj: &snap})
}

func toNexusData(rn agentpb.NexusMsg, node string) types.Nexus {
	children := make([]*types.NexusChild, 0, len(rn.Children))
	for _, c := range rn.Children {
		children = append(children, &types.NexusChild{
			URI: c.URI, State: types.ChildState(c.State), RebuildProgress: c.RebuildProgress,
		})
	}
	return types.Nexus{
		UUID: rn.UUID, Node: node, Size: rn.Size, DeviceURI: rn.DeviceURI,
		State: types.NexusState(rn.State), Children: children,
	}
}
