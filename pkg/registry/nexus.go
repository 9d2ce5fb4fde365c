package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/nexusvol/control-plane/pkg/apierror"
	"github.com/nexusvol/control-plane/pkg/types"
)

// Nexus is the typed mirror of an agent-reported nexus (C2).
type Nexus struct {
	mu   sync.RWMutex
	node *Node
	data types.Nexus
}

func newNexus(node *Node, data types.Nexus) *Nexus {
	sortChildrenByURI(data.Children)
	return &Nexus{node: node, data: data}
}

func (nx *Nexus) UUID() string {
	nx.mu.RLock()
	defer nx.mu.RUnlock()
	return nx.data.UUID
}

// Node returns the owning Node.
func (nx *Nexus) Node() *Node { return nx.node }

// Snapshot returns a value copy of the nexus's observable state, with
// children sorted by URI per the design notes' externally-visible ordering
// requirement.
func (nx *Nexus) Snapshot() types.Nexus {
	nx.mu.RLock()
	defer nx.mu.RUnlock()
	cp := nx.data
	cp.Children = append([]*types.NexusChild(nil), nx.data.Children...)
	return cp
}

func sortChildrenByURI(children []*types.NexusChild) {
	sort.Slice(children, func(i, j int) bool { return children[i].URI < children[j].URI })
}

func childrenEqual(a, b []*types.NexusChild) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].URI != b[i].URI || a[i].State != b[i].State || a[i].RebuildProgress != b[i].RebuildProgress {
			return false
		}
	}
	return true
}

// merge updates local fields from a fresh agent snapshot. Child equality is
// order-independent on uri (matched by sorting both sides) but
// order-sensitive on (state, rebuildProgress) of the matched children.
func (nx *Nexus) merge(remote types.Nexus) bool {
	nx.mu.Lock()
	defer nx.mu.Unlock()
	sortChildrenByURI(remote.Children)
	changed := nx.data.State != remote.State ||
		nx.data.DeviceURI != remote.DeviceURI ||
		!childrenEqual(nx.data.Children, remote.Children)
	nx.data.State = remote.State
	nx.data.DeviceURI = remote.DeviceURI
	nx.data.Size = remote.Size
	nx.data.Children = remote.Children
	return changed
}

func (nx *Nexus) markOffline() bool {
	nx.mu.Lock()
	defer nx.mu.Unlock()
	if nx.data.State == types.NexusOffline {
		return false
	}
	nx.data.State = types.NexusOffline
	return true
}

// Destroy issues destroyNexus. If the owning node is offline it succeeds
// synthetically (§4.2).
func (nx *Nexus) Destroy(ctx context.Context) error {
	node := nx.node
	if !node.Offline() {
		if err := node.client.DestroyNexus(ctx, nx.UUID()); err != nil {
			return apierror.Wrap(apierror.CodeInternal, err, "destroy nexus %s", nx.UUID())
		}
	}

	node.mu.Lock()
	delete(node.nexuses, nx.UUID())
	node.mu.Unlock()
	node.reg.unregisterNexus(nx.UUID())
	node.reg.publish(Event{Kind: KindNexus, Type: EventDel, Node: node.Name(), Key: nx.UUID()})
	return nil
}

// Publish issues publishNexus for the given protocol and records the
// returned device URI. Fails INTERNAL if the owning node is offline.
func (nx *Nexus) Publish(ctx context.Context, protocol types.VolumeProtocol) (string, error) {
	if nx.node.Offline() {
		return "", apierror.New(apierror.CodeInternal, "node %s is offline", nx.node.Name())
	}
	deviceURI, err := nx.node.client.PublishNexus(ctx, nx.UUID(), string(protocol))
	if err != nil {
		return "", apierror.Wrap(apierror.CodeInternal, err, "publish nexus %s", nx.UUID())
	}

	nx.mu.Lock()
	nx.data.DeviceURI = deviceURI
	nx.mu.Unlock()
	nx.node.reg.publish(Event{Kind: KindNexus, Type: EventMod, Node: nx.node.Name(), Key: nx.UUID(), NexusObj: ptr(nx.Snapshot())})
	return deviceURI, nil
}

// Unpublish issues unpublishNexus. If the owning node is offline the local
// device URI is cleared immediately (synthetic success, §4.6 Unpublish).
func (nx *Nexus) Unpublish(ctx context.Context) error {
	if nx.node.Offline() {
		nx.mu.Lock()
		nx.data.DeviceURI = ""
		nx.mu.Unlock()
		nx.node.reg.publish(Event{Kind: KindNexus, Type: EventMod, Node: nx.node.Name(), Key: nx.UUID(), NexusObj: ptr(nx.Snapshot())})
		return nil
	}

	if err := nx.node.client.UnpublishNexus(ctx, nx.UUID()); err != nil {
		return apierror.Wrap(apierror.CodeInternal, err, "unpublish nexus %s", nx.UUID())
	}
	nx.mu.Lock()
	nx.data.DeviceURI = ""
	nx.mu.Unlock()
	nx.node.reg.publish(Event{Kind: KindNexus, Type: EventMod, Node: nx.node.Name(), Key: nx.UUID(), NexusObj: ptr(nx.Snapshot())})
	return nil
}

// AddChild issues addChildNexus for childURI, entering the nexus as
// degraded (rebuild) per §4.6 rule 4.
func (nx *Nexus) AddChild(ctx context.Context, childURI string) error {
	if nx.node.Offline() {
		return apierror.New(apierror.CodeInternal, "node %s is offline", nx.node.Name())
	}
	msg, err := nx.node.client.AddChildNexus(ctx, nx.UUID(), childURI)
	if err != nil {
		return apierror.Wrap(apierror.CodeInternal, err, "add child %s to nexus %s", childURI, nx.UUID())
	}
	nx.merge(toNexusData(msg.Nexus, nx.node.Name()))
	nx.node.reg.publish(Event{Kind: KindNexus, Type: EventMod, Node: nx.node.Name(), Key: nx.UUID(), NexusObj: ptr(nx.Snapshot())})
	return nil
}

// RemoveChild issues removeChildNexus for childURI.
func (nx *Nexus) RemoveChild(ctx context.Context, childURI string) error {
	if nx.node.Offline() {
		return apierror.New(apierror.CodeInternal, "node %s is offline", nx.node.Name())
	}
	if err := nx.node.client.RemoveChildNexus(ctx, nx.UUID(), childURI); err != nil {
		return apierror.Wrap(apierror.CodeInternal, err, "remove child %s from nexus %s", childURI, nx.UUID())
	}
	nx.mu.Lock()
	kept := nx.data.Children[:0]
	for _, c := range nx.data.Children {
		if c.URI != childURI {
			kept = append(kept, c)
		}
	}
	nx.data.Children = kept
	nx.mu.Unlock()
	nx.node.reg.publish(Event{Kind: KindNexus, Type: EventMod, Node: nx.node.Name(), Key: nx.UUID(), NexusObj: ptr(nx.Snapshot())})
	return nil
}
