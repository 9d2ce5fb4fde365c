package operator

import (
	"context"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/nexusvol/control-plane/pkg/log"
	"github.com/nexusvol/control-plane/pkg/registry"
	"github.com/nexusvol/control-plane/pkg/types"
	"github.com/nexusvol/control-plane/pkg/watcher"
)

// NodeOperator reconciles MayastorNode custom resources against the
// Registry. A node CR's spec is authoritative only at birth: new|del drive
// AddNode/RemoveNode, and any later spec edit (a "mod" event) is ignored.
// From then on the relationship inverts — the Registry is authoritative, and
// NodeOperator writes the observed sync state and live endpoint back onto
// the CR whenever the registry reports a change.
type NodeOperator struct {
	cache *watcher.Cache
	reg   *registry.Registry

	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewNodeOperator builds a NodeOperator. Start must be called to begin
// reconciling.
func NewNodeOperator(cache *watcher.Cache, reg *registry.Registry) *NodeOperator {
	return &NodeOperator{cache: cache, reg: reg}
}

// Start begins the reconcile loop.
func (o *NodeOperator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.stop = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx)
	}()
}

// Stop halts the reconcile loop and waits for it to exit.
func (o *NodeOperator) Stop() {
	if o.stop != nil {
		o.stop()
	}
	o.wg.Wait()
}

func (o *NodeOperator) run(ctx context.Context) {
	sub, unsub := o.reg.Subscribe()
	defer unsub()

	for _, obj := range o.cache.List() {
		o.handleNew(ctx, obj)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.cache.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case watcher.EventNew:
				o.handleNew(ctx, ev.Object)
			case watcher.EventDel:
				o.handleDelete(ctx, ev.Object)
			case watcher.EventMod:
				// Spec is authoritative only at birth; later spec edits to
				// an already-registered node are never re-applied.
			}
		case e, ok := <-sub:
			if !ok {
				return
			}
			if e.Kind == registry.KindNode {
				o.syncStatus(ctx, e.Node)
			}
		}
	}
}

func (o *NodeOperator) handleNew(ctx context.Context, obj *unstructured.Unstructured) {
	name := obj.GetName()
	endpoint, _, _ := unstructured.NestedString(obj.Object, "spec", "grpcEndpoint")
	if endpoint == "" {
		// An empty endpoint is treated as an unregister request: the node is
		// never added to the registry.
		return
	}
	if _, exists := o.reg.GetNode(name); exists {
		return
	}
	if err := o.reg.AddNode(name, endpoint); err != nil {
		log.WithNodeID(name).Warn().Err(err).Msg("failed to add node from custom resource")
	}
}

func (o *NodeOperator) handleDelete(ctx context.Context, obj *unstructured.Unstructured) {
	name := obj.GetName()
	if err := o.reg.RemoveNode(name); err != nil {
		log.WithNodeID(name).Warn().Err(err).Msg("failed to remove node on custom resource delete")
	}
}

func (o *NodeOperator) syncStatus(ctx context.Context, name string) {
	node, ok := o.reg.GetNode(name)

	state := "unknown"
	endpoint := ""
	if ok {
		endpoint = node.Endpoint()
		if node.SyncState() == types.NodeSyncOnline {
			state = "online"
		} else {
			state = "offline"
		}
	}

	err := o.cache.Update(ctx, name, func(u *unstructured.Unstructured) error {
		if err := unstructured.SetNestedField(u.Object, state, "status"); err != nil {
			return err
		}
		return unstructured.SetNestedField(u.Object, endpoint, "spec", "grpcEndpoint")
	})
	if err != nil {
		log.WithNodeID(name).Warn().Err(err).Msg("failed to sync node status")
	}
}
