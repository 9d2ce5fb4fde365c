package operator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/nexusvol/control-plane/pkg/log"
	"github.com/nexusvol/control-plane/pkg/registry"
	"github.com/nexusvol/control-plane/pkg/types"
	"github.com/nexusvol/control-plane/pkg/watcher"
)

const poolFinalizer = "nexus.io/pool-protection"

// PoolConfig tunes the PoolOperator's safety-net resync period.
type PoolConfig struct {
	TickPeriod time.Duration
}

// DefaultPoolConfig matches the teacher reconciler's 10s ticker.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{TickPeriod: 10 * time.Second}
}

// PoolOperator reconciles MayastorPool custom resources against the
// Registry: creating the backing pool on first sight, pinning the spec it
// was created from into status.spec so a later spec edit is never silently
// re-applied, and gating the pool-protection finalizer on whether any
// replica still lives on the pool.
type PoolOperator struct {
	cache *watcher.Cache
	reg   *registry.Registry
	cfg   PoolConfig

	kick chan struct{}
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewPoolOperator builds a PoolOperator. Start must be called to begin
// reconciling.
func NewPoolOperator(cache *watcher.Cache, reg *registry.Registry, cfg PoolConfig) *PoolOperator {
	return &PoolOperator{
		cache: cache,
		reg:   reg,
		cfg:   cfg,
		kick:  make(chan struct{}, 1),
	}
}

// Start begins the reconcile loop. The caller owns ctx's lifetime; Stop
// additionally allows tearing down independent of ctx.
func (o *PoolOperator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.stop = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx)
	}()
}

// Stop halts the reconcile loop and waits for it to exit.
func (o *PoolOperator) Stop() {
	if o.stop != nil {
		o.stop()
	}
	o.wg.Wait()
}

func (o *PoolOperator) kickNow() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

func (o *PoolOperator) run(ctx context.Context) {
	sub, unsub := o.reg.Subscribe()
	defer unsub()

	ticker := time.NewTicker(o.cfg.TickPeriod)
	defer ticker.Stop()

	o.reconcileAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.kick:
			o.reconcileAll(ctx)
		case <-ticker.C:
			o.reconcileAll(ctx)
		case e, ok := <-sub:
			if !ok {
				return
			}
			if e.Kind == registry.KindPool || e.Kind == registry.KindReplica {
				o.kickNow()
			}
		case ev, ok := <-o.cache.Events():
			if !ok {
				return
			}
			if ev.Type == watcher.EventDel {
				o.reconcileDelete(ctx, ev.Object)
				continue
			}
			o.kickNow()
		}
	}
}

func (o *PoolOperator) reconcileAll(ctx context.Context) {
	for _, obj := range o.cache.List() {
		o.reconcileOne(ctx, obj)
	}
}

func (o *PoolOperator) reconcileOne(ctx context.Context, obj *unstructured.Unstructured) {
	name := obj.GetName()
	logger := log.WithPoolName(name)

	node, disks, err := o.pinSpec(ctx, obj)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to pin pool spec")
		return
	}

	target, ok := o.reg.GetNode(node)
	if !ok || target.SyncState() != types.NodeSyncOnline {
		o.setStatus(ctx, name, "pending", fmt.Sprintf("node %q is not yet synced", node))
		return
	}

	if pool, exists := target.GetPool(name); exists {
		o.syncFromPool(ctx, name, pool)
		return
	}

	// Adopt-not-move: a pool by this name already exists on a different
	// node. Leave both the CR and the live pool alone rather than ever
	// recreating or relocating it.
	if existing, exists := o.reg.GetPool(name); exists && existing.Node().Name() != node {
		o.syncFromPool(ctx, name, existing)
		return
	}

	o.setStatus(ctx, name, "pending", "creating pool")
	created, err := target.CreatePool(ctx, name, prefixDiskURIs(disks))
	if err != nil {
		o.setStatus(ctx, name, "error", err.Error())
		return
	}
	o.syncFromPool(ctx, name, created)
}

// pinSpec copies spec.node/spec.disks into status.spec on first reconcile,
// then always reads back from status.spec: a later edit to spec must never
// be silently re-applied to an already-created pool.
func (o *PoolOperator) pinSpec(ctx context.Context, obj *unstructured.Unstructured) (node string, disks []string, err error) {
	pinnedNode, pinned, _ := unstructured.NestedString(obj.Object, "status", "spec", "node")
	if pinned {
		pinnedDisks, _, _ := unstructured.NestedStringSlice(obj.Object, "status", "spec", "disks")
		return pinnedNode, pinnedDisks, nil
	}

	specNode, _, _ := unstructured.NestedString(obj.Object, "spec", "node")
	specDisks, _, _ := unstructured.NestedStringSlice(obj.Object, "spec", "disks")

	name := obj.GetName()
	err = o.cache.UpdateStatus(ctx, name, func(u *unstructured.Unstructured) error {
		if err := unstructured.SetNestedField(u.Object, specNode, "status", "spec", "node"); err != nil {
			return err
		}
		diskVals := make([]interface{}, len(specDisks))
		for i, d := range specDisks {
			diskVals[i] = d
		}
		return unstructured.SetNestedSlice(u.Object, diskVals, "status", "spec", "disks")
	})
	return specNode, specDisks, err
}

func (o *PoolOperator) syncFromPool(ctx context.Context, name string, pool *registry.Pool) {
	snap := pool.Snapshot()
	err := o.cache.UpdateStatus(ctx, name, func(u *unstructured.Unstructured) error {
		if err := unstructured.SetNestedField(u.Object, string(snap.State), "status", "state"); err != nil {
			return err
		}
		if err := unstructured.SetNestedField(u.Object, snap.Capacity, "status", "capacity"); err != nil {
			return err
		}
		if err := unstructured.SetNestedField(u.Object, snap.Used, "status", "used"); err != nil {
			return err
		}
		diskVals := make([]interface{}, len(snap.Disks))
		for i, d := range snap.Disks {
			diskVals[i] = d
		}
		if err := unstructured.SetNestedSlice(u.Object, diskVals, "status", "disks"); err != nil {
			return err
		}
		unstructured.RemoveNestedField(u.Object, "status", "reason")
		return nil
	})
	if err != nil {
		log.WithPoolName(name).Warn().Err(err).Msg("failed to sync pool status")
	}

	hasReplicas := len(pool.Replicas()) > 0
	if hasReplicas {
		err = o.cache.AddFinalizer(ctx, name, poolFinalizer)
	} else {
		err = o.cache.RemoveFinalizer(ctx, name, poolFinalizer)
	}
	if err != nil {
		log.WithPoolName(name).Warn().Err(err).Msg("failed to reconcile pool finalizer")
	}
}

func (o *PoolOperator) setStatus(ctx context.Context, name, state, reason string) {
	err := o.cache.UpdateStatus(ctx, name, func(u *unstructured.Unstructured) error {
		if err := unstructured.SetNestedField(u.Object, state, "status", "state"); err != nil {
			return err
		}
		return unstructured.SetNestedField(u.Object, reason, "status", "reason")
	})
	if err != nil {
		log.WithPoolName(name).Warn().Err(err).Msg("failed to set pool status")
	}
}

func (o *PoolOperator) reconcileDelete(ctx context.Context, obj *unstructured.Unstructured) {
	name := obj.GetName()
	node, _, _ := unstructured.NestedString(obj.Object, "status", "spec", "node")
	if node == "" {
		node, _, _ = unstructured.NestedString(obj.Object, "spec", "node")
	}

	target, ok := o.reg.GetNode(node)
	if !ok {
		return
	}
	if err := target.DestroyPool(ctx, name); err != nil {
		log.WithPoolName(name).Warn().Err(err).Msg("failed to destroy pool on CR delete")
	}
}

// prefixDiskURIs defaults bare disk paths to the aio:// backend, leaving any
// path that already names a scheme untouched.
func prefixDiskURIs(disks []string) []string {
	out := make([]string, len(disks))
	for i, d := range disks {
		if strings.Contains(d, "://") {
			out[i] = d
		} else {
			out[i] = "aio://" + d
		}
	}
	return out
}
