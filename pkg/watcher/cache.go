package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	retry "github.com/avast/retry-go"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/tools/cache"

	"github.com/nexusvol/control-plane/pkg/apierror"
	"github.com/nexusvol/control-plane/pkg/log"
	"github.com/nexusvol/control-plane/pkg/metrics"
)

// EventType is the cache's change classification for a custom resource.
type EventType string

const (
	EventNew EventType = "new"
	EventMod EventType = "mod"
	EventDel EventType = "del"
)

// Event is delivered for every observed add/update/delete, de-duplicated by
// generation where the resource carries one.
type Event struct {
	Type   EventType
	Object *unstructured.Unstructured
}

// Config holds the Cache's tunables (spec.md §4.8).
type Config struct {
	RestartDelay time.Duration // initial backoff, doubled on each subsequent list/watch failure
	IdleTimeout  time.Duration // tear down and rebuild if no watch event arrives for this long
	EventTimeout time.Duration // how long a write waits for its own event to come back
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		RestartDelay: time.Second,
		IdleTimeout:  5 * time.Minute,
		EventTimeout: 10 * time.Second,
	}
}

// unboundedRetries is a practical stand-in for "retry forever"; retry.Context
// is what actually bounds the loop, by aborting once ctx is cancelled.
const unboundedRetries = ^uint(0)

// Cache is a generic list-watch cache over one GroupVersionResource (C8).
type Cache struct {
	gvr       schema.GroupVersionResource
	namespace string
	client    dynamic.Interface
	cfg       Config

	events chan Event

	mu          sync.Mutex
	lastGen     map[string]int64
	waiters     map[string][]chan struct{}
	store       cache.Store
	cancelRun   context.CancelFunc
	lastEventAt time.Time
}

// New constructs a Cache for gvr. namespace == "" watches cluster-wide.
func New(client dynamic.Interface, gvr schema.GroupVersionResource, namespace string, cfg Config) *Cache {
	return &Cache{
		gvr:       gvr,
		namespace: namespace,
		client:    client,
		cfg:       cfg,
		events:    make(chan Event, 256),
		lastGen:   make(map[string]int64),
		waiters:   make(map[string][]chan struct{}),
	}
}

// Events returns the channel new|mod|del events are delivered on.
func (c *Cache) Events() <-chan Event { return c.events }

// Start blocks until the first list completes (retrying with exponential
// backoff on failure), then launches the idle-reset supervisor in the
// background and returns.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.connectWithBackoff(ctx); err != nil {
		return err
	}
	go c.superviseIdle(ctx)
	return nil
}

func (c *Cache) connectWithBackoff(ctx context.Context) error {
	return retry.Do(
		func() error { return c.connect(ctx) },
		retry.Context(ctx),
		retry.Attempts(unboundedRetries),
		retry.Delay(c.cfg.RestartDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			metrics.WatcherRestartsTotal.WithLabelValues(c.gvr.Resource).Inc()
			log.WithComponent("watcher").Warn().Err(err).Str("resource", c.gvr.Resource).Uint("attempt", n).Msg("list-watch failed, backing off")
		}),
	)
}

// connect builds a fresh informer, starts it, and waits for the initial
// list to complete. A SharedIndexInformer cannot be restarted, so idle-reset
// and failure-retry both go through this constructor rather than reusing one.
func (c *Cache) connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	lw := &cache.ListWatch{
		ListFunc: func(opts metav1.ListOptions) (runtime.Object, error) {
			return c.resourceClient().List(runCtx, opts)
		},
		WatchFunc: func(opts metav1.ListOptions) (watch.Interface, error) {
			return c.resourceClient().Watch(runCtx, opts)
		},
	}

	informer := cache.NewSharedIndexInformer(lw, &unstructured.Unstructured{}, 0, cache.Indexers{})
	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    func(obj any) { c.handle(EventNew, obj) },
		UpdateFunc: func(_, obj any) { c.handle(EventMod, obj) },
		DeleteFunc: func(obj any) { c.handle(EventDel, obj) },
	})
	if err != nil {
		cancel()
		return fmt.Errorf("watcher: register event handler for %s: %w", c.gvr.Resource, err)
	}

	go informer.Run(runCtx.Done())
	if !cache.WaitForCacheSync(runCtx.Done(), informer.HasSynced) {
		cancel()
		return fmt.Errorf("watcher: cache sync failed for %s", c.gvr.Resource)
	}

	c.mu.Lock()
	if c.cancelRun != nil {
		c.cancelRun()
	}
	c.store = informer.GetStore()
	c.cancelRun = cancel
	c.lastEventAt = time.Now()
	c.mu.Unlock()
	return nil
}

// superviseIdle tears down and rebuilds the cache whenever no watch event
// has arrived within IdleTimeout, recovering from silent TCP black-holes.
func (c *Cache) superviseIdle(ctx context.Context) {
	period := c.cfg.IdleTimeout / 4
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			idle := time.Since(c.lastEventAt)
			c.mu.Unlock()
			if idle < c.cfg.IdleTimeout {
				continue
			}
			log.WithComponent("watcher").Warn().Str("resource", c.gvr.Resource).Msg("watcher idle timeout, rebuilding cache")
			if err := c.connectWithBackoff(ctx); err != nil {
				return // ctx cancelled mid-backoff
			}
		}
	}
}

func (c *Cache) resourceClient() dynamic.ResourceInterface {
	r := c.client.Resource(c.gvr)
	if c.namespace != "" {
		return r.Namespace(c.namespace)
	}
	return r
}

// handle classifies and forwards one informer callback, de-duplicating by
// generation and waking any write operation waiting on this name.
func (c *Cache) handle(t EventType, obj any) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		if tomb, isTomb := obj.(cache.DeletedFinalStateUnknown); isTomb {
			u, ok = tomb.Obj.(*unstructured.Unstructured)
		}
		if !ok {
			log.WithComponent("watcher").Warn().Str("resource", c.gvr.Resource).Msg("dropping malformed watch object")
			return
		}
	}

	name := u.GetName()
	gen := u.GetGeneration()

	c.mu.Lock()
	duplicate := false
	if t != EventDel && gen > 0 {
		if last, seen := c.lastGen[name]; seen && gen <= last {
			duplicate = true
		} else {
			c.lastGen[name] = gen
		}
	}
	if t == EventDel {
		delete(c.lastGen, name)
	}
	c.lastEventAt = time.Now()
	waiters := c.waiters[name]
	delete(c.waiters, name)
	c.mu.Unlock()

	// A write whose event carries no newer generation (status and finalizer
	// updates) still wakes its waiter; only the event itself is suppressed.
	for _, w := range waiters {
		close(w)
	}
	if duplicate {
		return
	}

	metrics.WatcherEventsTotal.WithLabelValues(c.gvr.Resource, string(t)).Inc()

	select {
	case c.events <- Event{Type: t, Object: u.DeepCopy()}:
	default:
		log.WithComponent("watcher").Warn().Str("resource", c.gvr.Resource).Str("name", name).Msg("event channel full, dropping event")
	}
}

// Get returns a deep copy of the cached resource, if present.
func (c *Cache) Get(name string) (*unstructured.Unstructured, bool) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return nil, false
	}
	obj, exists, err := store.GetByKey(c.key(name))
	if err != nil || !exists {
		return nil, false
	}
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		return nil, false
	}
	return u.DeepCopy(), true
}

// List returns a deep-copied snapshot of every cached resource.
func (c *Cache) List() []*unstructured.Unstructured {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return nil
	}
	items := store.List()
	out := make([]*unstructured.Unstructured, 0, len(items))
	for _, it := range items {
		if u, ok := it.(*unstructured.Unstructured); ok {
			out = append(out, u.DeepCopy())
		}
	}
	return out
}

func (c *Cache) key(name string) string {
	if c.namespace != "" {
		return c.namespace + "/" + name
	}
	return name
}

func (c *Cache) registerWaiter(name string) chan struct{} {
	ch := make(chan struct{})
	c.mu.Lock()
	c.waiters[name] = append(c.waiters[name], ch)
	c.mu.Unlock()
	return ch
}

func (c *Cache) cancelWaiter(name string, ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.waiters[name]
	for i, w := range list {
		if w == ch {
			c.waiters[name] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func (c *Cache) awaitEvent(ctx context.Context, ch chan struct{}) error {
	timer := time.NewTimer(c.cfg.EventTimeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return apierror.New(apierror.CodeDeadlineExceeded, "timed out waiting for %s watch event", c.gvr.Resource)
	case <-ctx.Done():
		return apierror.Wrap(apierror.CodeDeadlineExceeded, ctx.Err(), "cancelled waiting for %s watch event", c.gvr.Resource)
	}
}

// Create creates obj and waits for the corresponding new event.
func (c *Cache) Create(ctx context.Context, obj *unstructured.Unstructured) error {
	wait := c.registerWaiter(obj.GetName())
	if _, err := c.resourceClient().Create(ctx, obj, metav1.CreateOptions{}); err != nil {
		c.cancelWaiter(obj.GetName(), wait)
		return apierror.Wrap(apierror.CodeInternal, err, "create %s %s", c.gvr.Resource, obj.GetName())
	}
	return c.awaitEvent(ctx, wait)
}

// Delete deletes name and waits for the corresponding del event. A missing
// resource is treated as already deleted.
func (c *Cache) Delete(ctx context.Context, name string) error {
	wait := c.registerWaiter(name)
	if err := c.resourceClient().Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
		c.cancelWaiter(name, wait)
		if apierrors.IsNotFound(err) {
			return nil
		}
		return apierror.Wrap(apierror.CodeInternal, err, "delete %s %s", c.gvr.Resource, name)
	}
	return c.awaitEvent(ctx, wait)
}

// Update applies fn to the current resource and writes it back, retrying
// once on a conflicting concurrent write, then waits for the mod event.
func (c *Cache) Update(ctx context.Context, name string, fn func(*unstructured.Unstructured) error) error {
	return c.updateRetrying(ctx, name, fn, false)
}

// UpdateStatus is Update restricted to the status subresource.
func (c *Cache) UpdateStatus(ctx context.Context, name string, fn func(*unstructured.Unstructured) error) error {
	return c.updateRetrying(ctx, name, fn, true)
}

func (c *Cache) updateRetrying(ctx context.Context, name string, fn func(*unstructured.Unstructured) error, status bool) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		current, err := c.resourceClient().Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return apierror.Wrap(apierror.CodeInternal, err, "get %s %s before update", c.gvr.Resource, name)
		}
		if err := fn(current); err != nil {
			return err
		}

		wait := c.registerWaiter(name)
		var updateErr error
		if status {
			_, updateErr = c.resourceClient().UpdateStatus(ctx, current, metav1.UpdateOptions{})
		} else {
			_, updateErr = c.resourceClient().Update(ctx, current, metav1.UpdateOptions{})
		}
		if updateErr == nil {
			return c.awaitEvent(ctx, wait)
		}
		c.cancelWaiter(name, wait)
		if !apierrors.IsConflict(updateErr) {
			return apierror.Wrap(apierror.CodeInternal, updateErr, "update %s %s", c.gvr.Resource, name)
		}
		lastErr = updateErr
	}
	return apierror.Wrap(apierror.CodeInternal, lastErr, "update %s %s: conflict retry exhausted", c.gvr.Resource, name)
}

// AddFinalizer adds finalizer if not already present.
func (c *Cache) AddFinalizer(ctx context.Context, name, finalizer string) error {
	current, err := c.resourceClient().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return apierror.Wrap(apierror.CodeInternal, err, "get %s %s before add finalizer", c.gvr.Resource, name)
	}
	for _, f := range current.GetFinalizers() {
		if f == finalizer {
			return nil
		}
	}
	return c.Update(ctx, name, func(obj *unstructured.Unstructured) error {
		obj.SetFinalizers(append(obj.GetFinalizers(), finalizer))
		return nil
	})
}

// RemoveFinalizer removes finalizer if present.
func (c *Cache) RemoveFinalizer(ctx context.Context, name, finalizer string) error {
	current, err := c.resourceClient().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return apierror.Wrap(apierror.CodeInternal, err, "get %s %s before remove finalizer", c.gvr.Resource, name)
	}
	present := false
	for _, f := range current.GetFinalizers() {
		if f == finalizer {
			present = true
			break
		}
	}
	if !present {
		return nil
	}
	return c.Update(ctx, name, func(obj *unstructured.Unstructured) error {
		finalizers := obj.GetFinalizers()
		kept := finalizers[:0]
		for _, f := range finalizers {
			if f != finalizer {
				kept = append(kept, f)
			}
		}
		obj.SetFinalizers(kept)
		return nil
	})
}
