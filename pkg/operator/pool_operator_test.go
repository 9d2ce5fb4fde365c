package operator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/nexusvol/control-plane/pkg/registry"
	"github.com/nexusvol/control-plane/pkg/watcher"
)

var poolGVR = schema.GroupVersionResource{Group: "openebs.io", Version: "v1alpha1", Resource: "mayastorpools"}

func newPoolCR(name, node string, disks ...string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion("openebs.io/v1alpha1")
	u.SetKind("MayastorPool")
	u.SetName(name)
	_ = unstructured.SetNestedField(u.Object, node, "spec", "node")
	diskVals := make([]interface{}, len(disks))
	for i, d := range disks {
		diskVals[i] = d
	}
	_ = unstructured.SetNestedSlice(u.Object, diskVals, "spec", "disks")
	return u
}

func newTestPoolCache(t *testing.T, objs ...runtime.Object) *watcher.Cache {
	t.Helper()
	scheme := runtime.NewScheme()
	listKinds := map[schema.GroupVersionResource]string{poolGVR: "MayastorPoolList"}
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds, objs...)
	cfg := watcher.Config{RestartDelay: 10 * time.Millisecond, IdleTimeout: time.Hour, EventTimeout: 2 * time.Second}
	cache := watcher.New(client, poolGVR, "", cfg)
	require.NoError(t, cache.Start(context.Background()))
	return cache
}

func newTestRegistryWithNode(t *testing.T, nodeName string, agent *fakeAgent) *registry.Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := registry.New(ctx, registry.NodeConfig{
		SyncPeriod:   20 * time.Millisecond,
		SyncRetry:    10 * time.Millisecond,
		SyncBadLimit: 3,
	})
	addr := startFakeAgent(t, agent)
	require.NoError(t, reg.AddNode(nodeName, addr))
	return reg
}

func waitForOperator(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition never became true within %s", timeout)
}

func TestPoolOperatorCreatesPoolAndPinsSpec(t *testing.T) {
	agent := newFakeAgent()
	reg := newTestRegistryWithNode(t, "node-1", agent)

	cache := newTestPoolCache(t, newPoolCR("pool-a", "node-1", "/dev/sdb"))

	op := NewPoolOperator(cache, reg, PoolConfig{TickPeriod: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	op.Start(ctx)
	t.Cleanup(func() {
		op.Stop()
		cancel()
	})

	waitForOperator(t, 2*time.Second, func() bool {
		obj, ok := cache.Get("pool-a")
		if !ok {
			return false
		}
		state, _, _ := unstructured.NestedString(obj.Object, "status", "state")
		return state == "online"
	})

	obj, ok := cache.Get("pool-a")
	require.True(t, ok)

	pinnedDisks, _, _ := unstructured.NestedStringSlice(obj.Object, "status", "spec", "disks")
	require.Equal(t, []string{"/dev/sdb"}, pinnedDisks)

	agent.mu.Lock()
	created, exists := agent.pools["pool-a"]
	agent.mu.Unlock()
	require.True(t, exists)
	require.Equal(t, []string{"aio:///dev/sdb"}, created.Disks)
}

func TestPoolOperatorSetsPendingWhenNodeUnsynced(t *testing.T) {
	agent := newFakeAgent()
	reg := newTestRegistryWithNode(t, "node-1", agent)

	cache := newTestPoolCache(t, newPoolCR("pool-b", "node-missing", "/dev/sdc"))

	op := NewPoolOperator(cache, reg, PoolConfig{TickPeriod: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	op.Start(ctx)
	t.Cleanup(func() {
		op.Stop()
		cancel()
	})

	waitForOperator(t, time.Second, func() bool {
		obj, ok := cache.Get("pool-b")
		if !ok {
			return false
		}
		state, _, _ := unstructured.NestedString(obj.Object, "status", "state")
		return state == "pending"
	})
}
