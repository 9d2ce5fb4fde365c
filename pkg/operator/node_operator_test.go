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

var nodeGVR = schema.GroupVersionResource{Group: "openebs.io", Version: "v1alpha1", Resource: "mayastornodes"}

func newNodeCR(name, endpoint string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion("openebs.io/v1alpha1")
	u.SetKind("MayastorNode")
	u.SetName(name)
	_ = unstructured.SetNestedField(u.Object, endpoint, "spec", "grpcEndpoint")
	return u
}

func newTestNodeCache(t *testing.T, objs ...runtime.Object) *watcher.Cache {
	t.Helper()
	scheme := runtime.NewScheme()
	listKinds := map[schema.GroupVersionResource]string{nodeGVR: "MayastorNodeList"}
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds, objs...)
	cfg := watcher.Config{RestartDelay: 10 * time.Millisecond, IdleTimeout: time.Hour, EventTimeout: 2 * time.Second}
	cache := watcher.New(client, nodeGVR, "", cfg)
	require.NoError(t, cache.Start(context.Background()))
	return cache
}

func TestNodeOperatorAddsNodeFromExistingCR(t *testing.T) {
	agent := newFakeAgent()
	addr := startFakeAgent(t, agent)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := registry.New(ctx, registry.DefaultNodeConfig())

	cache := newTestNodeCache(t, newNodeCR("node-1", addr))

	op := NewNodeOperator(cache, reg)
	op.Start(ctx)
	t.Cleanup(op.Stop)

	waitForOperator(t, time.Second, func() bool {
		_, ok := reg.GetNode("node-1")
		return ok
	})

	node, ok := reg.GetNode("node-1")
	require.True(t, ok)
	require.Equal(t, addr, node.Endpoint())
}

func TestNodeOperatorIgnoresEmptyEndpointAsUnregister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := registry.New(ctx, registry.DefaultNodeConfig())

	cache := newTestNodeCache(t, newNodeCR("node-2", ""))

	op := NewNodeOperator(cache, reg)
	op.Start(ctx)
	t.Cleanup(op.Stop)

	time.Sleep(100 * time.Millisecond)
	_, ok := reg.GetNode("node-2")
	require.False(t, ok)
}

func TestNodeOperatorRemovesNodeOnDelete(t *testing.T) {
	agent := newFakeAgent()
	addr := startFakeAgent(t, agent)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := registry.New(ctx, registry.DefaultNodeConfig())

	cache := newTestNodeCache(t, newNodeCR("node-3", addr))

	op := NewNodeOperator(cache, reg)
	op.Start(ctx)
	t.Cleanup(op.Stop)

	waitForOperator(t, time.Second, func() bool {
		_, ok := reg.GetNode("node-3")
		return ok
	})

	require.NoError(t, cache.Delete(ctx, "node-3"))

	waitForOperator(t, time.Second, func() bool {
		_, ok := reg.GetNode("node-3")
		return !ok
	})
}

func TestNodeOperatorSyncsStatusFromRegistry(t *testing.T) {
	agent := newFakeAgent()
	addr := startFakeAgent(t, agent)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := registry.New(ctx, registry.NodeConfig{
		SyncPeriod:   20 * time.Millisecond,
		SyncRetry:    10 * time.Millisecond,
		SyncBadLimit: 3,
	})

	cache := newTestNodeCache(t, newNodeCR("node-4", addr))

	op := NewNodeOperator(cache, reg)
	op.Start(ctx)
	t.Cleanup(op.Stop)

	waitForOperator(t, 2*time.Second, func() bool {
		obj, ok := cache.Get("node-4")
		if !ok {
			return false
		}
		state, _, _ := unstructured.NestedString(obj.Object, "status")
		return state == "online"
	})
}
