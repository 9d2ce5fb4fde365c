package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
)

var poolGVR = schema.GroupVersionResource{Group: "openebs.io", Version: "v1alpha1", Resource: "mayastorpools"}

func newTestCache(t *testing.T, objs ...runtime.Object) (*Cache, *dynamicfake.FakeDynamicClient) {
	t.Helper()
	scheme := runtime.NewScheme()
	listKinds := map[schema.GroupVersionResource]string{poolGVR: "MayastorPoolList"}
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds, objs...)

	cfg := Config{RestartDelay: 10 * time.Millisecond, IdleTimeout: time.Hour, EventTimeout: 2 * time.Second}
	return New(client, poolGVR, "", cfg), client
}

func newPool(name, node string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetAPIVersion("openebs.io/v1alpha1")
	u.SetKind("MayastorPool")
	u.SetName(name)
	_ = unstructured.SetNestedField(u.Object, node, "spec", "node")
	return u
}

func TestCacheStartSyncsExistingObjects(t *testing.T) {
	cache, _ := newTestCache(t, newPool("pool-a", "node-1"))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, cache.Start(ctx))

	obj, ok := cache.Get("pool-a")
	require.True(t, ok)
	node, _, _ := unstructured.NestedString(obj.Object, "spec", "node")
	require.Equal(t, "node-1", node)
}

func TestCacheCreateWaitsForEvent(t *testing.T) {
	cache, _ := newTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, cache.Start(ctx))
	require.NoError(t, cache.Create(ctx, newPool("pool-b", "node-2")))

	obj, ok := cache.Get("pool-b")
	require.True(t, ok)
	node, _, _ := unstructured.NestedString(obj.Object, "spec", "node")
	require.Equal(t, "node-2", node)
}

func TestCacheUpdateAppliesFn(t *testing.T) {
	cache, _ := newTestCache(t, newPool("pool-c", "node-1"))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, cache.Start(ctx))

	err := cache.Update(ctx, "pool-c", func(obj *unstructured.Unstructured) error {
		return unstructured.SetNestedField(obj.Object, "node-2", "spec", "node")
	})
	require.NoError(t, err)

	obj, ok := cache.Get("pool-c")
	require.True(t, ok)
	node, _, _ := unstructured.NestedString(obj.Object, "spec", "node")
	require.Equal(t, "node-2", node)
}

func TestCacheAddFinalizerIsIdempotent(t *testing.T) {
	cache, _ := newTestCache(t, newPool("pool-d", "node-1"))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, cache.Start(ctx))

	require.NoError(t, cache.AddFinalizer(ctx, "pool-d", "nexus.io/pool-protection"))
	obj, ok := cache.Get("pool-d")
	require.True(t, ok)
	require.Contains(t, obj.GetFinalizers(), "nexus.io/pool-protection")

	// Second call observes the finalizer already present and is a no-op,
	// not a second watch-event wait.
	require.NoError(t, cache.AddFinalizer(ctx, "pool-d", "nexus.io/pool-protection"))

	require.NoError(t, cache.RemoveFinalizer(ctx, "pool-d", "nexus.io/pool-protection"))
	obj, ok = cache.Get("pool-d")
	require.True(t, ok)
	require.NotContains(t, obj.GetFinalizers(), "nexus.io/pool-protection")
}

func TestCacheDeleteOnMissingResourceSucceeds(t *testing.T) {
	cache, _ := newTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, cache.Start(ctx))

	require.NoError(t, cache.Delete(ctx, "does-not-exist"))
}
