package registry

import (
	"context"
	"testing"
	"time"

	"github.com/nexusvol/control-plane/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, NodeConfig{SyncPeriod: time.Hour, SyncRetry: time.Hour, SyncBadLimit: 2})
}

func testPool(node *Node, name string, state types.PoolState, capacity, used int64) *Pool {
	return newPool(node, types.Pool{
		Name: name, Node: node.Name(), State: state, Capacity: capacity, Used: used,
	})
}

func TestSelectPoolsFiltersBySizeAndAdmissibility(t *testing.T) {
	reg := newTestRegistry(t)
	n1 := newNode(reg, "node-1", "n1:0", reg.nodeCfg, nil)

	tooSmall := testPool(n1, "pool-small", types.PoolOnline, 10, 5)
	faulted := testPool(n1, "pool-faulted", types.PoolFaulted, 1000, 0)
	ok := testPool(n1, "pool-ok", types.PoolOnline, 1000, 0)
	reg.registerPool(tooSmall)
	reg.registerPool(faulted)
	reg.registerPool(ok)

	candidates := reg.SelectPools(100, nil, nil)
	require.Len(t, candidates, 1)
	assert.Equal(t, "pool-ok", candidates[0].Name())
}

func TestSelectPoolsPrefersShouldNodes(t *testing.T) {
	reg := newTestRegistry(t)
	n1 := newNode(reg, "node-1", "n1:0", reg.nodeCfg, nil)
	n2 := newNode(reg, "node-2", "n2:0", reg.nodeCfg, nil)

	// node-1's pool has more free space, but node-2 is in shouldNodes.
	pA := testPool(n1, "pool-a", types.PoolOnline, 1000, 100)
	pB := testPool(n2, "pool-b", types.PoolOnline, 1000, 900)
	reg.registerPool(pA)
	reg.registerPool(pB)

	candidates := reg.SelectPools(10, nil, []string{"node-2"})
	require.Len(t, candidates, 2)
	assert.Equal(t, "pool-b", candidates[0].Name())
}

func TestSelectPoolsRestrictsToMustNodes(t *testing.T) {
	reg := newTestRegistry(t)
	n1 := newNode(reg, "node-1", "n1:0", reg.nodeCfg, nil)
	n2 := newNode(reg, "node-2", "n2:0", reg.nodeCfg, nil)

	pA := testPool(n1, "pool-a", types.PoolOnline, 1000, 0)
	pB := testPool(n2, "pool-b", types.PoolOnline, 1000, 0)
	reg.registerPool(pA)
	reg.registerPool(pB)

	candidates := reg.SelectPools(10, []string{"node-2"}, nil)
	require.Len(t, candidates, 1)
	assert.Equal(t, "pool-b", candidates[0].Name())
}

func TestGetCapacitySumsAdmissiblePoolsOnly(t *testing.T) {
	reg := newTestRegistry(t)
	n1 := newNode(reg, "node-1", "n1:0", reg.nodeCfg, nil)

	reg.registerPool(testPool(n1, "pool-online", types.PoolOnline, 100, 40))
	reg.registerPool(testPool(n1, "pool-degraded", types.PoolDegraded, 100, 90))
	reg.registerPool(testPool(n1, "pool-faulted", types.PoolFaulted, 100, 0))

	total, err := reg.GetCapacity("")
	require.NoError(t, err)
	assert.EqualValues(t, 70, total) // (100-40) + (100-90); faulted excluded
}

func TestGetCapacityUnknownNodeIsNotFound(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.GetCapacity("does-not-exist")
	assert.Error(t, err)
}

func TestAddNodeSameEndpointIsNoop(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.AddNode("node-1", "127.0.0.1:0"))
	first, ok := reg.GetNode("node-1")
	require.True(t, ok)

	require.NoError(t, reg.AddNode("node-1", "127.0.0.1:0"))
	second, ok := reg.GetNode("node-1")
	require.True(t, ok)
	assert.Same(t, first, second)

	require.NoError(t, reg.RemoveNode("node-1"))
	_, ok = reg.GetNode("node-1")
	assert.False(t, ok)
}

func TestAddNodeDifferentEndpointReconnects(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.AddNode("node-1", "127.0.0.1:1"))
	first, _ := reg.GetNode("node-1")

	require.NoError(t, reg.AddNode("node-1", "127.0.0.1:2"))
	second, ok := reg.GetNode("node-1")
	require.True(t, ok)
	assert.NotSame(t, first, second)
	assert.Equal(t, "127.0.0.1:2", second.Endpoint())

	require.NoError(t, reg.RemoveNode("node-1"))
}
