package registry

import (
	"context"
	"testing"
	"time"

	"github.com/nexusvol/control-plane/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVolumeSource struct {
	volumes []types.Volume
}

func (f fakeVolumeSource) ListVolumes() []types.Volume { return f.volumes }

func drain(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case e := <-ch:
			out = append(out, e)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(out))
		}
	}
	return out
}

func TestEventStreamReplaysInOrderThenVolumes(t *testing.T) {
	reg := newTestRegistry(t)
	node := newNode(reg, "node-1", "n1:0", reg.nodeCfg, nil)
	reg.mu.Lock()
	reg.nodes["node-1"] = node
	reg.mu.Unlock()

	pool := newPool(node, types.Pool{Name: "pool-1", Node: "node-1", State: types.PoolOnline, Capacity: 100})
	node.pools["pool-1"] = pool
	reg.registerPool(pool)

	rep := newReplica(pool, types.Replica{UUID: "rep-1", Pool: "pool-1", Node: "node-1", State: types.ReplicaOnline})
	pool.replicas["rep-1"] = rep
	reg.registerReplica(rep)

	nx := newNexus(node, types.Nexus{UUID: "nx-1", Node: "node-1", State: types.NexusOnline})
	node.nexuses["nx-1"] = nx
	reg.registerNexus(nx)

	vols := fakeVolumeSource{volumes: []types.Volume{{UUID: "vol-1", State: types.VolumeHealthy}}}

	stream := NewEventStream(reg, vols)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream.Start(ctx)
	defer stream.Close()

	events := drain(t, stream.Events(), 6)

	require.Equal(t, KindNode, events[0].Kind)
	require.Equal(t, EventNew, events[0].Type)

	require.Equal(t, KindPool, events[1].Kind)
	require.Equal(t, KindReplica, events[2].Kind)
	require.Equal(t, KindNexus, events[3].Kind)

	require.Equal(t, KindNode, events[4].Kind)
	require.Equal(t, EventSync, events[4].Type)

	require.Equal(t, KindVolume, events[5].Kind)
	assert.Equal(t, "vol-1", events[5].Key)
}

func TestEventStreamCoalescesModEventsUnderBackPressure(t *testing.T) {
	reg := newTestRegistry(t)
	stream := NewEventStream(reg, nil)
	stream.dropCap = 2 // force coalescing after a tiny backlog

	stream.enqueue(Event{Kind: KindPool, Type: EventMod, Node: "node-1", Key: "pool-1"})
	stream.enqueue(Event{Kind: KindPool, Type: EventMod, Node: "node-2", Key: "pool-2"})
	// Backlog is now at dropCap; a third mod for an existing key coalesces
	// rather than growing the queue.
	stream.enqueue(Event{Kind: KindPool, Type: EventMod, Node: "node-1", Key: "pool-1"})

	stream.mu.Lock()
	defer stream.mu.Unlock()
	assert.Len(t, stream.queue, 2)
}

func TestEventStreamClosesOutChannelOnClose(t *testing.T) {
	reg := newTestRegistry(t)
	stream := NewEventStream(reg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream.Start(ctx)

	stream.Close()

	select {
	case _, ok := <-stream.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("out channel was not closed")
	}
}
