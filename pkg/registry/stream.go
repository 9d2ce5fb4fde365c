package registry

import (
	"context"
	"sync"

	"github.com/nexusvol/control-plane/pkg/metrics"
	"github.com/nexusvol/control-plane/pkg/types"
)

// VolumeSource supplies the volume "new" events emitted at the tail of an
// EventStream's replay. It is a narrow interface rather than a direct
// dependency on pkg/volume.Manager to avoid an import cycle (pkg/volume
// depends on pkg/registry, not the other way around).
type VolumeSource interface {
	ListVolumes() []types.Volume
}

const (
	// outBuffer bounds the channel the consumer reads from; beyond this the
	// stream queues internally rather than blocking the registry (§5
	// Watcher pressure).
	outBuffer = 512
	// defaultStreamDropCap is the default queue length above which queued
	// mod events are coalesced by (kind,node,key) instead of growing the
	// queue unbounded.
	defaultStreamDropCap = 4096
)

// EventStream is a single-shot, back-pressured replay-then-delta stream of
// every node/pool/replica/nexus/volume event (C5). Create a fresh one per
// consumer connection; it is not reusable after Close.
type EventStream struct {
	reg     *Registry
	volumes VolumeSource
	dropCap int

	out    chan Event
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	queue []Event

	unsub func()
}

// NewEventStream creates a stream bound to reg. volumes may be nil, in which
// case no volume events are replayed (useful in tests that only exercise the
// node/pool/replica/nexus graph).
func NewEventStream(reg *Registry, volumes VolumeSource) *EventStream {
	return &EventStream{
		reg:     reg,
		volumes: volumes,
		dropCap: defaultStreamDropCap,
		out:     make(chan Event, outBuffer),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Events returns the channel the consumer reads from. It is closed when the
// stream is closed or ctx passed to Start is cancelled.
func (s *EventStream) Events() <-chan Event { return s.out }

// Start subscribes to the registry and begins replay. The subscription is
// established before replay runs so that no live events occurring during
// replay are lost (a replayed entity may then appear twice in rare races,
// which is a benign, idempotent duplicate for "new" events).
func (s *EventStream) Start(ctx context.Context) {
	sub, unsub := s.reg.Subscribe()
	s.unsub = unsub

	go s.forward(ctx, sub)
	go s.pump(ctx)
	go s.replay()
}

// Close tears the stream down and releases its registry subscription.
func (s *EventStream) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.unsub != nil {
			s.unsub()
		}
	})
}

func (s *EventStream) forward(ctx context.Context, sub Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			s.enqueue(e)
		}
	}
}

// enqueue appends e to the backlog, coalescing mod events against any
// already-queued mod for the same entity once the backlog exceeds dropCap.
func (s *EventStream) enqueue(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Type == EventMod && len(s.queue) >= s.dropCap {
		key := coalesceKey(e)
		for i := range s.queue {
			if s.queue[i].Type == EventMod && coalesceKey(s.queue[i]) == key {
				s.queue[i] = e
				metrics.EventStreamDroppedTotal.Inc()
				s.signal()
				return
			}
		}
	}

	s.queue = append(s.queue, e)
	s.signal()
}

func (s *EventStream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func coalesceKey(e Event) string {
	return string(e.Kind) + ":" + e.Node + ":" + e.Key
}

// pump drains the backlog into the bounded out channel, pausing whenever the
// consumer is slow (out full) and resuming as soon as out has room for one
// more event; there is no separate low watermark.
func (s *EventStream) pump(ctx context.Context) {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-s.notify:
				continue
			}
		}
		e := s.queue[0]
		s.mu.Unlock()

		select {
		case s.out <- e:
			s.mu.Lock()
			s.queue = s.queue[1:]
			s.mu.Unlock()
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// replay enumerates the current registry state in the order required by
// spec.md §4.5: per node, pools then their replicas then nexuses, then a
// node:sync marker; after all nodes, all volumes.
func (s *EventStream) replay() {
	for _, n := range s.reg.ListNodes() {
		nsnap := n.snapshot()
		s.enqueue(Event{Kind: KindNode, Type: EventNew, Node: n.Name(), NodeObj: &nsnap})

		for _, p := range n.Pools() {
			psnap := p.Snapshot()
			s.enqueue(Event{Kind: KindPool, Type: EventNew, Node: n.Name(), Key: p.Name(), PoolObj: &psnap})

			for _, r := range p.Replicas() {
				rsnap := r.Snapshot()
				s.enqueue(Event{Kind: KindReplica, Type: EventNew, Node: n.Name(), Key: r.UUID(), ReplicaObj: &rsnap})
			}
		}

		for _, nx := range n.Nexuses() {
			xsnap := nx.Snapshot()
			s.enqueue(Event{Kind: KindNexus, Type: EventNew, Node: n.Name(), Key: nx.UUID(), NexusObj: &xsnap})
		}

		s.enqueue(Event{Kind: KindNode, Type: EventSync, Node: n.Name()})
	}

	if s.volumes == nil {
		return
	}
	for _, v := range s.volumes.ListVolumes() {
		vv := v
		s.enqueue(Event{Kind: KindVolume, Type: EventNew, Key: v.UUID, VolumeObj: &vv})
	}
}
