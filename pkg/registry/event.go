package registry

import (
	"sync"

	"github.com/nexusvol/control-plane/pkg/types"
)

// Kind identifies which entity table an Event concerns.
type Kind string

const (
	KindNode    Kind = "node"
	KindPool    Kind = "pool"
	KindReplica Kind = "replica"
	KindNexus   Kind = "nexus"
	KindVolume  Kind = "volume"
)

// EventType is the diff classification of an Event.
type EventType string

const (
	EventNew  EventType = "new"
	EventMod  EventType = "mod"
	EventDel  EventType = "del"
	EventSync EventType = "sync"
)

// Event is the generalized envelope of the teacher's pkg/events.Event,
// carrying the affected entity inline instead of an opaque metadata map so
// that Volume/Operator consumers can type-switch on Kind without a second
// registry lookup for events about to-be-removed entities.
type Event struct {
	Kind Kind
	Type EventType

	// Node is the owning (or, for KindNode, the subject) node name.
	Node string
	// Key is the pool name / replica uuid / nexus uuid / volume uuid.
	Key string

	NodeObj    *types.Node
	PoolObj    *types.Pool
	ReplicaObj *types.Replica
	NexusObj   *types.Nexus
	VolumeObj  *types.Volume
}

// Subscriber is a channel fed by the registry's event broker.
type Subscriber chan Event

const subscriberBuffer = 256

// broker fans events out to subscribers, generalizing the teacher's
// pkg/events.Broker to the registry's richer Event shape. Delivery is
// best-effort: a subscriber that falls behind has events dropped rather
// than blocking producers, matching the teacher's broadcast() semantics.
type broker struct {
	mu   sync.Mutex
	subs map[Subscriber]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[Subscriber]struct{})}
}

func (b *broker) subscribe() Subscriber {
	sub := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *broker) unsubscribe(sub Subscriber) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	close(sub)
}

func (b *broker) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub <- e:
		default:
			// Drop on a full subscriber buffer; EventStream applies its own
			// coalescing policy above this layer.
		}
	}
}
