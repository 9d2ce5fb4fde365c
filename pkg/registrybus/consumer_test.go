package registrybus

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	added   map[string]string
	removed map[string]bool
	failAdd bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{added: map[string]string{}, removed: map[string]bool{}}
}

func (f *fakeRegistry) AddNode(name, endpoint string) error {
	if f.failAdd {
		return fmt.Errorf("add failed")
	}
	f.added[name] = endpoint
	return nil
}

func (f *fakeRegistry) RemoveNode(name string) error {
	f.removed[name] = true
	return nil
}

func TestSubscribeRegistersNode(t *testing.T) {
	reg := newFakeRegistry()
	c := NewConsumer(reg)

	err := c.Subscribe([]byte(`{"id":"v0/register","data":{"id":"node-1","grpcEndpoint":"10.0.0.1:10124"}}`))
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:10124", reg.added["node-1"])
}

func TestSubscribeDeregistersNode(t *testing.T) {
	reg := newFakeRegistry()
	c := NewConsumer(reg)

	err := c.Subscribe([]byte(`{"id":"v0/deregister","data":{"id":"node-1"}}`))
	require.NoError(t, err)
	require.True(t, reg.removed["node-1"])
}

func TestSubscribeIgnoresMalformedJSON(t *testing.T) {
	reg := newFakeRegistry()
	c := NewConsumer(reg)

	err := c.Subscribe([]byte(`not json`))
	require.NoError(t, err)
	require.Empty(t, reg.added)
}

func TestSubscribeIgnoresMissingNodeID(t *testing.T) {
	reg := newFakeRegistry()
	c := NewConsumer(reg)

	err := c.Subscribe([]byte(`{"id":"v0/register","data":{"grpcEndpoint":"10.0.0.1:10124"}}`))
	require.NoError(t, err)
	require.Empty(t, reg.added)
}

func TestSubscribeIgnoresRegisterMissingEndpoint(t *testing.T) {
	reg := newFakeRegistry()
	c := NewConsumer(reg)

	err := c.Subscribe([]byte(`{"id":"v0/register","data":{"id":"node-1"}}`))
	require.NoError(t, err)
	require.Empty(t, reg.added)
}

func TestSubscribeIgnoresUnknownMessageKind(t *testing.T) {
	reg := newFakeRegistry()
	c := NewConsumer(reg)

	err := c.Subscribe([]byte(`{"id":"v0/unknown","data":{"id":"node-1"}}`))
	require.NoError(t, err)
	require.Empty(t, reg.added)
	require.Empty(t, reg.removed)
}

func TestSubscribeDoesNotErrorWhenRegistryAddFails(t *testing.T) {
	reg := newFakeRegistry()
	reg.failAdd = true
	c := NewConsumer(reg)

	err := c.Subscribe([]byte(`{"id":"v0/register","data":{"id":"node-1","grpcEndpoint":"10.0.0.1:10124"}}`))
	require.NoError(t, err)
}

type fakeBus struct {
	ready chan func(payload []byte)
}

func newFakeBus() *fakeBus {
	return &fakeBus{ready: make(chan func(payload []byte), 1)}
}

func (b *fakeBus) Run(ctx context.Context, subj string, handle func(payload []byte)) error {
	b.ready <- handle
	<-ctx.Done()
	return ctx.Err()
}

func TestRunWiresConsumerToBus(t *testing.T) {
	reg := newFakeRegistry()
	c := NewConsumer(reg)
	bus := newFakeBus()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, bus) }()

	handle := <-bus.ready
	handle([]byte(`{"id":"v0/register","data":{"id":"node-1","grpcEndpoint":"10.0.0.1:10124"}}`))
	require.Equal(t, "10.0.0.1:10124", reg.added["node-1"])

	cancel()
	<-done
}
