package registrybus

import (
	"context"
	"encoding/json"

	"github.com/nexusvol/control-plane/pkg/log"

	"github.com/rs/zerolog"
)

const subject = "v0/registry"

const (
	msgRegister   = "v0/register"
	msgDeregister = "v0/deregister"
)

// NodeRegistry is the subset of pkg/registry.Registry the consumer drives.
type NodeRegistry interface {
	AddNode(name, endpoint string) error
	RemoveNode(name string) error
}

// Bus is a message-bus subscription any real transport (NATS, Kafka, a
// webhook receiver, ...) implements: call Run once connected and it blocks,
// redelivering every payload on subject v0/registry to handle until ctx is
// cancelled or the connection drops.
type Bus interface {
	Run(ctx context.Context, subject string, handle func(payload []byte)) error
}

type registerMsg struct {
	ID   string `json:"id"`
	Data struct {
		ID           string `json:"id"`
		GRPCEndpoint string `json:"grpcEndpoint"`
	} `json:"data"`
}

// Consumer decodes v0/registry payloads and drives reg from them.
type Consumer struct {
	reg NodeRegistry
	log zerolog.Logger
}

func NewConsumer(reg NodeRegistry) *Consumer {
	return &Consumer{reg: reg, log: log.WithComponent("registrybus")}
}

// Subscribe decodes a single v0/registry payload and applies it. Malformed
// JSON or a payload missing required fields is silently ignored per spec.md
// §6, beyond a debug log line for observability.
func (c *Consumer) Subscribe(payload []byte) error {
	var msg registerMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Debug().Err(err).Msg("ignoring malformed registry message")
		return nil
	}
	if msg.Data.ID == "" {
		c.log.Debug().Str("msg_id", msg.ID).Msg("ignoring registry message missing node id")
		return nil
	}

	switch msg.ID {
	case msgRegister:
		if msg.Data.GRPCEndpoint == "" {
			c.log.Debug().Str("node_id", msg.Data.ID).Msg("ignoring register message missing grpcEndpoint")
			return nil
		}
		if err := c.reg.AddNode(msg.Data.ID, msg.Data.GRPCEndpoint); err != nil {
			c.log.Warn().Err(err).Str("node_id", msg.Data.ID).Msg("failed to add node from registry message")
		}
	case msgDeregister:
		if err := c.reg.RemoveNode(msg.Data.ID); err != nil {
			c.log.Warn().Err(err).Str("node_id", msg.Data.ID).Msg("failed to remove node from registry message")
		}
	default:
		c.log.Debug().Str("msg_id", msg.ID).Msg("ignoring unrecognised registry message kind")
	}
	return nil
}

// Run attaches the Consumer to bus on the v0/registry subject and blocks
// until ctx is cancelled, retrying the subscription with back-off supplied
// by the Bus implementation on transport failure (spec.md §6).
func (c *Consumer) Run(ctx context.Context, bus Bus) error {
	return bus.Run(ctx, subject, func(payload []byte) {
		_ = c.Subscribe(payload)
	})
}
