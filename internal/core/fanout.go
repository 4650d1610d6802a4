package core

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/observability"
)

// Broadcaster fans events out to the members of a room.
type Broadcaster struct {
	registry  *Registry
	transport Transport
	log       *zerolog.Logger
}

// NewBroadcaster builds a fan-out over the registry and transport.
func NewBroadcaster(registry *Registry, transport Transport, logger *zerolog.Logger) *Broadcaster {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broadcaster{registry: registry, transport: transport, log: logger}
}

// Publish delivers ev to every connection in the room at call time and
// returns how many accepted it. Per-connection failures are logged and
// counted but never returned.
func (b *Broadcaster) Publish(room string, ev *Event) int {
	if ev.Room == "" {
		ev.Room = room
	}
	members := b.registry.Members(room)
	kind := ev.Kind.String()
	observability.IncEventPublished(kind)

	delivered := 0
	for _, connID := range members {
		if err := b.sendOne(connID, ev); err != nil {
			observability.IncDeliveryFailure(kind, failureReason(err))
			b.log.Warn().Err(err).
				Str("room", room).
				Str("conn_id", connID).
				Str("event", kind).
				Msg("drop event for connection")
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Broadcaster) sendOne(connID string, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return b.transport.SendToConnection(connID, ev)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrSlowConsumer):
		return "slow_consumer"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	default:
		return "error"
	}
}
