package gateway

import (
	"context"

	"github.com/duelgrid/duelgrid/internal/events"
)

// LocalBus is the single-node event path: room mutations go straight to
// the connection manager, no broker in between. Tests and default dev
// runs use it; multi-node deployments swap in the JetStream pair.
type LocalBus struct {
	cm *ConnectionManager
}

// NewLocalBus wires a bus onto a connection manager.
func NewLocalBus(cm *ConnectionManager) *LocalBus {
	return &LocalBus{cm: cm}
}

// Publish implements room.Publisher.
func (b *LocalBus) Publish(ctx context.Context, event *events.Envelope) error {
	b.cm.Broadcast(event)
	return nil
}
