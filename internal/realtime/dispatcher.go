package realtime

import (
	"go.uber.org/zap"
)

// Dispatcher fans events out to room members and to individual identities.
// Delivery is fire-and-forget per connection: one dead or slow connection
// never blocks the others and never surfaces an error to the caller.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

// NewDispatcher constructs a dispatcher over the registry.
func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Broadcast delivers the event to every connection in the room, optionally
// excluding one (typically the sender).
func (d *Dispatcher) Broadcast(roomID, event string, payload any, excluding Conn) {
	members := d.registry.MembersOf(roomID)
	if len(members) == 0 {
		return
	}
	msg := Message{Event: event, Data: payload}
	delivered := 0
	for _, conn := range members {
		if conn == excluding {
			continue
		}
		if err := conn.Send(msg); err != nil {
			d.logger.Debug("broadcast delivery skipped",
				zap.String("room_id", roomID), zap.String("event", event), zap.Error(err))
			continue
		}
		delivered++
	}
	d.logger.Debug("broadcast dispatched",
		zap.String("room_id", roomID), zap.String("event", event), zap.Int("recipients", delivered))
}

// SendTo delivers the event directly to the identity's connection. A missing
// mapping means the user is offline, which is a normal no-op.
func (d *Dispatcher) SendTo(identity, event string, payload any) {
	conn, ok := d.registry.Resolve(identity)
	if !ok {
		return
	}
	if err := conn.Send(Message{Event: event, Data: payload}); err != nil {
		d.logger.Debug("direct delivery skipped",
			zap.String("identity", identity), zap.String("event", event), zap.Error(err))
	}
}
