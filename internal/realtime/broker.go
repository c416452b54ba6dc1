package realtime

import (
	"context"
	"encoding/json"
)

// Broker publishes events onto the bus and feeds bus events into the local hub.
type Broker struct {
	hub    *Hub
	bus    Bus
	logger Logger
}

func NewBroker(hub *Hub, bus Bus, logger Logger) *Broker {
	return &Broker{hub: hub, bus: bus, logger: logger}
}

// Start attaches the hub to the bus until ctx is done.
func (b *Broker) Start(ctx context.Context) error {
	return b.bus.Subscribe(ctx, b.dispatch)
}

func (b *Broker) dispatch(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Errorf("realtime: encode %s event: %v", ev.Type, err)
		return
	}
	b.hub.Broadcast(ev.Topic, data)

	// Membership changes end the affected chat subscriptions on every node.
	switch ev.Type {
	case EventMemberRemoved:
		var removed MemberRemoved
		if err := json.Unmarshal(ev.Data, &removed); err != nil || removed.UserID == "" {
			b.logger.Errorf("realtime: bad %s payload on %s", ev.Type, ev.Topic)
			return
		}
		b.hub.EvictUser(ev.Topic, removed.UserID)
	case EventChatDeleted:
		if _, ok := ChatIDFromTopic(ev.Topic); ok {
			b.hub.DropTopic(ev.Topic)
		}
	}
}

func (b *Broker) Publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	ev, err := NewEvent(topic, eventType, payload)
	if err != nil {
		return err
	}
	return b.bus.Publish(ctx, ev)
}

func (b *Broker) Hub() *Hub {
	return b.hub
}
