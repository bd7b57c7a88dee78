package notifications

import (
	"context"
	"encoding/json"
	"fmt"
)

// Broker publishes events to the feed. With Redis the event goes through
// pub/sub so every instance's hub relays it; without Redis it goes straight
// to the local hub.
type Broker struct {
	notifier *Notifier
	hub      *Hub
}

// NewBroker returns a Broker; either argument may be nil.
func NewBroker(notifier *Notifier, hub *Hub) *Broker {
	return &Broker{notifier: notifier, hub: hub}
}

// Publish delivers ev to feed subscribers.
func (b *Broker) Publish(ctx context.Context, ev Event) error {
	if b.notifier.Enabled() {
		return b.notifier.Publish(ctx, ev)
	}
	if b.hub == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	b.hub.BroadcastAll(string(payload))
	return nil
}
