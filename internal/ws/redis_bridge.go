package ws

import (
	"context"
	"encoding/json"

	"go-pos-sync/pkg/logger"
)

// PubSub is the broker surface the bridge needs. *redis.Client from pkg/redis satisfies it.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handle func([]byte)) error
}

// RedisBridge publishes events to a shared channel and relays every message on
// that channel into the local hub, so each API instance serves the same feed.
type RedisBridge struct {
	broker  PubSub
	channel string
	local   *Hub
	logg    *logger.Logger
}

func NewRedisBridge(broker PubSub, channel string, local *Hub, logg *logger.Logger) *RedisBridge {
	if logg == nil {
		logg = logger.Nop()
	}
	return &RedisBridge{broker: broker, channel: channel, local: local, logg: logg}
}

// Publish sends the event through the broker. If the broker is down the event
// still reaches this instance's clients.
func (b *RedisBridge) Publish(ctx context.Context, evt Event) {
	msg, err := json.Marshal(evt)
	if err != nil {
		b.logg.Error(ctx, "encode feed event", err)
		return
	}
	if err := b.broker.Publish(ctx, b.channel, msg); err != nil {
		b.logg.Error(b.logg.WithField(ctx, "channel", b.channel), "redis publish failed, delivering locally", err)
		b.local.BroadcastRaw(ctx, msg)
	}
}

// Run relays broker messages to the local hub until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	return b.broker.Subscribe(ctx, b.channel, func(payload []byte) {
		b.local.BroadcastRaw(ctx, payload)
	})
}
