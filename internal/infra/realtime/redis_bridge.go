package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// envelope is what travels over the pub/sub channel between instances.
type envelope struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RedisBridge fans emits out to every instance subscribed to the channel.
// Each instance, this one included, delivers to its own local connections
// when the message comes back from Redis.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisBridge {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisBridge{client: client, channel: channel, hub: hub, logger: logger}
}

func (b *RedisBridge) EmitToUser(ctx context.Context, userID, event string, payload any) error {
	return b.EmitToRoom(ctx, UserRoom(userID), event, payload)
}

// EmitToRoom publishes the event. When Redis is unavailable the event is
// still delivered to local connections and the publish error is returned.
func (b *RedisBridge) EmitToRoom(ctx context.Context, room, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	raw, err := json.Marshal(envelope{Room: room, Event: event, Data: data})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.deliver(envelope{Room: room, Event: event, Data: data})
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Run consumes the channel until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("realtime bridge subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("realtime bridge: subscription closed")
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Room == "" {
				b.logger.Warn("bridge message ignored", "error", err)
				continue
			}
			b.deliver(env)
		}
	}
}

func (b *RedisBridge) deliver(env envelope) {
	frame, err := json.Marshal(Frame{Event: env.Event, Data: env.Data})
	if err != nil {
		b.logger.Error("bridge frame encode failed", "event", env.Event, "error", err)
		return
	}
	b.hub.Deliver(env.Room, frame)
}
