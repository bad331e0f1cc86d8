package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel events travel on.
const DefaultChannel = "game:events"

// RedisRelay publishes events through Redis pub/sub so that every server
// process delivers them to its own hub. Players of one game may be connected
// to different processes.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	log     *zap.SugaredLogger
}

func NewRedisRelay(client redis.UniversalClient, channel string, hub *Hub, log *zap.SugaredLogger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{client: client, channel: channel, hub: hub, log: log}
}

// Publish sends the event to all processes, this one included.
func (r *RedisRelay) Publish(ctx context.Context, gameID, event string, payload any) error {
	env, err := NewEnvelope(gameID, event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s for game %s: %w", event, gameID, err)
	}
	return nil
}

// Run subscribes to the channel and feeds the local hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Infow("relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warnw("discarding malformed envelope", "error", err)
				continue
			}
			r.hub.Deliver(&env)
		}
	}
}
