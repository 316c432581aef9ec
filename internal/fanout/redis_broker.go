package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "fanout:events"

// pubSubClient is the part of the redis client the broker uses.
type pubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisBroker fans envelopes out to every instance over one redis pub/sub channel.
type RedisBroker struct {
	client  pubSubClient
	channel string
	log     *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewRedisBroker(client redis.UniversalClient, channel string, log *zap.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{client: client, channel: channel, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, handler func(Envelope)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so start-up fails loudly.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.pubsub = pubsub
	b.mu.Unlock()

	b.log.Info("broker: subscribed to channel", zap.String("channel", b.channel))
	go b.consume(ctx, pubsub.Channel(), handler)
	return nil
}

// consume decodes messages until ctx ends or the channel closes. Undecodable
// payloads are logged and skipped.
func (b *RedisBroker) consume(ctx context.Context, ch <-chan *redis.Message, handler func(Envelope)) {
	for {
		select {
		case <-ctx.Done():
			b.log.Info("broker: subscription loop stopping: context canceled")
			return
		case msg, ok := <-ch:
			if !ok {
				b.log.Warn("broker: pubsub channel closed", zap.String("channel", b.channel))
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Error("broker: invalid envelope",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			handler(env)
		}
	}
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	b.pubsub = nil
	return err
}
