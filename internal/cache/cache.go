package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/redis/go-redis/v9"
)

const conversationTTL = 10 * time.Minute

// Cache holds conversation aggregates (membership included). It is a read
// optimization only; writers invalidate after commit.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func New(client *redis.Client) *Cache {
	return &Cache{Client: client, TTL: conversationTTL}
}

func conversationKey(id string) string {
	return "conv:" + id
}

func (c *Cache) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	val, err := c.Client.Get(ctx, conversationKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Miss
		}
		return nil, err
	}

	var conv domain.Conversation
	if err := json.Unmarshal(val, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Cache) SetConversation(ctx context.Context, conv *domain.Conversation) error {
	val, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = conversationTTL
	}
	return c.Client.Set(ctx, conversationKey(conv.ID), val, ttl).Err()
}

func (c *Cache) DeleteConversation(ctx context.Context, id string) error {
	return c.Client.Del(ctx, conversationKey(id)).Err()
}
