package fanout

import (
	"context"
	"encoding/json"
	"sync"
)

// Envelope carries an encoded event between hub instances.
type Envelope struct {
	Origin string          `json:"origin"`
	Event  json.RawMessage `json:"event"`
}

// Broker moves envelopes between hubs. Every hub receives every envelope,
// including its own; hubs drop envelopes whose Origin is themselves.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, handler func(Envelope)) error
	Close() error
}

// LocalBroker connects hubs living in the same process. With a single hub it
// only echoes back to the publisher, which drops the echo.
type LocalBroker struct {
	mu       sync.RWMutex
	handlers []func(Envelope)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{}
}

func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	handlers := append([]func(Envelope){}, b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context, handler func(Envelope)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return nil
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
	return nil
}
