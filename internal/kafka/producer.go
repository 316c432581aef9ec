package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Producer wraps a kafka.Writer bound to one topic.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// headerCarrier lets the otel propagator write trace context into message headers.
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key string, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// Message builds the record Publish sends, with trace headers injected from ctx.
func Message(ctx context.Context, key string, value []byte, eventType string) kafka.Message {
	headers := []kafka.Header{{Key: "event_type", Value: []byte(eventType)}}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &headers})

	return kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
	}
}

// Publish writes one record keyed by key, so all events of a conversation
// land on the same partition in order.
func (p *Producer) Publish(ctx context.Context, key string, value []byte, eventType string) error {
	return p.w.WriteMessages(ctx, Message(ctx, key, value, eventType))
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error { return p.w.Close() }
