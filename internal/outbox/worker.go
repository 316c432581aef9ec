// Package outbox relays committed domain events from the outbox table to Kafka.
package outbox

import (
	"context"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"go.uber.org/zap"
)

type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	RetryCount    int
}

// Batch is a set of claimed events. Its updates become visible on Commit.
type Batch interface {
	Events() []Event
	MarkProcessed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, cause string) error
	MoveToDLQ(ctx context.Context, e Event, cause string) error
	Commit() error
	Rollback() error
}

// Source claims pending events so concurrent workers never share one.
type Source interface {
	Claim(ctx context.Context, limit int) (Batch, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, value []byte, eventType string) error
}

type Worker struct {
	Source     Source
	Producer   Publisher
	Topic      string
	BatchSize  int
	PollDelay  time.Duration
	MaxRetries int
}

func (w *Worker) Start(ctx context.Context) {
	log := observability.GetLogger(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := w.processBatch(ctx)
		if err != nil {
			log.Error("outbox error", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if n == 0 {
			sleep(ctx, w.PollDelay)
		}
	}
}

// processBatch publishes claimed events in id order and stops at the first
// failure so per-conversation order is preserved. It returns how many events
// it claimed.
func (w *Worker) processBatch(ctx context.Context) (int, error) {
	batchSize := w.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	maxRetries := w.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	batch, err := w.Source.Claim(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	events := batch.Events()
	if len(events) == 0 {
		_ = batch.Rollback()
		return 0, nil
	}

	var batchErr error
	for _, e := range events {
		if err := w.Producer.Publish(ctx, e.AggregateID, e.Payload, e.EventType); err != nil {
			observability.OutboxPublishFailuresTotal.WithLabelValues("messaging", w.Topic).Inc()

			var dbErr error
			if e.RetryCount >= maxRetries {
				dbErr = batch.MoveToDLQ(ctx, e, err.Error())
			} else {
				dbErr = batch.MarkFailed(ctx, e.ID, err.Error())
			}
			if dbErr != nil {
				_ = batch.Rollback()
				return len(events), dbErr
			}

			batchErr = err
			break
		}

		if err := batch.MarkProcessed(ctx, e.ID); err != nil {
			_ = batch.Rollback()
			return len(events), err
		}
	}

	if err := batch.Commit(); err != nil {
		return len(events), err
	}
	return len(events), batchErr
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
