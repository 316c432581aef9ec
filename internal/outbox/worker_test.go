package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeBatch struct {
	events    []Event
	processed []int64
	failed    []int64
	dlq       []int64
	committed bool
	rolled    bool
}

func (b *fakeBatch) Events() []Event { return b.events }
func (b *fakeBatch) MarkProcessed(_ context.Context, id int64) error {
	b.processed = append(b.processed, id)
	return nil
}
func (b *fakeBatch) MarkFailed(_ context.Context, id int64, _ string) error {
	b.failed = append(b.failed, id)
	return nil
}
func (b *fakeBatch) MoveToDLQ(_ context.Context, e Event, _ string) error {
	b.dlq = append(b.dlq, e.ID)
	return nil
}
func (b *fakeBatch) Commit() error   { b.committed = true; return nil }
func (b *fakeBatch) Rollback() error { b.rolled = true; return nil }

type fakeSource struct{ batch *fakeBatch }

func (s *fakeSource) Claim(context.Context, int) (Batch, error) { return s.batch, nil }

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, key string, value []byte, eventType string) error {
	return m.Called(key, eventType).Error(0)
}

func TestWorker_ProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks all events", func(t *testing.T) {
		batch := &fakeBatch{events: []Event{
			{ID: 1, AggregateID: "c1", EventType: "message.created"},
			{ID: 2, AggregateID: "c1", EventType: "message.edited"},
		}}
		pub := &mockPublisher{}
		pub.On("Publish", "c1", mock.Anything).Return(nil)

		w := &Worker{Source: &fakeSource{batch}, Producer: pub}
		n, err := w.processBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []int64{1, 2}, batch.processed)
		assert.True(t, batch.committed)
		pub.AssertNumberOfCalls(t, "Publish", 2)
	})

	t.Run("stops at first failure and records retry", func(t *testing.T) {
		batch := &fakeBatch{events: []Event{
			{ID: 1, AggregateID: "c1", EventType: "message.created"},
			{ID: 2, AggregateID: "c1", EventType: "message.edited"},
		}}
		pub := &mockPublisher{}
		pub.On("Publish", "c1", "message.created").Return(errors.New("broker down"))

		w := &Worker{Source: &fakeSource{batch}, Producer: pub, MaxRetries: 3}
		_, err := w.processBatch(ctx)
		assert.Error(t, err)
		assert.Equal(t, []int64{1}, batch.failed)
		assert.Empty(t, batch.processed)
		assert.True(t, batch.committed)
	})

	t.Run("moves exhausted event to dlq", func(t *testing.T) {
		batch := &fakeBatch{events: []Event{{ID: 7, AggregateID: "c1", EventType: "message.created", RetryCount: 3}}}
		pub := &mockPublisher{}
		pub.On("Publish", "c1", "message.created").Return(errors.New("broker down"))

		w := &Worker{Source: &fakeSource{batch}, Producer: pub, MaxRetries: 3}
		_, err := w.processBatch(ctx)
		assert.Error(t, err)
		assert.Equal(t, []int64{7}, batch.dlq)
	})

	t.Run("empty batch is released", func(t *testing.T) {
		batch := &fakeBatch{}
		w := &Worker{Source: &fakeSource{batch}, Producer: &mockPublisher{}}
		n, err := w.processBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.True(t, batch.rolled)
	})
}
