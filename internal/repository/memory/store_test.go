package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedConversation(t *testing.T, s *Store, id string, users ...string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	ok, err := s.InsertConversation(ctx, nil, &domain.Conversation{ID: id, Type: domain.ConversationGroup, CreatedAt: now}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.InitSequence(ctx, nil, id))
	for _, u := range users {
		require.NoError(t, s.UpsertParticipant(ctx, nil, id, domain.Participant{UserID: u, Role: domain.RoleMember, JoinedAt: now}))
	}
}

func appendMessage(t *testing.T, s *Store, convID, sender string) *domain.Message {
	t.Helper()
	ctx := context.Background()
	seq, err := s.NextSequence(ctx, nil, convID)
	require.NoError(t, err)
	msg, err := domain.NewMessage(fmt.Sprintf("%s-%d", convID, seq), convID, sender, seq, domain.MessageText, "hi", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.InsertMessage(ctx, nil, msg))
	return msg
}

func TestStore_WithTxRollsBack(t *testing.T) {
	s := New()
	seedConversation(t, s, "c1", "u1", "u2")
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(ctx context.Context, _ *sql.Tx) error {
		owned, err := s.TryInsertIdempotency(ctx, nil, "k1", "u1", "c1", time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.True(t, owned)

		seq, err := s.NextSequence(ctx, nil, "c1")
		require.NoError(t, err)
		msg, err := domain.NewMessage("m1", "c1", "u1", seq, domain.MessageText, "hi", "", time.Now())
		require.NoError(t, err)
		require.NoError(t, s.InsertMessage(ctx, nil, msg))
		require.NoError(t, s.InsertOutbox(ctx, nil, "message", "c1", "message.created", []byte("{}")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetMessage(context.Background(), nil, "m1")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	assert.Empty(t, s.OutboxEvents())

	owned, err := s.TryInsertIdempotency(context.Background(), nil, "k1", "u1", "c1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, owned, "key must be free again after rollback")

	seq, err := s.NextSequence(context.Background(), nil, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq, "rolled back sequence is reused")
}

func TestStore_InsertConversationByLookupKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := domain.DirectLookupKey("a", "b")

	ok, err := s.InsertConversation(ctx, nil, &domain.Conversation{ID: "c1", Type: domain.ConversationDirect}, &key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.InsertConversation(ctx, nil, &domain.Conversation{ID: "c2", Type: domain.ConversationDirect}, &key)
	require.NoError(t, err)
	assert.False(t, ok)

	conv, err := s.GetConversationByLookupKey(ctx, nil, key)
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
}

func TestStore_FetchMessagesWindows(t *testing.T) {
	s := New()
	seedConversation(t, s, "c1", "u1")
	for i := 0; i < 10; i++ {
		appendMessage(t, s, "c1", "u1")
	}
	ctx := context.Background()

	recent, err := s.FetchMessagesBefore(ctx, "c1", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{8, 9, 10}, sequences(recent))

	before, err := s.FetchMessagesBefore(ctx, "c1", 8, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6, 7}, sequences(before))

	after, err := s.FetchMessagesAfter(ctx, "c1", 8, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 10}, sequences(after))
}

func TestStore_LastMessageSkipsDeleted(t *testing.T) {
	s := New()
	seedConversation(t, s, "c1", "u1")
	ctx := context.Background()

	last, err := s.GetLastMessage(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, last)

	m1 := appendMessage(t, s, "c1", "u1")
	m2 := appendMessage(t, s, "c1", "u1")
	require.NoError(t, s.MarkMessageDeleted(ctx, nil, m2.ID, time.Now()))

	last, err = s.GetLastMessage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, m1.ID, last.ID)
}

func TestStore_DeliveriesOnlyAdvance(t *testing.T) {
	s := New()
	seedConversation(t, s, "c1", "u1", "u2")
	ctx := context.Background()
	m1 := appendMessage(t, s, "c1", "u1")
	m2 := appendMessage(t, s, "c1", "u1")
	now := time.Now()

	require.NoError(t, s.InsertDeliveries(ctx, nil, []domain.DeliveryRecord{
		{MessageID: m1.ID, ConversationID: "c1", UserID: "u2", State: domain.DeliverySent, UpdatedAt: now},
		{MessageID: m2.ID, ConversationID: "c1", UserID: "u2", State: domain.DeliverySent, UpdatedAt: now},
	}))

	n, err := s.CountUnread(ctx, "c1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	changed, err := s.AdvanceDelivery(ctx, nil, m1.ID, "u2", domain.DeliveryRead, now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.AdvanceDelivery(ctx, nil, m1.ID, "u2", domain.DeliveryDelivered, now)
	require.NoError(t, err)
	assert.False(t, changed)

	updated, err := s.AdvanceDeliveriesUpTo(ctx, nil, "c1", "u2", m2.Sequence, domain.DeliveryRead, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	n, err = s.CountUnread(ctx, "c1", "u2")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_ParticipantLeaveAndRejoin(t *testing.T) {
	s := New()
	seedConversation(t, s, "c1", "u1", "u2")
	ctx := context.Background()

	require.NoError(t, s.MarkParticipantLeft(ctx, nil, "c1", "u2", time.Now()))
	ok, err := s.IsActiveParticipant(ctx, nil, "c1", "u2")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := s.ListConversationsByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.UpsertParticipant(ctx, nil, "c1", domain.Participant{UserID: "u2", Role: domain.RoleMember, JoinedAt: time.Now()}))
	ok, err = s.IsActiveParticipant(ctx, nil, "c1", "u2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func sequences(msgs []*domain.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Sequence)
	}
	return out
}

func TestStore_ExpiredIdempotencyKeyIsReclaimed(t *testing.T) {
	s := New()
	ctx := context.Background()

	owned, err := s.TryInsertIdempotency(ctx, nil, "k1", "u1", "c1", time.Now().Add(-time.Second))
	require.NoError(t, err)
	require.True(t, owned)
	require.NoError(t, s.UpdateIdempotencyResponse(ctx, nil, "k1", "u1", "c1", []byte(`{"id":"m1"}`)))

	owned, err = s.TryInsertIdempotency(ctx, nil, "k1", "u1", "c1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, owned)

	payload, err := s.GetIdempotencyForUpdate(ctx, nil, "k1", "u1", "c1")
	require.NoError(t, err)
	assert.Nil(t, payload, "a reclaimed key starts without a stored response")

	owned, err = s.TryInsertIdempotency(ctx, nil, "k1", "u1", "c1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, owned)
}
