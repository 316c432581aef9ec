package delivery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMessage(t *testing.T, repo *memory.Store, sender string) *domain.Message {
	t.Helper()
	ctx := context.Background()
	seq, err := repo.NextSequence(ctx, nil, "c1")
	require.NoError(t, err)
	msg, err := domain.NewMessage(fmt.Sprintf("m%d", seq), "c1", sender, seq, domain.MessageText, "hi", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.InsertMessage(ctx, nil, msg))
	return msg
}

func setup(t *testing.T) (*Tracker, *memory.Store) {
	t.Helper()
	repo := memory.New()
	_, err := repo.InsertConversation(context.Background(), nil, &domain.Conversation{ID: "c1", Type: domain.ConversationGroup}, nil)
	require.NoError(t, err)
	require.NoError(t, repo.InitSequence(context.Background(), nil, "c1"))
	return NewTracker(repo), repo
}

func TestInitializeForMessage(t *testing.T) {
	ctx := context.Background()
	tr, repo := setup(t)
	msg := newMessage(t, repo, "1")

	require.NoError(t, tr.InitializeForMessage(ctx, nil, msg, []string{"2", "3", "2", "1"}))

	for _, u := range []string{"2", "3"} {
		rec, err := tr.State(ctx, msg.ID, u)
		require.NoError(t, err)
		assert.Equal(t, domain.DeliverySent, rec.State)
	}

	_, err := tr.State(ctx, msg.ID, "1")
	assert.Error(t, err, "sender gets no record")

	assert.NoError(t, tr.InitializeForMessage(ctx, nil, msg, nil))
}

func TestStateMachine(t *testing.T) {
	ctx := context.Background()
	tr, repo := setup(t)
	msg := newMessage(t, repo, "1")
	require.NoError(t, tr.InitializeForMessage(ctx, nil, msg, []string{"2"}))

	changed, err := tr.MarkDelivered(ctx, nil, msg.ID, "2")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = tr.MarkRead(ctx, nil, "2", msg)
	require.NoError(t, err)
	assert.True(t, changed)

	t.Run("delivered after read is ignored", func(t *testing.T) {
		changed, err := tr.MarkDelivered(ctx, nil, msg.ID, "2")
		require.NoError(t, err)
		assert.False(t, changed)

		rec, err := tr.State(ctx, msg.ID, "2")
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryRead, rec.State)
	})

	t.Run("reading own message changes nothing", func(t *testing.T) {
		changed, err := tr.MarkRead(ctx, nil, "1", msg)
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func TestUnreadCount(t *testing.T) {
	ctx := context.Background()
	tr, repo := setup(t)

	var last *domain.Message
	for i := 0; i < 3; i++ {
		last = newMessage(t, repo, "1")
		require.NoError(t, tr.InitializeForMessage(ctx, nil, last, []string{"2"}))
	}

	n, err := tr.UnreadCount(ctx, "c1", "2")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = tr.UnreadCount(ctx, "c1", "1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	updated, err := tr.MarkReadUpTo(ctx, nil, "c1", "2", last.Sequence)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	n, err = tr.UnreadCount(ctx, "c1", "2")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = tr.MarkReadUpTo(ctx, nil, "c1", "2", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidSequence)
}
