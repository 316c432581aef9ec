package messagelog

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, users ...string) (*Log, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()

	now := time.Now()
	_, err := repo.InsertConversation(ctx, nil, &domain.Conversation{ID: "c1", Type: domain.ConversationGroup, CreatedAt: now}, nil)
	require.NoError(t, err)
	require.NoError(t, repo.InitSequence(ctx, nil, "c1"))
	for _, u := range users {
		require.NoError(t, repo.UpsertParticipant(ctx, nil, "c1", domain.Participant{UserID: u, Role: domain.RoleMember, JoinedAt: now}))
	}
	return New(repo), repo
}

func appendText(t *testing.T, l *Log, sender, content string) *domain.Message {
	t.Helper()
	res, err := l.Append(context.Background(), nil, AppendInput{ConversationID: "c1", SenderID: sender, Content: content})
	require.NoError(t, err)
	return res.Message
}

func TestAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns increasing sequences and recipients", func(t *testing.T) {
		l, _ := setup(t, "1", "2", "3")

		res, err := l.Append(ctx, nil, AppendInput{ConversationID: "c1", SenderID: "1", Content: "hi"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Message.Sequence)
		assert.Equal(t, domain.MessageText, res.Message.Type)
		assert.Equal(t, []string{"2", "3"}, res.Recipients)

		next := appendText(t, l, "2", "yo")
		assert.Equal(t, int64(2), next.Sequence)
	})

	t.Run("rejects unknown conversation and outsiders", func(t *testing.T) {
		l, _ := setup(t, "1", "2")

		_, err := l.Append(ctx, nil, AppendInput{ConversationID: "nope", SenderID: "1", Content: "hi"})
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)

		_, err = l.Append(ctx, nil, AppendInput{ConversationID: "c1", SenderID: "9", Content: "hi"})
		assert.ErrorIs(t, err, domain.ErrNotParticipant)
	})

	t.Run("validates content before touching the sequence", func(t *testing.T) {
		l, _ := setup(t, "1")

		_, err := l.Append(ctx, nil, AppendInput{ConversationID: "c1", SenderID: "1", Content: ""})
		assert.ErrorIs(t, err, domain.ErrInvalidMessage)

		assert.Equal(t, int64(1), appendText(t, l, "1", "first").Sequence)
	})

	t.Run("concurrent appends are contiguous", func(t *testing.T) {
		l, _ := setup(t, "1", "2")
		const n = 50

		var wg sync.WaitGroup
		seqs := make(chan int64, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sender := "1"
				if i%2 == 0 {
					sender = "2"
				}
				res, err := l.Append(ctx, nil, AppendInput{ConversationID: "c1", SenderID: sender, Content: "x"})
				if assert.NoError(t, err) {
					seqs <- res.Message.Sequence
				}
			}(i)
		}
		wg.Wait()
		close(seqs)

		seen := make(map[int64]bool)
		for s := range seqs {
			assert.False(t, seen[s], "duplicate sequence %d", s)
			seen[s] = true
		}
		for i := int64(1); i <= n; i++ {
			assert.True(t, seen[i], "missing sequence %d", i)
		}
	})
}

func TestAppend_RolledBackSequenceNotVisible(t *testing.T) {
	l, repo := setup(t, "1")
	ctx := context.Background()

	err := repo.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := l.Append(ctx, tx, AppendInput{ConversationID: "c1", SenderID: "1", Content: "lost"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	msgs, err := l.GetRecent(ctx, "c1", "1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGetRecent(t *testing.T) {
	ctx := context.Background()
	l, _ := setup(t, "1", "2")
	for i := 0; i < 5; i++ {
		appendText(t, l, "1", "m")
	}

	msgs, err := l.GetRecent(ctx, "c1", "2", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Sequence)
	}

	page, err := l.GetRecent(ctx, "c1", "2", 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].Sequence)
	assert.Equal(t, int64(3), page[1].Sequence)

	_, err = l.GetRecent(ctx, "c1", "9", 0, 0)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	_, err = l.GetRecent(ctx, "missing", "1", 0, 0)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	l, _ := setup(t, "1")
	for i := 0; i < 4; i++ {
		appendText(t, l, "1", "m")
	}

	msgs, err := l.Sync(ctx, "c1", "1", 2, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(3), msgs[0].Sequence)

	_, err = l.Sync(ctx, "c1", "1", -1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidSequence)
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	l, _ := setup(t, "1", "2")
	msg := appendText(t, l, "1", "hello")

	_, err := l.Edit(ctx, nil, msg.ID, "2", "hijack")
	assert.ErrorIs(t, err, domain.ErrNotSender)

	edited, err := l.Edit(ctx, nil, msg.ID, "1", "hello, world")
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.Equal(t, msg.Sequence, edited.Sequence)

	stored, err := l.Get(ctx, nil, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", stored.Content)

	_, err = l.Edit(ctx, nil, "missing", "1", "x")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	l, _ := setup(t, "1", "2")
	first := appendText(t, l, "1", "keep")
	second := appendText(t, l, "1", "secret")

	t.Run("non-sender is rejected and message stays", func(t *testing.T) {
		_, _, err := l.Delete(ctx, nil, second.ID, "2")
		assert.ErrorIs(t, err, domain.ErrNotSender)

		msgs, err := l.GetRecent(ctx, "c1", "2", 0, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "secret", msgs[1].Content)
	})

	t.Run("sender deletes to a tombstone", func(t *testing.T) {
		deleted, changed, err := l.Delete(ctx, nil, second.ID, "1")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, deleted.IsDeleted())
		assert.Empty(t, deleted.Content)

		msgs, err := l.GetRecent(ctx, "c1", "2", 0, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.True(t, msgs[1].IsDeleted())
		assert.Empty(t, msgs[1].Content)

		last, err := l.GetLastMessage(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, last.ID)
	})

	t.Run("second delete is a no-op", func(t *testing.T) {
		_, changed, err := l.Delete(ctx, nil, second.ID, "1")
		require.NoError(t, err)
		assert.False(t, changed)
	})
}
