package conversation

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// cachedRepo serves non-transactional conversation reads from a snapshot that
// is never invalidated, like a remote cache that missed an eviction.
type cachedRepo struct {
	*memory.Store

	mu    sync.Mutex
	cache map[string]*domain.Conversation
}

func newCachedRepo() *cachedRepo {
	return &cachedRepo{Store: memory.New(), cache: make(map[string]*domain.Conversation)}
}

func (r *cachedRepo) GetConversation(ctx context.Context, tx *sql.Tx, convID string) (*domain.Conversation, error) {
	if tx != nil {
		return r.Store.GetConversation(ctx, tx, convID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.cache[convID]; ok {
		return conv, nil
	}
	conv, err := r.Store.GetConversation(ctx, nil, convID)
	if err != nil {
		return nil, err
	}
	r.cache[convID] = conv
	return conv, nil
}

func newTestStore() *Store {
	repo := memory.New()
	return NewStore(repo, repo, zap.NewNop())
}

func TestFindOrCreateDirect(t *testing.T) {
	ctx := context.Background()

	t.Run("same pair in either order yields one conversation", func(t *testing.T) {
		s := newTestStore()

		first, err := s.FindOrCreateDirect(ctx, "1", "2")
		require.NoError(t, err)
		second, err := s.FindOrCreateDirect(ctx, "2", "1")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, domain.ConversationDirect, first.Type)
		assert.Equal(t, []string{"1", "2"}, second.ActiveParticipantIDs())
	})

	t.Run("rejects self and empty ids", func(t *testing.T) {
		s := newTestStore()

		_, err := s.FindOrCreateDirect(ctx, "1", "1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = s.FindOrCreateDirect(ctx, "", "1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("concurrent callers converge", func(t *testing.T) {
		s := newTestStore()
		const workers = 32

		ids := make([]string, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, b := "1", "2"
				if i%2 == 1 {
					a, b = b, a
				}
				conv, err := s.FindOrCreateDirect(ctx, a, b)
				errs[i] = err
				if err == nil {
					ids[i] = conv.ID
				}
			}(i)
		}
		wg.Wait()

		for i := range ids {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}

		list, err := s.List(ctx, "1")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("re-activates a participant who left", func(t *testing.T) {
		s := newTestStore()

		conv, err := s.FindOrCreateDirect(ctx, "1", "2")
		require.NoError(t, err)
		require.NoError(t, s.Remove(ctx, conv.ID, "1"))

		ok, err := s.IsParticipant(ctx, conv.ID, "1")
		require.NoError(t, err)
		assert.False(t, ok)

		again, err := s.FindOrCreateDirect(ctx, "2", "1")
		require.NoError(t, err)
		assert.Equal(t, conv.ID, again.ID)
		assert.True(t, again.IsActiveParticipant("1"))
	})
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	conv, err := s.CreateGroup(ctx, "owner", []string{"a", "b", "a", ""}, "team")
	require.NoError(t, err)

	assert.Equal(t, domain.ConversationGroup, conv.Type)
	assert.Equal(t, "team", conv.Title)
	assert.Equal(t, []string{"a", "b", "owner"}, conv.ActiveParticipantIDs())
	assert.Equal(t, domain.RoleAdmin, conv.Participants["owner"].Role)
	assert.Equal(t, domain.RoleMember, conv.Participants["a"].Role)

	solo, err := s.CreateGroup(ctx, "owner", nil, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner"}, solo.ActiveParticipantIDs())

	_, err = s.CreateGroup(ctx, "", []string{"a"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	conv, err := s.FindOrCreateDirect(ctx, "1", "2")
	require.NoError(t, err)

	_, err = s.Authorize(ctx, nil, conv.ID, "1")
	assert.NoError(t, err)

	_, err = s.Authorize(ctx, nil, conv.ID, "3")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	_, err = s.Authorize(ctx, nil, "missing", "1")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	conv, err := s.CreateGroup(ctx, "owner", []string{"a"}, "")
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, conv.ID, "a"))
	assert.ErrorIs(t, s.Remove(ctx, conv.ID, "a"), domain.ErrNotParticipant)
	assert.ErrorIs(t, s.Remove(ctx, "missing", "a"), domain.ErrConversationNotFound)

	got, err := s.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner"}, got.ActiveParticipantIDs())
	assert.NotNil(t, got.Participants["a"].LeftAt)
}

func TestParticipantManagement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	conv, err := s.CreateGroup(ctx, "owner", []string{"a"}, "")
	require.NoError(t, err)

	t.Run("admin adds", func(t *testing.T) {
		updated, err := s.AddParticipant(ctx, conv.ID, "owner", "b")
		require.NoError(t, err)
		assert.True(t, updated.IsActiveParticipant("b"))

		ok, err := s.IsParticipant(ctx, conv.ID, "b")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("member cannot add", func(t *testing.T) {
		_, err := s.AddParticipant(ctx, conv.ID, "a", "c")
		assert.ErrorIs(t, err, domain.ErrNotAdmin)
	})

	t.Run("admin removes", func(t *testing.T) {
		_, err := s.RemoveParticipant(ctx, conv.ID, "owner", "b")
		require.NoError(t, err)

		ok, err := s.IsParticipant(ctx, conv.ID, "b")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("direct conversations are fixed", func(t *testing.T) {
		direct, err := s.FindOrCreateDirect(ctx, "1", "2")
		require.NoError(t, err)
		_, err = s.AddParticipant(ctx, direct.ID, "1", "3")
		assert.ErrorIs(t, err, domain.ErrDirectModification)
	})
}

func TestRequireParticipant(t *testing.T) {
	ctx := context.Background()
	repo := newCachedRepo()
	s := NewStore(repo, repo.Store, zap.NewNop())

	conv, err := s.CreateGroup(ctx, "admin", []string{"a", "b"}, "team")
	require.NoError(t, err)

	// Warm the snapshot while "b" is still a member.
	_, err = s.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	_, err = s.RemoveParticipant(ctx, conv.ID, "admin", "b")
	require.NoError(t, err)

	tests := []struct {
		name    string
		convID  string
		userID  string
		wantErr error
	}{
		{"active member", conv.ID, "a", nil},
		{"removed member with stale cached copy", conv.ID, "b", domain.ErrNotParticipant},
		{"stranger", conv.ID, "z", domain.ErrNotParticipant},
		{"unknown conversation", "missing", "a", domain.ErrConversationNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RequireParticipant(ctx, tt.convID, tt.userID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	cached, err := s.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, cached.IsActiveParticipant("b"), "snapshot is expected to lag")
}

func TestRemove_SoleGroupAdmin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	conv, err := s.CreateGroup(ctx, "admin", []string{"a"}, "")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Remove(ctx, conv.ID, "admin"), domain.ErrLastAdmin)
	assert.NoError(t, s.RequireParticipant(ctx, conv.ID, "admin"))

	require.NoError(t, s.Remove(ctx, conv.ID, "a"))
	require.NoError(t, s.Remove(ctx, conv.ID, "admin"))
	assert.ErrorIs(t, s.RequireParticipant(ctx, conv.ID, "admin"), domain.ErrNotParticipant)
}
