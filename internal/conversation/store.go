// Package conversation owns conversation records and participant sets, and is
// the authorization gate every other messaging operation goes through.
package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/internal/tx"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type Store struct {
	repo repository.ConversationRepository
	tx   tx.Transactor
	log  *zap.Logger
	now  func() time.Time
}

func NewStore(repo repository.ConversationRepository, transactor tx.Transactor, log *zap.Logger) *Store {
	return &Store{
		repo: repo,
		tx:   transactor,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// FindOrCreateDirect returns the single direct conversation between userA and
// userB, creating it on first use. Concurrent callers converge on one row via
// the unique lookup key; a side that previously left is re-activated.
func (s *Store) FindOrCreateDirect(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	if userA == "" || userB == "" || userA == userB {
		return nil, domain.ErrInvalidInput
	}
	key := domain.DirectLookupKey(userA, userB)

	existing, err := s.repo.GetConversationByLookupKey(ctx, nil, key)
	switch {
	case err == nil:
		if existing.IsActiveParticipant(userA) && existing.IsActiveParticipant(userB) {
			return existing, nil
		}
	case !errors.Is(err, domain.ErrConversationNotFound):
		return nil, err
	}

	var result *domain.Conversation
	var rejoined bool
	txErr := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := s.now()
		conv := &domain.Conversation{
			ID:        uuid.NewString(),
			Type:      domain.ConversationDirect,
			CreatedAt: now,
		}

		inserted, err := s.repo.InsertConversation(ctx, tx, conv, &key)
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}

		if inserted {
			if err := s.repo.InitSequence(ctx, tx, conv.ID); err != nil {
				return fmt.Errorf("failed to initialize sequence: %w", err)
			}
		} else {
			// Lost the race or the pair already existed: continue with the winner.
			winner, err := s.repo.GetConversationByLookupKey(ctx, tx, key)
			if err != nil {
				return fmt.Errorf("failed to re-read direct conversation: %w", err)
			}
			conv = winner
		}

		for _, userID := range []string{userA, userB} {
			if conv.IsActiveParticipant(userID) {
				continue
			}
			if err := s.repo.UpsertParticipant(ctx, tx, conv.ID, domain.Participant{
				UserID:   userID,
				Role:     domain.RoleMember,
				JoinedAt: now,
			}); err != nil {
				return fmt.Errorf("failed to add participant %s: %w", userID, err)
			}
			rejoined = rejoined || !inserted
		}

		result, err = s.repo.GetConversation(ctx, tx, conv.ID)
		return err
	})
	if txErr != nil {
		return nil, txErr
	}

	if rejoined {
		s.invalidate(ctx, result.ID)
	}
	return result, nil
}

// CreateGroup creates a group whose creator is always an admin member.
func (s *Store) CreateGroup(ctx context.Context, creatorID string, participantIDs []string, title string) (*domain.Conversation, error) {
	if creatorID == "" {
		return nil, domain.ErrInvalidInput
	}
	members := lo.Uniq(lo.Compact(append([]string{creatorID}, participantIDs...)))

	var result *domain.Conversation
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := s.now()
		conv := &domain.Conversation{
			ID:        uuid.NewString(),
			Type:      domain.ConversationGroup,
			Title:     title,
			CreatedAt: now,
		}

		if _, err := s.repo.InsertConversation(ctx, tx, conv, nil); err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		if err := s.repo.InitSequence(ctx, tx, conv.ID); err != nil {
			return fmt.Errorf("failed to initialize sequence: %w", err)
		}

		for _, userID := range members {
			role := domain.RoleMember
			if userID == creatorID {
				role = domain.RoleAdmin
			}
			if err := s.repo.UpsertParticipant(ctx, tx, conv.ID, domain.Participant{
				UserID:   userID,
				Role:     role,
				JoinedAt: now,
			}); err != nil {
				return fmt.Errorf("failed to add participant %s: %w", userID, err)
			}
		}

		var err error
		result, err = s.repo.GetConversation(ctx, tx, conv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("group conversation created",
		zap.String("conversation_id", result.ID),
		zap.String("user_id", creatorID),
		zap.Int("participants", len(members)),
	)
	return result, nil
}

func (s *Store) GetByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	return s.repo.GetConversation(ctx, nil, conversationID)
}

func (s *Store) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.repo.IsActiveParticipant(ctx, nil, conversationID, userID)
}

// RequireParticipant checks membership against the database rather than the
// conversation cache, so a removal is honored immediately.
func (s *Store) RequireParticipant(ctx context.Context, conversationID, userID string) error {
	ok, err := s.repo.IsActiveParticipant(ctx, nil, conversationID, userID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.repo.GetConversation(ctx, nil, conversationID); err != nil {
		return err
	}
	return domain.ErrNotParticipant
}

// Authorize loads the conversation and checks that userID is an active member.
func (s *Store) Authorize(ctx context.Context, tx *sql.Tx, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := conv.CanSend(userID); err != nil {
		return nil, err
	}
	return conv, nil
}

// Remove ends the requester's own participation. History stays intact for the
// other participants.
func (s *Store) Remove(ctx context.Context, conversationID, requesterID string) error {
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		conv, err := s.repo.GetConversationLocked(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := conv.Leave(requesterID, now); err != nil {
			return err
		}
		return s.repo.MarkParticipantLeft(ctx, tx, conversationID, requesterID, now)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, conversationID)
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, conversationID, requesterID, userID string) (*domain.Conversation, error) {
	if userID == "" {
		return nil, domain.ErrInvalidInput
	}

	var result *domain.Conversation
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		conv, err := s.repo.GetConversationLocked(ctx, tx, conversationID)
		if err != nil {
			return err
		}

		now := s.now()
		added, err := conv.AddParticipant(requesterID, userID, now)
		if err != nil {
			return err
		}
		if added {
			if err := s.repo.UpsertParticipant(ctx, tx, conversationID, conv.Participants[userID]); err != nil {
				return err
			}
		}
		result = conv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, conversationID)
	return result, nil
}

func (s *Store) RemoveParticipant(ctx context.Context, conversationID, requesterID, targetID string) (*domain.Conversation, error) {
	var result *domain.Conversation
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		conv, err := s.repo.GetConversationLocked(ctx, tx, conversationID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := conv.RemoveParticipant(requesterID, targetID, now); err != nil {
			return err
		}
		if err := s.repo.MarkParticipantLeft(ctx, tx, conversationID, targetID, now); err != nil {
			return err
		}
		result = conv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, conversationID)
	return result, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	return s.repo.ListConversationsByUser(ctx, userID)
}

func (s *Store) invalidate(ctx context.Context, conversationID string) {
	if err := s.repo.InvalidateConversation(ctx, conversationID); err != nil {
		s.log.Warn("failed to invalidate conversation cache",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}
