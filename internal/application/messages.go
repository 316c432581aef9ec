package application

import (
	"context"
	"database/sql"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
)

// GetMessages pages backwards through history. Results are ascending.
func (s *Service) GetMessages(ctx context.Context, conversationID, userID string, limit int, beforeSeq int64) ([]*domain.Message, error) {
	msgs, err := s.messages.GetRecent(ctx, conversationID, userID, limit, beforeSeq)
	if err != nil {
		return nil, transient(err)
	}
	return msgs, nil
}

// SyncMessages returns messages after afterSeq, ascending.
func (s *Service) SyncMessages(ctx context.Context, conversationID, userID string, afterSeq int64, limit int) ([]*domain.Message, error) {
	msgs, err := s.messages.Sync(ctx, conversationID, userID, afterSeq, limit)
	if err != nil {
		return nil, transient(err)
	}
	return msgs, nil
}

// EditMessage replaces the content of the caller's own message.
func (s *Service) EditMessage(ctx context.Context, messageID, userID, content string) (*domain.Message, error) {
	var edited *domain.Message
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		msg, err := s.messages.Get(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if _, err := s.conversations.Authorize(ctx, tx, msg.ConversationID, userID); err != nil {
			return err
		}

		edited, err = s.messages.Edit(ctx, tx, messageID, userID, content)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, domain.NewMessageEvent(domain.EventMessageEdited, edited, s.now()))
	})
	if err != nil {
		return nil, transient(err)
	}

	s.hub.Publish(ctx, domain.NewMessageEvent(domain.EventMessageEdited, edited, s.now()))
	return edited, nil
}

// DeleteMessage soft-deletes the caller's own message. Deleting an already
// deleted message succeeds without a new event.
func (s *Service) DeleteMessage(ctx context.Context, messageID, userID string) error {
	var (
		deleted *domain.Message
		changed bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		msg, err := s.messages.Get(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if _, err := s.conversations.Authorize(ctx, tx, msg.ConversationID, userID); err != nil {
			return err
		}

		deleted, changed, err = s.messages.Delete(ctx, tx, messageID, userID)
		if err != nil || !changed {
			return err
		}
		return s.emit(ctx, tx, domain.NewMessageEvent(domain.EventMessageDeleted, deleted, s.now()))
	})
	if err != nil {
		return transient(err)
	}

	if changed {
		s.hub.Publish(ctx, domain.NewMessageEvent(domain.EventMessageDeleted, deleted, s.now()))
	}
	return nil
}
