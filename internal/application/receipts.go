package application

import (
	"context"
	"database/sql"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
)

// MarkRead records that userID has read messageID. Reading one's own message,
// or re-reading, succeeds without an event.
func (s *Service) MarkRead(ctx context.Context, messageID, userID string) error {
	return s.advanceReceipt(ctx, messageID, userID, domain.EventReadReceipt)
}

// MarkDelivered records that a device of userID received messageID. It never
// moves a read message back.
func (s *Service) MarkDelivered(ctx context.Context, messageID, userID string) error {
	return s.advanceReceipt(ctx, messageID, userID, domain.EventDeliveryReceipt)
}

func (s *Service) advanceReceipt(ctx context.Context, messageID, userID string, eventType domain.EventType) error {
	var (
		msg     *domain.Message
		changed bool
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		msg, err = s.messages.Get(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if _, err := s.conversations.Authorize(ctx, tx, msg.ConversationID, userID); err != nil {
			return err
		}

		if eventType == domain.EventReadReceipt {
			changed, err = s.deliveries.MarkRead(ctx, tx, userID, msg)
		} else {
			changed, err = s.deliveries.MarkDelivered(ctx, tx, messageID, userID)
		}
		if err != nil || !changed {
			return err
		}
		return s.emit(ctx, tx, domain.NewReceiptEvent(eventType, msg, userID, s.now()))
	})
	if err != nil {
		return transient(err)
	}

	if changed {
		s.hub.Publish(ctx, domain.NewReceiptEvent(eventType, msg, userID, s.now()))
	}
	return nil
}

// MarkConversationRead marks every message up to sequence as read and
// returns how many records changed.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID string, sequence int64) (int64, error) {
	var updated int64
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := s.conversations.Authorize(ctx, tx, conversationID, userID); err != nil {
			return err
		}

		var err error
		updated, err = s.deliveries.MarkReadUpTo(ctx, tx, conversationID, userID, sequence)
		if err != nil || updated == 0 {
			return err
		}
		return s.emit(ctx, tx, domain.NewReadUpToEvent(conversationID, userID, sequence, s.now()))
	})
	if err != nil {
		return 0, transient(err)
	}

	if updated > 0 {
		s.hub.Publish(ctx, domain.NewReadUpToEvent(conversationID, userID, sequence, s.now()))
	}
	return updated, nil
}

func (s *Service) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	if err := s.conversations.RequireParticipant(ctx, conversationID, userID); err != nil {
		return 0, transient(err)
	}
	n, err := s.deliveries.UnreadCount(ctx, conversationID, userID)
	if err != nil {
		return 0, transient(err)
	}
	return n, nil
}
