// Package delivery tracks per-recipient message state: sent, delivered, read.
// States only move forward; a request to move backwards is ignored.
package delivery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository"
	"github.com/samber/lo"
)

type Tracker struct {
	repo repository.DeliveryRepository
	now  func() time.Time
}

func NewTracker(repo repository.DeliveryRepository) *Tracker {
	return &Tracker{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// InitializeForMessage creates a Sent record for every recipient. It must run
// in the same tx as the append so a message never exists without its records.
func (t *Tracker) InitializeForMessage(ctx context.Context, tx *sql.Tx, msg *domain.Message, recipientIDs []string) error {
	recipients := lo.Without(lo.Uniq(recipientIDs), msg.SenderID, "")
	if len(recipients) == 0 {
		return nil
	}

	now := t.now()
	records := lo.Map(recipients, func(userID string, _ int) domain.DeliveryRecord {
		return domain.DeliveryRecord{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			UserID:         userID,
			State:          domain.DeliverySent,
			UpdatedAt:      now,
		}
	})

	if err := t.repo.InsertDeliveries(ctx, tx, records); err != nil {
		return fmt.Errorf("failed to initialize deliveries: %w", err)
	}
	return nil
}

// MarkDelivered reports whether the record moved forward.
func (t *Tracker) MarkDelivered(ctx context.Context, tx *sql.Tx, messageID, recipientID string) (bool, error) {
	return t.repo.AdvanceDelivery(ctx, tx, messageID, recipientID, domain.DeliveryDelivered, t.now())
}

// MarkRead marks msg as read by userID. Reading one's own message succeeds
// without changing anything.
func (t *Tracker) MarkRead(ctx context.Context, tx *sql.Tx, userID string, msg *domain.Message) (bool, error) {
	if msg.SenderID == userID {
		return false, nil
	}
	return t.repo.AdvanceDelivery(ctx, tx, msg.ID, userID, domain.DeliveryRead, t.now())
}

// MarkReadUpTo marks every message up to and including seq as read and
// returns how many records changed.
func (t *Tracker) MarkReadUpTo(ctx context.Context, tx *sql.Tx, conversationID, userID string, seq int64) (int64, error) {
	if seq <= 0 {
		return 0, domain.ErrInvalidSequence
	}
	return t.repo.AdvanceDeliveriesUpTo(ctx, tx, conversationID, userID, seq, domain.DeliveryRead, t.now())
}

func (t *Tracker) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	return t.repo.CountUnread(ctx, conversationID, userID)
}

func (t *Tracker) State(ctx context.Context, messageID, userID string) (*domain.DeliveryRecord, error) {
	return t.repo.GetDelivery(ctx, nil, messageID, userID)
}
