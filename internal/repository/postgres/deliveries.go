package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
)

func (r *Repository) InsertDeliveries(
	ctx context.Context,
	tx *sql.Tx,
	records []domain.DeliveryRecord,
) error {
	defer observability.ObserveQuery("insert_deliveries")()

	q := r.getter(tx)
	for _, rec := range records {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO message_deliveries (message_id, user_id, conversation_id, state, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (message_id, user_id) DO NOTHING
		`, rec.MessageID, rec.UserID, rec.ConversationID, int(rec.State), rec.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) AdvanceDelivery(
	ctx context.Context,
	tx *sql.Tx,
	messageID, userID string,
	to domain.DeliveryState,
	at time.Time,
) (bool, error) {
	// state < $3 turns regressions and repeats into no-ops.
	q := r.getter(tx)
	result, err := q.ExecContext(ctx, `
		UPDATE message_deliveries
		SET state = $3, updated_at = $4
		WHERE message_id = $1 AND user_id = $2 AND state < $3
	`, messageID, userID, int(to), at)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) AdvanceDeliveriesUpTo(
	ctx context.Context,
	tx *sql.Tx,
	convID, userID string,
	uptoSeq int64,
	to domain.DeliveryState,
	at time.Time,
) (int64, error) {
	q := r.getter(tx)
	result, err := q.ExecContext(ctx, `
		UPDATE message_deliveries d
		SET state = $4, updated_at = $5
		FROM messages m
		WHERE d.message_id = m.id
		  AND d.conversation_id = $1
		  AND d.user_id = $2
		  AND m.sequence <= $3
		  AND d.state < $4
	`, convID, userID, uptoSeq, int(to), at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *Repository) GetDelivery(
	ctx context.Context,
	tx *sql.Tx,
	messageID, userID string,
) (*domain.DeliveryRecord, error) {
	q := r.getter(tx)
	var rec domain.DeliveryRecord
	var state int
	err := q.QueryRowContext(ctx, `
		SELECT message_id, user_id, conversation_id, state, updated_at
		FROM message_deliveries
		WHERE message_id = $1 AND user_id = $2
	`, messageID, userID).Scan(&rec.MessageID, &rec.UserID, &rec.ConversationID, &state, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	rec.State = domain.DeliveryState(state)
	return &rec, nil
}

func (r *Repository) CountUnread(
	ctx context.Context,
	convID, userID string,
) (int, error) {
	defer observability.ObserveQuery("count_unread")()

	var n int
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM message_deliveries d
		JOIN messages m ON m.id = d.message_id
		WHERE d.conversation_id = $1
		  AND d.user_id = $2
		  AND d.state < $3
		  AND m.deleted_at IS NULL
	`, convID, userID, int(domain.DeliveryRead)).Scan(&n)
	return n, err
}
