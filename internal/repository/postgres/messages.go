package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
)

const messageColumns = `
	id, conversation_id, sender_id, sequence, type,
	content, media_url, sent_at, edited, edited_at, deleted_at`

func (r *Repository) NextSequence(
	ctx context.Context,
	tx *sql.Tx,
	convID string,
) (int64, error) {
	defer observability.ObserveQuery("next_sequence")()

	var next int64

	// The row lock held until commit linearizes appends within one conversation
	// and leaves other conversations untouched.
	q := r.getter(tx)
	err := q.QueryRowContext(ctx, `
		UPDATE conversation_sequences
		SET next_sequence = next_sequence + 1
		WHERE conversation_id = $1
		RETURNING next_sequence
	`, convID).Scan(&next)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrConversationNotFound
		}
		return 0, err
	}

	return next, nil
}

func (r *Repository) InsertMessage(
	ctx context.Context,
	tx *sql.Tx,
	msg *domain.Message,
) error {
	defer observability.ObserveQuery("insert_message")()

	var mediaURL interface{}
	if msg.MediaURL != "" {
		mediaURL = msg.MediaURL
	}

	q := r.getter(tx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO messages (
			id, conversation_id, sender_id,
			sequence, type, content, media_url, sent_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Sequence,
		msg.Type,
		msg.Content,
		mediaURL,
		msg.SentAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: message %s", domain.ErrAlreadyExists, msg.ID)
	}

	return err
}

func (r *Repository) GetMessage(
	ctx context.Context,
	tx *sql.Tx,
	messageID string,
) (*domain.Message, error) {
	q := r.getter(tx)
	row := q.QueryRowContext(ctx, `SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
	`, messageID)
	return scanSingleMessage(row)
}

func (r *Repository) GetMessageForUpdate(
	ctx context.Context,
	tx *sql.Tx,
	messageID string,
) (*domain.Message, error) {
	q := r.getter(tx)
	row := q.QueryRowContext(ctx, `SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
		FOR UPDATE
	`, messageID)
	return scanSingleMessage(row)
}

func (r *Repository) UpdateMessageContent(
	ctx context.Context,
	tx *sql.Tx,
	msg *domain.Message,
) error {
	q := r.getter(tx)
	_, err := q.ExecContext(ctx, `
		UPDATE messages
		SET content = $2, edited = TRUE, edited_at = $3
		WHERE id = $1
	`, msg.ID, msg.Content, msg.EditedAt)
	return err
}

func (r *Repository) MarkMessageDeleted(
	ctx context.Context,
	tx *sql.Tx,
	msgID string,
	at time.Time,
) error {
	q := r.getter(tx)
	_, err := q.ExecContext(ctx, `
		UPDATE messages
		SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, msgID, at)
	return err
}

func (r *Repository) FetchMessagesBefore(
	ctx context.Context,
	convID string,
	beforeSeq int64,
	limit int,
) ([]*domain.Message, error) {
	defer observability.ObserveQuery("fetch_messages")()

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+`
			FROM messages
			WHERE conversation_id = $1
			  AND ($2::bigint <= 0 OR sequence < $2::bigint)
			ORDER BY sequence DESC
			LIMIT $3
		) recent
		ORDER BY sequence ASC
	`, convID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (r *Repository) FetchMessagesAfter(
	ctx context.Context,
	convID string,
	afterSeq int64,
	limit int,
) ([]*domain.Message, error) {
	defer observability.ObserveQuery("fetch_messages")()

	rows, err := r.DB.QueryContext(ctx, `SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		  AND sequence > $2
		ORDER BY sequence ASC
		LIMIT $3
	`, convID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

func (r *Repository) GetLastMessage(
	ctx context.Context,
	convID string,
) (*domain.Message, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND deleted_at IS NULL
		ORDER BY sequence DESC
		LIMIT 1
	`, convID)
	msg, err := scanSingleMessage(row)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return nil, nil
	}
	return msg, err
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var mediaURL sql.NullString
	var editedAt, deletedAt sql.NullTime
	if err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Sequence,
		&msg.Type,
		&msg.Content,
		&mediaURL,
		&msg.SentAt,
		&msg.Edited,
		&editedAt,
		&deletedAt,
	); err != nil {
		return nil, err
	}
	msg.MediaURL = mediaURL.String
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		msg.DeletedAt = &t
	}
	return &msg, nil
}

func scanSingleMessage(row *sql.Row) (*domain.Message, error) {
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
