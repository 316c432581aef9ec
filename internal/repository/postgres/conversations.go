package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

func (r *Repository) InsertConversation(
	ctx context.Context,
	tx *sql.Tx,
	conv *domain.Conversation,
	lookupKey *string,
) (bool, error) {
	var title interface{}
	if conv.Title != "" {
		title = conv.Title
	}

	// ON CONFLICT waits for a concurrent insert of the same key to commit, so a
	// false result is always followed by a successful re-read.
	q := r.getter(tx)
	result, err := q.ExecContext(ctx, `
		INSERT INTO conversations (id, type, title, lookup_key, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (lookup_key) DO NOTHING
	`, conv.ID, conv.Type, title, lookupKey, conv.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) InitSequence(
	ctx context.Context,
	tx *sql.Tx,
	convID string,
) error {
	// Starts at 0; NextSequence increments first then returns the new value,
	// so the first message gets sequence number 1.
	q := r.getter(tx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO conversation_sequences (conversation_id, next_sequence)
		VALUES ($1, 0)
	`, convID)
	return err
}

func (r *Repository) UpsertParticipant(
	ctx context.Context,
	tx *sql.Tx,
	convID string,
	p domain.Participant,
) error {
	q := r.getter(tx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, user_id) DO UPDATE
		SET left_at = NULL, role = EXCLUDED.role, joined_at = EXCLUDED.joined_at
		WHERE conversation_participants.left_at IS NOT NULL
	`, convID, p.UserID, p.Role, p.JoinedAt)
	return err
}

func (r *Repository) MarkParticipantLeft(
	ctx context.Context,
	tx *sql.Tx,
	convID, userID string,
	at time.Time,
) error {
	q := r.getter(tx)
	_, err := q.ExecContext(ctx, `
		UPDATE conversation_participants
		SET left_at = $3
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL
	`, convID, userID, at)
	return err
}

func (r *Repository) GetConversationLocked(
	ctx context.Context,
	tx *sql.Tx,
	convID string,
) (*domain.Conversation, error) {
	return r.fetchConversation(ctx, tx, convID, true)
}

// GetConversation serves reads outside a transaction from the cache when one is
// configured. Reads inside a transaction always hit the database.
func (r *Repository) GetConversation(
	ctx context.Context,
	tx *sql.Tx,
	convID string,
) (*domain.Conversation, error) {
	if tx == nil && r.Cache != nil {
		conv, err := r.Cache.GetConversation(ctx, convID)
		if err == nil && conv != nil {
			return conv, nil
		}
		if err != nil {
			observability.GetLogger(ctx).Warn("conversation cache read failed",
				zap.String("conversation_id", convID), zap.Error(err))
		}
	}

	conv, err := r.fetchConversation(ctx, tx, convID, false)
	if err != nil {
		return nil, err
	}

	if tx == nil && r.Cache != nil {
		_ = r.Cache.SetConversation(ctx, conv)
	}

	return conv, nil
}

func (r *Repository) GetConversationByLookupKey(
	ctx context.Context,
	tx *sql.Tx,
	key string,
) (*domain.Conversation, error) {
	q := r.getter(tx)
	var id string
	err := q.QueryRowContext(ctx, `
		SELECT id FROM conversations WHERE lookup_key = $1
	`, key).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return r.fetchConversation(ctx, tx, id, false)
}

func (r *Repository) IsActiveParticipant(
	ctx context.Context,
	tx *sql.Tx,
	convID, userID string,
) (bool, error) {
	defer observability.ObserveQuery("is_participant")()

	q := r.getter(tx)
	var ok bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL
		)
	`, convID, userID).Scan(&ok)
	return ok, err
}

func (r *Repository) ListConversationsByUser(
	ctx context.Context,
	userID string,
) ([]*domain.Conversation, error) {
	defer observability.ObserveQuery("list_conversations")()

	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.id, c.type, c.title, c.created_at
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		LEFT JOIN LATERAL (
			SELECT m.sent_at
			FROM messages m
			WHERE m.conversation_id = c.id AND m.deleted_at IS NULL
			ORDER BY m.sequence DESC
			LIMIT 1
		) lm ON TRUE
		WHERE cp.user_id = $1 AND cp.left_at IS NULL
		ORDER BY COALESCE(lm.sent_at, c.created_at) DESC, c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	byID := make(map[string]*domain.Conversation)
	for rows.Next() {
		var c domain.Conversation
		var title sql.NullString
		if err := rows.Scan(&c.ID, &c.Type, &title, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Title = title.String
		c.Participants = make(map[string]domain.Participant)
		conversations = append(conversations, &c)
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return conversations, nil
	}

	ids := make([]string, 0, len(conversations))
	for _, c := range conversations {
		ids = append(ids, c.ID)
	}

	prows, err := r.DB.QueryContext(ctx, `
		SELECT conversation_id, user_id, role, joined_at, left_at
		FROM conversation_participants
		WHERE conversation_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	for prows.Next() {
		var convID string
		p, err := scanParticipant(prows, &convID)
		if err != nil {
			return nil, err
		}
		byID[convID].Participants[p.UserID] = p
	}

	return conversations, prows.Err()
}

func (r *Repository) InvalidateConversation(
	ctx context.Context,
	convID string,
) error {
	if r.Cache != nil {
		return r.Cache.DeleteConversation(ctx, convID)
	}
	return nil
}

func (r *Repository) fetchConversation(
	ctx context.Context,
	tx *sql.Tx,
	convID string,
	forUpdate bool,
) (*domain.Conversation, error) {
	query := `
		SELECT id, type, title, created_at
		FROM conversations
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	q := r.getter(tx)

	var conv domain.Conversation
	var title sql.NullString
	err := q.QueryRowContext(ctx, query, convID).Scan(
		&conv.ID,
		&conv.Type,
		&title,
		&conv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	conv.Title = title.String

	rows, err := q.QueryContext(ctx, `
		SELECT conversation_id, user_id, role, joined_at, left_at
		FROM conversation_participants
		WHERE conversation_id = $1
	`, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conv.Participants = make(map[string]domain.Participant)
	for rows.Next() {
		var ignored string
		p, err := scanParticipant(rows, &ignored)
		if err != nil {
			return nil, err
		}
		conv.Participants[p.UserID] = p
	}

	return &conv, rows.Err()
}

func scanParticipant(row rowScanner, convID *string) (domain.Participant, error) {
	var p domain.Participant
	var leftAt sql.NullTime
	if err := row.Scan(convID, &p.UserID, &p.Role, &p.JoinedAt, &leftAt); err != nil {
		return p, err
	}
	if leftAt.Valid {
		t := leftAt.Time
		p.LeftAt = &t
	}
	return p, nil
}
