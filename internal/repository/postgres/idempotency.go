package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// A key is identified by (key, user_id, conversation_id); the same client key
// reused in another conversation is a different request.
const idempotencyMatch = `key = $1 AND user_id = $2 AND conversation_id = $3`

// TryInsertIdempotency claims the key for the calling transaction. A row whose
// expiry has passed is taken over and its stored response discarded, so a
// stale key cannot replay once its TTL is over even before the sweeper runs.
func (r *Repository) TryInsertIdempotency(ctx context.Context, tx *sql.Tx, key, userID, conversationID string, expiresAt time.Time) (bool, error) {
	res, err := r.getter(tx).ExecContext(ctx, `
		INSERT INTO idempotency_keys AS k (key, user_id, conversation_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key, user_id, conversation_id) DO UPDATE
		SET expires_at = EXCLUDED.expires_at, payload = NULL
		WHERE k.expires_at < now()
	`, key, userID, conversationID, expiresAt)
	if err != nil {
		return false, err
	}

	claimed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return claimed == 1, nil
}

// GetIdempotencyForUpdate waits for the owning send to finish and returns its
// stored response. A nil payload means the owner has not committed one.
func (r *Repository) GetIdempotencyForUpdate(ctx context.Context, tx *sql.Tx, key, userID, conversationID string) ([]byte, error) {
	var payload []byte
	err := r.getter(tx).QueryRowContext(ctx,
		`SELECT payload FROM idempotency_keys WHERE `+idempotencyMatch+` FOR UPDATE`,
		key, userID, conversationID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return payload, err
}

func (r *Repository) UpdateIdempotencyResponse(ctx context.Context, tx *sql.Tx, key, userID, conversationID string, payload []byte) error {
	_, err := r.getter(tx).ExecContext(ctx,
		`UPDATE idempotency_keys SET payload = $4 WHERE `+idempotencyMatch,
		key, userID, conversationID, payload,
	)
	return err
}

// DeleteExpiredIdempotency runs outside any transaction; it is the sweeper's
// batch delete.
func (r *Repository) DeleteExpiredIdempotency(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
