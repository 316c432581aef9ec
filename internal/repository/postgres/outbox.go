package postgres

import (
	"context"
	"database/sql"
)

// InsertOutbox records an event in the same transaction as the change that
// produced it. outbox.Worker relays it to Kafka after commit.
func (r *Repository) InsertOutbox(ctx context.Context, tx *sql.Tx, aggregateType, aggregateID, eventType string, payload []byte) error {
	_, err := r.getter(tx).ExecContext(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, aggregateType, aggregateID, eventType, payload)
	return err
}
