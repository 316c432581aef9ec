package outbox

import (
	"context"
	"database/sql"
)

// PostgresSource claims rows with FOR UPDATE SKIP LOCKED inside one tx.
type PostgresSource struct {
	DB *sql.DB
}

func (s *PostgresSource) Claim(ctx context.Context, limit int) (Batch, error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, retry_count
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.RetryCount); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	return &pgBatch{tx: tx, events: events}, nil
}

type pgBatch struct {
	tx     *sql.Tx
	events []Event
}

func (b *pgBatch) Events() []Event { return b.events }

func (b *pgBatch) MarkProcessed(ctx context.Context, id int64) error {
	_, err := b.tx.ExecContext(ctx, `
		UPDATE outbox_events
		SET processed_at = now()
		WHERE id = $1
	`, id)
	return err
}

func (b *pgBatch) MarkFailed(ctx context.Context, id int64, cause string) error {
	_, err := b.tx.ExecContext(ctx, `
		UPDATE outbox_events
		SET retry_count = retry_count + 1, error = $2
		WHERE id = $1
	`, id, cause)
	return err
}

func (b *pgBatch) MoveToDLQ(ctx context.Context, e Event, cause string) error {
	if _, err := b.tx.ExecContext(ctx, `
		INSERT INTO outbox_dlq (id, aggregate_type, aggregate_id, event_type, payload, created_at, failed_at, error, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7, $8)
	`, e.ID, e.AggregateType, e.AggregateID, e.EventType, e.Payload, e.CreatedAt, cause, e.RetryCount+1); err != nil {
		return err
	}

	_, err := b.tx.ExecContext(ctx, `DELETE FROM outbox_events WHERE id = $1`, e.ID)
	return err
}

func (b *pgBatch) Commit() error   { return b.tx.Commit() }
func (b *pgBatch) Rollback() error { return b.tx.Rollback() }
