package tx

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type Manager struct {
	DB *sql.DB
}

const maxRetries = 5

var ErrRetryExhausted = errors.New("transaction retry exhausted")

func (m *Manager) WithTx(
	ctx context.Context,
	fn func(ctx context.Context, tx *sql.Tx) error,
) error {

	for i := 0; i < maxRetries; i++ {

		tx, err := m.DB.BeginTx(ctx, &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
		})
		if err != nil {
			return err
		}

		err = fn(ctx, tx)
		if err != nil {
			_ = tx.Rollback()
			if isRetryable(err) {
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isRetryable(err) {
				continue
			}
			return err
		}

		return nil
	}

	return ErrRetryExhausted
}

// serialization_failure and deadlock_detected are safe to replay.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
