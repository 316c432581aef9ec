package tx

import (
	"context"
	"database/sql"
)

// Transactor runs fn inside one unit of work. Implementations without a SQL
// backend pass a nil *sql.Tx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error
}

// Func adapts a plain function to Transactor.
type Func func(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error

func (f Func) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return f(ctx, fn)
}

// Passthrough runs fn without a transaction.
var Passthrough Transactor = Func(func(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return fn(ctx, nil)
})
