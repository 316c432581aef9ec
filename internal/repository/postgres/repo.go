package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/SARVESHVARADKAR123/RealChat/internal/cache"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository"
	"github.com/lib/pq"
)

var _ repository.Repository = (*Repository)(nil)

type Repository struct {
	DB    *sql.DB
	Cache *cache.Cache
}

func New(db *sql.DB, c *cache.Cache) *Repository {
	return &Repository{DB: db, Cache: c}
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) getter(tx *sql.Tx) queryable {
	if tx != nil {
		return tx
	}
	return r.DB
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
