// Package postgres implements storage.Store on PostgreSQL via sqlx. Writes to
// the books table go through single conditional UPDATE statements, so the
// database row is the serialization point for racing lifecycle transitions.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jmoiron/sqlx"

	"bookring/core/logger"
	"bookring/storage"
)

const component = "storage.postgres"

var builder = goqu.Dialect("postgres")

// Store is the PostgreSQL-backed storage.Store.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open sqlx connection pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// wrap maps driver errors onto the storage taxonomy. sql.ErrNoRows becomes
// ErrNotFound, anything else ErrUnavailable.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, storage.ErrUnavailable, err)
}

func (s *Store) getContext(ctx context.Context, dst any, ds *goqu.SelectDataset, op string) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	return wrap(op, s.db.GetContext(ctx, dst, query, args...))
}

func (s *Store) selectContext(ctx context.Context, dst any, ds *goqu.SelectDataset, op string) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	return wrap(op, s.db.SelectContext(ctx, dst, query, args...))
}

func logSlow(ctx context.Context, op string, start time.Time) {
	took := time.Since(start)
	if took > 200*time.Millisecond {
		logger.Warn(ctx, component, "query.slow",
			slog.String("op", op),
			slog.Int64("duration_ms", took.Milliseconds()),
		)
	}
}
