package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"bookring/storage"
)

// RecordAction appends one row to the audit journal.
func (s *Store) RecordAction(ctx context.Context, a storage.Action) error {
	const op = "action.record"
	defer logSlow(ctx, op, time.Now())

	query, args, err := builder.Insert("actions").Rows(goqu.Record{
		"user_id": a.UserID,
		"book_id": a.BookID,
		"kind":    a.Kind,
		"payload": a.Payload,
		"ctime":   a.CTime,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return wrap(op, err)
}
