package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"

	"bookring/storage"
)

// baseViewQuery joins an instance with its catalog entry, location, and the
// aggregated author/genre names. Callers append a WHERE clause and the shared
// GROUP BY / ORDER BY tail.
const baseViewQuery = `
SELECT b.id, b.catalog_id, b.owner_id, b.location_id, b.status,
       b.candidate_id, b.remain_time, b.is_transferred, b.condition,
       b.image, b.pub_date,
       ce.title,
       COALESCE(loc.city, '') AS city,
       COALESCE(array_agg(DISTINCT a.name) FILTER (WHERE a.name IS NOT NULL), '{}') AS authors,
       COALESCE(array_agg(DISTINCT g.name) FILTER (WHERE g.name IS NOT NULL), '{}') AS genres
  FROM books b
  JOIN catalog_entries ce ON ce.id = b.catalog_id
  LEFT JOIN locations loc ON loc.id = b.location_id
  LEFT JOIN catalog_authors ca ON ca.catalog_id = ce.id
  LEFT JOIN authors a ON a.id = ca.author_id
  LEFT JOIN catalog_genres cg ON cg.catalog_id = ce.id
  LEFT JOIN genres g ON g.id = cg.genre_id`

const viewQueryTail = `
 GROUP BY b.id, ce.title, loc.city
 ORDER BY b.status, b.id`

type viewRow struct {
	storage.BookInstance
	Title   string         `db:"title"`
	City    string         `db:"city"`
	Authors pq.StringArray `db:"authors"`
	Genres  pq.StringArray `db:"genres"`
}

func (r viewRow) view() storage.BookView {
	return storage.BookView{
		BookInstance: r.BookInstance,
		Title:        r.Title,
		Authors:      []string(r.Authors),
		Genres:       []string(r.Genres),
		City:         r.City,
	}
}

// GetInstance implements storage.InstanceStore.
func (s *Store) GetInstance(ctx context.Context, id int64) (storage.BookInstance, error) {
	defer logSlow(ctx, "instance.get", time.Now())
	var inst storage.BookInstance
	ds := builder.From("books").Where(goqu.Ex{"id": id})
	if err := s.getContext(ctx, &inst, ds, "instance.get"); err != nil {
		return storage.BookInstance{}, err
	}
	return inst, nil
}

// ConditionalUpdate applies upd to the instance only while exp still holds.
// The expectation is folded into the UPDATE's WHERE clause, so the check and
// the write are one atomic statement; zero affected rows means the row changed
// underneath the caller (ErrConflict) or vanished (ErrNotFound).
func (s *Store) ConditionalUpdate(ctx context.Context, id int64, exp storage.Expect, upd storage.Update) error {
	const op = "instance.cas"
	defer logSlow(ctx, op, time.Now())

	rec := goqu.Record{}
	if upd.SetStatus {
		rec["status"] = int(upd.Status)
	}
	if upd.SetCandidate {
		rec["candidate_id"] = upd.CandidateID
	}
	if upd.SetRemainTime {
		rec["remain_time"] = upd.RemainTime
	}
	if upd.ExtendRemain > 0 {
		rec["remain_time"] = goqu.L("remain_time + make_interval(secs => ?)", upd.ExtendRemain.Seconds())
	}
	if upd.SetTransferred {
		rec["is_transferred"] = upd.IsTransferred
	}
	if upd.SetOwner {
		rec["owner_id"] = upd.OwnerID
	}
	if len(rec) == 0 {
		return nil
	}

	where := goqu.Ex{"id": id, "status": int(exp.Status)}
	if exp.MatchCandidate {
		if exp.CandidateID == nil {
			where["candidate_id"] = nil
		} else {
			where["candidate_id"] = *exp.CandidateID
		}
	}
	if exp.MatchRemain {
		if exp.RemainTime == nil {
			where["remain_time"] = nil
		} else {
			where["remain_time"] = *exp.RemainTime
		}
	}

	query, args, err := builder.Update("books").Set(rec).Where(where).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err)
	}
	if affected > 0 {
		return nil
	}

	// Zero rows: distinguish a lost race from a missing row.
	var one int
	err = s.db.GetContext(ctx, &one, "SELECT 1 FROM books WHERE id = $1", id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case err != nil:
		return wrap(op, err)
	default:
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}
}

// CreateInstance implements storage.InstanceStore.
func (s *Store) CreateInstance(ctx context.Context, inst storage.BookInstance) (int64, error) {
	const op = "instance.create"
	defer logSlow(ctx, op, time.Now())

	if !inst.Status.Valid() {
		inst.Status = storage.StatusFree
	}
	if inst.PubDate.IsZero() {
		inst.PubDate = time.Now().UTC()
	}
	query, args, err := builder.Insert("books").Rows(goqu.Record{
		"catalog_id":     inst.CatalogID,
		"owner_id":       inst.OwnerID,
		"location_id":    inst.LocationID,
		"status":         int(inst.Status),
		"condition":      inst.Condition,
		"image":          inst.Image,
		"pub_date":       inst.PubDate,
		"is_transferred": false,
	}).Returning("id").Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("%s: build query: %w", op, err)
	}
	var id int64
	if err := s.db.GetContext(ctx, &id, query, args...); err != nil {
		return 0, wrap(op, err)
	}
	return id, nil
}

// ListByOwner implements storage.InstanceStore.
func (s *Store) ListByOwner(ctx context.Context, ownerID int64) ([]storage.BookView, error) {
	defer logSlow(ctx, "instance.list_owner", time.Now())
	query := baseViewQuery + ` WHERE b.owner_id = $1` + viewQueryTail
	return s.queryViews(ctx, "instance.list_owner", query, ownerID)
}

// ListByCity implements storage.InstanceStore.
func (s *Store) ListByCity(ctx context.Context, locationID, excludeOwner int64) ([]storage.BookView, error) {
	defer logSlow(ctx, "instance.list_city", time.Now())
	query := baseViewQuery + ` WHERE b.location_id = $1 AND b.owner_id <> $2` + viewQueryTail
	return s.queryViews(ctx, "instance.list_city", query, locationID, excludeOwner)
}

// ListByKeyword matches title, author, or genre case-insensitively, excluding
// the searcher's own copies.
func (s *Store) ListByKeyword(ctx context.Context, keyword string, excludeOwner int64) ([]storage.BookView, error) {
	defer logSlow(ctx, "instance.list_keyword", time.Now())
	query := baseViewQuery + `
 WHERE b.owner_id <> $2
   AND (ce.title ILIKE $1
        OR EXISTS (SELECT 1 FROM catalog_authors ca2
                     JOIN authors a2 ON a2.id = ca2.author_id
                    WHERE ca2.catalog_id = ce.id AND a2.name ILIKE $1)
        OR EXISTS (SELECT 1 FROM catalog_genres cg2
                     JOIN genres g2 ON g2.id = cg2.genre_id
                    WHERE cg2.catalog_id = ce.id AND g2.name ILIKE $1))` + viewQueryTail
	return s.queryViews(ctx, "instance.list_keyword", query, "%"+keyword+"%", excludeOwner)
}

// ListReading implements storage.InstanceStore.
func (s *Store) ListReading(ctx context.Context) ([]storage.BookInstance, error) {
	defer logSlow(ctx, "instance.list_reading", time.Now())
	var out []storage.BookInstance
	ds := builder.From("books").
		Where(goqu.Ex{"status": int(storage.StatusReading)}).
		Order(goqu.I("id").Asc())
	if err := s.selectContext(ctx, &out, ds, "instance.list_reading"); err != nil {
		return nil, err
	}
	return out, nil
}

// GetView implements storage.InstanceStore.
func (s *Store) GetView(ctx context.Context, id int64) (storage.BookView, error) {
	defer logSlow(ctx, "instance.view", time.Now())
	query := baseViewQuery + ` WHERE b.id = $1` + viewQueryTail
	var row viewRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		return storage.BookView{}, wrap("instance.view", err)
	}
	return row.view(), nil
}

func (s *Store) queryViews(ctx context.Context, op, query string, args ...any) ([]storage.BookView, error) {
	var rows []viewRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrap(op, err)
	}
	out := make([]storage.BookView, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.view())
	}
	return out, nil
}
