package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"

	"bookring/storage"
)

// entryQuery aggregates the author and genre names of each catalog entry.
const entryQuery = `
SELECT ce.id, ce.title,
       COALESCE(array_agg(DISTINCT a.name) FILTER (WHERE a.name IS NOT NULL), '{}') AS authors,
       COALESCE(array_agg(DISTINCT g.name) FILTER (WHERE g.name IS NOT NULL), '{}') AS genres
  FROM catalog_entries ce
  LEFT JOIN catalog_authors ca ON ca.catalog_id = ce.id
  LEFT JOIN authors a ON a.id = ca.author_id
  LEFT JOIN catalog_genres cg ON cg.catalog_id = ce.id
  LEFT JOIN genres g ON g.id = cg.genre_id`

type entryRow struct {
	ID      int64          `db:"id"`
	Title   string         `db:"title"`
	Authors pq.StringArray `db:"authors"`
	Genres  pq.StringArray `db:"genres"`
}

func (r entryRow) entry() storage.CatalogEntry {
	return storage.CatalogEntry{
		ID:      r.ID,
		Title:   r.Title,
		Authors: []string(r.Authors),
		Genres:  []string(r.Genres),
	}
}

// SearchEntries implements storage.CatalogStore.
func (s *Store) SearchEntries(ctx context.Context, title string) ([]storage.CatalogEntry, error) {
	const op = "catalog.search"
	defer logSlow(ctx, op, time.Now())

	query := entryQuery + `
 WHERE ce.title ILIKE $1
 GROUP BY ce.id
 ORDER BY ce.id`
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, "%"+title+"%"); err != nil {
		return nil, wrap(op, err)
	}
	out := make([]storage.CatalogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

// GetEntry implements storage.CatalogStore.
func (s *Store) GetEntry(ctx context.Context, id int64) (storage.CatalogEntry, error) {
	const op = "catalog.get"
	defer logSlow(ctx, op, time.Now())

	query := entryQuery + `
 WHERE ce.id = $1
 GROUP BY ce.id`
	var row entryRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		return storage.CatalogEntry{}, wrap(op, err)
	}
	return row.entry(), nil
}

// CreateEntry inserts a catalog entry with its author and genre links in one
// transaction. Author names are upserted so entries share author rows.
func (s *Store) CreateEntry(ctx context.Context, title string, authors []string, genreIDs []int64) (int64, error) {
	const op = "catalog.create"
	defer logSlow(ctx, op, time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, wrap(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var entryID int64
	if err := tx.GetContext(ctx, &entryID,
		`INSERT INTO catalog_entries (title) VALUES ($1) RETURNING id`, title); err != nil {
		return 0, wrap(op, err)
	}

	for _, name := range authors {
		var authorID int64
		// DO UPDATE instead of DO NOTHING so RETURNING always yields the id.
		err := tx.GetContext(ctx, &authorID,
			`INSERT INTO authors (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`, name)
		if err != nil {
			return 0, wrap(op, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO catalog_authors (catalog_id, author_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, entryID, authorID); err != nil {
			return 0, wrap(op, err)
		}
	}

	for _, genreID := range genreIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO catalog_genres (catalog_id, genre_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, entryID, genreID); err != nil {
			return 0, wrap(op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrap(op, err)
	}
	return entryID, nil
}

// ListGenres implements storage.CatalogStore.
func (s *Store) ListGenres(ctx context.Context) ([]storage.Genre, error) {
	defer logSlow(ctx, "catalog.genres", time.Now())
	var out []storage.Genre
	ds := builder.From("genres").Order(goqu.I("id").Asc())
	if err := s.selectContext(ctx, &out, ds, "catalog.genres"); err != nil {
		return nil, err
	}
	return out, nil
}
