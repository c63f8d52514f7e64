package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"bookring/storage"
)

// GetUser implements storage.UserStore.
func (s *Store) GetUser(ctx context.Context, telegramID int64) (storage.User, error) {
	defer logSlow(ctx, "user.get", time.Now())
	var u storage.User
	ds := builder.From("users").Where(goqu.Ex{"telegram_id": telegramID})
	if err := s.getContext(ctx, &u, ds, "user.get"); err != nil {
		return storage.User{}, err
	}
	return u, nil
}

// CreateUser inserts the user or refreshes the profile fields Telegram may
// have changed since the last contact.
func (s *Store) CreateUser(ctx context.Context, u storage.User) error {
	const op = "user.create"
	defer logSlow(ctx, op, time.Now())

	query, args, err := builder.Insert("users").Rows(goqu.Record{
		"telegram_id":    u.TelegramID,
		"first_name":     u.FirstName,
		"last_name":      u.LastName,
		"username":       u.Username,
		"reading_amount": u.ReadingAmount,
		"location_id":    u.LocationID,
	}).OnConflict(goqu.DoUpdate("telegram_id", goqu.Record{
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"username":   u.Username,
	})).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return wrap(op, err)
}

// SetUserLocation implements storage.UserStore.
func (s *Store) SetUserLocation(ctx context.Context, telegramID, locationID int64) error {
	const op = "user.set_location"
	defer logSlow(ctx, op, time.Now())

	query, args, err := builder.Update("users").
		Set(goqu.Record{"location_id": locationID}).
		Where(goqu.Ex{"telegram_id": telegramID}).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// IncrementReadingAmount implements storage.UserStore.
func (s *Store) IncrementReadingAmount(ctx context.Context, telegramID int64) error {
	const op = "user.inc_reading"
	defer logSlow(ctx, op, time.Now())

	query, args, err := builder.Update("users").
		Set(goqu.Record{"reading_amount": goqu.L("reading_amount + 1")}).
		Where(goqu.Ex{"telegram_id": telegramID}).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// SearchLocations implements storage.LocationStore.
func (s *Store) SearchLocations(ctx context.Context, input string) ([]storage.Location, error) {
	defer logSlow(ctx, "location.search", time.Now())
	var out []storage.Location
	ds := builder.From("locations").
		Where(goqu.C("city").ILike("%" + input + "%")).
		Order(goqu.I("city").Asc())
	if err := s.selectContext(ctx, &out, ds, "location.search"); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLocation implements storage.LocationStore.
func (s *Store) GetLocation(ctx context.Context, id int64) (storage.Location, error) {
	defer logSlow(ctx, "location.get", time.Now())
	var loc storage.Location
	ds := builder.From("locations").Where(goqu.Ex{"id": id})
	if err := s.getContext(ctx, &loc, ds, "location.get"); err != nil {
		return storage.Location{}, err
	}
	return loc, nil
}
