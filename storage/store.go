package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned by ConditionalUpdate when the expectation did
	// not match the current row, i.e. a concurrent transition won the race.
	ErrConflict = errors.New("storage: conditional update conflict")
	// ErrUnavailable wraps transient engine failures (connectivity, timeouts).
	ErrUnavailable = errors.New("storage: unavailable")
)

// Expect describes the state a ConditionalUpdate requires the instance row to
// be in. Status is always checked; CandidateID is checked only when
// MatchCandidate is set (nil then means "no candidate attached"), and
// RemainTime only when MatchRemain is set. The deadline comparison is exact,
// so a concurrent extension moves remain_time and fails the expectation.
type Expect struct {
	Status         Status
	CandidateID    *int64
	MatchCandidate bool
	RemainTime     *time.Time
	MatchRemain    bool
}

// Update lists the instance fields a transition wants to write. Each field is
// guarded by a Set flag so that a single struct covers every transition; for
// pointer fields nil clears the column.
type Update struct {
	SetStatus      bool
	Status         Status
	SetCandidate   bool
	CandidateID    *int64
	SetRemainTime  bool
	RemainTime     *time.Time
	// ExtendRemain, when non-zero, shifts the current remain_time forward by
	// the given duration inside the same atomic statement, so concurrent
	// extensions accumulate instead of overwriting each other.
	ExtendRemain   time.Duration
	SetTransferred bool
	IsTransferred  bool
	SetOwner       bool
	OwnerID        int64
}

// InstanceStore owns all persisted book-instance state. Writes are atomic per
// instance; ConditionalUpdate is the CAS primitive every lifecycle transition
// is built on.
type InstanceStore interface {
	// GetInstance returns the current snapshot of a single instance.
	GetInstance(ctx context.Context, id int64) (BookInstance, error)

	// ConditionalUpdate applies upd to the instance only if the row still
	// matches exp, in one atomic statement. It returns ErrConflict when the
	// row exists but no longer matches, ErrNotFound when it does not exist.
	ConditionalUpdate(ctx context.Context, id int64, exp Expect, upd Update) error

	// CreateInstance registers a new physical copy and returns its id.
	CreateInstance(ctx context.Context, inst BookInstance) (int64, error)

	ListByOwner(ctx context.Context, ownerID int64) ([]BookView, error)
	ListByCity(ctx context.Context, locationID, excludeOwner int64) ([]BookView, error)
	ListByKeyword(ctx context.Context, keyword string, excludeOwner int64) ([]BookView, error)

	// ListReading returns every instance currently in StatusReading; the
	// expiry sweep iterates over this set.
	ListReading(ctx context.Context) ([]BookInstance, error)

	// GetView returns the joined read model for one instance.
	GetView(ctx context.Context, id int64) (BookView, error)
}

// UserStore persists participants.
type UserStore interface {
	GetUser(ctx context.Context, telegramID int64) (User, error)
	CreateUser(ctx context.Context, u User) error
	SetUserLocation(ctx context.Context, telegramID, locationID int64) error
	IncrementReadingAmount(ctx context.Context, telegramID int64) error
}

// LocationStore exposes the city directory.
type LocationStore interface {
	SearchLocations(ctx context.Context, input string) ([]Location, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
}

// CatalogStore manages shared bibliographic entries. Entries are deduplicated
// interactively: SearchEntries offers case-insensitive substring matches and
// the user decides whether to reuse one or create a fresh entry.
type CatalogStore interface {
	SearchEntries(ctx context.Context, title string) ([]CatalogEntry, error)
	GetEntry(ctx context.Context, id int64) (CatalogEntry, error)
	CreateEntry(ctx context.Context, title string, authors []string, genreIDs []int64) (int64, error)
	ListGenres(ctx context.Context) ([]Genre, error)
}

// ActionLog appends audit records for lifecycle transitions. Failures here
// are reported but must never abort the transition that produced them.
type ActionLog interface {
	RecordAction(ctx context.Context, a Action) error
}

// Store aggregates every persistence contract the application needs, so a
// single engine value can be passed around during wiring.
type Store interface {
	InstanceStore
	UserStore
	LocationStore
	CatalogStore
	ActionLog
}
