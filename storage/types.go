package storage

import (
	"time"
)

// Status encodes the lifecycle state of a book instance. The integer values
// are persisted as-is, so they must never be renumbered.
type Status int

const (
	// StatusFree marks an instance available for booking.
	StatusFree Status = 1
	// StatusBooked marks an instance reserved by a candidate.
	StatusBooked Status = 2
	// StatusReading marks an instance currently being read by its holder.
	StatusReading Status = 3
)

// String returns the human-readable status name used in listings and logs.
func (s Status) String() string {
	switch s {
	case StatusFree:
		return "free"
	case StatusBooked:
		return "booked"
	case StatusReading:
		return "reading"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the persisted status codes.
func (s Status) Valid() bool {
	return s == StatusFree || s == StatusBooked || s == StatusReading
}

// BookInstance is a physical copy of a book owned by a user. Catalog data
// (title, authors, genres) lives in a shared CatalogEntry referenced by
// CatalogID; many instances may point at one entry.
//
// Field invariants, maintained by the lifecycle manager:
//
//	StatusFree    => CandidateID == nil, RemainTime == nil, IsTransferred == false
//	StatusBooked  => CandidateID != nil
//	StatusReading => RemainTime != nil
type BookInstance struct {
	ID            int64      `db:"id"`
	CatalogID     int64      `db:"catalog_id"`
	OwnerID       int64      `db:"owner_id"`
	LocationID    int64      `db:"location_id"`
	Status        Status     `db:"status"`
	CandidateID   *int64     `db:"candidate_id"`
	RemainTime    *time.Time `db:"remain_time"`
	IsTransferred bool       `db:"is_transferred"`
	Condition     string     `db:"condition"`
	Image         string     `db:"image"`
	PubDate       time.Time  `db:"pub_date"`
}

// RemainingDays returns whole days left in the reading window relative to now,
// or zero when no deadline is set.
func (b BookInstance) RemainingDays(now time.Time) int {
	if b.RemainTime == nil {
		return 0
	}
	d := int(b.RemainTime.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// BookView is a read-model row joining an instance with its catalog entry and
// location, used by listings and detail screens.
type BookView struct {
	BookInstance
	Title   string
	Authors []string
	Genres  []string
	City    string
}

// User mirrors the Telegram account of a participant. TelegramID doubles as
// the primary key; LocationID is nil until the user reports a home city.
type User struct {
	TelegramID    int64  `db:"telegram_id"`
	FirstName     string `db:"first_name"`
	LastName      string `db:"last_name"`
	Username      string `db:"username"`
	ReadingAmount int    `db:"reading_amount"`
	LocationID    *int64 `db:"location_id"`
}

// DisplayName returns the best available human-readable name for the user.
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

// Location is a predefined city users pick from during registration.
type Location struct {
	ID      int64  `db:"id"`
	Country string `db:"country"`
	Region  string `db:"region"`
	City    string `db:"city"`
}

// CatalogEntry holds shared bibliographic data referenced by book instances.
// Entries are append-only: once created, only new author/genre links may be
// added, never removed.
type CatalogEntry struct {
	ID      int64
	Title   string
	Authors []string
	Genres  []string
}

// Genre is a predefined classification seeded via migrations.
type Genre struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Action is one row of the audit journal recording lifecycle transitions.
type Action struct {
	ID      int64     `db:"id"`
	UserID  int64     `db:"user_id"`
	BookID  int64     `db:"book_id"`
	Kind    string    `db:"kind"`
	Payload []byte    `db:"payload"`
	CTime   time.Time `db:"ctime"`
}
