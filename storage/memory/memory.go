// Package memory provides an in-memory storage.Store used by tests and local
// development. It mirrors the conditional-update semantics of the Postgres
// engine: every write re-checks the expectation under the store mutex, so two
// racing transitions resolve exactly like they would against the database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bookring/storage"
)

// Store is a mutex-guarded implementation of storage.Store.
type Store struct {
	mu sync.Mutex

	instances map[int64]storage.BookInstance
	users     map[int64]storage.User
	locations map[int64]storage.Location
	entries   map[int64]storage.CatalogEntry
	genres    []storage.Genre
	actions   []storage.Action

	nextInstanceID int64
	nextEntryID    int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		instances:      make(map[int64]storage.BookInstance),
		users:          make(map[int64]storage.User),
		locations:      make(map[int64]storage.Location),
		entries:        make(map[int64]storage.CatalogEntry),
		nextInstanceID: 1,
		nextEntryID:    1,
	}
}

// AddLocation seeds a city into the directory.
func (s *Store) AddLocation(loc storage.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[loc.ID] = loc
}

// AddGenres seeds the genre dictionary.
func (s *Store) AddGenres(genres ...storage.Genre) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genres = append(s.genres, genres...)
}

// GetInstance implements storage.InstanceStore.
func (s *Store) GetInstance(_ context.Context, id int64) (storage.BookInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return storage.BookInstance{}, storage.ErrNotFound
	}
	return cloneInstance(inst), nil
}

// ConditionalUpdate implements the CAS primitive: the expectation is
// re-checked under the lock immediately before the write.
func (s *Store) ConditionalUpdate(_ context.Context, id int64, exp storage.Expect, upd storage.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return storage.ErrNotFound
	}
	if inst.Status != exp.Status {
		return storage.ErrConflict
	}
	if exp.MatchCandidate && !sameCandidate(inst.CandidateID, exp.CandidateID) {
		return storage.ErrConflict
	}
	if exp.MatchRemain && !sameTime(inst.RemainTime, exp.RemainTime) {
		return storage.ErrConflict
	}

	if upd.SetStatus {
		inst.Status = upd.Status
	}
	if upd.SetCandidate {
		inst.CandidateID = cloneInt64(upd.CandidateID)
	}
	if upd.SetRemainTime {
		inst.RemainTime = cloneTime(upd.RemainTime)
	}
	if upd.ExtendRemain > 0 && inst.RemainTime != nil {
		extended := inst.RemainTime.Add(upd.ExtendRemain)
		inst.RemainTime = &extended
	}
	if upd.SetTransferred {
		inst.IsTransferred = upd.IsTransferred
	}
	if upd.SetOwner {
		inst.OwnerID = upd.OwnerID
	}
	s.instances[id] = inst
	return nil
}

// CreateInstance implements storage.InstanceStore.
func (s *Store) CreateInstance(_ context.Context, inst storage.BookInstance) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst.ID = s.nextInstanceID
	s.nextInstanceID++
	if inst.Status == 0 {
		inst.Status = storage.StatusFree
	}
	if inst.PubDate.IsZero() {
		inst.PubDate = time.Now().UTC()
	}
	s.instances[inst.ID] = inst
	return inst.ID, nil
}

// ListByOwner implements storage.InstanceStore.
func (s *Store) ListByOwner(_ context.Context, ownerID int64) ([]storage.BookView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.BookView
	for _, inst := range s.instances {
		if inst.OwnerID == ownerID {
			out = append(out, s.viewLocked(inst))
		}
	}
	sortViews(out)
	return out, nil
}

// ListByCity implements storage.InstanceStore.
func (s *Store) ListByCity(_ context.Context, locationID, excludeOwner int64) ([]storage.BookView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.BookView
	for _, inst := range s.instances {
		if inst.LocationID == locationID && inst.OwnerID != excludeOwner {
			out = append(out, s.viewLocked(inst))
		}
	}
	sortViews(out)
	return out, nil
}

// ListByKeyword matches title, author, or genre case-insensitively.
func (s *Store) ListByKeyword(_ context.Context, keyword string, excludeOwner int64) ([]storage.BookView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(keyword))
	var out []storage.BookView
	for _, inst := range s.instances {
		if inst.OwnerID == excludeOwner {
			continue
		}
		v := s.viewLocked(inst)
		if matchesKeyword(v, needle) {
			out = append(out, v)
		}
	}
	sortViews(out)
	return out, nil
}

// ListReading implements storage.InstanceStore.
func (s *Store) ListReading(_ context.Context) ([]storage.BookInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.BookInstance
	for _, inst := range s.instances {
		if inst.Status == storage.StatusReading {
			out = append(out, cloneInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetView implements storage.InstanceStore.
func (s *Store) GetView(_ context.Context, id int64) (storage.BookView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return storage.BookView{}, storage.ErrNotFound
	}
	return s.viewLocked(inst), nil
}

// GetUser implements storage.UserStore.
func (s *Store) GetUser(_ context.Context, telegramID int64) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

// CreateUser implements storage.UserStore.
func (s *Store) CreateUser(_ context.Context, u storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.TelegramID] = u
	return nil
}

// SetUserLocation implements storage.UserStore.
func (s *Store) SetUserLocation(_ context.Context, telegramID, locationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return storage.ErrNotFound
	}
	u.LocationID = &locationID
	s.users[telegramID] = u
	return nil
}

// IncrementReadingAmount implements storage.UserStore.
func (s *Store) IncrementReadingAmount(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return storage.ErrNotFound
	}
	u.ReadingAmount++
	s.users[telegramID] = u
	return nil
}

// SearchLocations implements storage.LocationStore.
func (s *Store) SearchLocations(_ context.Context, input string) ([]storage.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(input))
	var out []storage.Location
	for _, loc := range s.locations {
		if strings.Contains(strings.ToLower(loc.City), needle) {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].City < out[j].City })
	return out, nil
}

// GetLocation implements storage.LocationStore.
func (s *Store) GetLocation(_ context.Context, id int64) (storage.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[id]
	if !ok {
		return storage.Location{}, storage.ErrNotFound
	}
	return loc, nil
}

// SearchEntries implements storage.CatalogStore.
func (s *Store) SearchEntries(_ context.Context, title string) ([]storage.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(title))
	var out []storage.CatalogEntry
	for _, e := range s.entries {
		if strings.Contains(strings.ToLower(e.Title), needle) {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetEntry implements storage.CatalogStore.
func (s *Store) GetEntry(_ context.Context, id int64) (storage.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return storage.CatalogEntry{}, storage.ErrNotFound
	}
	return cloneEntry(e), nil
}

// CreateEntry implements storage.CatalogStore.
func (s *Store) CreateEntry(_ context.Context, title string, authors []string, genreIDs []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := storage.CatalogEntry{
		ID:      s.nextEntryID,
		Title:   title,
		Authors: append([]string(nil), authors...),
	}
	s.nextEntryID++
	for _, gid := range genreIDs {
		for _, g := range s.genres {
			if g.ID == gid {
				entry.Genres = append(entry.Genres, g.Name)
			}
		}
	}
	s.entries[entry.ID] = entry
	return entry.ID, nil
}

// ListGenres implements storage.CatalogStore.
func (s *Store) ListGenres(_ context.Context) ([]storage.Genre, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Genre(nil), s.genres...), nil
}

// RecordAction implements storage.ActionLog.
func (s *Store) RecordAction(_ context.Context, a storage.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = int64(len(s.actions) + 1)
	s.actions = append(s.actions, a)
	return nil
}

// Actions returns a snapshot of the journal for assertions.
func (s *Store) Actions() []storage.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Action(nil), s.actions...)
}

func (s *Store) viewLocked(inst storage.BookInstance) storage.BookView {
	v := storage.BookView{BookInstance: cloneInstance(inst)}
	if e, ok := s.entries[inst.CatalogID]; ok {
		v.Title = e.Title
		v.Authors = append([]string(nil), e.Authors...)
		v.Genres = append([]string(nil), e.Genres...)
	}
	if loc, ok := s.locations[inst.LocationID]; ok {
		v.City = loc.City
	}
	return v
}

func matchesKeyword(v storage.BookView, needle string) bool {
	if strings.Contains(strings.ToLower(v.Title), needle) {
		return true
	}
	for _, a := range v.Authors {
		if strings.Contains(strings.ToLower(a), needle) {
			return true
		}
	}
	for _, g := range v.Genres {
		if strings.Contains(strings.ToLower(g), needle) {
			return true
		}
	}
	return false
}

func sortViews(views []storage.BookView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].Status != views[j].Status {
			return views[i].Status < views[j].Status
		}
		return views[i].ID < views[j].ID
	})
}

func cloneInstance(inst storage.BookInstance) storage.BookInstance {
	inst.CandidateID = cloneInt64(inst.CandidateID)
	inst.RemainTime = cloneTime(inst.RemainTime)
	return inst
}

func cloneEntry(e storage.CatalogEntry) storage.CatalogEntry {
	e.Authors = append([]string(nil), e.Authors...)
	e.Genres = append([]string(nil), e.Genres...)
	return e
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func sameCandidate(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
