package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookring/storage"
	"bookring/storage/memory"
)

func seedStore(t *testing.T) (*memory.Store, int64) {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStore()
	s.AddLocation(storage.Location{ID: 1, Country: "Russia", Region: "Moscow", City: "Moscow"})
	s.AddLocation(storage.Location{ID: 2, Country: "Russia", Region: "Leningrad", City: "Saint Petersburg"})
	s.AddGenres(storage.Genre{ID: 1, Name: "Fantasy"}, storage.Genre{ID: 2, Name: "Science"})

	entryID, err := s.CreateEntry(ctx, "The Dispossessed", []string{"Ursula K. Le Guin"}, []int64{1})
	require.NoError(t, err)

	id, err := s.CreateInstance(ctx, storage.BookInstance{
		CatalogID:  entryID,
		OwnerID:    10,
		LocationID: 1,
		Status:     storage.StatusFree,
		Condition:  "good",
	})
	require.NoError(t, err)
	return s, id
}

func TestConditionalUpdateStatusMismatch(t *testing.T) {
	s, id := seedStore(t)

	err := s.ConditionalUpdate(context.Background(), id,
		storage.Expect{Status: storage.StatusBooked},
		storage.Update{SetStatus: true, Status: storage.StatusFree})

	require.ErrorIs(t, err, storage.ErrConflict)
}

func TestConditionalUpdateCandidateMismatch(t *testing.T) {
	s, id := seedStore(t)
	ctx := context.Background()
	candidate := int64(20)
	require.NoError(t, s.ConditionalUpdate(ctx, id,
		storage.Expect{Status: storage.StatusFree},
		storage.Update{SetStatus: true, Status: storage.StatusBooked, SetCandidate: true, CandidateID: &candidate}))

	other := int64(30)
	err := s.ConditionalUpdate(ctx, id,
		storage.Expect{Status: storage.StatusBooked, CandidateID: &other, MatchCandidate: true},
		storage.Update{SetStatus: true, Status: storage.StatusFree})

	require.ErrorIs(t, err, storage.ErrConflict)

	inst, err := s.GetInstance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusBooked, inst.Status, "a failed CAS leaves the row untouched")
}

func TestConditionalUpdateRemainMismatch(t *testing.T) {
	s, id := seedStore(t)
	ctx := context.Background()
	deadline := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.ConditionalUpdate(ctx, id,
		storage.Expect{Status: storage.StatusFree},
		storage.Update{SetStatus: true, Status: storage.StatusReading, SetRemainTime: true, RemainTime: &deadline}))

	stale := deadline.Add(-24 * time.Hour)
	err := s.ConditionalUpdate(ctx, id,
		storage.Expect{Status: storage.StatusReading, RemainTime: &stale, MatchRemain: true},
		storage.Update{SetStatus: true, Status: storage.StatusFree})

	require.ErrorIs(t, err, storage.ErrConflict)

	inst, err := s.GetInstance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusReading, inst.Status)
	require.NotNil(t, inst.RemainTime)
	assert.True(t, inst.RemainTime.Equal(deadline), "a failed CAS leaves the deadline untouched")

	require.NoError(t, s.ConditionalUpdate(ctx, id,
		storage.Expect{Status: storage.StatusReading, RemainTime: &deadline, MatchRemain: true},
		storage.Update{SetStatus: true, Status: storage.StatusFree, SetRemainTime: true, RemainTime: nil}))
}

func TestConditionalUpdateUnknownInstance(t *testing.T) {
	s, _ := seedStore(t)

	err := s.ConditionalUpdate(context.Background(), 777,
		storage.Expect{Status: storage.StatusFree}, storage.Update{})

	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConditionalUpdateExtendRemain(t *testing.T) {
	s, id := seedStore(t)
	ctx := context.Background()
	deadline := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.ConditionalUpdate(ctx, id,
		storage.Expect{Status: storage.StatusFree},
		storage.Update{SetStatus: true, Status: storage.StatusReading, SetRemainTime: true, RemainTime: &deadline}))

	require.NoError(t, s.ConditionalUpdate(ctx, id,
		storage.Expect{Status: storage.StatusReading},
		storage.Update{ExtendRemain: 15 * 24 * time.Hour}))

	inst, err := s.GetInstance(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, inst.RemainTime)
	assert.Equal(t, deadline.Add(15*24*time.Hour), *inst.RemainTime)
}

func TestGetInstanceReturnsCopy(t *testing.T) {
	s, id := seedStore(t)
	ctx := context.Background()
	deadline := time.Now().UTC()
	require.NoError(t, s.ConditionalUpdate(ctx, id,
		storage.Expect{Status: storage.StatusFree},
		storage.Update{SetStatus: true, Status: storage.StatusReading, SetRemainTime: true, RemainTime: &deadline}))

	inst, err := s.GetInstance(ctx, id)
	require.NoError(t, err)
	*inst.RemainTime = inst.RemainTime.Add(time.Hour)

	again, err := s.GetInstance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, deadline, *again.RemainTime, "callers must not alias store internals")
}

func TestListByCityExcludesOwner(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()
	_, err := s.CreateInstance(ctx, storage.BookInstance{CatalogID: 1, OwnerID: 20, LocationID: 1})
	require.NoError(t, err)
	_, err = s.CreateInstance(ctx, storage.BookInstance{CatalogID: 1, OwnerID: 20, LocationID: 2})
	require.NoError(t, err)

	views, err := s.ListByCity(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(20), views[0].OwnerID)
	assert.Equal(t, "Moscow", views[0].City)
	assert.Equal(t, "The Dispossessed", views[0].Title)
}

func TestListByKeywordMatchesAuthorAndGenre(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	byAuthor, err := s.ListByKeyword(ctx, "le guin", 0)
	require.NoError(t, err)
	assert.Len(t, byAuthor, 1)

	byGenre, err := s.ListByKeyword(ctx, "fantasy", 0)
	require.NoError(t, err)
	assert.Len(t, byGenre, 1)

	none, err := s.ListByKeyword(ctx, "cookbook", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListReadingFiltersByStatus(t *testing.T) {
	s, id := seedStore(t)
	ctx := context.Background()
	deadline := time.Now().UTC()
	require.NoError(t, s.ConditionalUpdate(ctx, id,
		storage.Expect{Status: storage.StatusFree},
		storage.Update{SetStatus: true, Status: storage.StatusReading, SetRemainTime: true, RemainTime: &deadline}))
	_, err := s.CreateInstance(ctx, storage.BookInstance{CatalogID: 1, OwnerID: 20, LocationID: 1})
	require.NoError(t, err)

	reading, err := s.ListReading(ctx)
	require.NoError(t, err)
	require.Len(t, reading, 1)
	assert.Equal(t, id, reading[0].ID)
}

func TestSearchLocationsCaseInsensitive(t *testing.T) {
	s, _ := seedStore(t)

	found, err := s.SearchLocations(context.Background(), "  petersburg ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Saint Petersburg", found[0].City)
}

func TestCreateEntryResolvesGenres(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	id, err := s.CreateEntry(ctx, "Solaris", []string{"Stanislaw Lem"}, []int64{1, 2})
	require.NoError(t, err)

	entry, err := s.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fantasy", "Science"}, entry.Genres)
}

func TestUserLifecycle(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, 10)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.CreateUser(ctx, storage.User{TelegramID: 10, FirstName: "Ada"}))
	require.NoError(t, s.SetUserLocation(ctx, 10, 2))
	require.NoError(t, s.IncrementReadingAmount(ctx, 10))

	u, err := s.GetUser(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, u.LocationID)
	assert.Equal(t, int64(2), *u.LocationID)
	assert.Equal(t, 1, u.ReadingAmount)
}
