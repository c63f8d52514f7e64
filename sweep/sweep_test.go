package sweep_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookring/lifecycle"
	"bookring/notify"
	"bookring/storage"
	"bookring/storage/memory"
	"bookring/sweep"
)

type sweepFixture struct {
	store    *memory.Store
	recorder *notify.Recorder
	sweeper  *sweep.Sweeper
	now      time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		store:    memory.NewStore(),
		recorder: notify.NewRecorder(),
		now:      time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	manager := lifecycle.NewManager(f.store, f.recorder, lifecycle.Config{},
		lifecycle.WithClock(clock))
	f.sweeper = sweep.New(manager, f.store, sweep.Config{}, sweep.WithClock(clock))
	return f
}

func (f *sweepFixture) addReading(t *testing.T, ownerID int64, deadline time.Time) int64 {
	t.Helper()
	id, err := f.store.CreateInstance(context.Background(), storage.BookInstance{
		CatalogID:  1,
		OwnerID:    ownerID,
		LocationID: 1,
		Status:     storage.StatusReading,
		RemainTime: &deadline,
	})
	require.NoError(t, err)
	return id
}

func kinds(intents []notify.Intent) []notify.Kind {
	out := make([]notify.Kind, 0, len(intents))
	for _, in := range intents {
		out = append(out, in.Kind)
	}
	return out
}

func TestRunOnceExpiresOverdue(t *testing.T) {
	f := newSweepFixture(t)
	id := f.addReading(t, 10, f.now.Add(-time.Hour))

	require.NoError(t, f.sweeper.RunOnce(context.Background()))

	inst, err := f.store.GetInstance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFree, inst.Status)
	assert.Nil(t, inst.RemainTime)
	assert.Equal(t, []notify.Kind{notify.KindReadingExpired}, kinds(f.recorder.Intents()))
}

func TestRunOnceRemindsWithinWindow(t *testing.T) {
	f := newSweepFixture(t)
	f.addReading(t, 10, f.now.Add(7*24*time.Hour-time.Hour))

	require.NoError(t, f.sweeper.RunOnce(context.Background()))

	assert.Equal(t, []notify.Kind{notify.KindReadingReminder}, kinds(f.recorder.Intents()))
}

func TestRunOnceRemindsOncePerDeadline(t *testing.T) {
	f := newSweepFixture(t)
	f.addReading(t, 10, f.now.Add(7*24*time.Hour-time.Hour))

	require.NoError(t, f.sweeper.RunOnce(context.Background()))
	f.now = f.now.Add(sweep.DefaultInterval)
	require.NoError(t, f.sweeper.RunOnce(context.Background()))

	assert.Len(t, f.recorder.Intents(), 1, "the next daily pass is outside the reminder band")
}

func TestRunOnceSkipsHealthyInstances(t *testing.T) {
	f := newSweepFixture(t)
	f.addReading(t, 10, f.now.Add(30*24*time.Hour))

	require.NoError(t, f.sweeper.RunOnce(context.Background()))

	assert.Empty(t, f.recorder.Intents())
}

func TestRunOnceMixedBatch(t *testing.T) {
	f := newSweepFixture(t)
	overdue := f.addReading(t, 10, f.now.Add(-24*time.Hour))
	f.addReading(t, 20, f.now.Add(6*24*time.Hour+12*time.Hour))
	healthy := f.addReading(t, 30, f.now.Add(60*24*time.Hour))

	require.NoError(t, f.sweeper.RunOnce(context.Background()))

	got := kinds(f.recorder.Intents())
	assert.ElementsMatch(t, []notify.Kind{notify.KindReadingExpired, notify.KindReadingReminder}, got)

	inst, err := f.store.GetInstance(context.Background(), overdue)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFree, inst.Status)

	inst, err = f.store.GetInstance(context.Background(), healthy)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusReading, inst.Status)
}

func TestRunOnceIdempotent(t *testing.T) {
	f := newSweepFixture(t)
	f.addReading(t, 10, f.now.Add(-time.Hour))

	require.NoError(t, f.sweeper.RunOnce(context.Background()))
	require.NoError(t, f.sweeper.RunOnce(context.Background()))

	assert.Len(t, f.recorder.Intents(), 1, "an already freed instance is not expired twice")
}

func TestRunCancelledContext(t *testing.T) {
	f := newSweepFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.sweeper.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
