package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookring/lifecycle"
	"bookring/notify"
	"bookring/storage"
	"bookring/storage/memory"
)

const (
	ownerID      = int64(100)
	candidateA   = int64(200)
	candidateB   = int64(300)
	somebodyElse = int64(999)
)

type fixture struct {
	store    *memory.Store
	recorder *notify.Recorder
	manager  *lifecycle.Manager
	now      time.Time
	bookID   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	recorder := notify.NewRecorder()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	f := &fixture{store: store, recorder: recorder, now: now}
	f.manager = lifecycle.NewManager(store, recorder, lifecycle.Config{},
		lifecycle.WithClock(func() time.Time { return f.now }),
		lifecycle.WithActionLog(store),
	)

	id, err := store.CreateInstance(context.Background(), storage.BookInstance{
		CatalogID:  1,
		OwnerID:    ownerID,
		LocationID: 1,
		Status:     storage.StatusFree,
	})
	require.NoError(t, err)
	f.bookID = id
	return f
}

func (f *fixture) instance(t *testing.T) storage.BookInstance {
	t.Helper()
	inst, err := f.store.GetInstance(context.Background(), f.bookID)
	require.NoError(t, err)
	return inst
}

func requireFreeInvariant(t *testing.T, inst storage.BookInstance) {
	t.Helper()
	require.Equal(t, storage.StatusFree, inst.Status)
	assert.Nil(t, inst.CandidateID)
	assert.Nil(t, inst.RemainTime)
	assert.False(t, inst.IsTransferred)
}

func TestRequestBookBooksFreeInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))

	inst := f.instance(t)
	assert.Equal(t, storage.StatusBooked, inst.Status)
	require.NotNil(t, inst.CandidateID)
	assert.Equal(t, candidateA, *inst.CandidateID)

	intent, ok := f.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, notify.KindBookingRequested, intent.Kind)
	assert.Equal(t, ownerID, intent.TargetUserID)
	assert.Equal(t, candidateA, intent.ActorID)
}

func TestRequestBookRejectsOwner(t *testing.T) {
	f := newFixture(t)

	err := f.manager.RequestBook(context.Background(), f.bookID, ownerID)

	require.ErrorIs(t, err, lifecycle.ErrForbidden)
	requireFreeInvariant(t, f.instance(t))
}

func TestRequestBookUnknownInstance(t *testing.T) {
	f := newFixture(t)

	err := f.manager.RequestBook(context.Background(), 424242, candidateA)

	require.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestRequestBookConflictWhenBooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))

	err := f.manager.RequestBook(ctx, f.bookID, candidateB)

	require.ErrorIs(t, err, lifecycle.ErrConflict)
	inst := f.instance(t)
	assert.Equal(t, storage.StatusBooked, inst.Status)
	require.NotNil(t, inst.CandidateID)
	assert.Equal(t, candidateA, *inst.CandidateID, "state must be unchanged after the losing request")
}

func TestRequestBookConcurrentExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, requester := range []int64{candidateA, candidateB} {
		wg.Add(1)
		go func(slot int, id int64) {
			defer wg.Done()
			errs[slot] = f.manager.RequestBook(ctx, f.bookID, id)
		}(i, requester)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, lifecycle.ErrConflict)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent request may succeed")

	inst := f.instance(t)
	assert.Equal(t, storage.StatusBooked, inst.Status)
	require.NotNil(t, inst.CandidateID)
	assert.Contains(t, []int64{candidateA, candidateB}, *inst.CandidateID)
}

func TestConfirmBookingNotifiesCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))

	require.NoError(t, f.manager.ConfirmBooking(ctx, f.bookID, ownerID, candidateA))

	inst := f.instance(t)
	assert.Equal(t, storage.StatusBooked, inst.Status, "confirmation does not change the status")
	intent, ok := f.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, notify.KindBookingConfirmed, intent.Kind)
	assert.Equal(t, candidateA, intent.TargetUserID)
}

func TestConfirmBookingDifferentCandidateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))
	require.NoError(t, f.manager.CancelBooking(ctx, f.bookID, candidateA))
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateB))

	// The owner still has candidate A's request on screen.
	err := f.manager.ConfirmBooking(ctx, f.bookID, ownerID, candidateA)

	require.ErrorIs(t, err, lifecycle.ErrConflict)
}

func TestConfirmBookingOnlyOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))

	err := f.manager.ConfirmBooking(ctx, f.bookID, somebodyElse, candidateA)

	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestCancelBookingByCandidateFreesInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))

	require.NoError(t, f.manager.CancelBooking(ctx, f.bookID, candidateA))

	requireFreeInvariant(t, f.instance(t))
	intent, ok := f.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, notify.KindBookingCancelled, intent.Kind)
	assert.Equal(t, ownerID, intent.TargetUserID, "the owner is the notified counterpart")
}

func TestCancelBookingByStrangerForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))

	err := f.manager.CancelBooking(ctx, f.bookID, somebodyElse)

	require.ErrorIs(t, err, lifecycle.ErrForbidden)
	assert.Equal(t, storage.StatusBooked, f.instance(t).Status)
}

func TestCancelBookingWhileReadingFreesInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.StartReadingOwnCopy(ctx, f.bookID, ownerID))

	require.NoError(t, f.manager.CancelBooking(ctx, f.bookID, ownerID))

	requireFreeInvariant(t, f.instance(t))
}

func TestCancelBookingWhileReadingStrangerForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.StartReadingOwnCopy(ctx, f.bookID, ownerID))

	// No candidate is attached while reading, so only the owner may cancel.
	err := f.manager.CancelBooking(ctx, f.bookID, somebodyElse)

	require.ErrorIs(t, err, lifecycle.ErrForbidden)
	assert.Equal(t, storage.StatusReading, f.instance(t).Status)
}

func TestCancelThenRebookSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))
	require.NoError(t, f.manager.CancelBooking(ctx, f.bookID, ownerID))

	// No residual candidate lock after cancellation.
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateB))

	inst := f.instance(t)
	require.NotNil(t, inst.CandidateID)
	assert.Equal(t, candidateB, *inst.CandidateID)
}

func TestMarkTransferredRequiresBooked(t *testing.T) {
	f := newFixture(t)

	err := f.manager.MarkTransferred(context.Background(), f.bookID, ownerID)

	require.ErrorIs(t, err, lifecycle.ErrInvalidState)
}

func TestConfirmReceiptTransfersOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))
	require.NoError(t, f.manager.MarkTransferred(ctx, f.bookID, ownerID))

	intent, ok := f.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, notify.KindReceiptRequested, intent.Kind)
	assert.Equal(t, candidateA, intent.TargetUserID)

	require.NoError(t, f.manager.ConfirmReceipt(ctx, f.bookID, candidateA))

	inst := f.instance(t)
	assert.Equal(t, storage.StatusReading, inst.Status)
	assert.Equal(t, candidateA, inst.OwnerID, "possession transfers to the former candidate")
	assert.Nil(t, inst.CandidateID)
	assert.False(t, inst.IsTransferred)
	require.NotNil(t, inst.RemainTime)
	assert.WithinDuration(t, f.now.Add(lifecycle.DefaultReadingWindow), *inst.RemainTime, time.Second)
}

func TestConfirmReceiptBeforeHandoffInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))

	err := f.manager.ConfirmReceipt(ctx, f.bookID, candidateA)

	require.ErrorIs(t, err, lifecycle.ErrInvalidState)
}

func TestConfirmReceiptByWrongUserForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))
	require.NoError(t, f.manager.MarkTransferred(ctx, f.bookID, ownerID))

	err := f.manager.ConfirmReceipt(ctx, f.bookID, candidateB)

	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestStartAndFinishReadingOwnCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.StartReadingOwnCopy(ctx, f.bookID, ownerID))
	inst := f.instance(t)
	assert.Equal(t, storage.StatusReading, inst.Status)
	require.NotNil(t, inst.RemainTime)
	assert.WithinDuration(t, f.now.Add(lifecycle.DefaultReadingWindow), *inst.RemainTime, time.Second)

	require.NoError(t, f.manager.FinishReading(ctx, f.bookID, ownerID))
	requireFreeInvariant(t, f.instance(t))
}

func TestStartReadingOwnCopyNotOwner(t *testing.T) {
	f := newFixture(t)

	err := f.manager.StartReadingOwnCopy(context.Background(), f.bookID, candidateA)

	require.ErrorIs(t, err, lifecycle.ErrForbidden)
}

func TestExtendReadingIsAdditive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.StartReadingOwnCopy(ctx, f.bookID, ownerID))

	require.NoError(t, f.manager.ExtendReading(ctx, f.bookID, ownerID))
	require.NoError(t, f.manager.ExtendReading(ctx, f.bookID, ownerID))

	inst := f.instance(t)
	require.NotNil(t, inst.RemainTime)
	want := f.now.Add(lifecycle.DefaultReadingWindow + 2*lifecycle.DefaultExtension)
	assert.WithinDuration(t, want, *inst.RemainTime, time.Second, "two extensions add 30 days total, not a reset")
}

func TestExtendReadingRequiresReading(t *testing.T) {
	f := newFixture(t)

	err := f.manager.ExtendReading(context.Background(), f.bookID, ownerID)

	require.ErrorIs(t, err, lifecycle.ErrInvalidState)
}

func TestExpireReadingFreesOverdueInstance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.StartReadingOwnCopy(ctx, f.bookID, ownerID))

	f.now = f.now.Add(lifecycle.DefaultReadingWindow + time.Hour)
	expired, err := f.manager.ExpireReading(ctx, f.bookID)

	require.NoError(t, err)
	assert.True(t, expired)
	requireFreeInvariant(t, f.instance(t))

	intent, ok := f.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, notify.KindReadingExpired, intent.Kind)
	assert.Equal(t, ownerID, intent.TargetUserID)
}

func TestExpireReadingNoopBeforeDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.StartReadingOwnCopy(ctx, f.bookID, ownerID))
	before := f.instance(t)

	expired, err := f.manager.ExpireReading(ctx, f.bookID)

	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, before, f.instance(t), "no mutation on a future deadline")
}

func TestExpireReadingNoopWhenNotReading(t *testing.T) {
	f := newFixture(t)

	expired, err := f.manager.ExpireReading(context.Background(), f.bookID)

	require.NoError(t, err)
	assert.False(t, expired)
	requireFreeInvariant(t, f.instance(t))
}

// extendRacingStore injects one extension between the manager's read and its
// expiry write, reproducing an ExtendReading that lands in that window.
type extendRacingStore struct {
	*memory.Store
	armed bool
}

func (s *extendRacingStore) ConditionalUpdate(ctx context.Context, id int64, exp storage.Expect, upd storage.Update) error {
	if s.armed {
		s.armed = false
		if err := s.Store.ConditionalUpdate(ctx, id,
			storage.Expect{Status: storage.StatusReading},
			storage.Update{ExtendRemain: lifecycle.DefaultExtension},
		); err != nil {
			return err
		}
	}
	return s.Store.ConditionalUpdate(ctx, id, exp, upd)
}

func TestExpireReadingLosesRaceToExtension(t *testing.T) {
	store := &extendRacingStore{Store: memory.NewStore()}
	recorder := notify.NewRecorder()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	manager := lifecycle.NewManager(store, recorder, lifecycle.Config{},
		lifecycle.WithClock(func() time.Time { return now }),
	)

	id, err := store.CreateInstance(ctx, storage.BookInstance{
		CatalogID:  1,
		OwnerID:    ownerID,
		LocationID: 1,
		Status:     storage.StatusFree,
	})
	require.NoError(t, err)
	require.NoError(t, manager.StartReadingOwnCopy(ctx, id, ownerID))
	deadline := now.Add(lifecycle.DefaultReadingWindow)

	now = now.Add(lifecycle.DefaultReadingWindow + time.Hour)
	store.armed = true
	expired, err := manager.ExpireReading(ctx, id)

	require.NoError(t, err)
	assert.False(t, expired, "expiry must lose to the concurrent extension")

	inst, err := store.GetInstance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, storage.StatusReading, inst.Status, "extended instance must stay in reading")
	require.NotNil(t, inst.RemainTime)
	assert.True(t, inst.RemainTime.Equal(deadline.Add(lifecycle.DefaultExtension)))
	assert.Empty(t, recorder.Intents(), "no expiry notice for a deadline that moved")
}

func TestNotifyFailureDoesNotRollBackTransition(t *testing.T) {
	f := newFixture(t)
	f.recorder.FailWith(errors.New("recipient blocked the bot"))

	require.NoError(t, f.manager.RequestBook(context.Background(), f.bookID, candidateA))

	assert.Equal(t, storage.StatusBooked, f.instance(t).Status)
}

func TestJournalRecordsTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))
	require.NoError(t, f.manager.CancelBooking(ctx, f.bookID, candidateA))

	actions := f.store.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, storage.ActionRequested, actions[0].Kind)
	assert.Equal(t, storage.ActionCancelled, actions[1].Kind)

	var tr struct {
		From storage.Status `json:"from"`
		To   storage.Status `json:"to"`
	}
	require.NoError(t, storage.DecodeActionPayload(actions[1], &tr))
	assert.Equal(t, storage.StatusBooked, tr.From)
	assert.Equal(t, storage.StatusFree, tr.To)
}

// The scripted scenario from the exchange rules: request, losing second
// request, cancellation, successful re-request.
func TestBookingScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateA))
	inst := f.instance(t)
	assert.Equal(t, storage.StatusBooked, inst.Status)
	require.NotNil(t, inst.CandidateID)
	assert.Equal(t, candidateA, *inst.CandidateID)

	require.ErrorIs(t, f.manager.RequestBook(ctx, f.bookID, candidateB), lifecycle.ErrConflict)
	inst = f.instance(t)
	require.NotNil(t, inst.CandidateID)
	assert.Equal(t, candidateA, *inst.CandidateID)

	require.NoError(t, f.manager.CancelBooking(ctx, f.bookID, candidateA))
	requireFreeInvariant(t, f.instance(t))

	require.NoError(t, f.manager.RequestBook(ctx, f.bookID, candidateB))
	inst = f.instance(t)
	assert.Equal(t, storage.StatusBooked, inst.Status)
	require.NotNil(t, inst.CandidateID)
	assert.Equal(t, candidateB, *inst.CandidateID)
}
