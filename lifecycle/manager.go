// Package lifecycle implements the book lifecycle state machine: the status
// of every book instance and all transitions requested by owners, candidates,
// or the expiry sweep.
//
// The manager holds no state across calls. Every operation re-reads the
// current instance, validates the precondition, and applies the transition as
// a single conditional update against the store; the store's row-level CAS is
// the only serialization point, so two users racing on the same instance
// resolve deterministically and the loser gets ErrConflict.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookring/core/logger"
	"bookring/notify"
	"bookring/storage"
)

const component = "service.lifecycle"

// Defaults for the reading window per the exchange rules.
const (
	DefaultReadingWindow = 90 * 24 * time.Hour
	DefaultExtension     = 15 * 24 * time.Hour
)

// Config carries the tunables of the lifecycle manager.
type Config struct {
	// ReadingWindow is granted when an instance enters StatusReading.
	ReadingWindow time.Duration
	// Extension is added per ExtendReading call.
	Extension time.Duration
}

func (c *Config) normalize() {
	if c.ReadingWindow <= 0 {
		c.ReadingWindow = DefaultReadingWindow
	}
	if c.Extension <= 0 {
		c.Extension = DefaultExtension
	}
}

// Manager governs all status transitions of book instances.
type Manager struct {
	store   storage.InstanceStore
	actions storage.ActionLog
	gateway notify.Gateway
	cfg     Config
	now     func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithActionLog enables the audit journal for transitions.
func WithActionLog(log storage.ActionLog) Option {
	return func(m *Manager) { m.actions = log }
}

// NewManager wires a Manager over the given store and notification gateway.
// The gateway may be nil; intents are then dropped.
func NewManager(store storage.InstanceStore, gateway notify.Gateway, cfg Config, opts ...Option) *Manager {
	cfg.normalize()
	m := &Manager{
		store:   store,
		gateway: gateway,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now reports the manager's current time, honouring WithClock.
func (m *Manager) Now() time.Time { return m.now() }

// RequestBook books a free instance for the requester. A second requester
// racing on the same instance loses the conditional update and gets
// ErrConflict; there is no waitlist.
func (m *Manager) RequestBook(ctx context.Context, instanceID, requesterID int64) error {
	inst, err := m.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.OwnerID == requesterID {
		return fmt.Errorf("%w: cannot request own book", ErrForbidden)
	}
	if inst.Status != storage.StatusFree {
		return fmt.Errorf("%w: instance is %s", ErrConflict, inst.Status)
	}

	candidate := requesterID
	err = m.store.ConditionalUpdate(ctx, instanceID,
		storage.Expect{Status: storage.StatusFree},
		storage.Update{
			SetStatus:    true,
			Status:       storage.StatusBooked,
			SetCandidate: true,
			CandidateID:  &candidate,
		},
	)
	if err != nil {
		return m.casErr("request", instanceID, err)
	}

	m.journal(ctx, requesterID, instanceID, storage.ActionRequested, transition{
		From: storage.StatusFree, To: storage.StatusBooked, Candidate: requesterID,
	})
	m.emit(ctx, notify.NewIntent(inst.OwnerID, notify.KindBookingRequested, instanceID, requesterID))
	m.logTransition(ctx, "request", instanceID, requesterID, storage.StatusBooked)
	return nil
}

// ConfirmBooking is the owner's acknowledgement of an existing booking. The
// status does not change; the candidate is notified with pickup instructions.
// candidateID is the candidate the owner believes they are approving; if a
// different candidate is attached by now, the call fails with ErrConflict.
func (m *Manager) ConfirmBooking(ctx context.Context, instanceID, approverID, candidateID int64) error {
	inst, err := m.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.OwnerID != approverID {
		return fmt.Errorf("%w: only the owner can confirm a booking", ErrForbidden)
	}
	if inst.Status != storage.StatusBooked || inst.CandidateID == nil {
		return fmt.Errorf("%w: instance is %s, expected booked", ErrInvalidState, inst.Status)
	}
	if *inst.CandidateID != candidateID {
		return fmt.Errorf("%w: booked by a different candidate", ErrConflict)
	}

	m.journal(ctx, approverID, instanceID, storage.ActionConfirmed, transition{
		From: storage.StatusBooked, To: storage.StatusBooked, Candidate: candidateID,
	})
	m.emit(ctx, notify.NewIntent(candidateID, notify.KindBookingConfirmed, instanceID, approverID))
	m.logTransition(ctx, "confirm_booking", instanceID, approverID, storage.StatusBooked)
	return nil
}

// CancelBooking returns a booked or reading instance to the free state. Both
// the owner and the current candidate may cancel; anyone else is rejected.
// The counterpart, when there is one, receives a cancellation notice.
func (m *Manager) CancelBooking(ctx context.Context, instanceID, actorID int64) error {
	inst, err := m.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status != storage.StatusBooked && inst.Status != storage.StatusReading {
		return fmt.Errorf("%w: instance is %s", ErrInvalidState, inst.Status)
	}

	isOwner := inst.OwnerID == actorID
	isCandidate := inst.CandidateID != nil && *inst.CandidateID == actorID
	if !isOwner && !isCandidate {
		return fmt.Errorf("%w: actor is neither owner nor candidate", ErrForbidden)
	}

	err = m.store.ConditionalUpdate(ctx, instanceID,
		storage.Expect{Status: inst.Status, CandidateID: inst.CandidateID, MatchCandidate: true},
		freeUpdate(),
	)
	if err != nil {
		return m.casErr("cancel", instanceID, err)
	}

	m.journal(ctx, actorID, instanceID, storage.ActionCancelled, transition{
		From: inst.Status, To: storage.StatusFree,
	})
	if other, ok := counterpart(inst, actorID); ok {
		m.emit(ctx, notify.NewIntent(other, notify.KindBookingCancelled, instanceID, actorID))
	}
	m.logTransition(ctx, "cancel", instanceID, actorID, storage.StatusFree)
	return nil
}

// MarkTransferred records the owner's claim that the physical handoff took
// place. The instance stays booked; the candidate is asked to confirm receipt.
func (m *Manager) MarkTransferred(ctx context.Context, instanceID, ownerID int64) error {
	inst, err := m.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.OwnerID != ownerID {
		return fmt.Errorf("%w: only the owner can hand the book over", ErrForbidden)
	}
	if inst.Status != storage.StatusBooked || inst.CandidateID == nil {
		return fmt.Errorf("%w: instance is %s, expected booked", ErrInvalidState, inst.Status)
	}

	err = m.store.ConditionalUpdate(ctx, instanceID,
		storage.Expect{Status: storage.StatusBooked, CandidateID: inst.CandidateID, MatchCandidate: true},
		storage.Update{SetTransferred: true, IsTransferred: true},
	)
	if err != nil {
		return m.casErr("transfer", instanceID, err)
	}

	m.journal(ctx, ownerID, instanceID, storage.ActionTransferred, transition{
		From: storage.StatusBooked, To: storage.StatusBooked, Candidate: *inst.CandidateID,
	})
	m.emit(ctx, notify.NewIntent(*inst.CandidateID, notify.KindReceiptRequested, instanceID, ownerID))
	m.logTransition(ctx, "transfer", instanceID, ownerID, storage.StatusBooked)
	return nil
}

// ConfirmReceipt is the candidate's confirmation that the book arrived.
// Possession transfers: the candidate becomes the owner and a fresh reading
// window starts.
func (m *Manager) ConfirmReceipt(ctx context.Context, instanceID, candidateID int64) error {
	inst, err := m.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status != storage.StatusBooked || !inst.IsTransferred {
		return fmt.Errorf("%w: instance is %s, handoff not marked", ErrInvalidState, inst.Status)
	}
	if inst.CandidateID == nil || *inst.CandidateID != candidateID {
		return fmt.Errorf("%w: only the candidate can confirm receipt", ErrForbidden)
	}

	deadline := m.now().Add(m.cfg.ReadingWindow)
	err = m.store.ConditionalUpdate(ctx, instanceID,
		storage.Expect{Status: storage.StatusBooked, CandidateID: inst.CandidateID, MatchCandidate: true},
		storage.Update{
			SetStatus:      true,
			Status:         storage.StatusReading,
			SetCandidate:   true,
			CandidateID:    nil,
			SetRemainTime:  true,
			RemainTime:     &deadline,
			SetTransferred: true,
			IsTransferred:  false,
			SetOwner:       true,
			OwnerID:        candidateID,
		},
	)
	if err != nil {
		return m.casErr("receive", instanceID, err)
	}

	m.journal(ctx, candidateID, instanceID, storage.ActionReceived, transition{
		From: storage.StatusBooked, To: storage.StatusReading, PrevOwner: inst.OwnerID,
	})
	m.logTransition(ctx, "receive", instanceID, candidateID, storage.StatusReading)
	return nil
}

// StartReadingOwnCopy lets an owner read their own free copy.
func (m *Manager) StartReadingOwnCopy(ctx context.Context, instanceID, ownerID int64) error {
	inst, err := m.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.OwnerID != ownerID {
		return fmt.Errorf("%w: not the owner", ErrForbidden)
	}
	if inst.Status != storage.StatusFree {
		return fmt.Errorf("%w: instance is %s, expected free", ErrInvalidState, inst.Status)
	}

	deadline := m.now().Add(m.cfg.ReadingWindow)
	err = m.store.ConditionalUpdate(ctx, instanceID,
		storage.Expect{Status: storage.StatusFree},
		storage.Update{
			SetStatus:     true,
			Status:        storage.StatusReading,
			SetRemainTime: true,
			RemainTime:    &deadline,
		},
	)
	if err != nil {
		return m.casErr("start_reading", instanceID, err)
	}

	m.journal(ctx, ownerID, instanceID, storage.ActionStarted, transition{
		From: storage.StatusFree, To: storage.StatusReading,
	})
	m.logTransition(ctx, "start_reading", instanceID, ownerID, storage.StatusReading)
	return nil
}

// FinishReading returns a reading instance to the free state.
func (m *Manager) FinishReading(ctx context.Context, instanceID, ownerID int64) error {
	inst, err := m.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.OwnerID != ownerID {
		return fmt.Errorf("%w: not the owner", ErrForbidden)
	}
	if inst.Status != storage.StatusReading {
		return fmt.Errorf("%w: instance is %s, expected reading", ErrInvalidState, inst.Status)
	}

	err = m.store.ConditionalUpdate(ctx, instanceID,
		storage.Expect{Status: storage.StatusReading},
		freeUpdate(),
	)
	if err != nil {
		return m.casErr("finish_reading", instanceID, err)
	}

	m.journal(ctx, ownerID, instanceID, storage.ActionFinished, transition{
		From: storage.StatusReading, To: storage.StatusFree,
	})
	m.logTransition(ctx, "finish_reading", instanceID, ownerID, storage.StatusFree)
	return nil
}

// ExtendReading adds one extension to the reading deadline. The addition is
// applied inside the conditional update, so repeated calls accumulate instead
// of resetting, even when they race.
func (m *Manager) ExtendReading(ctx context.Context, instanceID, ownerID int64) error {
	inst, err := m.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.OwnerID != ownerID {
		return fmt.Errorf("%w: not the owner", ErrForbidden)
	}
	if inst.Status != storage.StatusReading || inst.RemainTime == nil {
		return fmt.Errorf("%w: instance is %s, expected reading", ErrInvalidState, inst.Status)
	}

	err = m.store.ConditionalUpdate(ctx, instanceID,
		storage.Expect{Status: storage.StatusReading},
		storage.Update{ExtendRemain: m.cfg.Extension},
	)
	if err != nil {
		return m.casErr("extend", instanceID, err)
	}

	m.journal(ctx, ownerID, instanceID, storage.ActionExtended, transition{
		From: storage.StatusReading, To: storage.StatusReading,
	})
	m.logTransition(ctx, "extend", instanceID, ownerID, storage.StatusReading)
	return nil
}

// ExpireReading frees an instance whose reading window ran out. It is invoked
// by the periodic sweep, never self-scheduled. When the precondition does not
// hold (not reading, or the deadline is still in the future) the call is an
// idempotent no-op and reports expired=false.
func (m *Manager) ExpireReading(ctx context.Context, instanceID int64) (bool, error) {
	inst, err := m.getInstance(ctx, instanceID)
	if err != nil {
		return false, err
	}
	if inst.Status != storage.StatusReading || inst.RemainTime == nil {
		return false, nil
	}
	if inst.RemainTime.After(m.now()) {
		return false, nil
	}

	// The observed deadline is part of the expectation: an extension landing
	// between the read and this write moves remain_time and must win the race.
	err = m.store.ConditionalUpdate(ctx, instanceID,
		storage.Expect{
			Status:      storage.StatusReading,
			RemainTime:  inst.RemainTime,
			MatchRemain: true,
		},
		freeUpdate(),
	)
	if err != nil {
		// A concurrent finish or extension already resolved the deadline.
		if errors.Is(err, storage.ErrConflict) {
			return false, nil
		}
		return false, m.casErr("expire", instanceID, err)
	}

	m.journal(ctx, 0, instanceID, storage.ActionExpired, transition{
		From: storage.StatusReading, To: storage.StatusFree,
	})
	m.emit(ctx, notify.NewIntent(inst.OwnerID, notify.KindReadingExpired, instanceID, 0))
	m.logTransition(ctx, "expire", instanceID, 0, storage.StatusFree)
	return true, nil
}

// RemindReading emits the "window almost over" reminder without mutating the
// instance. The sweep decides when a reminder is due.
func (m *Manager) RemindReading(ctx context.Context, instanceID int64) error {
	inst, err := m.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status != storage.StatusReading {
		return fmt.Errorf("%w: instance is %s, expected reading", ErrInvalidState, inst.Status)
	}
	m.emit(ctx, notify.NewIntent(inst.OwnerID, notify.KindReadingReminder, instanceID, 0))
	return nil
}

// transition is the audit payload recorded per state change.
type transition struct {
	From      storage.Status `json:"from"`
	To        storage.Status `json:"to"`
	Candidate int64          `json:"candidate,omitempty"`
	PrevOwner int64          `json:"prev_owner,omitempty"`
}

func freeUpdate() storage.Update {
	return storage.Update{
		SetStatus:      true,
		Status:         storage.StatusFree,
		SetCandidate:   true,
		CandidateID:    nil,
		SetRemainTime:  true,
		RemainTime:     nil,
		SetTransferred: true,
		IsTransferred:  false,
	}
}

func counterpart(inst storage.BookInstance, actorID int64) (int64, bool) {
	if inst.OwnerID != actorID {
		return inst.OwnerID, true
	}
	if inst.CandidateID != nil && *inst.CandidateID != actorID {
		return *inst.CandidateID, true
	}
	return 0, false
}

func (m *Manager) getInstance(ctx context.Context, id int64) (storage.BookInstance, error) {
	inst, err := m.store.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.BookInstance{}, fmt.Errorf("%w: instance %d", ErrNotFound, id)
		}
		return storage.BookInstance{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return inst, nil
}

// casErr maps storage failures of a conditional update onto the lifecycle
// taxonomy. A vanished row maps to ErrNotFound, a mismatched expectation to
// ErrConflict, anything else to ErrStoreUnavailable.
func (m *Manager) casErr(op string, instanceID int64, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: instance %d", ErrNotFound, instanceID)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%w: %s lost the race on instance %d", ErrConflict, op, instanceID)
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func (m *Manager) journal(ctx context.Context, userID, bookID int64, kind string, payload transition) {
	if m.actions == nil {
		return
	}
	action, err := storage.NewAction(userID, bookID, kind, payload)
	if err == nil {
		err = m.actions.RecordAction(ctx, action)
	}
	if err != nil {
		logger.Warn(ctx, component, "journal.failed",
			slog.String("status", "fail"),
			slog.String("kind", kind),
			slog.Int64("book_id", bookID),
			slog.String("err", err.Error()),
		)
	}
}

// emit hands an intent to the gateway. Delivery failures are logged and
// swallowed: a completed transition is never rolled back because a
// notification could not be sent.
func (m *Manager) emit(ctx context.Context, intent notify.Intent) {
	if m.gateway == nil {
		return
	}
	if err := m.gateway.Notify(ctx, intent); err != nil {
		logger.Warn(ctx, component, "notify.failed",
			slog.String("status", "fail"),
			slog.String("kind", string(intent.Kind)),
			slog.Int64("book_id", intent.BookID),
			slog.Int64("target_id", intent.TargetUserID),
			slog.String("err", err.Error()),
		)
	}
}

func (m *Manager) logTransition(ctx context.Context, op string, instanceID, actorID int64, to storage.Status) {
	logger.Debug(ctx, component, "transition",
		slog.String("status", "ok"),
		slog.String("op", op),
		slog.Int64("book_id", instanceID),
		slog.Int64("actor_id", actorID),
		slog.String("to", to.String()),
	)
}
