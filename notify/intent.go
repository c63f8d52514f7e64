// Package notify defines notification intents produced by lifecycle
// transitions and the gateways that deliver them. The lifecycle manager only
// emits intents; delivery, retries, and unreachable recipients are the
// gateway's problem, and a delivery failure never rolls back a committed
// transition.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a notification intent.
type Kind string

const (
	// KindBookingRequested tells the owner that a candidate wants the book.
	KindBookingRequested Kind = "booking_requested"
	// KindBookingConfirmed tells the candidate the owner accepted the booking.
	KindBookingConfirmed Kind = "booking_confirmed"
	// KindBookingCancelled tells the other party a booking or pending
	// transfer was called off.
	KindBookingCancelled Kind = "booking_cancelled"
	// KindReceiptRequested asks the candidate to confirm the physical handoff.
	KindReceiptRequested Kind = "receipt_requested"
	// KindReadingExpired tells the holder the reading window ran out.
	KindReadingExpired Kind = "reading_expired"
	// KindReadingReminder warns the holder the window is about to run out.
	KindReadingReminder Kind = "reading_reminder"
)

// Intent is a single notification to be delivered to one user.
type Intent struct {
	ID           uuid.UUID
	TargetUserID int64
	Kind         Kind
	BookID       int64
	// ActorID identifies the user whose action produced the intent; zero for
	// system-triggered intents such as expiry.
	ActorID   int64
	CreatedAt time.Time
}

// NewIntent builds an intent with a fresh identifier.
func NewIntent(target int64, kind Kind, bookID, actorID int64) Intent {
	return Intent{
		ID:           uuid.New(),
		TargetUserID: target,
		Kind:         kind,
		BookID:       bookID,
		ActorID:      actorID,
		CreatedAt:    time.Now().UTC(),
	}
}

// Gateway delivers intents. Implementations must be safe for concurrent use.
type Gateway interface {
	Notify(ctx context.Context, intent Intent) error
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, intent Intent) error

// Notify implements Gateway.
func (f GatewayFunc) Notify(ctx context.Context, intent Intent) error {
	return f(ctx, intent)
}
