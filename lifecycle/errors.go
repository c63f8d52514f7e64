package lifecycle

import "errors"

// Failure taxonomy for lifecycle operations. All four domain errors are
// recoverable and surface to the chat layer as-is; ErrStoreUnavailable wraps
// transient engine failures and must never be conflated with ErrConflict.
var (
	// ErrNotFound reports an unknown instance or user.
	ErrNotFound = errors.New("lifecycle: not found")
	// ErrForbidden reports an actor lacking the relation the operation needs.
	ErrForbidden = errors.New("lifecycle: forbidden")
	// ErrInvalidState reports a status precondition that does not hold.
	ErrInvalidState = errors.New("lifecycle: invalid state")
	// ErrConflict reports a lost race against a concurrent transition.
	ErrConflict = errors.New("lifecycle: conflict")
	// ErrStoreUnavailable reports a transient storage failure.
	ErrStoreUnavailable = errors.New("lifecycle: store unavailable")
)
