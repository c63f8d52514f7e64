package notify

import (
	"context"
	"sync"
)

// Recorder is a Gateway that captures intents for assertions in tests.
type Recorder struct {
	mu      sync.Mutex
	intents []Intent
	fail    error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes every subsequent Notify call return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Notify implements Gateway.
func (r *Recorder) Notify(_ context.Context, intent Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.intents = append(r.intents, intent)
	return nil
}

// Intents returns a snapshot of everything captured so far.
func (r *Recorder) Intents() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Intent(nil), r.intents...)
}

// Last returns the most recent intent, if any.
func (r *Recorder) Last() (Intent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.intents) == 0 {
		return Intent{}, false
	}
	return r.intents[len(r.intents)-1], true
}
