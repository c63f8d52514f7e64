// Package sweep runs the periodic pass over instances in the reading state:
// overdue windows are expired back to the free state and owners a week away
// from the deadline get a reminder. All mutation goes through the lifecycle
// manager, so a sweep racing a user action resolves through the same
// conditional update and simply skips the instance.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"bookring/core/logger"
	"bookring/storage"
)

const component = "service.sweep"

// Defaults mirror the exchange rules: one pass a day, reminder a week out.
const (
	DefaultInterval = 24 * time.Hour
	DefaultReminder = 7 * 24 * time.Hour
)

// Lifecycle is the slice of the lifecycle manager the sweep drives.
type Lifecycle interface {
	ExpireReading(ctx context.Context, instanceID int64) (bool, error)
	RemindReading(ctx context.Context, instanceID int64) error
}

// Lister enumerates instances currently in the reading state.
type Lister interface {
	ListReading(ctx context.Context) ([]storage.BookInstance, error)
}

// Config carries the sweep tunables.
type Config struct {
	// Interval between passes.
	Interval time.Duration
	// Reminder is how far before the deadline the reminder fires.
	Reminder time.Duration
}

func (c *Config) normalize() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Reminder <= 0 {
		c.Reminder = DefaultReminder
	}
}

// Sweeper expires overdue reading windows and emits deadline reminders.
type Sweeper struct {
	lifecycle Lifecycle
	lister    Lister
	cfg       Config
	now       func() time.Time
}

// Option customises a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New wires a Sweeper over the lifecycle manager and the instance lister.
func New(lc Lifecycle, lister Lister, cfg Config, opts ...Option) *Sweeper {
	cfg.normalize()
	s := &Sweeper{
		lifecycle: lc,
		lister:    lister,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes a pass immediately and then once per interval until the
// context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		logger.Error(ctx, component, "pass.failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				logger.Error(ctx, component, "pass.failed",
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
			}
		}
	}
}

// RunOnce processes every reading instance exactly once. Per-instance
// failures are logged and skipped; the pass keeps going.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	instances, err := s.lister.ListReading(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	var expired, reminded int
	for _, inst := range instances {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if inst.RemainTime == nil {
			continue
		}
		left := inst.RemainTime.Sub(now)

		switch {
		case left <= 0:
			done, err := s.lifecycle.ExpireReading(ctx, inst.ID)
			if err != nil {
				logger.Warn(ctx, component, "expire.failed",
					slog.String("status", "fail"),
					slog.Int64("book_id", inst.ID),
					slog.String("err", err.Error()),
				)
				continue
			}
			if done {
				expired++
			}
		case s.reminderDue(left):
			if err := s.lifecycle.RemindReading(ctx, inst.ID); err != nil {
				logger.Warn(ctx, component, "remind.failed",
					slog.String("status", "fail"),
					slog.Int64("book_id", inst.ID),
					slog.String("err", err.Error()),
				)
				continue
			}
			reminded++
		}
	}

	logger.Info(ctx, component, "pass.done",
		slog.String("status", "ok"),
		slog.Int("count", len(instances)),
		slog.Int("expired", expired),
		slog.Int("reminded", reminded),
	)
	return nil
}

// reminderDue keeps the reminder to a single pass: it fires only while the
// remaining time sits inside the one-interval-wide band ending at the
// reminder threshold.
func (s *Sweeper) reminderDue(left time.Duration) bool {
	return left <= s.cfg.Reminder && left > s.cfg.Reminder-s.cfg.Interval
}
