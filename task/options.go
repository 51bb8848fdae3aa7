package task

import "time"

// Options configures per-task behavior: attempt budget, dedup key,
// due time, and execution timeout.
type Options struct {
	// MaxAttempts is the attempt budget before the task is dead-lettered.
	MaxAttempts int

	// Key is the dedup key. Empty disables dedup.
	Key string

	// DueAt is the earliest time the task may be claimed. Zero means now.
	DueAt time.Time

	// Timeout is the per-attempt execution deadline (zero = unlimited).
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Timeout:     0,
	}
}

// Option is a functional option for configuring a task.
type Option func(*Options)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithKey sets the dedup key. Enqueueing again with the same key on the
// same tenant resets the existing row instead of inserting a duplicate.
func WithKey(key string) Option {
	return func(o *Options) {
		o.Key = key
	}
}

// WithDueAt schedules the task for claiming at a specific time.
func WithDueAt(t time.Time) Option {
	return func(o *Options) {
		o.DueAt = t
	}
}

// WithTimeout sets the per-attempt execution deadline. Keep it below the
// lease duration or a slow handler will overrun its lease.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
