package task

import (
	"time"

	taskq "github.com/neeraj-agentic-lab/SubscriptionManager-sub004"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
)

// Status represents the lifecycle status of a task.
type Status string

const (
	// StatusReady means the task is waiting to be claimed once due.
	StatusReady Status = "READY"
	// StatusClaimed means a worker holds a lease on the task. A claimed
	// task whose lease has expired is logically READY for claiming.
	StatusClaimed Status = "CLAIMED"
	// StatusCompleted means the task finished successfully. Terminal.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed means the task exhausted its attempt budget. Terminal;
	// only manual operator action can requeue it.
	StatusFailed Status = "FAILED"
)

// Task represents a durable unit of deferred work: a subscription renewal,
// a payment charge, a delivery to schedule. One row per unit of work.
type Task struct {
	taskq.Entity

	ID       id.TaskID   `json:"id"`
	TenantID id.TenantID `json:"tenant_id"`

	// Type selects the registered handler. The queue does not interpret it.
	Type string `json:"type"`

	// Key is an optional dedup key, unique per tenant. Enqueueing with an
	// existing key resets that row instead of inserting a duplicate.
	Key string `json:"key,omitempty"`

	// Payload is passed to the handler verbatim (JSON).
	Payload []byte `json:"payload"`

	Status Status `json:"status"`

	// DueAt is the earliest time the task may be claimed.
	DueAt time.Time `json:"due_at"`

	// LockOwner and LockedUntil together express the lease. Both are set
	// iff the task is claimed; LockedUntil in the past means the lease is
	// expired and the row is reclaimable.
	LockOwner   id.WorkerID `json:"lock_owner,omitempty"`
	LockedUntil *time.Time  `json:"locked_until,omitempty"`

	// AttemptCount is incremented on every claim. It never resets.
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts is this task's attempt budget.
	MaxAttempts int `json:"max_attempts"`

	LastError   string     `json:"last_error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Timeout is the per-attempt execution deadline (zero = unlimited).
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Claimed reports whether the task holds a live lease at the given time.
func (t *Task) Claimed(now time.Time) bool {
	return t.Status == StatusClaimed &&
		!t.LockOwner.IsNil() &&
		t.LockedUntil != nil &&
		t.LockedUntil.After(now)
}

// Terminal reports whether the task is in a terminal status.
func (t *Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// AttemptsLeft reports whether the task still has budget for another
// attempt after the current one failed.
func (t *Task) AttemptsLeft() bool {
	return t.AttemptCount < t.MaxAttempts
}
