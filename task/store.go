package task

import (
	"context"
	"time"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
)

// ListOpts controls pagination and filtering for task list queries.
type ListOpts struct {
	// Limit is the maximum number of tasks to return. Zero means no limit.
	Limit int
	// Offset is the number of tasks to skip.
	Offset int
	// Type filters by task type. Empty means all types.
	Type string
	// TenantID filters by owning tenant. Nil means all tenants.
	TenantID id.TenantID
}

// CountOpts controls filtering for task count queries.
type CountOpts struct {
	// Type filters by task type. Empty means all types.
	Type string
	// Status filters by task status. Empty means all statuses.
	Status Status
	// TenantID filters by owning tenant. Nil means all tenants.
	TenantID id.TenantID
}

// Store defines the persistence contract for tasks. It is the single
// source of truth shared by every worker process; all coordination
// between workers is expressed as conditional row transitions here.
type Store interface {
	// EnqueueTask persists a new READY task. If the task carries a dedup
	// Key and a row with the same (tenant, key) already exists, that row
	// is reset to READY with the new due time and payload and a zeroed
	// attempt budget instead of inserting a duplicate; the reset row is
	// written back into t. Inserting a duplicate ID returns
	// taskq.ErrTaskAlreadyExists.
	EnqueueTask(ctx context.Context, t *Task) error

	// ClaimTasks atomically claims up to batchSize eligible tasks for
	// workerID and returns only the rows this call won.
	//
	// A task is eligible when it is READY with due_at <= now, or CLAIMED
	// with an expired lease (locked_until < now). Tasks are claimed
	// oldest-due first, tie-broken by ID. Each claimed row gets
	// status=CLAIMED, lock_owner=workerID, locked_until=now+lease, and
	// attempt_count incremented by one.
	//
	// If two callers race for the same row, exactly one wins; the loser
	// simply does not see that row in its result set.
	ClaimTasks(ctx context.Context, workerID id.WorkerID, now time.Time, batchSize int, lease time.Duration) ([]*Task, error)

	// MarkCompleted transitions a claimed task to COMPLETED, sets
	// completed_at, and clears the lock fields.
	MarkCompleted(ctx context.Context, taskID id.TaskID, now time.Time) error

	// RequeueTask returns a claimed task to READY for another attempt:
	// due_at := nextDue, lock fields cleared, last_error recorded.
	// The attempt counter is untouched; it was already incremented at
	// claim time.
	RequeueTask(ctx context.Context, taskID id.TaskID, nextDue time.Time, lastError string) error

	// MarkFailed dead-letters a task: status=FAILED, lock fields cleared,
	// last_error recorded. Terminal; the reaper never touches FAILED rows.
	MarkFailed(ctx context.Context, taskID id.TaskID, lastError string) error

	// CleanupExpiredLocks resets every CLAIMED task whose lease expired
	// before now back to READY, clearing the lock fields, and returns the
	// number of rows reset. Safe to run concurrently with ClaimTasks and
	// with itself.
	CleanupExpiredLocks(ctx context.Context, now time.Time) (int, error)

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// ListTasksByStatus returns tasks matching the given status, ordered
	// by due_at then ID.
	ListTasksByStatus(ctx context.Context, status Status, opts ListOpts) ([]*Task, error)

	// CountTasks returns the number of tasks matching the given options.
	CountTasks(ctx context.Context, opts CountOpts) (int64, error)

	// ListRecentFailures returns the most recently updated tasks that
	// carry a last_error (FAILED rows and READY rows awaiting retry),
	// newest first, capped at limit.
	ListRecentFailures(ctx context.Context, limit int) ([]*Task, error)
}
