package hook

import (
	"context"
	"time"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// Hook is the base interface all lifecycle hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskEnqueued is called after a task is successfully enqueued.
type TaskEnqueued interface {
	OnTaskEnqueued(ctx context.Context, t *task.Task) error
}

// TaskClaimed is called when a processor claims a task for execution.
type TaskClaimed interface {
	OnTaskClaimed(ctx context.Context, t *task.Task) error
}

// TaskCompleted is called after a task finishes successfully.
type TaskCompleted interface {
	OnTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) error
}

// TaskRetrying is called when a task attempt fails but the task is
// requeued for another try.
type TaskRetrying interface {
	OnTaskRetrying(ctx context.Context, t *task.Task, attempt int, nextDueAt time.Time) error
}

// TaskDeadLettered is called when a task exhausts its attempts and is
// marked FAILED.
type TaskDeadLettered interface {
	OnTaskDeadLettered(ctx context.Context, t *task.Task, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// LeaseReaped is called after a reaper sweep resets expired leases.
type LeaseReaped interface {
	OnLeaseReaped(ctx context.Context, count int) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
