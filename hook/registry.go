package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// Named entry types pair a hook implementation with the hook name
// captured at registration time. This avoids type-asserting back to
// Hook inside the emit methods.
type taskEnqueuedEntry struct {
	name string
	hook TaskEnqueued
}

type taskClaimedEntry struct {
	name string
	hook TaskClaimed
}

type taskCompletedEntry struct {
	name string
	hook TaskCompleted
}

type taskRetryingEntry struct {
	name string
	hook TaskRetrying
}

type taskDeadLetteredEntry struct {
	name string
	hook TaskDeadLettered
}

type leaseReapedEntry struct {
	name string
	hook LeaseReaped
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and dispatches lifecycle events to
// them. It type-caches hooks at registration time so emit calls iterate
// only over hooks that implement the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	// Type-cached slices for each lifecycle event.
	taskEnqueued     []taskEnqueuedEntry
	taskClaimed      []taskClaimedEntry
	taskCompleted    []taskCompletedEntry
	taskRetrying     []taskRetryingEntry
	taskDeadLettered []taskDeadLetteredEntry
	leaseReaped      []leaseReapedEntry
	shutdown         []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if e, ok := h.(TaskEnqueued); ok {
		r.taskEnqueued = append(r.taskEnqueued, taskEnqueuedEntry{name, e})
	}
	if e, ok := h.(TaskClaimed); ok {
		r.taskClaimed = append(r.taskClaimed, taskClaimedEntry{name, e})
	}
	if e, ok := h.(TaskCompleted); ok {
		r.taskCompleted = append(r.taskCompleted, taskCompletedEntry{name, e})
	}
	if e, ok := h.(TaskRetrying); ok {
		r.taskRetrying = append(r.taskRetrying, taskRetryingEntry{name, e})
	}
	if e, ok := h.(TaskDeadLettered); ok {
		r.taskDeadLettered = append(r.taskDeadLettered, taskDeadLetteredEntry{name, e})
	}
	if e, ok := h.(LeaseReaped); ok {
		r.leaseReaped = append(r.leaseReaped, leaseReapedEntry{name, e})
	}
	if e, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, e})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitTaskEnqueued notifies all hooks that implement TaskEnqueued.
func (r *Registry) EmitTaskEnqueued(ctx context.Context, t *task.Task) {
	for _, e := range r.taskEnqueued {
		if err := e.hook.OnTaskEnqueued(ctx, t); err != nil {
			r.logHookError("OnTaskEnqueued", e.name, err)
		}
	}
}

// EmitTaskClaimed notifies all hooks that implement TaskClaimed.
func (r *Registry) EmitTaskClaimed(ctx context.Context, t *task.Task) {
	for _, e := range r.taskClaimed {
		if err := e.hook.OnTaskClaimed(ctx, t); err != nil {
			r.logHookError("OnTaskClaimed", e.name, err)
		}
	}
}

// EmitTaskCompleted notifies all hooks that implement TaskCompleted.
func (r *Registry) EmitTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) {
	for _, e := range r.taskCompleted {
		if err := e.hook.OnTaskCompleted(ctx, t, elapsed); err != nil {
			r.logHookError("OnTaskCompleted", e.name, err)
		}
	}
}

// EmitTaskRetrying notifies all hooks that implement TaskRetrying.
func (r *Registry) EmitTaskRetrying(ctx context.Context, t *task.Task, attempt int, nextDueAt time.Time) {
	for _, e := range r.taskRetrying {
		if err := e.hook.OnTaskRetrying(ctx, t, attempt, nextDueAt); err != nil {
			r.logHookError("OnTaskRetrying", e.name, err)
		}
	}
}

// EmitTaskDeadLettered notifies all hooks that implement TaskDeadLettered.
func (r *Registry) EmitTaskDeadLettered(ctx context.Context, t *task.Task, taskErr error) {
	for _, e := range r.taskDeadLettered {
		if err := e.hook.OnTaskDeadLettered(ctx, t, taskErr); err != nil {
			r.logHookError("OnTaskDeadLettered", e.name, err)
		}
	}
}

// EmitLeaseReaped notifies all hooks that implement LeaseReaped.
func (r *Registry) EmitLeaseReaped(ctx context.Context, count int) {
	for _, e := range r.leaseReaped {
		if err := e.hook.OnLeaseReaped(ctx, count); err != nil {
			r.logHookError("OnLeaseReaped", e.name, err)
		}
	}
}

// EmitShutdown notifies all hooks that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(event, hookName string, err error) {
	r.logger.Warn("lifecycle hook error",
		slog.String("event", event),
		slog.String("hook", hookName),
		slog.String("error", err.Error()),
	)
}
