// Package worker provides the task execution engine — an Executor that
// invokes registered handlers through middleware, a Processor that claims
// and dispatches batches, and a Runner that drives both on timers.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	taskq "github.com/neeraj-agentic-lab/SubscriptionManager-sub004"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/backoff"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/hook"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/middleware"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// Executor runs a single claimed task through middleware and the registered
// handler, then routes the outcome: completion, retry with backoff, or
// dead-letter once the attempt budget is spent.
type Executor struct {
	registry *task.Registry
	hooks    *hook.Registry
	store    task.Store
	backoff  backoff.Strategy
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *task.Registry,
	hooks *hook.Registry,
	store task.Store,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry: registry,
		hooks:    hooks,
		store:    store,
		backoff:  bo,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs a claimed task through the middleware chain and handler.
// On success: marks completed, emits TaskCompleted.
// On failure with attempts remaining: requeues with backoff, emits TaskRetrying.
// On failure with attempts exhausted: marks failed, emits TaskDeadLettered.
//
// An unknown task type is treated as a handler failure and routed through
// the same retry policy; the attempt was already consumed at claim time.
func (e *Executor) Execute(ctx context.Context, t *task.Task) error {
	handler, ok := e.registry.Get(t.Type)
	if !ok {
		return e.handleFailure(ctx, t, fmt.Errorf("%w: %q", taskq.ErrNoHandler, t.Type))
	}

	start := time.Now()

	// The terminal handler that calls the registered task handler.
	terminal := func(ctx context.Context) error {
		return handler(ctx, t.Payload)
	}

	err := e.mw(ctx, t, terminal)
	elapsed := time.Since(start)

	if err != nil {
		return e.handleFailure(ctx, t, err)
	}

	return e.handleSuccess(ctx, t, elapsed)
}

// handleSuccess marks the task completed and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, t *task.Task, elapsed time.Duration) error {
	now := time.Now().UTC()

	if updateErr := e.store.MarkCompleted(ctx, t.ID, now); updateErr != nil {
		e.logger.Error("failed to mark task completed",
			slog.String("task_id", t.ID.String()),
			slog.String("task_type", t.Type),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	t.Status = task.StatusCompleted
	t.CompletedAt = &now
	t.LockOwner = id.Nil
	t.LockedUntil = nil
	t.UpdatedAt = now

	e.hooks.EmitTaskCompleted(ctx, t, elapsed)
	return nil
}

// handleFailure records the error and either requeues with backoff or
// dead-letters the task. The attempt counter was incremented at claim
// time, so AttemptCount already reflects the attempt that just failed.
func (e *Executor) handleFailure(ctx context.Context, t *task.Task, handlerErr error) error {
	t.LastError = handlerErr.Error()

	if t.AttemptsLeft() {
		return e.scheduleRetry(ctx, t, handlerErr)
	}

	return e.deadLetter(ctx, t, handlerErr)
}

// scheduleRetry returns the task to READY with a backoff delay.
func (e *Executor) scheduleRetry(ctx context.Context, t *task.Task, handlerErr error) error {
	now := time.Now().UTC()
	delay := e.backoff.Delay(t.AttemptCount)
	nextDue := now.Add(delay)

	if updateErr := e.store.RequeueTask(ctx, t.ID, nextDue, t.LastError); updateErr != nil {
		e.logger.Error("failed to requeue task for retry",
			slog.String("task_id", t.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	t.Status = task.StatusReady
	t.DueAt = nextDue
	t.LockOwner = id.Nil
	t.LockedUntil = nil
	t.UpdatedAt = now

	e.hooks.EmitTaskRetrying(ctx, t, t.AttemptCount, nextDue)

	e.logger.Info("task scheduled for retry",
		slog.String("task_id", t.ID.String()),
		slog.String("task_type", t.Type),
		slog.Int("attempt", t.AttemptCount),
		slog.Int("max_attempts", t.MaxAttempts),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("task %s attempt %d/%d: %w", t.Type, t.AttemptCount, t.MaxAttempts, handlerErr)
}

// deadLetter marks the task FAILED and emits the lifecycle event.
// FAILED is terminal; only operator action can requeue the row.
func (e *Executor) deadLetter(ctx context.Context, t *task.Task, handlerErr error) error {
	if updateErr := e.store.MarkFailed(ctx, t.ID, t.LastError); updateErr != nil {
		e.logger.Error("failed to mark task failed",
			slog.String("task_id", t.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	t.Status = task.StatusFailed
	t.LockOwner = id.Nil
	t.LockedUntil = nil
	t.UpdatedAt = time.Now().UTC()

	e.hooks.EmitTaskDeadLettered(ctx, t, handlerErr)

	e.logger.Warn("task dead-lettered after exhausting attempts",
		slog.String("task_id", t.ID.String()),
		slog.String("task_type", t.Type),
		slog.Int("attempt_count", t.AttemptCount),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}
