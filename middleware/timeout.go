package middleware

import (
	"context"
	"log/slog"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// Timeout returns middleware that enforces a per-task execution deadline.
// If the task has a non-zero Timeout, a context.WithTimeout wraps the
// handler call. When the deadline is exceeded the context is cancelled
// and the handler should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		if t.Timeout > 0 {
			logger.Debug("task timeout set",
				slog.String("task_id", t.ID.String()),
				slog.Duration("timeout", t.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
