package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// Logging returns middleware that logs task start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		logger.Info("task started",
			slog.String("task_type", t.Type),
			slog.String("task_id", t.ID.String()),
			slog.String("tenant_id", t.TenantID.String()),
			slog.Int("attempt", t.AttemptCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("task failed",
				slog.String("task_type", t.Type),
				slog.String("task_id", t.ID.String()),
				slog.Int("attempt", t.AttemptCount),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("task completed",
				slog.String("task_type", t.Type),
				slog.String("task_id", t.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
