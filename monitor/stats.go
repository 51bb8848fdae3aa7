package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// StatusCounts holds the number of tasks in each lifecycle status.
type StatusCounts struct {
	Ready     int64 `json:"ready"`
	Claimed   int64 `json:"claimed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats is a point-in-time snapshot of queue health.
type Stats struct {
	Statuses StatusCounts     `json:"statuses"`
	ByType   map[string]int64 `json:"by_type,omitempty"`
}

// Service answers aggregate questions against the task store.
type Service struct {
	store  task.Store
	logger *slog.Logger
}

// NewService creates a monitoring service over the given store.
func NewService(store task.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Stats returns status counts plus, when taskTypes are given, a READY
// backlog count per type.
func (s *Service) Stats(ctx context.Context, taskTypes ...string) (*Stats, error) {
	out := &Stats{}

	for _, st := range []struct {
		status task.Status
		dst    *int64
	}{
		{task.StatusReady, &out.Statuses.Ready},
		{task.StatusClaimed, &out.Statuses.Claimed},
		{task.StatusCompleted, &out.Statuses.Completed},
		{task.StatusFailed, &out.Statuses.Failed},
	} {
		count, err := s.store.CountTasks(ctx, task.CountOpts{Status: st.status})
		if err != nil {
			return nil, fmt.Errorf("monitor: count %s tasks: %w", st.status, err)
		}
		*st.dst = count
	}

	if len(taskTypes) > 0 {
		out.ByType = make(map[string]int64, len(taskTypes))
		for _, tt := range taskTypes {
			count, err := s.store.CountTasks(ctx, task.CountOpts{Type: tt, Status: task.StatusReady})
			if err != nil {
				return nil, fmt.Errorf("monitor: count %s backlog: %w", tt, err)
			}
			out.ByType[tt] = count
		}
	}

	return out, nil
}

// TenantBacklog returns the READY task count for a single tenant.
func (s *Service) TenantBacklog(ctx context.Context, tenantID id.TenantID) (int64, error) {
	count, err := s.store.CountTasks(ctx, task.CountOpts{Status: task.StatusReady, TenantID: tenantID})
	if err != nil {
		return 0, fmt.Errorf("monitor: count tenant backlog: %w", err)
	}
	return count, nil
}

// DeadLetters returns the most recent FAILED tasks for inspection.
func (s *Service) DeadLetters(ctx context.Context, limit int) ([]*task.Task, error) {
	tasks, err := s.store.ListTasksByStatus(ctx, task.StatusFailed, task.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("monitor: list dead letters: %w", err)
	}
	return tasks, nil
}

// RecentFailures returns tasks that recorded an error on their latest
// attempt, newest first. Unlike DeadLetters this includes tasks still
// retrying.
func (s *Service) RecentFailures(ctx context.Context, limit int) ([]*task.Task, error) {
	tasks, err := s.store.ListRecentFailures(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("monitor: list recent failures: %w", err)
	}
	return tasks, nil
}
