package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	taskq "github.com/neeraj-agentic-lab/SubscriptionManager-sub004"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// EnqueueTask stores the task as a Hash and adds it to the schedule
// Sorted Set. When the task carries a dedup key that already maps to a
// row, that row is reset and reused instead of inserting a duplicate.
func (s *Store) EnqueueTask(ctx context.Context, t *task.Task) error {
	if t.Key != "" {
		existingID, err := s.client.HGet(ctx, dedupKeysKey, dedupField(t.TenantID.String(), t.Key)).Result()
		if err != nil && !isNil(err) {
			return fmt.Errorf("taskq/redis: enqueue dedup lookup: %w", err)
		}
		if err == nil && existingID != "" {
			return s.resetExisting(ctx, existingID, t)
		}
	}

	tID := t.ID.String()
	key := taskKey(tID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("taskq/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return taskq.ErrTaskAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, taskToMap(t))
	pipe.SAdd(ctx, taskIDsKey, tID)
	pipe.ZAdd(ctx, scheduleKey, zMember(t.DueAt, tID))
	if t.Key != "" {
		pipe.HSet(ctx, dedupKeysKey, dedupField(t.TenantID.String(), t.Key), tID)
	}

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskq/redis: enqueue task: %w", err)
	}
	return nil
}

// resetExisting reuses the row owning a dedup key: the task goes back
// to READY with the new payload and due time and a fresh attempt budget.
func (s *Store) resetExisting(ctx context.Context, existingID string, t *task.Task) error {
	key := taskKey(existingID)
	now := time.Now().UTC()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"payload", string(t.Payload),
		"status", string(task.StatusReady),
		"due_at", t.DueAt.Format(time.RFC3339Nano),
		"due_ms", strconv.FormatInt(t.DueAt.UnixMilli(), 10),
		"lock_owner", "",
		"locked_until", "",
		"attempt_count", "0",
		"max_attempts", strconv.Itoa(t.MaxAttempts),
		"last_error", "",
		"timeout", strconv.FormatInt(int64(t.Timeout), 10),
		"completed_at", "",
		"updated_at", now.Format(time.RFC3339Nano),
	)
	pipe.ZRem(ctx, claimedKey, existingID)
	pipe.ZAdd(ctx, scheduleKey, zMember(t.DueAt, existingID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskq/redis: enqueue upsert: %w", err)
	}

	stored, err := s.getTaskByKey(ctx, key)
	if err != nil {
		return err
	}
	*t = *stored
	return nil
}

// ClaimTasks atomically claims up to batchSize eligible tasks for the
// given worker. Expired leases are folded back into the schedule and
// claimed in the same script run, so a direct reclaim needs no separate
// reaper pass.
func (s *Store) ClaimTasks(ctx context.Context, workerID id.WorkerID, now time.Time, batchSize int, lease time.Duration) ([]*task.Task, error) {
	until := now.Add(lease)
	ids, err := claimScript.Run(ctx, s.client,
		[]string{scheduleKey, claimedKey},
		now.UnixMilli(),
		until.UnixMilli(),
		batchSize,
		workerID.String(),
		now.UTC().Format(time.RFC3339Nano),
		until.UTC().Format(time.RFC3339Nano),
		keyPrefix+"task:",
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("taskq/redis: claim tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(ids))
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			return nil, getErr
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// MarkCompleted transitions a task to COMPLETED and releases its lock.
func (s *Store) MarkCompleted(ctx context.Context, taskID id.TaskID, now time.Time) error {
	tID := taskID.String()
	key := taskKey(tID)

	if err := s.mustExist(ctx, key); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(task.StatusCompleted),
		"completed_at", now.UTC().Format(time.RFC3339Nano),
		"lock_owner", "",
		"locked_until", "",
		"updated_at", now.UTC().Format(time.RFC3339Nano),
	)
	pipe.ZRem(ctx, scheduleKey, tID)
	pipe.ZRem(ctx, claimedKey, tID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskq/redis: mark completed: %w", err)
	}
	return nil
}

// RequeueTask returns a task to READY for another attempt at nextDue.
func (s *Store) RequeueTask(ctx context.Context, taskID id.TaskID, nextDue time.Time, lastError string) error {
	tID := taskID.String()
	key := taskKey(tID)

	if err := s.mustExist(ctx, key); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(task.StatusReady),
		"due_at", nextDue.Format(time.RFC3339Nano),
		"due_ms", strconv.FormatInt(nextDue.UnixMilli(), 10),
		"last_error", lastError,
		"lock_owner", "",
		"locked_until", "",
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.ZRem(ctx, claimedKey, tID)
	pipe.ZAdd(ctx, scheduleKey, zMember(nextDue, tID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskq/redis: requeue task: %w", err)
	}
	return nil
}

// MarkFailed dead-letters a task. FAILED tasks leave both Sorted Sets
// and are never claimed again.
func (s *Store) MarkFailed(ctx context.Context, taskID id.TaskID, lastError string) error {
	tID := taskID.String()
	key := taskKey(tID)

	if err := s.mustExist(ctx, key); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(task.StatusFailed),
		"last_error", lastError,
		"lock_owner", "",
		"locked_until", "",
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.ZRem(ctx, scheduleKey, tID)
	pipe.ZRem(ctx, claimedKey, tID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskq/redis: mark failed: %w", err)
	}
	return nil
}

// CleanupExpiredLocks resets CLAIMED tasks with expired leases back to
// READY and returns how many were reset.
func (s *Store) CleanupExpiredLocks(ctx context.Context, now time.Time) (int, error) {
	n, err := reapScript.Run(ctx, s.client,
		[]string{scheduleKey, claimedKey},
		now.UnixMilli(),
		now.UTC().Format(time.RFC3339Nano),
		keyPrefix+"task:",
	).Int()
	if err != nil {
		return 0, fmt.Errorf("taskq/redis: cleanup expired locks: %w", err)
	}
	return n, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return s.getTaskByKey(ctx, taskKey(taskID.String()))
}

// ListTasksByStatus returns tasks matching the given status ordered by
// due time.
func (s *Store) ListTasksByStatus(ctx context.Context, status task.Status, opts task.ListOpts) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("taskq/redis: list tasks smembers: %w", err)
	}

	tasks := make([]*task.Task, 0, len(ids))
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue // skip missing
		}
		if t.Status != status {
			continue
		}
		if opts.Type != "" && t.Type != opts.Type {
			continue
		}
		if !opts.TenantID.IsNil() && t.TenantID != opts.TenantID {
			continue
		}
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].DueAt.Equal(tasks[j].DueAt) {
			return tasks[i].DueAt.Before(tasks[j].DueAt)
		}
		return tasks[i].ID.String() < tasks[j].ID.String()
	})

	// Apply offset/limit.
	if opts.Offset >= len(tasks) {
		return nil, nil
	}
	if opts.Offset > 0 {
		tasks = tasks[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(tasks) {
		tasks = tasks[:opts.Limit]
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("taskq/redis: count smembers: %w", err)
	}

	var count int64
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if opts.Type != "" && t.Type != opts.Type {
			continue
		}
		if !opts.TenantID.IsNil() && t.TenantID != opts.TenantID {
			continue
		}
		count++
	}
	return count, nil
}

// ListRecentFailures returns tasks with a recorded error, most recently
// updated first.
func (s *Store) ListRecentFailures(ctx context.Context, limit int) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("taskq/redis: failures smembers: %w", err)
	}

	var failures []*task.Task
	for _, tID := range ids {
		t, getErr := s.getTaskByKey(ctx, taskKey(tID))
		if getErr != nil {
			continue
		}
		if t.LastError == "" {
			continue
		}
		failures = append(failures, t)
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].UpdatedAt.After(failures[j].UpdatedAt)
	})
	if limit > 0 && limit < len(failures) {
		failures = failures[:limit]
	}
	return failures, nil
}

// mustExist returns ErrTaskNotFound when no hash exists at key.
func (s *Store) mustExist(ctx context.Context, key string) error {
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("taskq/redis: check exists: %w", err)
	}
	if exists == 0 {
		return taskq.ErrTaskNotFound
	}
	return nil
}
