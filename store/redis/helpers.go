package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	taskq "github.com/neeraj-agentic-lab/SubscriptionManager-sub004"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// isNil reports whether err is the go-redis missing-key sentinel.
func isNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// zMember builds the schedule Sorted Set member for a task, scored by
// due time in unix milliseconds.
func zMember(dueAt time.Time, taskID string) goredis.Z {
	return goredis.Z{Score: float64(dueAt.UnixMilli()), Member: taskID}
}

func taskToMap(t *task.Task) map[string]interface{} {
	m := map[string]interface{}{
		"id":            t.ID.String(),
		"tenant_id":     t.TenantID.String(),
		"task_type":     t.Type,
		"task_key":      t.Key,
		"payload":       string(t.Payload),
		"status":        string(t.Status),
		"due_at":        t.DueAt.Format(time.RFC3339Nano),
		"due_ms":        strconv.FormatInt(t.DueAt.UnixMilli(), 10),
		"lock_owner":    t.LockOwner.String(),
		"attempt_count": strconv.Itoa(t.AttemptCount),
		"max_attempts":  strconv.Itoa(t.MaxAttempts),
		"last_error":    t.LastError,
		"timeout":       strconv.FormatInt(int64(t.Timeout), 10),
		"created_at":    t.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    t.UpdatedAt.Format(time.RFC3339Nano),
	}
	if t.LockedUntil != nil {
		m["locked_until"] = t.LockedUntil.Format(time.RFC3339Nano)
	}
	if t.CompletedAt != nil {
		m["completed_at"] = t.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getTaskByKey(ctx context.Context, key string) (*task.Task, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("taskq/redis: get task: %w", err)
	}
	if len(vals) == 0 {
		return nil, taskq.ErrTaskNotFound
	}
	return mapToTask(vals)
}

func mapToTask(m map[string]string) (*task.Task, error) {
	tID, err := id.ParseTaskID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("taskq/redis: parse task id: %w", err)
	}
	tenantID, err := id.ParseTenantID(m["tenant_id"])
	if err != nil {
		return nil, fmt.Errorf("taskq/redis: parse tenant id: %w", err)
	}

	attemptCount, _ := strconv.Atoi(m["attempt_count"])  //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])    //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	dueAt, _ := time.Parse(time.RFC3339Nano, m["due_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	t := &task.Task{
		Entity: taskq.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:           tID,
		TenantID:     tenantID,
		Type:         m["task_type"],
		Key:          m["task_key"],
		Payload:      []byte(m["payload"]),
		Status:       task.Status(m["status"]),
		DueAt:        dueAt,
		AttemptCount: attemptCount,
		MaxAttempts:  maxAttempts,
		LastError:    m["last_error"],
		Timeout:      time.Duration(timeout),
	}

	if owner := m["lock_owner"]; owner != "" {
		t.LockOwner, _ = id.ParseWorkerID(owner) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["locked_until"]; v != "" {
		ts, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		t.LockedUntil = &ts
	}
	if v := m["completed_at"]; v != "" {
		ts, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		t.CompletedAt = &ts
	}

	return t, nil
}
