package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	taskq "github.com/neeraj-agentic-lab/SubscriptionManager-sub004"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

const taskColumns = `
	id, tenant_id, task_type, task_key, payload, status,
	due_at, lock_owner, locked_until, attempt_count, max_attempts,
	last_error, timeout, completed_at, created_at, updated_at`

// EnqueueTask persists a new READY task. When the task carries a dedup
// key, an existing row for the same (tenant, key) is reset and reused
// instead of inserting a duplicate.
func (s *Store) EnqueueTask(ctx context.Context, t *task.Task) error {
	if t.Key != "" {
		row := s.pool.QueryRow(ctx, `
			INSERT INTO taskq_tasks (
				id, tenant_id, task_type, task_key, payload, status,
				due_at, attempt_count, max_attempts, last_error, timeout,
				created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7, 0, $8, '', $9,
				$10, $11
			)
			ON CONFLICT (tenant_id, task_key) WHERE task_key IS NOT NULL
			DO UPDATE SET
				payload = EXCLUDED.payload,
				status = 'READY',
				due_at = EXCLUDED.due_at,
				lock_owner = NULL,
				locked_until = NULL,
				attempt_count = 0,
				max_attempts = EXCLUDED.max_attempts,
				last_error = '',
				timeout = EXCLUDED.timeout,
				completed_at = NULL,
				updated_at = EXCLUDED.updated_at
			RETURNING `+taskColumns,
			t.ID.String(), t.TenantID.String(), t.Type, t.Key, t.Payload, string(t.Status),
			t.DueAt, t.MaxAttempts, t.Timeout.Nanoseconds(),
			t.CreatedAt, t.UpdatedAt,
		)
		stored, err := scanTask(row)
		if err != nil {
			return fmt.Errorf("taskq/postgres: enqueue task: %w", err)
		}
		// The upsert may have reused an older row with a different id.
		*t = *stored
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO taskq_tasks (
			id, tenant_id, task_type, task_key, payload, status,
			due_at, attempt_count, max_attempts, last_error, timeout,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, NULL, $4, $5,
			$6, 0, $7, '', $8,
			$9, $10
		)`,
		t.ID.String(), t.TenantID.String(), t.Type, t.Payload, string(t.Status),
		t.DueAt, t.MaxAttempts, t.Timeout.Nanoseconds(),
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return taskq.ErrTaskAlreadyExists
		}
		return fmt.Errorf("taskq/postgres: enqueue task: %w", err)
	}
	return nil
}

// ClaimTasks atomically claims up to batchSize eligible tasks for the
// given worker and returns them. A task is eligible when it is READY and
// due, or CLAIMED with an expired lease. Uses SELECT FOR UPDATE SKIP
// LOCKED so concurrent claimers never win the same row twice.
func (s *Store) ClaimTasks(ctx context.Context, workerID id.WorkerID, now time.Time, batchSize int, lease time.Duration) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE taskq_tasks
			SET status = 'CLAIMED',
				lock_owner = $1,
				locked_until = $3,
				attempt_count = attempt_count + 1,
				updated_at = $2
			WHERE id IN (
				SELECT id FROM taskq_tasks
				WHERE (status = 'READY' AND due_at <= $2)
				   OR (status = 'CLAIMED' AND locked_until < $2)
				ORDER BY due_at ASC, id ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $4
			)
			RETURNING `+taskColumns+`
		)
		SELECT * FROM claimed ORDER BY due_at ASC, id ASC`,
		workerID.String(), now, now.Add(lease), batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("taskq/postgres: claim tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// MarkCompleted transitions a task to COMPLETED and releases its lock.
func (s *Store) MarkCompleted(ctx context.Context, taskID id.TaskID, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE taskq_tasks
		SET status = 'COMPLETED',
			completed_at = $2,
			lock_owner = NULL,
			locked_until = NULL,
			updated_at = $2
		WHERE id = $1`,
		taskID.String(), now,
	)
	if err != nil {
		return fmt.Errorf("taskq/postgres: mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return taskq.ErrTaskNotFound
	}
	return nil
}

// RequeueTask returns a task to READY for another attempt at nextDue.
func (s *Store) RequeueTask(ctx context.Context, taskID id.TaskID, nextDue time.Time, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE taskq_tasks
		SET status = 'READY',
			due_at = $2,
			last_error = $3,
			lock_owner = NULL,
			locked_until = NULL,
			updated_at = NOW()
		WHERE id = $1`,
		taskID.String(), nextDue, lastError,
	)
	if err != nil {
		return fmt.Errorf("taskq/postgres: requeue task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return taskq.ErrTaskNotFound
	}
	return nil
}

// MarkFailed dead-letters a task. FAILED rows stay in the table for
// inspection and are never picked up by claimers or the reaper.
func (s *Store) MarkFailed(ctx context.Context, taskID id.TaskID, lastError string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE taskq_tasks
		SET status = 'FAILED',
			last_error = $2,
			lock_owner = NULL,
			locked_until = NULL,
			updated_at = NOW()
		WHERE id = $1`,
		taskID.String(), lastError,
	)
	if err != nil {
		return fmt.Errorf("taskq/postgres: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return taskq.ErrTaskNotFound
	}
	return nil
}

// CleanupExpiredLocks resets CLAIMED tasks whose lease expired before
// now back to READY and returns how many rows were reset.
func (s *Store) CleanupExpiredLocks(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE taskq_tasks
		SET status = 'READY',
			lock_owner = NULL,
			locked_until = NULL,
			updated_at = $1
		WHERE status = 'CLAIMED' AND locked_until < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("taskq/postgres: cleanup expired locks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM taskq_tasks WHERE id = $1`,
		taskID.String(),
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, taskq.ErrTaskNotFound
		}
		return nil, fmt.Errorf("taskq/postgres: get task: %w", err)
	}
	return t, nil
}

// ListTasksByStatus returns tasks matching the given status.
func (s *Store) ListTasksByStatus(ctx context.Context, status task.Status, opts task.ListOpts) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM taskq_tasks WHERE status = $1`
	args := []interface{}{string(status)}
	argIdx := 2

	if opts.Type != "" {
		query += fmt.Sprintf(" AND task_type = $%d", argIdx)
		args = append(args, opts.Type)
		argIdx++
	}
	if !opts.TenantID.IsNil() {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, opts.TenantID.String())
		argIdx++
	}

	query += " ORDER BY due_at ASC, id ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("taskq/postgres: list tasks by status: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM taskq_tasks WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Type != "" {
		query += fmt.Sprintf(" AND task_type = $%d", argIdx)
		args = append(args, opts.Type)
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if !opts.TenantID.IsNil() {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, opts.TenantID.String())
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("taskq/postgres: count tasks: %w", err)
	}
	return count, nil
}

// ListRecentFailures returns tasks with a recorded error, most recently
// updated first.
func (s *Store) ListRecentFailures(ctx context.Context, limit int) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM taskq_tasks
		WHERE last_error <> ''
		ORDER BY updated_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("taskq/postgres: list recent failures: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// scanTask scans a single task row.
func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t         task.Task
		idStr     string
		tenantStr string
		statusStr string
		keyStr    *string
		ownerStr  *string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &tenantStr, &t.Type, &keyStr, &t.Payload, &statusStr,
		&t.DueAt, &ownerStr, &t.LockedUntil, &t.AttemptCount, &t.MaxAttempts,
		&t.LastError, &timeoutNs, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(statusStr)
	t.Timeout = time.Duration(timeoutNs)
	if keyStr != nil {
		t.Key = *keyStr
	}

	parsedID, parseErr := id.ParseTaskID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("taskq/postgres: parse task id %q: %w", idStr, parseErr)
	}
	t.ID = parsedID

	parsedTenant, tenantErr := id.ParseTenantID(tenantStr)
	if tenantErr != nil {
		return nil, fmt.Errorf("taskq/postgres: parse tenant id %q: %w", tenantStr, tenantErr)
	}
	t.TenantID = parsedTenant

	if ownerStr != nil && *ownerStr != "" {
		parsedOwner, ownerErr := id.ParseWorkerID(*ownerStr)
		if ownerErr == nil {
			t.LockOwner = parsedOwner
		}
	}

	return &t, nil
}

// collectTasks collects all tasks from query rows.
func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("taskq/postgres: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskq/postgres: iterate task rows: %w", err)
	}
	return tasks, nil
}
