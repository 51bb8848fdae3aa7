package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	taskq "github.com/neeraj-agentic-lab/SubscriptionManager-sub004"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// Ensure Store implements the task store contract at compile time.
var _ task.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development;
// the single mutex makes every operation trivially atomic, which is the
// contract the real backends must match under concurrency.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
	// keys indexes dedup keys: "tenant\x00key" -> task id.
	keys map[string]string
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		tasks: make(map[string]*task.Task),
		keys:  make(map[string]string),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

func keyIndex(tenant id.TenantID, key string) string {
	return tenant.String() + "\x00" + key
}

// ──────────────────────────────────────────────────
// Task Store
// ──────────────────────────────────────────────────

// EnqueueTask persists a new READY task, upserting by (tenant, key) when
// the task carries a dedup key.
func (m *Store) EnqueueTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.Key != "" {
		if existingID, ok := m.keys[keyIndex(t.TenantID, t.Key)]; ok {
			existing := m.tasks[existingID]
			existing.Status = task.StatusReady
			existing.DueAt = t.DueAt
			existing.Payload = t.Payload
			existing.AttemptCount = 0
			existing.MaxAttempts = t.MaxAttempts
			existing.LastError = ""
			existing.LockOwner = id.Nil
			existing.LockedUntil = nil
			existing.CompletedAt = nil
			existing.Touch()
			cp := *existing
			*t = cp
			return nil
		}
	}

	key := t.ID.String()
	if _, exists := m.tasks[key]; exists {
		return taskq.ErrTaskAlreadyExists
	}
	cp := *t
	m.tasks[key] = &cp
	if t.Key != "" {
		m.keys[keyIndex(t.TenantID, t.Key)] = key
	}
	return nil
}

// ClaimTasks atomically claims up to batchSize eligible tasks for workerID.
func (m *Store) ClaimTasks(_ context.Context, workerID id.WorkerID, now time.Time, batchSize int, lease time.Duration) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if eligible(t, now) {
			candidates = append(candidates, t)
		}
	}

	// Oldest due first, ID tiebreak for determinism.
	sort.Slice(candidates, func(i, k int) bool {
		if !candidates[i].DueAt.Equal(candidates[k].DueAt) {
			return candidates[i].DueAt.Before(candidates[k].DueAt)
		}
		return strings.Compare(candidates[i].ID.String(), candidates[k].ID.String()) < 0
	})

	if batchSize > 0 && len(candidates) > batchSize {
		candidates = candidates[:batchSize]
	}

	until := now.Add(lease)
	result := make([]*task.Task, len(candidates))
	for i, t := range candidates {
		t.Status = task.StatusClaimed
		t.LockOwner = workerID
		u := until
		t.LockedUntil = &u
		t.AttemptCount++
		t.UpdatedAt = now
		// Return a copy so callers can mutate without racing with the store.
		cp := *t
		result[i] = &cp
	}

	return result, nil
}

// eligible implements the claim predicate: READY and due, or CLAIMED with
// an expired lease.
func eligible(t *task.Task, now time.Time) bool {
	switch t.Status {
	case task.StatusReady:
		return !t.DueAt.After(now)
	case task.StatusClaimed:
		return t.LockedUntil != nil && t.LockedUntil.Before(now)
	default:
		return false
	}
}

// MarkCompleted transitions a task to COMPLETED and clears the lock fields.
func (m *Store) MarkCompleted(_ context.Context, taskID id.TaskID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return taskq.ErrTaskNotFound
	}

	t.Status = task.StatusCompleted
	n := now
	t.CompletedAt = &n
	t.LockOwner = id.Nil
	t.LockedUntil = nil
	t.UpdatedAt = now
	return nil
}

// RequeueTask returns a task to READY for another attempt.
func (m *Store) RequeueTask(_ context.Context, taskID id.TaskID, nextDue time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return taskq.ErrTaskNotFound
	}

	t.Status = task.StatusReady
	t.DueAt = nextDue
	t.LastError = lastError
	t.LockOwner = id.Nil
	t.LockedUntil = nil
	t.Touch()
	return nil
}

// MarkFailed dead-letters a task.
func (m *Store) MarkFailed(_ context.Context, taskID id.TaskID, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return taskq.ErrTaskNotFound
	}

	t.Status = task.StatusFailed
	t.LastError = lastError
	t.LockOwner = id.Nil
	t.LockedUntil = nil
	t.Touch()
	return nil
}

// CleanupExpiredLocks resets CLAIMED tasks with expired leases to READY.
func (m *Store) CleanupExpiredLocks(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reset := 0
	for _, t := range m.tasks {
		if t.Status == task.StatusClaimed && t.LockedUntil != nil && t.LockedUntil.Before(now) {
			t.Status = task.StatusReady
			t.LockOwner = id.Nil
			t.LockedUntil = nil
			t.UpdatedAt = now
			reset++
		}
	}
	return reset, nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, taskq.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTasksByStatus returns tasks matching the given status.
func (m *Store) ListTasksByStatus(_ context.Context, status task.Status, opts task.ListOpts) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*task.Task
	for _, t := range m.tasks {
		if t.Status != status {
			continue
		}
		if opts.Type != "" && t.Type != opts.Type {
			continue
		}
		if !opts.TenantID.IsNil() && t.TenantID != opts.TenantID {
			continue
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, k int) bool {
		if !matched[i].DueAt.Equal(matched[k].DueAt) {
			return matched[i].DueAt.Before(matched[k].DueAt)
		}
		return strings.Compare(matched[i].ID.String(), matched[k].ID.String()) < 0
	})

	matched = paginate(matched, opts.Offset, opts.Limit)

	result := make([]*task.Task, len(matched))
	for i, t := range matched {
		cp := *t
		result[i] = &cp
	}
	return result, nil
}

// CountTasks returns the number of tasks matching the given options.
func (m *Store) CountTasks(_ context.Context, opts task.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, t := range m.tasks {
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

// ListRecentFailures returns the most recently updated tasks carrying a
// last_error, newest first.
func (m *Store) ListRecentFailures(_ context.Context, limit int) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*task.Task
	for _, t := range m.tasks {
		if t.LastError != "" {
			matched = append(matched, t)
		}
	}

	sort.Slice(matched, func(i, k int) bool {
		return matched[i].UpdatedAt.After(matched[k].UpdatedAt)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]*task.Task, len(matched))
	for i, t := range matched {
		cp := *t
		result[i] = &cp
	}
	return result, nil
}

func paginate(tasks []*task.Task, offset, limit int) []*task.Task {
	if offset > 0 {
		if offset >= len(tasks) {
			return nil
		}
		tasks = tasks[offset:]
	}
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks
}
