package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	taskq "github.com/neeraj-agentic-lab/SubscriptionManager-sub004"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/backoff"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/hook"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/middleware"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/store/memory"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/worker"
)

func setupTestProcessor(t *testing.T, opts ...worker.ProcessorOption) (
	*worker.Processor, *memory.Store, *task.Registry, *hook.Registry,
) {
	t.Helper()
	logger := slog.Default()
	s := memory.New()
	reg := task.NewRegistry()
	hooks := hook.NewRegistry(logger)

	executor := worker.NewExecutor(
		reg, hooks, s, backoff.NewConstant(0), logger,
		middleware.Recover(logger),
	)

	proc := worker.NewProcessor(s, executor, hooks, logger, opts...)
	return proc, s, reg, hooks
}

func enqueueTestTask(t *testing.T, s *memory.Store, taskType string, payload []byte, maxAttempts int) *task.Task {
	t.Helper()
	tk := &task.Task{
		Entity:      taskq.NewEntity(),
		ID:          id.NewTaskID(),
		TenantID:    id.NewTenantID(),
		Type:        taskType,
		Payload:     payload,
		Status:      task.StatusReady,
		DueAt:       time.Now().UTC().Add(-time.Second),
		MaxAttempts: maxAttempts,
	}
	if err := s.EnqueueTask(context.Background(), tk); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	return tk
}

func TestProcessor_CompletesTask(t *testing.T) {
	t.Parallel()
	proc, s, reg, _ := setupTestProcessor(t)

	var processed atomic.Bool
	task.RegisterDefinition(reg, task.NewDefinition("SUBSCRIPTION_RENEWAL",
		func(_ context.Context, p struct{ SubscriptionID string }) error {
			if p.SubscriptionID != "sub-42" {
				t.Errorf("payload.SubscriptionID = %q, want %q", p.SubscriptionID, "sub-42")
			}
			processed.Store(true)
			return nil
		}))

	payload, _ := json.Marshal(struct{ SubscriptionID string }{SubscriptionID: "sub-42"})
	tk := enqueueTestTask(t, s, "SUBSCRIPTION_RENEWAL", payload, 3)

	completed, err := proc.ProcessAvailableTasks(context.Background())
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if completed != 1 {
		t.Fatalf("completed = %d, want 1", completed)
	}
	if !processed.Load() {
		t.Fatal("handler was not invoked")
	}

	got, err := s.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, task.StatusCompleted)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if !got.LockOwner.IsNil() || got.LockedUntil != nil {
		t.Error("expected lock fields to be cleared")
	}
	if got.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", got.AttemptCount)
	}
}

func TestProcessor_RetriesThenDeadLetters(t *testing.T) {
	t.Parallel()
	proc, s, reg, hooks := setupTestProcessor(t)

	tracker := &trackingHook{}
	hooks.Register(tracker)

	handlerErr := errors.New("payment gateway unavailable")
	task.RegisterDefinition(reg, task.NewDefinition("CHARGE_PAYMENT",
		func(_ context.Context, _ struct{}) error {
			return handlerErr
		}))

	tk := enqueueTestTask(t, s, "CHARGE_PAYMENT", nil, 2)

	// First cycle: attempt 1/2 fails, task requeued with backoff.
	completed, err := proc.ProcessAvailableTasks(context.Background())
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if completed != 0 {
		t.Fatalf("completed = %d, want 0", completed)
	}

	got, err := s.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.Status != task.StatusReady {
		t.Fatalf("status after first failure = %q, want %q", got.Status, task.StatusReady)
	}
	if got.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", got.AttemptCount)
	}
	if got.LastError != handlerErr.Error() {
		t.Errorf("last error = %q, want %q", got.LastError, handlerErr.Error())
	}
	if tracker.retrying.Load() != 1 {
		t.Errorf("retrying hook fired %d times, want 1", tracker.retrying.Load())
	}

	// Second cycle: attempt 2/2 fails, budget spent, dead-lettered.
	if _, err := proc.ProcessAvailableTasks(context.Background()); err != nil {
		t.Fatalf("process error: %v", err)
	}

	got, err = s.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.Status != task.StatusFailed {
		t.Fatalf("status after exhausting attempts = %q, want %q", got.Status, task.StatusFailed)
	}
	if got.AttemptCount != 2 {
		t.Errorf("attempt count = %d, want 2", got.AttemptCount)
	}
	if !got.LockOwner.IsNil() || got.LockedUntil != nil {
		t.Error("expected lock fields to be cleared")
	}
	if tracker.deadLettered.Load() != 1 {
		t.Errorf("dead-letter hook fired %d times, want 1", tracker.deadLettered.Load())
	}

	// FAILED is terminal: another cycle must not touch the row.
	if _, err := proc.ProcessAvailableTasks(context.Background()); err != nil {
		t.Fatalf("process error: %v", err)
	}
	got, _ = s.GetTask(context.Background(), tk.ID)
	if got.AttemptCount != 2 {
		t.Errorf("attempt count after extra cycle = %d, want 2", got.AttemptCount)
	}
}

func TestProcessor_UnknownTaskType(t *testing.T) {
	t.Parallel()
	proc, s, _, _ := setupTestProcessor(t)

	tk := enqueueTestTask(t, s, "NO_SUCH_HANDLER", nil, 1)

	completed, err := proc.ProcessAvailableTasks(context.Background())
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if completed != 0 {
		t.Fatalf("completed = %d, want 0", completed)
	}

	got, err := s.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.Status != task.StatusFailed {
		t.Errorf("status = %q, want %q", got.Status, task.StatusFailed)
	}
	if !strings.Contains(got.LastError, taskq.ErrNoHandler.Error()) {
		t.Errorf("last error = %q, want it to mention the missing handler", got.LastError)
	}
}

func TestProcessor_PanickingHandlerIsIsolated(t *testing.T) {
	t.Parallel()
	proc, s, reg, _ := setupTestProcessor(t)

	task.RegisterDefinition(reg, task.NewDefinition("EXPLODE",
		func(_ context.Context, _ struct{}) error {
			panic("boom")
		}))
	task.RegisterDefinition(reg, task.NewDefinition("FINE",
		func(_ context.Context, _ struct{}) error {
			return nil
		}))

	bad := enqueueTestTask(t, s, "EXPLODE", nil, 1)
	good := enqueueTestTask(t, s, "FINE", nil, 1)

	completed, err := proc.ProcessAvailableTasks(context.Background())
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if completed != 1 {
		t.Fatalf("completed = %d, want 1", completed)
	}

	gotBad, _ := s.GetTask(context.Background(), bad.ID)
	if gotBad.Status != task.StatusFailed {
		t.Errorf("panicking task status = %q, want %q", gotBad.Status, task.StatusFailed)
	}
	gotGood, _ := s.GetTask(context.Background(), good.ID)
	if gotGood.Status != task.StatusCompleted {
		t.Errorf("healthy task status = %q, want %q", gotGood.Status, task.StatusCompleted)
	}
}

func TestProcessor_BatchCap(t *testing.T) {
	t.Parallel()
	proc, s, reg, _ := setupTestProcessor(t, worker.WithBatchSize(10))

	task.RegisterDefinition(reg, task.NewDefinition("BULK",
		func(_ context.Context, _ struct{}) error {
			return nil
		}))

	for range 15 {
		enqueueTestTask(t, s, "BULK", nil, 3)
	}

	completed, err := proc.ProcessAvailableTasks(context.Background())
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if completed != 10 {
		t.Fatalf("first cycle completed = %d, want 10", completed)
	}

	completed, err = proc.ProcessAvailableTasks(context.Background())
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if completed != 5 {
		t.Fatalf("second cycle completed = %d, want 5", completed)
	}
}

func TestProcessor_FutureTaskNotProcessed(t *testing.T) {
	t.Parallel()
	proc, s, reg, _ := setupTestProcessor(t)

	task.RegisterDefinition(reg, task.NewDefinition("LATER",
		func(_ context.Context, _ struct{}) error {
			t.Error("handler invoked for a task not yet due")
			return nil
		}))

	tk := &task.Task{
		Entity:      taskq.NewEntity(),
		ID:          id.NewTaskID(),
		TenantID:    id.NewTenantID(),
		Type:        "LATER",
		Status:      task.StatusReady,
		DueAt:       time.Now().UTC().Add(time.Hour),
		MaxAttempts: 3,
	}
	if err := s.EnqueueTask(context.Background(), tk); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	completed, err := proc.ProcessAvailableTasks(context.Background())
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if completed != 0 {
		t.Fatalf("completed = %d, want 0", completed)
	}
}

func TestProcessor_ConcurrentProcessorsEachTaskOnce(t *testing.T) {
	t.Parallel()

	logger := slog.Default()
	s := memory.New()
	reg := task.NewRegistry()
	hooks := hook.NewRegistry(logger)

	var mu sync.Mutex
	executions := make(map[string]int)

	task.RegisterDefinition(reg, task.NewDefinition("RACE",
		func(_ context.Context, p struct{ TaskID string }) error {
			mu.Lock()
			executions[p.TaskID]++
			mu.Unlock()
			return nil
		}))

	const total = 40
	for i := 0; i < total; i++ {
		tk := &task.Task{
			Entity:      taskq.NewEntity(),
			ID:          id.NewTaskID(),
			TenantID:    id.NewTenantID(),
			Type:        "RACE",
			Status:      task.StatusReady,
			DueAt:       time.Now().UTC().Add(-time.Second),
			MaxAttempts: 3,
		}
		payload, _ := json.Marshal(struct{ TaskID string }{TaskID: tk.ID.String()})
		tk.Payload = payload
		if err := s.EnqueueTask(context.Background(), tk); err != nil {
			t.Fatalf("enqueue error: %v", err)
		}
	}

	// Several processors share the store, each with its own worker
	// identity, racing over the same backlog.
	const procs = 4
	var wg sync.WaitGroup
	var totalCompleted atomic.Int64
	for i := 0; i < procs; i++ {
		executor := worker.NewExecutor(reg, hooks, s, backoff.NewConstant(0), logger)
		proc := worker.NewProcessor(s, executor, hooks, logger, worker.WithBatchSize(5))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n, err := proc.ProcessAvailableTasks(context.Background())
				if err != nil {
					t.Errorf("process error: %v", err)
					return
				}
				totalCompleted.Add(int64(n))
				if n == 0 {
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := totalCompleted.Load(); got != total {
		t.Errorf("total completed = %d, want %d", got, total)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(executions) != total {
		t.Errorf("distinct tasks executed = %d, want %d", len(executions), total)
	}
	for taskID, n := range executions {
		if n != 1 {
			t.Errorf("task %s executed %d times, want 1", taskID, n)
		}
	}
}

func TestProcessor_LiveLeaseNotStolen(t *testing.T) {
	t.Parallel()
	proc, s, reg, _ := setupTestProcessor(t)

	task.RegisterDefinition(reg, task.NewDefinition("HELD",
		func(_ context.Context, _ struct{}) error {
			t.Error("handler invoked for a task another worker holds")
			return nil
		}))

	tk := enqueueTestTask(t, s, "HELD", nil, 3)

	// Another worker claims the task with a fresh lease.
	other := id.NewWorkerID()
	claimed, err := s.ClaimTasks(context.Background(), other, time.Now().UTC(), 1, 5*time.Minute)
	if err != nil {
		t.Fatalf("claim error: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed %d tasks, want 1", len(claimed))
	}

	completed, err := proc.ProcessAvailableTasks(context.Background())
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if completed != 0 {
		t.Fatalf("completed = %d, want 0", completed)
	}

	got, _ := s.GetTask(context.Background(), tk.ID)
	if got.LockOwner != other {
		t.Errorf("lock owner = %s, want %s", got.LockOwner, other)
	}
}

func TestProcessor_ThrottledTaskDeferred(t *testing.T) {
	t.Parallel()
	lim := &denyingLimiter{}
	proc, s, reg, _ := setupTestProcessor(t, worker.WithLimiter(lim))

	task.RegisterDefinition(reg, task.NewDefinition("THROTTLED",
		func(_ context.Context, _ struct{}) error {
			t.Error("handler invoked for a throttled task")
			return nil
		}))

	tk := enqueueTestTask(t, s, "THROTTLED", nil, 3)

	completed, err := proc.ProcessAvailableTasks(context.Background())
	if err != nil {
		t.Fatalf("process error: %v", err)
	}
	if completed != 0 {
		t.Fatalf("completed = %d, want 0", completed)
	}
	if lim.acquires.Load() != 1 {
		t.Errorf("acquire called %d times, want 1", lim.acquires.Load())
	}
	if lim.releases.Load() != 0 {
		t.Errorf("release called %d times after denial, want 0", lim.releases.Load())
	}

	got, err := s.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.Status != task.StatusReady {
		t.Errorf("status = %q, want %q", got.Status, task.StatusReady)
	}
	if !got.DueAt.After(time.Now().UTC()) {
		t.Error("expected throttled task to be pushed into the future")
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// trackingHook records how many times each lifecycle event fired.
type trackingHook struct {
	claimed      atomic.Int64
	completed    atomic.Int64
	retrying     atomic.Int64
	deadLettered atomic.Int64
	reaped       atomic.Int64
}

func (h *trackingHook) Name() string { return "tracker" }

func (h *trackingHook) OnTaskClaimed(_ context.Context, _ *task.Task) error {
	h.claimed.Add(1)
	return nil
}

func (h *trackingHook) OnTaskCompleted(_ context.Context, _ *task.Task, _ time.Duration) error {
	h.completed.Add(1)
	return nil
}

func (h *trackingHook) OnTaskRetrying(_ context.Context, _ *task.Task, _ int, _ time.Time) error {
	h.retrying.Add(1)
	return nil
}

func (h *trackingHook) OnTaskDeadLettered(_ context.Context, _ *task.Task, _ error) error {
	h.deadLettered.Add(1)
	return nil
}

func (h *trackingHook) OnLeaseReaped(_ context.Context, count int) error {
	h.reaped.Add(int64(count))
	return nil
}

// denyingLimiter refuses every acquire and counts calls.
type denyingLimiter struct {
	acquires atomic.Int64
	releases atomic.Int64
}

func (l *denyingLimiter) Acquire(_, _ string) bool {
	l.acquires.Add(1)
	return false
}

func (l *denyingLimiter) Release(_, _ string) {
	l.releases.Add(1)
}
