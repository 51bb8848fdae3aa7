package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	taskq "github.com/neeraj-agentic-lab/SubscriptionManager-sub004"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/backoff"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/engine"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/store/memory"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/throttle"
)

type renewalPayload struct {
	SubscriptionID string `json:"subscription_id"`
}

func newTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	allOpts := append([]engine.Option{engine.WithStore(s)}, opts...)
	eng, err := engine.New(allOpts...)
	if err != nil {
		t.Fatalf("engine.New error: %v", err)
	}
	return eng, s
}

func TestNew_RequiresStore(t *testing.T) {
	t.Parallel()
	_, err := engine.New()
	if !errors.Is(err, taskq.ErrNoStore) {
		t.Fatalf("error = %v, want %v", err, taskq.ErrNoStore)
	}
}

func TestEnqueue_PersistsReadyTask(t *testing.T) {
	t.Parallel()
	eng, s := newTestEngine(t)
	tenantID := id.NewTenantID()

	tk, err := engine.Enqueue(context.Background(), eng, "SUBSCRIPTION_RENEWAL", tenantID,
		renewalPayload{SubscriptionID: "sub-42"})
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	got, err := s.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.Status != task.StatusReady {
		t.Errorf("status = %q, want %q", got.Status, task.StatusReady)
	}
	if got.TenantID != tenantID {
		t.Errorf("tenant = %s, want %s", got.TenantID, tenantID)
	}
	if got.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want default 3", got.MaxAttempts)
	}
	if got.DueAt.After(time.Now().UTC()) {
		t.Error("expected task to be due immediately")
	}

	var p renewalPayload
	if err := json.Unmarshal(got.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.SubscriptionID != "sub-42" {
		t.Errorf("payload.SubscriptionID = %q, want %q", p.SubscriptionID, "sub-42")
	}
}

func TestEnqueue_DefinitionDefaults(t *testing.T) {
	t.Parallel()
	eng, s := newTestEngine(t)

	engine.Register(eng, task.NewDefinition("CHARGE_PAYMENT",
		func(_ context.Context, _ renewalPayload) error { return nil },
		task.WithMaxAttempts(5),
		task.WithTimeout(10*time.Second),
	))

	tk, err := engine.Enqueue(context.Background(), eng, "CHARGE_PAYMENT", id.NewTenantID(), renewalPayload{})
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	got, err := s.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want definition default 5", got.MaxAttempts)
	}
	if got.Timeout != 10*time.Second {
		t.Errorf("timeout = %s, want definition default 10s", got.Timeout)
	}
}

func TestEnqueue_CallOptionsOverrideDefaults(t *testing.T) {
	t.Parallel()
	eng, _ := newTestEngine(t)

	engine.Register(eng, task.NewDefinition("CHARGE_PAYMENT",
		func(_ context.Context, _ renewalPayload) error { return nil },
		task.WithMaxAttempts(5),
	))

	tk, err := engine.Enqueue(context.Background(), eng, "CHARGE_PAYMENT", id.NewTenantID(), renewalPayload{},
		task.WithMaxAttempts(1))
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if tk.MaxAttempts != 1 {
		t.Errorf("max attempts = %d, want per-call 1", tk.MaxAttempts)
	}
}

func TestEnqueue_WithKeyUpserts(t *testing.T) {
	t.Parallel()
	eng, _ := newTestEngine(t)
	tenantID := id.NewTenantID()

	first, err := engine.Enqueue(context.Background(), eng, "SUBSCRIPTION_RENEWAL", tenantID,
		renewalPayload{SubscriptionID: "sub-1"},
		task.WithKey("renewal:sub-1"))
	if err != nil {
		t.Fatalf("first enqueue error: %v", err)
	}

	second, err := engine.Enqueue(context.Background(), eng, "SUBSCRIPTION_RENEWAL", tenantID,
		renewalPayload{SubscriptionID: "sub-1"},
		task.WithKey("renewal:sub-1"),
		task.WithDueAt(time.Now().UTC().Add(time.Hour)))
	if err != nil {
		t.Fatalf("second enqueue error: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("second enqueue created a new row: id %s != %s", second.ID, first.ID)
	}

	count, err := eng.Store().CountTasks(context.Background(), task.CountOpts{TenantID: tenantID})
	if err != nil {
		t.Fatalf("count error: %v", err)
	}
	if count != 1 {
		t.Errorf("task count = %d, want 1", count)
	}
}

func TestEnqueue_WithDueAtSchedulesForLater(t *testing.T) {
	t.Parallel()
	eng, _ := newTestEngine(t)

	due := time.Now().UTC().Add(2 * time.Hour)
	tk, err := engine.Enqueue(context.Background(), eng, "SEND_INVOICE", id.NewTenantID(),
		renewalPayload{}, task.WithDueAt(due))
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if !tk.DueAt.Equal(due) {
		t.Errorf("due at = %s, want %s", tk.DueAt, due)
	}
}

func TestEnqueue_HookFires(t *testing.T) {
	t.Parallel()
	h := &enqueueHook{}
	eng, _ := newTestEngine(t, engine.WithHook(h))

	if _, err := engine.Enqueue(context.Background(), eng, "SEND_INVOICE", id.NewTenantID(), renewalPayload{}); err != nil {
		t.Fatalf("enqueue error: %v", err)
	}
	if h.enqueued.Load() != 1 {
		t.Errorf("enqueued hook fired %d times, want 1", h.enqueued.Load())
	}
}

func TestEngine_ProcessesTaskEndToEnd(t *testing.T) {
	t.Parallel()
	eng, s := newTestEngine(t,
		engine.WithProcessInterval(10*time.Millisecond),
		engine.WithReapInterval(time.Hour),
		engine.WithBackoff(backoff.NewConstant(0)),
	)

	var processed atomic.Bool
	engine.Register(eng, task.NewDefinition("SUBSCRIPTION_RENEWAL",
		func(_ context.Context, p renewalPayload) error {
			if p.SubscriptionID != "sub-7" {
				t.Errorf("payload.SubscriptionID = %q, want %q", p.SubscriptionID, "sub-7")
			}
			processed.Store(true)
			return nil
		}))

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	tk, err := engine.Enqueue(context.Background(), eng, "SUBSCRIPTION_RENEWAL", id.NewTenantID(),
		renewalPayload{SubscriptionID: "sub-7"})
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for task to be processed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := eng.Stop(context.Background()); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	got, err := s.GetTask(context.Background(), tk.ID)
	if err != nil {
		t.Fatalf("get task error: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, task.StatusCompleted)
	}
}

func TestEngine_DeadLettersEndToEnd(t *testing.T) {
	t.Parallel()
	eng, s := newTestEngine(t,
		engine.WithProcessInterval(10*time.Millisecond),
		engine.WithReapInterval(time.Hour),
		engine.WithBackoff(backoff.NewConstant(0)),
	)

	engine.Register(eng, task.NewDefinition("CHARGE_PAYMENT",
		func(_ context.Context, _ renewalPayload) error {
			return errors.New("card declined")
		},
		task.WithMaxAttempts(2),
	))

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}

	tk, err := engine.Enqueue(context.Background(), eng, "CHARGE_PAYMENT", id.NewTenantID(), renewalPayload{})
	if err != nil {
		t.Fatalf("enqueue error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		got, getErr := s.GetTask(context.Background(), tk.ID)
		if getErr != nil {
			t.Fatalf("get task error: %v", getErr)
		}
		if got.Status == task.StatusFailed {
			if got.AttemptCount != 2 {
				t.Errorf("attempt count = %d, want 2", got.AttemptCount)
			}
			if got.LastError != "card declined" {
				t.Errorf("last error = %q, want %q", got.LastError, "card declined")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for dead-letter; status = %q", got.Status)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := eng.Stop(context.Background()); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	failures, err := eng.Monitor().DeadLetters(context.Background(), 10)
	if err != nil {
		t.Fatalf("dead letters error: %v", err)
	}
	if len(failures) != 1 {
		t.Errorf("dead letters = %d, want 1", len(failures))
	}
}

func TestEngine_ThrottleManager(t *testing.T) {
	t.Parallel()
	eng, _ := newTestEngine(t)
	if eng.Throttle() != nil {
		t.Error("expected nil throttle manager without configs")
	}

	eng2, _ := newTestEngine(t, engine.WithThrottleConfig(throttle.Config{
		Type:           "CHARGE_PAYMENT",
		MaxConcurrency: 2,
	}))
	if eng2.Throttle() == nil {
		t.Fatal("expected throttle manager with configs")
	}
	if !eng2.Throttle().Acquire("CHARGE_PAYMENT", "") {
		t.Error("expected first acquire to pass")
	}
	eng2.Throttle().Release("CHARGE_PAYMENT", "")
}

func TestEngine_Accessors(t *testing.T) {
	t.Parallel()
	eng, s := newTestEngine(t)

	if eng.Store() != task.Store(s) {
		t.Error("Store() did not return the configured store")
	}
	if eng.Registry() == nil {
		t.Error("Registry() returned nil")
	}
	if eng.Hooks() == nil {
		t.Error("Hooks() returned nil")
	}
	if eng.Monitor() == nil {
		t.Error("Monitor() returned nil")
	}
	if eng.WorkerID().IsNil() {
		t.Error("WorkerID() returned the zero value")
	}
	if eng.Config().BatchSize != 10 {
		t.Errorf("default batch size = %d, want 10", eng.Config().BatchSize)
	}
}

// enqueueHook counts TaskEnqueued events.
type enqueueHook struct {
	enqueued atomic.Int64
}

func (h *enqueueHook) Name() string { return "enqueue-counter" }

func (h *enqueueHook) OnTaskEnqueued(_ context.Context, _ *task.Task) error {
	h.enqueued.Add(1)
	return nil
}
