package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/middleware"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	tk := &task.Task{Type: "test", ID: id.NewTaskID()}
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	err := chain(context.Background(), tk, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	err := chain(context.Background(), &task.Task{ID: id.NewTaskID()}, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	err := chain(context.Background(), &task.Task{ID: id.NewTaskID()}, func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Recover(logger)
	tk := &task.Task{Type: "CHARGE_PAYMENT", ID: id.NewTaskID()}

	err := mw(context.Background(), tk, func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if got := err.Error(); got != "panic in task CHARGE_PAYMENT: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Recover(logger)
	tk := &task.Task{Type: "CHARGE_PAYMENT", ID: id.NewTaskID()}

	called := false
	err := mw(context.Background(), tk, func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Success(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Logging(logger)
	tk := &task.Task{Type: "SUBSCRIPTION_RENEWAL", ID: id.NewTaskID(), TenantID: id.NewTenantID()}

	called := false
	err := mw(context.Background(), tk, func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Error(t *testing.T) {
	logger := slog.Default()
	mw := middleware.Logging(logger)
	tk := &task.Task{Type: "SUBSCRIPTION_RENEWAL", ID: id.NewTaskID(), TenantID: id.NewTenantID()}
	want := errors.New("fail")

	err := mw(context.Background(), tk, func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTenant_InjectsIntoContext(t *testing.T) {
	mw := middleware.Tenant()
	tenant := id.NewTenantID()
	tk := &task.Task{Type: "scoped", ID: id.NewTaskID(), TenantID: tenant}

	err := mw(context.Background(), tk, func(ctx context.Context) error {
		got, ok := middleware.TenantFromContext(ctx)
		if !ok {
			t.Fatal("expected tenant in context")
		}
		if got != tenant {
			t.Errorf("tenant = %s, want %s", got, tenant)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTenant_NoOpWhenEmpty(t *testing.T) {
	mw := middleware.Tenant()
	tk := &task.Task{Type: "unscoped", ID: id.NewTaskID()}

	err := mw(context.Background(), tk, func(ctx context.Context) error {
		if _, ok := middleware.TenantFromContext(ctx); ok {
			t.Fatal("expected no tenant in context for unscoped task")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
