package monitor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/hook"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// meterName is the instrumentation scope name for monitor metrics.
const meterName = "github.com/neeraj-agentic-lab/SubscriptionManager-sub004/monitor"

// Compile-time interface checks.
var (
	_ hook.Hook             = (*MetricsHook)(nil)
	_ hook.TaskEnqueued     = (*MetricsHook)(nil)
	_ hook.TaskCompleted    = (*MetricsHook)(nil)
	_ hook.TaskRetrying     = (*MetricsHook)(nil)
	_ hook.TaskDeadLettered = (*MetricsHook)(nil)
	_ hook.LeaseReaped      = (*MetricsHook)(nil)
)

// MetricsHook records system-wide lifecycle counters via OpenTelemetry.
// Register it on the engine to automatically track enqueue rates,
// completion counts, retry counts, dead-letter entries, and reaper
// activity.
type MetricsHook struct {
	enqueued     metric.Int64Counter
	completed    metric.Int64Counter
	retried      metric.Int64Counter
	deadLettered metric.Int64Counter
	reaped       metric.Int64Counter
}

// NewMetricsHook creates a MetricsHook using the global MeterProvider.
func NewMetricsHook() *MetricsHook {
	return NewMetricsHookWithMeter(otel.Meter(meterName))
}

// NewMetricsHookWithMeter creates a MetricsHook with the provided meter.
// Use this variant to inject a specific MeterProvider for testing.
func NewMetricsHookWithMeter(meter metric.Meter) *MetricsHook {
	h := &MetricsHook{}
	// On error the OTel API returns noop instruments, so the hook
	// degrades gracefully.
	h.enqueued, _ = meter.Int64Counter("taskq.tasks.enqueued",
		metric.WithDescription("Total tasks enqueued"),
		metric.WithUnit("{task}"))
	h.completed, _ = meter.Int64Counter("taskq.tasks.completed",
		metric.WithDescription("Total tasks completed"),
		metric.WithUnit("{task}"))
	h.retried, _ = meter.Int64Counter("taskq.tasks.retried",
		metric.WithDescription("Total task retry attempts scheduled"),
		metric.WithUnit("{task}"))
	h.deadLettered, _ = meter.Int64Counter("taskq.tasks.dead_lettered",
		metric.WithDescription("Total tasks moved to FAILED"),
		metric.WithUnit("{task}"))
	h.reaped, _ = meter.Int64Counter("taskq.leases.reaped",
		metric.WithDescription("Total expired leases reset by the reaper"),
		metric.WithUnit("{lease}"))
	return h
}

// Name implements hook.Hook.
func (h *MetricsHook) Name() string { return "monitor-metrics" }

// OnTaskEnqueued implements hook.TaskEnqueued.
func (h *MetricsHook) OnTaskEnqueued(ctx context.Context, t *task.Task) error {
	h.enqueued.Add(ctx, 1, typeAttr(t))
	return nil
}

// OnTaskCompleted implements hook.TaskCompleted.
func (h *MetricsHook) OnTaskCompleted(ctx context.Context, t *task.Task, _ time.Duration) error {
	h.completed.Add(ctx, 1, typeAttr(t))
	return nil
}

// OnTaskRetrying implements hook.TaskRetrying.
func (h *MetricsHook) OnTaskRetrying(ctx context.Context, t *task.Task, _ int, _ time.Time) error {
	h.retried.Add(ctx, 1, typeAttr(t))
	return nil
}

// OnTaskDeadLettered implements hook.TaskDeadLettered.
func (h *MetricsHook) OnTaskDeadLettered(ctx context.Context, t *task.Task, _ error) error {
	h.deadLettered.Add(ctx, 1, typeAttr(t))
	return nil
}

// OnLeaseReaped implements hook.LeaseReaped.
func (h *MetricsHook) OnLeaseReaped(ctx context.Context, count int) error {
	h.reaped.Add(ctx, int64(count))
	return nil
}

func typeAttr(t *task.Task) metric.AddOption {
	return metric.WithAttributes(attribute.String("task_type", t.Type))
}
