package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/hook"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// throttleRequeueDelay is how far a throttled task is pushed back before
// it becomes claimable again.
const throttleRequeueDelay = 5 * time.Second

// Limiter controls per-type and per-tenant dispatch rate and concurrency.
// The processor calls Acquire before executing a claimed task and Release
// after execution completes.
type Limiter interface {
	// Acquire checks rate limits and concurrency for the type/tenant
	// combination. Returns true if the task is allowed to proceed.
	Acquire(taskType, tenantID string) bool
	// Release decrements the active count for the type/tenant pair.
	Release(taskType, tenantID string)
}

// Processor claims batches of due tasks and dispatches each one through
// the Executor. It owns the worker identity used for leasing: every row
// this process claims carries the same lock_owner.
type Processor struct {
	store    task.Store
	executor *Executor
	hooks    *hook.Registry
	workerID id.WorkerID
	logger   *slog.Logger

	batchSize int
	lease     time.Duration
	limiter   Limiter
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithBatchSize caps how many tasks one processing cycle may claim.
func WithBatchSize(n int) ProcessorOption {
	return func(p *Processor) { p.batchSize = n }
}

// WithLeaseDuration sets how long claimed tasks are leased. It must
// conservatively exceed worst-case handler latency.
func WithLeaseDuration(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.lease = d }
}

// WithLimiter sets the dispatch limiter for rate limiting and
// concurrency control.
func WithLimiter(l Limiter) ProcessorOption {
	return func(p *Processor) { p.limiter = l }
}

// NewProcessor creates a Processor with a freshly generated worker
// identity.
func NewProcessor(
	store task.Store,
	executor *Executor,
	hooks *hook.Registry,
	logger *slog.Logger,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		store:     store,
		executor:  executor,
		hooks:     hooks,
		workerID:  id.NewWorkerID(),
		logger:    logger,
		batchSize: 10,
		lease:     5 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the processor's unique worker identity.
func (p *Processor) WorkerID() id.WorkerID { return p.workerID }

// ProcessAvailableTasks runs one processing cycle: claim up to batchSize
// due tasks, execute each through the middleware chain and its handler,
// and record the outcome. It returns the number of tasks that completed
// successfully.
//
// A handler failure never aborts the cycle; the failed task is routed
// through the retry policy and the cycle moves on. Only a claim error
// aborts, since without a batch there is nothing to do.
func (p *Processor) ProcessAvailableTasks(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	tasks, err := p.store.ClaimTasks(ctx, p.workerID, now, p.batchSize, p.lease)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, t := range tasks {
		p.hooks.EmitTaskClaimed(ctx, t)

		if p.limiter != nil && !p.limiter.Acquire(t.Type, t.TenantID.String()) {
			p.deferThrottled(ctx, t)
			continue
		}

		execErr := p.executor.Execute(ctx, t)

		if p.limiter != nil {
			p.limiter.Release(t.Type, t.TenantID.String())
		}

		if execErr != nil {
			p.logger.Debug("task execution failed",
				slog.String("task_id", t.ID.String()),
				slog.String("task_type", t.Type),
				slog.String("error", execErr.Error()),
			)
			continue
		}
		completed++
	}

	return completed, nil
}

// deferThrottled returns a rate-limited task to READY with a short delay
// so another cycle picks it up once the limiter allows. The attempt spent
// on the claim is accepted; throttling is expected to be rare relative to
// the attempt budget.
func (p *Processor) deferThrottled(ctx context.Context, t *task.Task) {
	nextDue := time.Now().UTC().Add(throttleRequeueDelay)
	if err := p.store.RequeueTask(ctx, t.ID, nextDue, t.LastError); err != nil {
		p.logger.Error("failed to requeue throttled task",
			slog.String("task_id", t.ID.String()),
			slog.String("task_type", t.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Debug("task throttled",
		slog.String("task_id", t.ID.String()),
		slog.String("task_type", t.Type),
		slog.String("tenant_id", t.TenantID.String()),
	)
}
