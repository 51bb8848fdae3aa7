package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/hook"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// Runner drives a Processor on a fixed interval and sweeps expired leases
// on a second, slower one. The sweep is a convenience: ClaimTasks reclaims
// expired leases on its own, so a stalled reaper never blocks recovery.
type Runner struct {
	processor *Processor
	store     task.Store
	hooks     *hook.Registry
	logger    *slog.Logger

	processInterval time.Duration
	reapInterval    time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithProcessInterval sets how often a processing cycle runs.
func WithProcessInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.processInterval = d }
}

// WithReapInterval sets how often expired leases are swept back to READY.
func WithReapInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.reapInterval = d }
}

// NewRunner creates a Runner around the given processor.
func NewRunner(
	processor *Processor,
	store task.Store,
	hooks *hook.Registry,
	logger *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		processor:       processor,
		store:           store,
		hooks:           hooks,
		logger:          logger,
		processInterval: 30 * time.Second,
		reapInterval:    5 * time.Minute,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WorkerID returns the identity the underlying processor claims with.
func (r *Runner) WorkerID() id.WorkerID { return r.processor.WorkerID() }

// Start launches the processing and reaping loops. It returns immediately.
func (r *Runner) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true

	r.logger.Info("task worker starting",
		slog.String("worker_id", r.processor.WorkerID().String()),
		slog.Duration("process_interval", r.processInterval),
		slog.Duration("reap_interval", r.reapInterval),
	)

	r.wg.Add(2)
	go r.processLoop()
	go r.reapLoop()

	return nil
}

// Stop signals the loops to stop and waits for them to finish. If the
// context expires first, Stop returns without waiting further; any cycle
// still in flight finishes on its own.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.logger.Info("task worker stopping",
		slog.String("worker_id", r.processor.WorkerID().String()),
	)

	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("task worker stopped gracefully")
	case <-ctx.Done():
		r.logger.Warn("task worker shutdown timed out")
	}

	r.hooks.EmitShutdown(context.Background())
	return nil
}

// processLoop runs a processing cycle immediately, then on every tick.
func (r *Runner) processLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.processInterval)
	defer ticker.Stop()

	for {
		r.runCycle()

		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) runCycle() {
	completed, err := r.processor.ProcessAvailableTasks(context.Background())
	if err != nil {
		r.logger.Error("processing cycle failed", slog.String("error", err.Error()))
		return
	}
	if completed > 0 {
		r.logger.Debug("processing cycle complete", slog.Int("completed", completed))
	}
}

// reapLoop periodically resets CLAIMED tasks whose lease has expired.
func (r *Runner) reapLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.reapExpiredLeases()
		}
	}
}

func (r *Runner) reapExpiredLeases() {
	count, err := r.store.CleanupExpiredLocks(context.Background(), time.Now().UTC())
	if err != nil {
		r.logger.Error("lease sweep failed", slog.String("error", err.Error()))
		return
	}
	if count == 0 {
		return
	}

	r.hooks.EmitLeaseReaped(context.Background(), count)
	r.logger.Info("reset expired leases", slog.Int("count", count))
}
