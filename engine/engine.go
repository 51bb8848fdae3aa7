package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	taskq "github.com/neeraj-agentic-lab/SubscriptionManager-sub004"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/backoff"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/hook"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	mw "github.com/neeraj-agentic-lab/SubscriptionManager-sub004/middleware"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/monitor"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/throttle"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/worker"
)

// instrumentationName is the OTel instrumentation scope for the engine.
const instrumentationName = "github.com/neeraj-agentic-lab/SubscriptionManager-sub004"

// Engine owns the task registry, hook registry, middleware chain, and
// worker runner, and exposes the enqueue API. One Engine per process.
type Engine struct {
	store    task.Store
	registry *task.Registry
	hooks    *hook.Registry
	bo       backoff.Strategy
	mws      []mw.Middleware
	logger   *slog.Logger
	cfg      taskq.Config

	processor *worker.Processor
	runner    *worker.Runner
	monitor   *monitor.Service

	// Throttle subsystem.
	throttleConfigs []throttle.Config
	tenantConfigs   []throttle.TenantConfig
	throttle        *throttle.Manager

	// Per-type default options captured at registration time.
	defMu    sync.RWMutex
	defaults map[string]task.Options

	// Hooks collected from options, registered after the registry exists.
	pendingHooks []hook.Hook

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the task store backend. Required.
func WithStore(s task.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = logger }
}

// WithConfig replaces the full worker configuration.
func WithConfig(cfg taskq.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithBatchSize caps how many tasks one processing cycle may claim.
func WithBatchSize(n int) Option {
	return func(eng *Engine) { eng.cfg.BatchSize = n }
}

// WithLeaseDuration sets how long claimed tasks are leased.
func WithLeaseDuration(d time.Duration) Option {
	return func(eng *Engine) { eng.cfg.LeaseDuration = d }
}

// WithProcessInterval sets how often a processing cycle runs.
func WithProcessInterval(d time.Duration) Option {
	return func(eng *Engine) { eng.cfg.ProcessInterval = d }
}

// WithReapInterval sets how often expired leases are swept back to READY.
func WithReapInterval(d time.Duration) Option {
	return func(eng *Engine) { eng.cfg.ReapInterval = d }
}

// WithBackoff sets the retry backoff strategy.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithMiddleware appends middleware to the execution chain, after the
// built-in stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithHook registers a lifecycle hook with the engine.
func WithHook(h hook.Hook) Option {
	return func(eng *Engine) { eng.pendingHooks = append(eng.pendingHooks, h) }
}

// WithThrottleConfig registers per-type rate limiting and concurrency
// configurations. Task types not listed have no limits.
func WithThrottleConfig(configs ...throttle.Config) Option {
	return func(eng *Engine) {
		eng.throttleConfigs = append(eng.throttleConfigs, configs...)
	}
}

// WithTenantThrottleConfig registers type+tenant throttle overrides.
func WithTenantThrottleConfig(configs ...throttle.TenantConfig) Option {
	return func(eng *Engine) {
		eng.tenantConfigs = append(eng.tenantConfigs, configs...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses it instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, both the
// metrics middleware and the monitor metrics hook use it instead of the
// global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates an Engine with the given options. A store is required.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		registry: task.NewRegistry(),
		logger:   slog.Default(),
		cfg:      taskq.DefaultConfig(),
		defaults: make(map[string]task.Options),
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.store == nil {
		return nil, taskq.ErrNoStore
	}

	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	eng.hooks = hook.NewRegistry(eng.logger)
	for _, h := range eng.pendingHooks {
		eng.hooks.Register(h)
	}

	// Register the monitor metrics hook.
	var metricsHook *monitor.MetricsHook
	if eng.meterProvider != nil {
		metricsHook = monitor.NewMetricsHookWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsHook = monitor.NewMetricsHook()
	}
	eng.hooks.Register(metricsHook)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Built-in stack: recover → tracing → metrics → logging → tenant → timeout.
	allMws := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.Tenant(),
		mw.Timeout(eng.logger),
	}
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.hooks, eng.store, eng.bo, eng.logger, allMws...)

	procOpts := []worker.ProcessorOption{
		worker.WithBatchSize(eng.cfg.BatchSize),
		worker.WithLeaseDuration(eng.cfg.LeaseDuration),
	}

	if len(eng.throttleConfigs) > 0 || len(eng.tenantConfigs) > 0 {
		eng.throttle = throttle.NewManager(eng.throttleConfigs...)
		for _, tc := range eng.tenantConfigs {
			eng.throttle.SetTenantConfig(tc)
		}
		procOpts = append(procOpts, worker.WithLimiter(eng.throttle))
	}

	eng.processor = worker.NewProcessor(eng.store, executor, eng.hooks, eng.logger, procOpts...)
	eng.runner = worker.NewRunner(eng.processor, eng.store, eng.hooks, eng.logger,
		worker.WithProcessInterval(eng.cfg.ProcessInterval),
		worker.WithReapInterval(eng.cfg.ReapInterval),
	)
	eng.monitor = monitor.NewService(eng.store, eng.logger)

	return eng, nil
}

// Register registers a typed task definition with the engine. The
// definition's options become the defaults for tasks enqueued with its
// type.
func Register[T any](eng *Engine, def *task.Definition[T]) {
	task.RegisterDefinition(eng.registry, def)

	eng.defMu.Lock()
	eng.defaults[def.Type] = def.Opts
	eng.defMu.Unlock()
}

// Enqueue marshals a typed payload and enqueues a task.
func Enqueue[T any](ctx context.Context, eng *Engine, taskType string, tenantID id.TenantID, payload T, opts ...task.Option) (*task.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for task type %q: %w", taskType, err)
	}
	return eng.EnqueueRaw(ctx, taskType, tenantID, data, opts...)
}

// EnqueueRaw enqueues a task with a pre-serialized payload. The task
// becomes claimable at its due time (now unless task.WithDueAt is given).
// With task.WithKey, an existing row for the same (tenant, key) is reset
// instead of duplicated; the returned task reflects the stored row.
func (eng *Engine) EnqueueRaw(ctx context.Context, taskType string, tenantID id.TenantID, payload []byte, opts ...task.Option) (*task.Task, error) {
	taskOpts := eng.defaultOptions(taskType)
	for _, opt := range opts {
		opt(&taskOpts)
	}
	if taskOpts.MaxAttempts <= 0 {
		taskOpts.MaxAttempts = eng.cfg.MaxAttempts
	}

	now := time.Now().UTC()
	dueAt := taskOpts.DueAt
	if dueAt.IsZero() {
		dueAt = now
	}

	t := &task.Task{
		Entity:      taskq.NewEntity(),
		ID:          id.NewTaskID(),
		TenantID:    tenantID,
		Type:        taskType,
		Key:         taskOpts.Key,
		Payload:     payload,
		Status:      task.StatusReady,
		DueAt:       dueAt,
		MaxAttempts: taskOpts.MaxAttempts,
		Timeout:     taskOpts.Timeout,
	}

	if err := eng.store.EnqueueTask(ctx, t); err != nil {
		return nil, err
	}

	eng.hooks.EmitTaskEnqueued(ctx, t)
	return t, nil
}

// defaultOptions returns the registered definition's options for the
// type, or the package defaults when the type is unknown.
func (eng *Engine) defaultOptions(taskType string) task.Options {
	eng.defMu.RLock()
	defer eng.defMu.RUnlock()
	if opts, ok := eng.defaults[taskType]; ok {
		// Key and DueAt are per-task, never definition defaults.
		opts.Key = ""
		opts.DueAt = time.Time{}
		return opts
	}
	return task.DefaultOptions()
}

// Start begins task processing: the claim/process loop and the
// expired-lease sweep.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.runner.Start(ctx)
}

// Stop gracefully shuts down the engine, waiting up to the configured
// shutdown timeout for in-flight work to finish.
func (eng *Engine) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
	defer cancel()
	return eng.runner.Stop(ctx)
}

// Store returns the task store backend.
func (eng *Engine) Store() task.Store { return eng.store }

// Registry returns the task registry.
func (eng *Engine) Registry() *task.Registry { return eng.registry }

// Hooks returns the hook registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Monitor returns the read-only monitoring service.
func (eng *Engine) Monitor() *monitor.Service { return eng.monitor }

// Throttle returns the throttle manager, or nil if no throttle configs
// were provided.
func (eng *Engine) Throttle() *throttle.Manager { return eng.throttle }

// WorkerID returns this process's worker identity.
func (eng *Engine) WorkerID() id.WorkerID { return eng.processor.WorkerID() }

// Config returns the engine's effective configuration.
func (eng *Engine) Config() taskq.Config { return eng.cfg }
