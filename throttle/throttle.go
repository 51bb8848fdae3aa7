package throttle

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-task-type behaviour such as rate limiting and
// concurrency.
type Config struct {
	// Type is the task type identifier (must match the task.Type field).
	Type string

	// MaxConcurrency limits how many tasks of this type may run
	// simultaneously across the local processor. Zero means no
	// type-specific limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained tasks per second of this type
	// that may start executing. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// typeState tracks runtime state for a single task type.
type typeState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-type and per-tenant rate limiting and concurrency.
// It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	types   map[string]*typeState
	tenants map[string]*tenantState
}

// NewManager creates a Manager with the given task-type configurations.
// Types not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		types:   make(map[string]*typeState, len(configs)),
		tenants: make(map[string]*tenantState),
	}
	for _, cfg := range configs {
		m.types[cfg.Type] = newTypeState(cfg)
	}
	return m
}

func newTypeState(cfg Config) *typeState {
	ts := &typeState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ts.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ts
}

// Acquire checks rate limits and concurrency for the given task type
// and tenant. If the task is allowed to proceed it increments the
// active counter and returns true. The caller MUST call Release when
// the task completes.
func (m *Manager) Acquire(taskType, tenantID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check type-level constraints.
	ts := m.types[taskType]
	if ts != nil {
		if ts.limiter != nil && !ts.limiter.Allow() {
			return false
		}
		if ts.config.MaxConcurrency > 0 && ts.active >= ts.config.MaxConcurrency {
			return false
		}
	}

	// Check tenant-level constraints.
	if tenantID != "" {
		tn := m.tenants[tenantKey(taskType, tenantID)]
		if tn != nil {
			if tn.limiter != nil && !tn.limiter.Allow() {
				return false
			}
			if tn.maxConcurrency > 0 && tn.active >= tn.maxConcurrency {
				return false
			}
			tn.active++
		}
	}

	// Increment type active count.
	if ts != nil {
		ts.active++
	}

	return true
}

// Release decrements the active task count for the type and tenant.
func (m *Manager) Release(taskType, tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts := m.types[taskType]; ts != nil && ts.active > 0 {
		ts.active--
	}

	if tenantID != "" {
		if tn := m.tenants[tenantKey(taskType, tenantID)]; tn != nil && tn.active > 0 {
			tn.active--
		}
	}
}

// SetTypeConfig dynamically updates (or creates) a task-type configuration.
func (m *Manager) SetTypeConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.types[cfg.Type]
	ts := newTypeState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ts.active = existing.active
	}
	m.types[cfg.Type] = ts
}

// ActiveCount returns the current number of active tasks for a type.
func (m *Manager) ActiveCount(taskType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts := m.types[taskType]; ts != nil {
		return ts.active
	}
	return 0
}
