package throttle

import (
	"fmt"

	"golang.org/x/time/rate"
)

// TenantConfig defines rate limits and concurrency for a specific tenant
// on a specific task type.
type TenantConfig struct {
	// TaskType is the task type this config applies to.
	TaskType string

	// TenantID is the tenant identifier.
	TenantID string

	// RateLimit is the sustained tasks per second for this tenant.
	RateLimit float64

	// RateBurst is the burst size for the tenant's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous tasks for this tenant on this
	// type. Zero means no tenant-specific concurrency limit.
	MaxConcurrency int
}

// tenantState tracks runtime state for a single type+tenant pair.
type tenantState struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

// tenantKey builds the map key for a type+tenant pair.
func tenantKey(taskType, tenantID string) string {
	return fmt.Sprintf("%s:%s", taskType, tenantID)
}

// SetTenantConfig configures rate limits and concurrency for a specific
// tenant on a specific task type. Calling this multiple times for the
// same type+tenant replaces the previous configuration.
func (m *Manager) SetTenantConfig(cfg TenantConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := tenantKey(cfg.TaskType, cfg.TenantID)
	existing := m.tenants[key]

	tn := &tenantState{
		maxConcurrency: cfg.MaxConcurrency,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		tn.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	// Preserve current active count if reconfiguring.
	if existing != nil {
		tn.active = existing.active
	}
	m.tenants[key] = tn
}

// TenantActiveCount returns the current number of active tasks for a
// type+tenant pair.
func (m *Manager) TenantActiveCount(taskType, tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tn := m.tenants[tenantKey(taskType, tenantID)]; tn != nil {
		return tn.active
	}
	return 0
}
