// Package throttle enforces per-task-type and per-tenant rate limits
// and concurrency caps at execution time.
//
// In a multi-tenant billing platform one noisy tenant with thousands of
// due renewals must not starve everyone else, and bursty task types
// (payment charges against an external gateway) need a ceiling. The
// [Manager] gates both.
//
// # Per-Type Configuration
//
// Use [Config] to set per-task-type rate limits and concurrency caps:
//
//	throttle.Config{
//	    Type:           "CHARGE_PAYMENT",
//	    MaxConcurrency: 5,      // max 5 concurrent charges
//	    RateLimit:      10,     // max 10 charges/s
//	    RateBurst:      20,     // allow bursts up to 20
//	}
//
// # Manager
//
// [Manager] is consulted before each task executes. It uses a
// token-bucket rate limiter (golang.org/x/time/rate) and an
// active-count gate for concurrency limits.
//
//	m := throttle.NewManager(configs...)
//	if m.Acquire(taskType, tenantID) {
//	    defer m.Release(taskType, tenantID)
//	    // execute the task
//	}
//
// Task types without a [Config] have no limits. A task denied by the
// throttle is requeued, not failed.
package throttle
