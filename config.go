package taskq

import "time"

// Config holds tunables for a worker process.
type Config struct {
	// BatchSize is the maximum number of tasks claimed per processing cycle.
	BatchSize int

	// LeaseDuration is how long a claimed task is held before the lease
	// expires and the task becomes reclaimable. It must conservatively
	// exceed worst-case handler latency.
	LeaseDuration time.Duration

	// ProcessInterval is how often the worker runs a processing cycle.
	ProcessInterval time.Duration

	// ReapInterval is how often expired leases are swept back to READY.
	// Claim-time reclaim of expired leases makes this a convenience sweep,
	// not the sole recovery path.
	ReapInterval time.Duration

	// MaxAttempts is the default attempt budget for enqueued tasks.
	// Individual tasks may override it.
	MaxAttempts int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with the defaults the subscription worker
// runs in production.
func DefaultConfig() Config {
	return Config{
		BatchSize:       10,
		LeaseDuration:   5 * time.Minute,
		ProcessInterval: 30 * time.Second,
		ReapInterval:    5 * time.Minute,
		MaxAttempts:     3,
		ShutdownTimeout: 30 * time.Second,
	}
}
