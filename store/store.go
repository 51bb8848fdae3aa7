package store

import (
	"context"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

// Store is the aggregate persistence interface a backend implements.
type Store interface {
	task.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
