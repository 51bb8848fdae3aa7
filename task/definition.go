package task

import "context"

// Definition is a typed task definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Type is the unique discriminator for this kind of task
	// (e.g. "SUBSCRIPTION_RENEWAL", "CHARGE_PAYMENT").
	Type string

	// Handler is the function that processes the task payload.
	Handler func(ctx context.Context, payload T) error

	// Opts configures the attempt budget and timeout.
	Opts Options
}

// NewDefinition creates a typed task definition.
func NewDefinition[T any](taskType string, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Type:    taskType,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
