// Package hook defines the lifecycle hook system for taskq.
// Hooks are notified of lifecycle events (task enqueued, claimed,
// completed, dead-lettered, etc.) and can react to them — alerting,
// audit trails, custom metrics.
//
// Each lifecycle event is a separate interface so hooks opt in only
// to the events they care about. Register implementations on the
// engine; the registry fans events out in registration order. Hook
// errors are logged and never propagated, a broken alerting sink must
// not block task processing.
package hook
