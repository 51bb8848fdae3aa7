package middleware

import (
	"context"

	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/id"
	"github.com/neeraj-agentic-lab/SubscriptionManager-sub004/task"
)

type tenantKey struct{}

// Tenant returns middleware that injects the task's tenant ID into the
// handler context. Handlers that touch tenant-scoped resources read it
// back with [TenantFromContext].
func Tenant() Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		if !t.TenantID.IsNil() {
			ctx = context.WithValue(ctx, tenantKey{}, t.TenantID)
		}
		return next(ctx)
	}
}

// TenantFromContext returns the tenant ID stored by [Tenant], if any.
func TenantFromContext(ctx context.Context) (id.TenantID, bool) {
	tid, ok := ctx.Value(tenantKey{}).(id.TenantID)
	return tid, ok
}
