package shared

import (
	"context"
	"strings"

	"github.com/forgeline/genrelay/internal/domain"
	"github.com/google/uuid"
)

type contextKey string

const (
	tenantKey  contextKey = "tenant"
	traceIDKey contextKey = "trace_id"
)

// WithTenant stores the authenticated tenant in the context.
func WithTenant(ctx context.Context, t *domain.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// TenantFromContext returns the tenant stored by the auth middleware.
func TenantFromContext(ctx context.Context) (*domain.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(*domain.Tenant)
	return t, ok && t != nil
}

// WithTraceID stores a request trace id in the context.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// GetTraceID returns the trace id of the request, or "" outside a traced
// request.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// NewTraceID returns a random 32 character hex id.
func NewTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
