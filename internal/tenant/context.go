package tenant

import (
	"context"

	console "authgate/internal/utils/logger"

	"github.com/google/uuid"
)

var log = console.New("TENANT")

// Context carries the current request's tenant identity. The zero value means
// no tenant (platform-level request).
type Context struct {
	TenantID string
	Slug     string
	Name     string
}

// HasTenant is true iff a tenant id was resolved for the request.
func (c Context) HasTenant() bool {
	return c.TenantID != ""
}

type ctxKey struct{}

// WithContext attaches the tenant context to a request context. Set once,
// early in the pipeline; later reads are immutable.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant context for the request, if any was set.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// Resolve builds a tenant context from raw claim or header values. A malformed
// tenant id is treated as absent, not an error: the failure is logged and the
// request proceeds without a tenant, so tenant-scoped authorization will deny
// it naturally downstream.
func Resolve(id, slug, name string) Context {
	if id == "" {
		return Context{}
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		log.Warn("malformed tenant id %q, proceeding without tenant: %v", id, err)
		return Context{}
	}
	return Context{
		TenantID: parsed.String(),
		Slug:     slug,
		Name:     name,
	}
}
