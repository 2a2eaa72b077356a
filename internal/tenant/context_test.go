package tenant_test

import (
	"context"
	"testing"

	"authgate/internal/tenant"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	id := uuid.New().String()

	tc := tenant.Resolve(id, "acme", "Acme Inc")
	assert.True(t, tc.HasTenant())
	assert.Equal(t, id, tc.TenantID)
	assert.Equal(t, "acme", tc.Slug)
	assert.Equal(t, "Acme Inc", tc.Name)
}

func TestResolveEmptyID(t *testing.T) {
	tc := tenant.Resolve("", "acme", "Acme Inc")
	assert.False(t, tc.HasTenant())
	assert.Empty(t, tc.Slug)
}

func TestResolveMalformedID(t *testing.T) {
	// A malformed id resolves to no tenant instead of an error
	tc := tenant.Resolve("not-a-uuid", "acme", "Acme Inc")
	assert.False(t, tc.HasTenant())
}

func TestContextRoundTrip(t *testing.T) {
	tc := tenant.Resolve(uuid.New().String(), "acme", "Acme Inc")

	ctx := tenant.WithContext(context.Background(), tc)
	got, ok := tenant.FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, tc, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := tenant.FromContext(context.Background())
	assert.False(t, ok)
}
