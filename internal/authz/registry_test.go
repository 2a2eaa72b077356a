package authz_test

import (
	"net/http"
	"testing"

	"authgate/internal/authz"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryExactMatch(t *testing.T) {
	reg := authz.NewRegistry()
	reg.Register(http.MethodGet, "/api/v1/tenants", "TENANTS", "READ")

	req, ok := reg.Lookup(http.MethodGet, "/api/v1/tenants")
	require.True(t, ok)
	assert.Equal(t, "TENANTS", req.Module)
	assert.Equal(t, "READ", req.Operation)
}

func TestRegistryMethodIsCaseInsensitive(t *testing.T) {
	reg := authz.NewRegistry()
	reg.Register("get", "/api/v1/tenants", "TENANTS", "READ")

	_, ok := reg.Lookup("GET", "/api/v1/tenants")
	assert.True(t, ok)
}

func TestRegistryMiss(t *testing.T) {
	reg := authz.NewRegistry()
	reg.Register(http.MethodGet, "/api/v1/tenants", "TENANTS", "READ")

	_, ok := reg.Lookup(http.MethodPost, "/api/v1/tenants")
	assert.False(t, ok)

	_, ok = reg.Lookup(http.MethodGet, "/api/v1/roles")
	assert.False(t, ok)
}

func TestRegistryExactBeatsPrefix(t *testing.T) {
	reg := authz.NewRegistry()
	reg.RegisterPrefix("/api/v1/tenants", "TENANTS", "READ")
	reg.Register(http.MethodDelete, "/api/v1/tenants/:id", "TENANTS", "DELETE")

	req, ok := reg.Lookup(http.MethodDelete, "/api/v1/tenants/:id")
	require.True(t, ok)
	assert.Equal(t, "DELETE", req.Operation)
}

func TestRegistryLongestPrefixWins(t *testing.T) {
	reg := authz.NewRegistry()
	reg.RegisterPrefix("/api/v1", "BASE", "READ")
	reg.RegisterPrefix("/api/v1/permissions", "PERMISSIONS", "UPDATE")

	req, ok := reg.Lookup(http.MethodPost, "/api/v1/permissions/:id/operations")
	require.True(t, ok)
	assert.Equal(t, "PERMISSIONS", req.Module)

	req, ok = reg.Lookup(http.MethodGet, "/api/v1/other")
	require.True(t, ok)
	assert.Equal(t, "BASE", req.Module)
}

func TestOutcomeProceed(t *testing.T) {
	assert.True(t, authz.Outcome{Decision: authz.DecisionAllowed}.Proceed())
	assert.True(t, authz.Outcome{Decision: authz.DecisionNoRequirement}.Proceed())
	assert.False(t, authz.Outcome{Decision: authz.DecisionDenied}.Proceed())
	assert.False(t, authz.Outcome{Decision: authz.DecisionUnauthenticated}.Proceed())
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "ALLOWED", authz.DecisionAllowed.String())
	assert.Equal(t, "DENIED", authz.DecisionDenied.String())
	assert.Equal(t, "UNAUTHENTICATED", authz.DecisionUnauthenticated.String())
	assert.Equal(t, "NO_REQUIREMENT", authz.DecisionNoRequirement.String())
}
