package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"authgate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionDerivedFields(t *testing.T) {
	mod := &models.Module{
		ModuleKey:   "TENANTS",
		Name:        "Tenants",
		Description: "Tenant administration",
		Code:        "TEN",
	}
	perm := &models.Permission{Module: mod}

	assert.Equal(t, "Tenants", perm.Name())
	assert.Equal(t, "Tenant administration", perm.Description())
	assert.Equal(t, "TEN", perm.Code())
}

func TestPermissionDerivedFieldsWithoutModule(t *testing.T) {
	perm := &models.Permission{}
	perm.ID = "abc-123"

	// No linked module: a synthesized default instead of empty identity
	assert.Equal(t, "Permission_abc-123", perm.Name())
	assert.Empty(t, perm.Description())
	assert.Empty(t, perm.Code())
}

func TestPermissionMarshalJSONIncludesDerivedFields(t *testing.T) {
	mod := &models.Module{ModuleKey: "ROLES", Name: "Roles", Description: "Role administration", Code: "ROL"}
	perm := models.Permission{Module: mod}

	data, err := json.Marshal(perm)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Roles", decoded["name"])
	assert.Equal(t, "Role administration", decoded["description"])
	assert.Equal(t, "ROL", decoded["code"])
}

func TestAccountAccessGroupExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&models.AccountAccessGroup{}).Expired(now), "no expiry means never expired")
	assert.True(t, (&models.AccountAccessGroup{ExpiresAt: &past}).Expired(now))
	assert.False(t, (&models.AccountAccessGroup{ExpiresAt: &future}).Expired(now))
}

func TestIsValidTenantStatus(t *testing.T) {
	assert.True(t, models.IsValidTenantStatus(models.TenantStatusActive))
	assert.True(t, models.IsValidTenantStatus(models.TenantStatusSuspended))
	assert.True(t, models.IsValidTenantStatus(models.TenantStatusTrial))
	assert.True(t, models.IsValidTenantStatus(models.TenantStatusCancelled))
	assert.False(t, models.IsValidTenantStatus(models.TenantStatus("active")))
	assert.False(t, models.IsValidTenantStatus(models.TenantStatus("")))
}

func TestIsValidOperationValue(t *testing.T) {
	for _, value := range []string{"CREATE", "READ", "UPDATE", "DELETE"} {
		assert.True(t, models.IsValidOperationValue(value), value)
	}
	assert.False(t, models.IsValidOperationValue("EXECUTE"))
	assert.False(t, models.IsValidOperationValue("read"))
}
