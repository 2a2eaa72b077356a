package services_test

import (
	"context"
	"testing"
	"time"

	"authgate/internal/events"
	"authgate/internal/models"
	"authgate/internal/permissions"
	"authgate/internal/services"
	"authgate/internal/tenant"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAssignmentDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.UserAccount{},
		&models.AccessGroup{},
		&models.AccountAccessGroup{},
		&models.Role{},
		&models.RoleAccessGroup{},
		&models.Module{},
		&models.Permission{},
		&models.RolePermission{},
		&models.Operation{},
		&models.PermissionOperation{},
	))
	return db
}

func newAssignmentService(db *gorm.DB) *services.AssignmentService {
	return services.NewAssignmentService(db, permissions.NewResolver(db, nil))
}

func createUserAndGroup(t *testing.T, db *gorm.DB) (string, string) {
	t.Helper()
	user := &models.UserAccount{Email: uuid.New().String() + "@example.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)
	group := &models.AccessGroup{Name: "Operators", IsActive: true}
	require.NoError(t, db.Create(group).Error)
	return user.ID, group.ID
}

func TestAssignGroupsCreatesGrant(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)
	userID, groupID := createUserAndGroup(t, db)

	adminID := uuid.New().String()
	require.NoError(t, svc.AssignGroups(context.Background(), userID, []string{groupID}, adminID, nil))

	var grant models.AccountAccessGroup
	require.NoError(t, db.Where("user_account_id = ? AND access_group_id = ?", userID, groupID).First(&grant).Error)
	assert.True(t, grant.IsActive)
	assert.Equal(t, adminID, grant.GrantedBy)
	assert.False(t, grant.GrantedAt.IsZero())
	assert.Nil(t, grant.ExpiresAt)
}

func TestAssignGroupsReactivatesRevokedGrant(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)
	userID, groupID := createUserAndGroup(t, db)
	ctx := context.Background()

	require.NoError(t, svc.AssignGroups(ctx, userID, []string{groupID}, "", nil))
	require.NoError(t, svc.RevokeGroup(ctx, userID, groupID))
	require.NoError(t, svc.AssignGroups(ctx, userID, []string{groupID}, "", nil))

	// At most one row per (user, group); the revoked row is flipped back
	var count int64
	require.NoError(t, db.Model(&models.AccountAccessGroup{}).
		Where("user_account_id = ? AND access_group_id = ?", userID, groupID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var grant models.AccountAccessGroup
	require.NoError(t, db.Where("user_account_id = ?", userID).First(&grant).Error)
	assert.True(t, grant.IsActive)
}

func TestReactivationEmitsSingleEvent(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)
	userID, groupID := createUserAndGroup(t, db)
	ctx := context.Background()

	require.NoError(t, svc.AssignGroups(ctx, userID, []string{groupID}, "", nil))
	require.NoError(t, svc.RevokeGroup(ctx, userID, groupID))

	reactivated := make(chan struct{}, 4)
	events.On(events.EventGrantReactivated, func(interface{}) { reactivated <- struct{}{} })

	require.NoError(t, svc.AssignGroups(ctx, userID, []string{groupID}, "", nil))

	select {
	case <-reactivated:
	case <-time.After(time.Second):
		t.Fatal("expected a reactivation event")
	}
	select {
	case <-reactivated:
		t.Fatal("reactivation emitted more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRevokeGroupWithoutGrant(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)
	userID, groupID := createUserAndGroup(t, db)

	err := svc.RevokeGroup(context.Background(), userID, groupID)
	assert.ErrorIs(t, err, services.ErrNothingToRevoke)
}

func TestRevokeGroupIsIdempotentPerGrant(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)
	userID, groupID := createUserAndGroup(t, db)
	ctx := context.Background()

	require.NoError(t, svc.AssignGroups(ctx, userID, []string{groupID}, "", nil))
	require.NoError(t, svc.RevokeGroup(ctx, userID, groupID))

	// Second revoke finds nothing active
	assert.ErrorIs(t, svc.RevokeGroup(ctx, userID, groupID), services.ErrNothingToRevoke)
}

func TestAssignAndRevokeRoles(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)
	_, groupID := createUserAndGroup(t, db)
	ctx := context.Background()

	role := &models.Role{Name: "auditor", IsActive: true}
	require.NoError(t, db.Create(role).Error)

	require.NoError(t, svc.AssignRoles(ctx, groupID, []string{role.ID}))

	var link models.RoleAccessGroup
	require.NoError(t, db.Where("access_group_id = ? AND role_id = ?", groupID, role.ID).First(&link).Error)
	assert.True(t, link.IsActive)

	require.NoError(t, svc.RevokeRole(ctx, groupID, role.ID))
	require.NoError(t, db.Where("id = ?", link.ID).First(&link).Error)
	assert.False(t, link.IsActive)

	// Reassignment flips the same row
	require.NoError(t, svc.AssignRoles(ctx, groupID, []string{role.ID}))
	var count int64
	require.NoError(t, db.Model(&models.RoleAccessGroup{}).
		Where("access_group_id = ? AND role_id = ?", groupID, role.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGrantAndRevokeOperations(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)
	ctx := context.Background()

	mod := &models.Module{ModuleKey: "REPORTS", Name: "Reports", IsActive: true}
	require.NoError(t, db.Create(mod).Error)
	perm := &models.Permission{ModuleID: mod.ID, IsActive: true}
	require.NoError(t, db.Create(perm).Error)

	read := &models.Operation{Value: models.OperationRead, IsActive: true}
	create := &models.Operation{Value: models.OperationCreate, IsActive: true}
	require.NoError(t, db.Create(read).Error)
	require.NoError(t, db.Create(create).Error)

	require.NoError(t, svc.GrantOperations(ctx, perm.ID, []string{read.ID, create.ID}))

	var active int64
	require.NoError(t, db.Model(&models.PermissionOperation{}).
		Where("permission_id = ? AND is_active = ?", perm.ID, true).
		Count(&active).Error)
	assert.EqualValues(t, 2, active)

	require.NoError(t, svc.RevokeOperation(ctx, perm.ID, read.ID))
	require.NoError(t, db.Model(&models.PermissionOperation{}).
		Where("permission_id = ? AND is_active = ?", perm.ID, true).
		Count(&active).Error)
	assert.EqualValues(t, 1, active)

	require.NoError(t, svc.RevokeAllOperations(ctx, perm.ID))
	require.NoError(t, db.Model(&models.PermissionOperation{}).
		Where("permission_id = ? AND is_active = ?", perm.ID, true).
		Count(&active).Error)
	assert.EqualValues(t, 0, active)
}

func tenantScope(tenantID string) context.Context {
	return tenant.WithContext(context.Background(), tenant.Context{TenantID: tenantID, Slug: "acme"})
}

func TestAssignGroupsRejectsPlatformGroupForTenantCaller(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)

	tenantA := uuid.New().String()
	tenantB := uuid.New().String()
	user := &models.UserAccount{Email: uuid.New().String() + "@example.com", Password: "x", TenantID: tenantB}
	require.NoError(t, db.Create(user).Error)
	platformGroup := &models.AccessGroup{Name: "Platform Administrators", IsActive: true}
	require.NoError(t, db.Create(platformGroup).Error)

	err := svc.AssignGroups(tenantScope(tenantA), user.ID, []string{platformGroup.ID}, "", nil)
	assert.ErrorIs(t, err, services.ErrCrossTenantAssignment)

	var count int64
	require.NoError(t, db.Model(&models.AccountAccessGroup{}).Count(&count).Error)
	assert.Zero(t, count, "no grant row may survive a rejected assignment")
}

func TestAssignGroupsRejectsForeignTenantUser(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)

	tenantA := uuid.New().String()
	tenantB := uuid.New().String()
	user := &models.UserAccount{Email: uuid.New().String() + "@example.com", Password: "x", TenantID: tenantB}
	require.NoError(t, db.Create(user).Error)
	group := &models.AccessGroup{Name: "Operators", IsActive: true, TenantID: tenantA}
	require.NoError(t, db.Create(group).Error)

	err := svc.AssignGroups(tenantScope(tenantA), user.ID, []string{group.ID}, "", nil)
	assert.ErrorIs(t, err, services.ErrCrossTenantAssignment)
}

func TestAssignGroupsWithinOwnTenant(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)

	tenantA := uuid.New().String()
	user := &models.UserAccount{Email: uuid.New().String() + "@example.com", Password: "x", TenantID: tenantA}
	require.NoError(t, db.Create(user).Error)
	group := &models.AccessGroup{Name: "Operators", IsActive: true, TenantID: tenantA}
	require.NoError(t, db.Create(group).Error)

	require.NoError(t, svc.AssignGroups(tenantScope(tenantA), user.ID, []string{group.ID}, "", nil))

	var grant models.AccountAccessGroup
	require.NoError(t, db.Where("user_account_id = ?", user.ID).First(&grant).Error)
	assert.True(t, grant.IsActive)
}

func TestPlatformCallerAssignsAcrossTenants(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)

	user := &models.UserAccount{Email: uuid.New().String() + "@example.com", Password: "x", TenantID: uuid.New().String()}
	require.NoError(t, db.Create(user).Error)
	platformGroup := &models.AccessGroup{Name: "Platform Administrators", IsActive: true}
	require.NoError(t, db.Create(platformGroup).Error)

	// No tenant in context: platform scope, unrestricted
	require.NoError(t, svc.AssignGroups(context.Background(), user.ID, []string{platformGroup.ID}, "", nil))
}

func TestRevokeGroupRejectsForeignTenant(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)

	tenantB := uuid.New().String()
	user := &models.UserAccount{Email: uuid.New().String() + "@example.com", Password: "x", TenantID: tenantB}
	require.NoError(t, db.Create(user).Error)
	group := &models.AccessGroup{Name: "Operators", IsActive: true, TenantID: tenantB}
	require.NoError(t, db.Create(group).Error)
	require.NoError(t, svc.AssignGroups(context.Background(), user.ID, []string{group.ID}, "", nil))

	err := svc.RevokeGroup(tenantScope(uuid.New().String()), user.ID, group.ID)
	assert.ErrorIs(t, err, services.ErrCrossTenantAssignment)

	var grant models.AccountAccessGroup
	require.NoError(t, db.Where("user_account_id = ?", user.ID).First(&grant).Error)
	assert.True(t, grant.IsActive, "foreign tenant must not revoke the grant")
}

func TestAssignRolesRejectsForeignRole(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)

	tenantA := uuid.New().String()
	group := &models.AccessGroup{Name: "Operators", IsActive: true, TenantID: tenantA}
	require.NoError(t, db.Create(group).Error)
	platformRole := &models.Role{Name: "platform-admin", IsActive: true}
	require.NoError(t, db.Create(platformRole).Error)

	err := svc.AssignRoles(tenantScope(tenantA), group.ID, []string{platformRole.ID})
	assert.ErrorIs(t, err, services.ErrCrossTenantAssignment)
}

func TestGrantOperationsPlatformOnly(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)

	mod := &models.Module{ModuleKey: "REPORTS", Name: "Reports", IsActive: true}
	require.NoError(t, db.Create(mod).Error)
	perm := &models.Permission{ModuleID: mod.ID, IsActive: true}
	require.NoError(t, db.Create(perm).Error)
	read := &models.Operation{Value: models.OperationRead, IsActive: true}
	require.NoError(t, db.Create(read).Error)

	// The catalogue is shared; tenant callers may not touch it
	err := svc.GrantOperations(tenantScope(uuid.New().String()), perm.ID, []string{read.ID})
	assert.ErrorIs(t, err, services.ErrCrossTenantAssignment)

	require.NoError(t, svc.GrantOperations(context.Background(), perm.ID, []string{read.ID}))
	err = svc.RevokeOperation(tenantScope(uuid.New().String()), perm.ID, read.ID)
	assert.ErrorIs(t, err, services.ErrCrossTenantAssignment)
}

func TestExpireGrants(t *testing.T) {
	db := setupAssignmentDB(t)
	svc := newAssignmentService(db)
	userID, groupID := createUserAndGroup(t, db)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	require.NoError(t, svc.AssignGroups(ctx, userID, []string{groupID}, "", nil))
	require.NoError(t, db.Model(&models.AccountAccessGroup{}).
		Where("user_account_id = ?", userID).
		Update("expires_at", past).Error)

	// A second, unexpired grant survives the sweep
	otherGroup := &models.AccessGroup{Name: "Keepers", IsActive: true}
	require.NoError(t, db.Create(otherGroup).Error)
	future := time.Now().Add(time.Hour)
	require.NoError(t, svc.AssignGroups(ctx, userID, []string{otherGroup.ID}, "", &future))

	count, err := svc.ExpireGrants(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	var expired models.AccountAccessGroup
	require.NoError(t, db.Where("user_account_id = ? AND access_group_id = ?", userID, groupID).First(&expired).Error)
	assert.False(t, expired.IsActive)

	var kept models.AccountAccessGroup
	require.NoError(t, db.Where("user_account_id = ? AND access_group_id = ?", userID, otherGroup.ID).First(&kept).Error)
	assert.True(t, kept.IsActive)
}
