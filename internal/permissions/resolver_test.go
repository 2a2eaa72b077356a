package permissions_test

import (
	"context"
	"testing"
	"time"

	"authgate/internal/models"
	"authgate/internal/permissions"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupGraphDB(t *testing.T) *gorm.DB {
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

// graphBuilder wires one user -> group -> role -> permission -> module path.
type graphBuilder struct {
	t  *testing.T
	db *gorm.DB
}

func (b *graphBuilder) user(email string) *models.UserAccount {
	u := &models.UserAccount{Email: email, Password: "x"}
	require.NoError(b.t, b.db.Create(u).Error)
	return u
}

func (b *graphBuilder) operation(value string) *models.Operation {
	op := &models.Operation{Value: value, IsActive: true}
	require.NoError(b.t, b.db.Where(models.Operation{Value: value}).FirstOrCreate(op).Error)
	return op
}

func (b *graphBuilder) module(key string) *models.Module {
	m := &models.Module{ModuleKey: key, Name: key, IsActive: true}
	require.NoError(b.t, b.db.Where(models.Module{ModuleKey: key}).FirstOrCreate(m).Error)
	return m
}

// path builds the whole chain and returns the pieces for later mutation.
func (b *graphBuilder) path(user *models.UserAccount, groupName, roleName, moduleKey string, opValues ...string) (*models.AccessGroup, *models.RoleAccessGroup, *models.RolePermission, *models.Permission) {
	group := &models.AccessGroup{Name: groupName, IsActive: true}
	require.NoError(b.t, b.db.Create(group).Error)

	grant := &models.AccountAccessGroup{UserAccountID: user.ID, AccessGroupID: group.ID, IsActive: true}
	require.NoError(b.t, b.db.Create(grant).Error)

	role := &models.Role{Name: roleName, IsActive: true}
	require.NoError(b.t, b.db.Create(role).Error)

	roleLink := &models.RoleAccessGroup{RoleID: role.ID, AccessGroupID: group.ID, IsActive: true}
	require.NoError(b.t, b.db.Create(roleLink).Error)

	mod := b.module(moduleKey)
	perm := &models.Permission{ModuleID: mod.ID, IsActive: true}
	require.NoError(b.t, b.db.Create(perm).Error)

	permLink := &models.RolePermission{RoleID: role.ID, PermissionID: perm.ID, IsActive: true}
	require.NoError(b.t, b.db.Create(permLink).Error)

	for _, value := range opValues {
		op := b.operation(value)
		pair := &models.PermissionOperation{PermissionID: perm.ID, OperationID: op.ID, IsActive: true}
		require.NoError(b.t, b.db.Create(pair).Error)
	}

	return group, roleLink, permLink, perm
}

func TestResolveFullPath(t *testing.T) {
	db := setupGraphDB(t)
	b := &graphBuilder{t: t, db: db}
	user := b.user("alice@example.com")
	b.path(user, "Admins", "admin", "TENANTS", models.OperationRead, models.OperationCreate)

	resolver := permissions.NewResolver(db, nil)
	closure, err := resolver.Resolve(context.Background(), user.ID, "acme")
	require.NoError(t, err)

	require.Len(t, closure.Modules, 1)
	assert.Equal(t, "TENANTS", closure.Modules[0].Key)
	assert.Equal(t, []string{"CREATE", "READ"}, closure.Modules[0].Operations)
	assert.False(t, closure.Empty())
}

func TestResolveNoGrants(t *testing.T) {
	db := setupGraphDB(t)
	b := &graphBuilder{t: t, db: db}
	user := b.user("bob@example.com")

	resolver := permissions.NewResolver(db, nil)
	closure, err := resolver.Resolve(context.Background(), user.ID, "acme")
	require.NoError(t, err)
	assert.True(t, closure.Empty())
}

func TestResolveRevokedHopRemovesPath(t *testing.T) {
	db := setupGraphDB(t)
	b := &graphBuilder{t: t, db: db}

	cases := []struct {
		name   string
		revoke func(group *models.AccessGroup, roleLink *models.RoleAccessGroup, permLink *models.RolePermission, perm *models.Permission)
	}{
		{"group deactivated", func(group *models.AccessGroup, _ *models.RoleAccessGroup, _ *models.RolePermission, _ *models.Permission) {
			require.NoError(t, db.Model(group).Update("is_active", false).Error)
		}},
		{"role link revoked", func(_ *models.AccessGroup, roleLink *models.RoleAccessGroup, _ *models.RolePermission, _ *models.Permission) {
			require.NoError(t, db.Model(roleLink).Update("is_active", false).Error)
		}},
		{"permission link revoked", func(_ *models.AccessGroup, _ *models.RoleAccessGroup, permLink *models.RolePermission, _ *models.Permission) {
			require.NoError(t, db.Model(permLink).Update("is_active", false).Error)
		}},
		{"permission deactivated", func(_ *models.AccessGroup, _ *models.RoleAccessGroup, _ *models.RolePermission, perm *models.Permission) {
			require.NoError(t, db.Model(perm).Update("is_active", false).Error)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := b.user(tc.name + "@example.com")
			group, roleLink, permLink, perm := b.path(user, tc.name, tc.name, "MOD_"+tc.name, models.OperationRead)

			tc.revoke(group, roleLink, permLink, perm)

			resolver := permissions.NewResolver(db, nil)
			closure, err := resolver.Resolve(context.Background(), user.ID, "acme")
			require.NoError(t, err)
			assert.True(t, closure.Empty(), "path should be removed when a hop is revoked")
		})
	}
}

func TestResolveExpiredGrantExcluded(t *testing.T) {
	db := setupGraphDB(t)
	b := &graphBuilder{t: t, db: db}
	user := b.user("carol@example.com")
	group, _, _, _ := b.path(user, "Admins", "admin", "TENANTS", models.OperationRead)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&models.AccountAccessGroup{}).
		Where("user_account_id = ? AND access_group_id = ?", user.ID, group.ID).
		Update("expires_at", past).Error)

	resolver := permissions.NewResolver(db, nil)
	closure, err := resolver.Resolve(context.Background(), user.ID, "acme")
	require.NoError(t, err)
	assert.True(t, closure.Empty())
}

func TestResolveUnionsOperationsAcrossPaths(t *testing.T) {
	db := setupGraphDB(t)
	b := &graphBuilder{t: t, db: db}
	user := b.user("dave@example.com")

	// Two distinct paths grant the same module under differently cased keys.
	// The closure carries a single entry with the operations unioned.
	b.path(user, "Readers", "reader", "REPORTS", models.OperationRead)
	b.path(user, "Writers", "writer", "reports", models.OperationCreate, models.OperationRead)

	resolver := permissions.NewResolver(db, nil)
	closure, err := resolver.Resolve(context.Background(), user.ID, "acme")
	require.NoError(t, err)

	require.Len(t, closure.Modules, 1)
	assert.Equal(t, []string{"CREATE", "READ"}, closure.Modules[0].Operations)

	grant, ok := closure.Module("Reports")
	require.True(t, ok)
	assert.True(t, grant.Allows("read"))
	assert.True(t, grant.Allows("CREATE"))
	assert.False(t, grant.Allows("DELETE"))
}

func TestResolveModulesSortedByKey(t *testing.T) {
	db := setupGraphDB(t)
	b := &graphBuilder{t: t, db: db}
	user := b.user("erin@example.com")

	b.path(user, "G1", "r1", "ZEBRA", models.OperationRead)
	b.path(user, "G2", "r2", "ALPHA", models.OperationRead)

	resolver := permissions.NewResolver(db, nil)
	closure, err := resolver.Resolve(context.Background(), user.ID, "acme")
	require.NoError(t, err)

	require.Len(t, closure.Modules, 2)
	assert.Equal(t, "ALPHA", closure.Modules[0].Key)
	assert.Equal(t, "ZEBRA", closure.Modules[1].Key)
}
