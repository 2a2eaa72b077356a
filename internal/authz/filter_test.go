package authz_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"authgate/internal/authz"
	"authgate/internal/events"
	"authgate/internal/models"
	"authgate/internal/permissions"
	"authgate/internal/services"
	"authgate/internal/tenant"

	"github.com/alicebob/miniredis/v2"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupFilterDB(t *testing.T) *gorm.DB {
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

// grantModule builds the minimal graph granting one (module, operations) pair
// to a user and returns the user id.
func grantModule(t *testing.T, db *gorm.DB, moduleKey string, opValues ...string) string {
	t.Helper()

	user := &models.UserAccount{Email: uuid.New().String() + "@example.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)

	group := &models.AccessGroup{Name: "Group", IsActive: true}
	require.NoError(t, db.Create(group).Error)
	require.NoError(t, db.Create(&models.AccountAccessGroup{UserAccountID: user.ID, AccessGroupID: group.ID, IsActive: true}).Error)

	role := &models.Role{Name: "Role", IsActive: true}
	require.NoError(t, db.Create(role).Error)
	require.NoError(t, db.Create(&models.RoleAccessGroup{RoleID: role.ID, AccessGroupID: group.ID, IsActive: true}).Error)

	mod := &models.Module{ModuleKey: moduleKey, Name: moduleKey, IsActive: true}
	require.NoError(t, db.Create(mod).Error)
	perm := &models.Permission{ModuleID: mod.ID, IsActive: true}
	require.NoError(t, db.Create(perm).Error)
	require.NoError(t, db.Create(&models.RolePermission{RoleID: role.ID, PermissionID: perm.ID, IsActive: true}).Error)

	for _, value := range opValues {
		op := &models.Operation{Value: value, IsActive: true}
		require.NoError(t, db.Where(models.Operation{Value: value}).FirstOrCreate(op).Error)
		require.NoError(t, db.Create(&models.PermissionOperation{PermissionID: perm.ID, OperationID: op.ID, IsActive: true}).Error)
	}
	return user.ID
}

func newFilter(db *gorm.DB) *authz.Filter {
	return authz.NewFilter(permissions.NewResolver(db, nil))
}

func TestCheckNoRequirement(t *testing.T) {
	filter := newFilter(setupFilterDB(t))

	outcome := filter.Check(context.Background(), nil, authz.Principal{}, tenant.Context{})
	assert.Equal(t, authz.DecisionNoRequirement, outcome.Decision)
	assert.True(t, outcome.Proceed())
}

func TestCheckUnauthenticated(t *testing.T) {
	filter := newFilter(setupFilterDB(t))
	req := &authz.Requirement{Module: "TENANTS", Operation: "READ"}

	outcome := filter.Check(context.Background(), req, authz.Principal{}, tenant.Context{})
	assert.Equal(t, authz.DecisionUnauthenticated, outcome.Decision)
	assert.Equal(t, http.StatusUnauthorized, outcome.Status)
}

func TestCheckMalformedUserID(t *testing.T) {
	filter := newFilter(setupFilterDB(t))
	req := &authz.Requirement{Module: "TENANTS", Operation: "READ"}
	principal := authz.Principal{Authenticated: true, UserID: "not-a-uuid"}

	outcome := filter.Check(context.Background(), req, principal, tenant.Context{})
	assert.Equal(t, authz.DecisionUnauthenticated, outcome.Decision)
}

func TestCheckAllowed(t *testing.T) {
	db := setupFilterDB(t)
	userID := grantModule(t, db, "TENANTS", "READ", "CREATE")
	filter := newFilter(db)

	req := &authz.Requirement{Module: "TENANTS", Operation: "READ"}
	principal := authz.Principal{Authenticated: true, UserID: userID}

	outcome := filter.Check(context.Background(), req, principal, tenant.Context{Slug: "acme"})
	assert.Equal(t, authz.DecisionAllowed, outcome.Decision)
	assert.False(t, outcome.UsedFallback)
	assert.True(t, outcome.Proceed())
}

func TestCheckDeniedModuleNotGranted(t *testing.T) {
	db := setupFilterDB(t)
	userID := grantModule(t, db, "TENANTS", "READ")
	filter := newFilter(db)

	req := &authz.Requirement{Module: "ROLES", Operation: "READ"}
	principal := authz.Principal{Authenticated: true, UserID: userID}

	outcome := filter.Check(context.Background(), req, principal, tenant.Context{})
	assert.Equal(t, authz.DecisionDenied, outcome.Decision)
	assert.Equal(t, http.StatusForbidden, outcome.Status)
}

func TestCheckDeniedOperationNotGranted(t *testing.T) {
	db := setupFilterDB(t)
	userID := grantModule(t, db, "TENANTS", "READ")
	filter := newFilter(db)

	req := &authz.Requirement{Module: "TENANTS", Operation: "DELETE"}
	principal := authz.Principal{Authenticated: true, UserID: userID}

	outcome := filter.Check(context.Background(), req, principal, tenant.Context{})
	assert.Equal(t, authz.DecisionDenied, outcome.Decision)
}

func TestCheckModuleAndOperationCaseInsensitive(t *testing.T) {
	db := setupFilterDB(t)
	userID := grantModule(t, db, "TENANTS", "READ")
	filter := newFilter(db)

	req := &authz.Requirement{Module: "tenants", Operation: "read"}
	principal := authz.Principal{Authenticated: true, UserID: userID}

	outcome := filter.Check(context.Background(), req, principal, tenant.Context{})
	assert.Equal(t, authz.DecisionAllowed, outcome.Decision)
}

// A revoked grant must be denied on the very next check, even when the
// previous check populated the redis cache.
func TestRevokeThenDenyThroughLiveCache(t *testing.T) {
	db := setupFilterDB(t)
	userID := grantModule(t, db, "TENANTS", "READ")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	resolver := permissions.NewResolver(db, permissions.NewCache(client, time.Minute))
	filter := authz.NewFilter(resolver)
	svc := services.NewAssignmentService(db, resolver)

	req := &authz.Requirement{Module: "TENANTS", Operation: "READ"}
	principal := authz.Principal{Authenticated: true, UserID: userID}
	tc := tenant.Context{Slug: "acme"}

	outcome := filter.Check(context.Background(), req, principal, tc)
	require.Equal(t, authz.DecisionAllowed, outcome.Decision)

	var grant models.AccountAccessGroup
	require.NoError(t, db.Where("user_account_id = ?", userID).First(&grant).Error)
	require.NoError(t, svc.RevokeGroup(context.Background(), userID, grant.AccessGroupID))

	outcome = filter.Check(context.Background(), req, principal, tc)
	assert.Equal(t, authz.DecisionDenied, outcome.Decision)
	assert.False(t, outcome.UsedFallback, "denial must come from the graph, not the claim fallback")
}

func TestCheckPanicDeniesWithServerError(t *testing.T) {
	// A nil resolver makes the closure lookup panic inside Check.
	filter := authz.NewFilter(nil)
	req := &authz.Requirement{Module: "TENANTS", Operation: "READ"}
	principal := authz.Principal{Authenticated: true, UserID: uuid.New().String()}

	var buf bytes.Buffer
	prev := color.Output
	color.Output = &buf
	defer func() { color.Output = prev }()

	outcome := filter.Check(context.Background(), req, principal, tenant.Context{})
	assert.Equal(t, authz.DecisionDenied, outcome.Decision)
	assert.Equal(t, http.StatusInternalServerError, outcome.Status)
	assert.False(t, outcome.Proceed())

	assert.Contains(t, buf.String(), "authorization check panicked")
	assert.NotContains(t, buf.String(), "%!(EXTRA", "panic log must consume all of its arguments")
}

// fallback tests run against a database with no schema at all, so every
// resolution fails and the filter degrades to token claims.
func brokenFilter(t *testing.T) *authz.Filter {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return newFilter(db)
}

func TestCheckFallbackClaimMatch(t *testing.T) {
	filter := brokenFilter(t)

	req := &authz.Requirement{Module: "TENANTS", Operation: "DELETE"}
	principal := authz.Principal{
		Authenticated: true,
		UserID:        uuid.New().String(),
		Permissions:   []string{"tenants", "ROLES"},
	}

	outcome := filter.Check(context.Background(), req, principal, tenant.Context{})
	// Claim tier has no operation granularity: module match is enough
	assert.Equal(t, authz.DecisionAllowed, outcome.Decision)
	assert.True(t, outcome.UsedFallback)
}

func TestCheckFallbackClaimMiss(t *testing.T) {
	filter := brokenFilter(t)

	req := &authz.Requirement{Module: "TENANTS", Operation: "READ"}
	principal := authz.Principal{
		Authenticated: true,
		UserID:        uuid.New().String(),
		Permissions:   []string{"ROLES"},
	}

	outcome := filter.Check(context.Background(), req, principal, tenant.Context{})
	assert.Equal(t, authz.DecisionDenied, outcome.Decision)
	assert.True(t, outcome.UsedFallback)
}

func TestCheckFallbackEmitsSignal(t *testing.T) {
	filter := brokenFilter(t)

	signals := make(chan interface{}, 1)
	events.On(events.EventAuthzFallback, func(data interface{}) {
		select {
		case signals <- data:
		default:
		}
	})

	req := &authz.Requirement{Module: "TENANTS", Operation: "READ"}
	principal := authz.Principal{Authenticated: true, UserID: uuid.New().String()}
	filter.Check(context.Background(), req, principal, tenant.Context{})

	select {
	case data := <-signals:
		signal, ok := data.(authz.FallbackSignal)
		require.True(t, ok)
		assert.Equal(t, principal.UserID, signal.UserID)
		assert.Equal(t, "TENANTS", signal.Module)
		assert.Error(t, signal.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fallback signal")
	}
}
