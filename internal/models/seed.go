package models

import (
	"fmt"
	"time"

	"authgate/internal/config"

	"golang.org/x/crypto/bcrypt"

	console "authgate/internal/utils/logger"

	"gorm.io/gorm"
)

var log = console.New("SEEDER")

// Default operation catalogue
var defaultOperations = []string{
	OperationCreate,
	OperationRead,
	OperationUpdate,
	OperationDelete,
}

// Core feature modules the admin API itself is guarded by
// Stable module keys for the built-in administrative surface.
const (
	ModuleTenants       = "TENANTS"
	ModuleUsers         = "USERS"
	ModuleAccessGroups  = "ACCESS_GROUPS"
	ModuleRoles         = "ROLES"
	ModuleModules       = "MODULES"
	ModuleOperations    = "OPERATIONS"
	ModulePermissions   = "PERMISSIONS"
	ModulePlans         = "PLANS"
	ModuleSubscriptions = "SUBSCRIPTIONS"
)

var defaultModules = []Module{
	{ModuleKey: ModuleTenants, Name: "Tenants", Description: "Tenant administration", Code: "TEN"},
	{ModuleKey: ModuleUsers, Name: "Users", Description: "User account administration", Code: "USR"},
	{ModuleKey: ModuleAccessGroups, Name: "Access Groups", Description: "Access group administration", Code: "AGR"},
	{ModuleKey: ModuleRoles, Name: "Roles", Description: "Role administration", Code: "ROL"},
	{ModuleKey: ModuleModules, Name: "Modules", Description: "Feature module catalogue", Code: "MOD"},
	{ModuleKey: ModuleOperations, Name: "Operations", Description: "Operation catalogue", Code: "OPS"},
	{ModuleKey: ModulePermissions, Name: "Permissions", Description: "Permission administration", Code: "PRM"},
	{ModuleKey: ModulePlans, Name: "Plans", Description: "Billing plan administration", Code: "PLN"},
	{ModuleKey: ModuleSubscriptions, Name: "Subscriptions", Description: "Subscription administration", Code: "SUB"},
}

const (
	PlatformAdminGroupName = "Platform Administrators"
	PlatformAdminRoleName  = "platform-admin"
)

// SeedCatalogue creates the default operations, modules and the platform admin
// group/role graph. Idempotent: safe to run on every boot.
func SeedCatalogue(db *gorm.DB) error {
	for _, value := range defaultOperations {
		op := Operation{Value: value, IsActive: true}
		if err := db.Where(Operation{Value: value}).FirstOrCreate(&op).Error; err != nil {
			return fmt.Errorf("failed to create operation %s: %v", value, err)
		}
	}

	for _, mod := range defaultModules {
		m := mod
		m.IsActive = true
		if err := db.Where(Module{ModuleKey: mod.ModuleKey}).FirstOrCreate(&m).Error; err != nil {
			return fmt.Errorf("failed to create module %s: %v", mod.ModuleKey, err)
		}
	}

	return seedPlatformAdmin(db)
}

// seedPlatformAdmin wires an access group -> role -> permission chain covering
// every module with every operation. The group is platform-level (no tenant).
func seedPlatformAdmin(db *gorm.DB) error {
	group := AccessGroup{Name: PlatformAdminGroupName, GroupType: GroupTypeSystem, IsActive: true}
	if err := db.Where(AccessGroup{Name: PlatformAdminGroupName}).FirstOrCreate(&group).Error; err != nil {
		return fmt.Errorf("failed to create platform admin group: %v", err)
	}

	role := Role{Name: PlatformAdminRoleName, IsActive: true}
	if err := db.Where(Role{Name: PlatformAdminRoleName}).FirstOrCreate(&role).Error; err != nil {
		return fmt.Errorf("failed to create platform admin role: %v", err)
	}

	link := RoleAccessGroup{RoleID: role.ID, AccessGroupID: group.ID, IsActive: true}
	if err := db.Where(RoleAccessGroup{RoleID: role.ID, AccessGroupID: group.ID}).FirstOrCreate(&link).Error; err != nil {
		return fmt.Errorf("failed to link platform admin role: %v", err)
	}

	var operations []Operation
	if err := db.Where("is_active = ?", true).Find(&operations).Error; err != nil {
		return err
	}

	var modules []Module
	if err := db.Where("is_active = ?", true).Find(&modules).Error; err != nil {
		return err
	}

	for _, module := range modules {
		perm := Permission{ModuleID: module.ID, IsActive: true}
		if err := db.Where(Permission{ModuleID: module.ID}).FirstOrCreate(&perm).Error; err != nil {
			return fmt.Errorf("failed to create permission for module %s: %v", module.ModuleKey, err)
		}

		rp := RolePermission{RoleID: role.ID, PermissionID: perm.ID, IsActive: true}
		if err := db.Where(RolePermission{RoleID: role.ID, PermissionID: perm.ID}).FirstOrCreate(&rp).Error; err != nil {
			return err
		}

		for _, op := range operations {
			po := PermissionOperation{PermissionID: perm.ID, OperationID: op.ID, IsActive: true}
			if err := db.Where(PermissionOperation{PermissionID: perm.ID, OperationID: op.ID}).FirstOrCreate(&po).Error; err != nil {
				return err
			}
		}
	}

	log.Info("platform admin graph seeded: group=%s role=%s modules=%d", group.ID, role.ID, len(modules))
	return nil
}

// CreateSuperAdminFromEnv creates the platform super admin account and drops it
// into the platform admin group. No-op when the env credentials are unset.
func CreateSuperAdminFromEnv(db *gorm.DB, cfg *config.Config) error {
	if cfg.Seed.AdminEmail == "" || cfg.Seed.AdminPassword == "" {
		log.Warn("SUPER_ADMIN_EMAIL/SUPER_ADMIN_PASSWORD not set, skipping super admin bootstrap")
		return nil
	}

	var existing UserAccount
	if err := db.Where("email = ?", cfg.Seed.AdminEmail).First(&existing).Error; err == nil {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.Seed.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash super admin password: %v", err)
	}

	admin := UserAccount{
		Email:     cfg.Seed.AdminEmail,
		Password:  string(hashed),
		FirstName: "Platform",
		LastName:  "Admin",
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create super admin: %v", err)
	}

	var group AccessGroup
	if err := db.Where("name = ?", PlatformAdminGroupName).First(&group).Error; err != nil {
		return err
	}

	grant := AccountAccessGroup{
		UserAccountID: admin.ID,
		AccessGroupID: group.ID,
		IsActive:      true,
		GrantedAt:     time.Now(),
	}
	if err := db.Create(&grant).Error; err != nil {
		return fmt.Errorf("failed to grant platform admin group: %v", err)
	}

	log.Success("super admin %s created", cfg.Seed.AdminEmail)
	return nil
}
