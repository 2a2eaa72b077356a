package services

import (
	"context"
	"errors"
	"time"

	"authgate/internal/events"
	"authgate/internal/models"
	"authgate/internal/permissions"
	"authgate/internal/tenant"

	console "authgate/internal/utils/logger"

	"gorm.io/gorm"
)

var (
	ErrNothingToRevoke       = errors.New("no active assignment found")
	ErrCrossTenantAssignment = errors.New("assignment crosses tenant boundary")
)

// AssignmentService owns the grant/revoke flows over the access graph joins.
// Every mutation is a soft toggle of IsActive, never a hard delete, and every
// mutation invalidates the cached closures of the users it affects before
// returning, so the next scheduled request sees the new graph. Tenant-scoped
// callers may only touch users, groups and roles of their own tenant; the
// shared permission catalogue is writable by platform callers only.
type AssignmentService struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	log      *console.Logger
}

func NewAssignmentService(db *gorm.DB, resolver *permissions.Resolver) *AssignmentService {
	return &AssignmentService{
		db:       db,
		resolver: resolver,
		log:      console.New("ASSIGNMENTS"),
	}
}

// callerTenant returns the request's tenant context when the caller is
// tenant-scoped. Platform callers carry no tenant and are unrestricted.
func callerTenant(ctx context.Context) (tenant.Context, bool) {
	tc, ok := tenant.FromContext(ctx)
	return tc, ok && tc.HasTenant()
}

// guardUser rejects mutations touching a user outside the caller's tenant.
// Platform users (empty tenant id) are out of reach for tenant callers.
func (s *AssignmentService) guardUser(ctx context.Context, db *gorm.DB, userID string) error {
	tc, scoped := callerTenant(ctx)
	if !scoped {
		return nil
	}
	var user models.UserAccount
	if err := db.Select("tenant_id").Where("id = ?", userID).First(&user).Error; err != nil {
		return err
	}
	if user.TenantID != tc.TenantID {
		return ErrCrossTenantAssignment
	}
	return nil
}

// guardGroups requires every group to belong to the caller's tenant. Platform
// groups never match a tenant id, so a tenant caller cannot grant them.
func (s *AssignmentService) guardGroups(ctx context.Context, db *gorm.DB, groupIDs []string) error {
	tc, scoped := callerTenant(ctx)
	if !scoped {
		return nil
	}
	var count int64
	err := db.Model(&models.AccessGroup{}).
		Where("id IN ? AND tenant_id = ?", groupIDs, tc.TenantID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count != int64(len(groupIDs)) {
		return ErrCrossTenantAssignment
	}
	return nil
}

func (s *AssignmentService) guardRoles(ctx context.Context, db *gorm.DB, roleIDs []string) error {
	tc, scoped := callerTenant(ctx)
	if !scoped {
		return nil
	}
	var count int64
	err := db.Model(&models.Role{}).
		Where("id IN ? AND tenant_id = ?", roleIDs, tc.TenantID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count != int64(len(roleIDs)) {
		return ErrCrossTenantAssignment
	}
	return nil
}

// guardPlatform restricts a mutation to platform callers. The permission and
// operation catalogue is shared across tenants, so flipping it from inside a
// tenant would change what every other tenant resolves.
func (s *AssignmentService) guardPlatform(ctx context.Context) error {
	if _, scoped := callerTenant(ctx); scoped {
		return ErrCrossTenantAssignment
	}
	return nil
}

// AssignGroups grants access groups to a user. If a revoked row already
// exists for a (user, group) pair it is reactivated in place; at most one row
// ever exists per pair.
func (s *AssignmentService) AssignGroups(ctx context.Context, userID string, groupIDs []string, grantedBy string, expiresAt *time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.guardUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.guardGroups(ctx, tx, groupIDs); err != nil {
			return err
		}
		for _, groupID := range groupIDs {
			var existing models.AccountAccessGroup
			err := tx.Where("user_account_id = ? AND access_group_id = ?", userID, groupID).First(&existing).Error
			switch {
			case err == nil:
				updates := map[string]interface{}{
					"is_active":  true,
					"granted_by": grantedBy,
					"granted_at": time.Now(),
					"expires_at": expiresAt,
				}
				if err := tx.Model(&existing).Updates(updates).Error; err != nil {
					return err
				}
				events.Emit(events.EventGrantReactivated, &existing)
			case errors.Is(err, gorm.ErrRecordNotFound):
				grant := models.AccountAccessGroup{
					UserAccountID: userID,
					AccessGroupID: groupID,
					IsActive:      true,
					GrantedBy:     grantedBy,
					GrantedAt:     time.Now(),
					ExpiresAt:     expiresAt,
				}
				if err := tx.Create(&grant).Error; err != nil {
					return err
				}
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.resolver.Invalidate(ctx, userID)
}

// RevokeGroup soft-revokes one group from a user.
func (s *AssignmentService) RevokeGroup(ctx context.Context, userID, groupID string) error {
	if err := s.guardUser(ctx, s.db.WithContext(ctx), userID); err != nil {
		return err
	}
	if err := s.guardGroups(ctx, s.db.WithContext(ctx), []string{groupID}); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Model(&models.AccountAccessGroup{}).
		Where("user_account_id = ? AND access_group_id = ? AND is_active = ?", userID, groupID, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNothingToRevoke
	}

	events.Emit(events.EventGrantRevoked, map[string]string{"userId": userID, "groupId": groupID})
	return s.resolver.Invalidate(ctx, userID)
}

// AssignRoles links roles to an access group, reactivating revoked links.
func (s *AssignmentService) AssignRoles(ctx context.Context, groupID string, roleIDs []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.guardGroups(ctx, tx, []string{groupID}); err != nil {
			return err
		}
		if err := s.guardRoles(ctx, tx, roleIDs); err != nil {
			return err
		}
		for _, roleID := range roleIDs {
			var existing models.RoleAccessGroup
			err := tx.Where("role_id = ? AND access_group_id = ?", roleID, groupID).First(&existing).Error
			switch {
			case err == nil:
				if err := tx.Model(&existing).Update("is_active", true).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				link := models.RoleAccessGroup{RoleID: roleID, AccessGroupID: groupID, IsActive: true}
				if err := tx.Create(&link).Error; err != nil {
					return err
				}
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.invalidateGroupMembers(ctx, groupID)
}

// RevokeRole soft-revokes a role from an access group.
func (s *AssignmentService) RevokeRole(ctx context.Context, groupID, roleID string) error {
	if err := s.guardGroups(ctx, s.db.WithContext(ctx), []string{groupID}); err != nil {
		return err
	}
	if err := s.guardRoles(ctx, s.db.WithContext(ctx), []string{roleID}); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Model(&models.RoleAccessGroup{}).
		Where("role_id = ? AND access_group_id = ? AND is_active = ?", roleID, groupID, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNothingToRevoke
	}

	return s.invalidateGroupMembers(ctx, groupID)
}

// AssignPermissions links permissions to a role, reactivating revoked links.
func (s *AssignmentService) AssignPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.guardRoles(ctx, tx, []string{roleID}); err != nil {
			return err
		}
		for _, permissionID := range permissionIDs {
			var existing models.RolePermission
			err := tx.Where("role_id = ? AND permission_id = ?", roleID, permissionID).First(&existing).Error
			switch {
			case err == nil:
				if err := tx.Model(&existing).Update("is_active", true).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				link := models.RolePermission{RoleID: roleID, PermissionID: permissionID, IsActive: true}
				if err := tx.Create(&link).Error; err != nil {
					return err
				}
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.invalidateRoleMembers(ctx, roleID)
}

// RevokePermission soft-revokes a permission from a role.
func (s *AssignmentService) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	if err := s.guardRoles(ctx, s.db.WithContext(ctx), []string{roleID}); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Model(&models.RolePermission{}).
		Where("role_id = ? AND permission_id = ? AND is_active = ?", roleID, permissionID, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNothingToRevoke
	}

	return s.invalidateRoleMembers(ctx, roleID)
}

// GrantOperations enables operations on a permission, reactivating revoked
// pairs.
func (s *AssignmentService) GrantOperations(ctx context.Context, permissionID string, operationIDs []string) error {
	if err := s.guardPlatform(ctx); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, operationID := range operationIDs {
			var existing models.PermissionOperation
			err := tx.Where("permission_id = ? AND operation_id = ?", permissionID, operationID).First(&existing).Error
			switch {
			case err == nil:
				if err := tx.Model(&existing).Update("is_active", true).Error; err != nil {
					return err
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				pair := models.PermissionOperation{PermissionID: permissionID, OperationID: operationID, IsActive: true}
				if err := tx.Create(&pair).Error; err != nil {
					return err
				}
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.invalidatePermissionMembers(ctx, permissionID)
}

// RevokeOperation disables one (permission, operation) pair.
func (s *AssignmentService) RevokeOperation(ctx context.Context, permissionID, operationID string) error {
	if err := s.guardPlatform(ctx); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Model(&models.PermissionOperation{}).
		Where("permission_id = ? AND operation_id = ? AND is_active = ?", permissionID, operationID, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNothingToRevoke
	}

	return s.invalidatePermissionMembers(ctx, permissionID)
}

// RevokeAllOperations bulk-disables every operation on a permission.
func (s *AssignmentService) RevokeAllOperations(ctx context.Context, permissionID string) error {
	if err := s.guardPlatform(ctx); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Model(&models.PermissionOperation{}).
		Where("permission_id = ? AND is_active = ?", permissionID, true).
		Update("is_active", false).Error
	if err != nil {
		return err
	}

	return s.invalidatePermissionMembers(ctx, permissionID)
}

// invalidateGroupMembers drops cached closures for every user holding the
// group.
func (s *AssignmentService) invalidateGroupMembers(ctx context.Context, groupID string) error {
	var userIDs []string
	err := s.db.WithContext(ctx).
		Model(&models.AccountAccessGroup{}).
		Where("access_group_id = ? AND is_active = ?", groupID, true).
		Pluck("user_account_id", &userIDs).Error
	if err != nil {
		return err
	}
	return s.invalidateUsers(ctx, userIDs)
}

func (s *AssignmentService) invalidateRoleMembers(ctx context.Context, roleID string) error {
	var groupIDs []string
	err := s.db.WithContext(ctx).
		Model(&models.RoleAccessGroup{}).
		Where("role_id = ? AND is_active = ?", roleID, true).
		Pluck("access_group_id", &groupIDs).Error
	if err != nil {
		return err
	}
	for _, groupID := range groupIDs {
		if err := s.invalidateGroupMembers(ctx, groupID); err != nil {
			return err
		}
	}
	return nil
}

func (s *AssignmentService) invalidatePermissionMembers(ctx context.Context, permissionID string) error {
	var roleIDs []string
	err := s.db.WithContext(ctx).
		Model(&models.RolePermission{}).
		Where("permission_id = ? AND is_active = ?", permissionID, true).
		Pluck("role_id", &roleIDs).Error
	if err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if err := s.invalidateRoleMembers(ctx, roleID); err != nil {
			return err
		}
	}
	return nil
}

func (s *AssignmentService) invalidateUsers(ctx context.Context, userIDs []string) error {
	for _, userID := range userIDs {
		if err := s.resolver.Invalidate(ctx, userID); err != nil {
			s.log.Warn("closure invalidation failed for user %s: %v", userID, err)
		}
	}
	return nil
}

// ExpireGrants soft-revokes every active grant past its expiry and
// invalidates the affected users. Returns the number of grants expired.
func (s *AssignmentService) ExpireGrants(ctx context.Context, now time.Time) (int64, error) {
	var expired []models.AccountAccessGroup
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Find(&expired).Error
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(expired))
	users := make([]string, 0, len(expired))
	for _, grant := range expired {
		ids = append(ids, grant.ID)
		users = append(users, grant.UserAccountID)
	}

	err = s.db.WithContext(ctx).
		Model(&models.AccountAccessGroup{}).
		Where("id IN ?", ids).
		Update("is_active", false).Error
	if err != nil {
		return 0, err
	}

	if err := s.invalidateUsers(ctx, users); err != nil {
		return 0, err
	}
	s.log.Info("expired %d access group grants", len(expired))
	return int64(len(expired)), nil
}
