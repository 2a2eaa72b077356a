package permissions

import (
	"context"
	"sort"
	"strings"
	"time"

	"authgate/internal/models"

	console "authgate/internal/utils/logger"

	"gorm.io/gorm"
)

// Resolver walks the user -> access group -> role -> permission ->
// module/operation graph and produces the user's permission closure.
// All dependencies arrive through the constructor; there is no ambient state.
type Resolver struct {
	db    *gorm.DB
	cache *Cache
	log   *console.Logger
}

func NewResolver(db *gorm.DB, cache *Cache) *Resolver {
	return &Resolver{
		db:    db,
		cache: cache,
		log:   console.New("PERM-RESOLVER"),
	}
}

// Resolve returns the permission closure for the user, cached per
// (userID, tenantSlug). Cancellation of ctx aborts the walk; callers treat
// that as a resolution failure.
func (r *Resolver) Resolve(ctx context.Context, userID, tenantSlug string) (*Closure, error) {
	if cached, err := r.cache.Get(ctx, userID, tenantSlug); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		r.log.Warn("closure cache read failed for user %s: %v", userID, err)
	}

	closure, err := r.walk(ctx, userID, tenantSlug)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, closure); err != nil {
		r.log.Warn("closure cache write failed for user %s: %v", userID, err)
	}
	return closure, nil
}

// Invalidate drops every cached closure for the user. Must be called after
// any grant or revoke touching the user's graph.
func (r *Resolver) Invalidate(ctx context.Context, userID string) error {
	return r.cache.InvalidateUser(ctx, userID)
}

// walk executes the graph traversal. Every hop filters IsActive: a soft-
// deleted row anywhere on a path removes the whole path from the closure.
func (r *Resolver) walk(ctx context.Context, userID, tenantSlug string) (*Closure, error) {
	now := time.Now()

	var grants []models.AccountAccessGroup
	err := r.db.WithContext(ctx).
		Where("user_account_id = ? AND is_active = ?", userID, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Preload("AccessGroup", models.Active).
		Preload("AccessGroup.RoleLinks", models.Active).
		Preload("AccessGroup.RoleLinks.Role", models.Active).
		Preload("AccessGroup.RoleLinks.Role.PermissionLinks", models.Active).
		Preload("AccessGroup.RoleLinks.Role.PermissionLinks.Permission", models.Active).
		Preload("AccessGroup.RoleLinks.Role.PermissionLinks.Permission.Module", models.Active).
		Preload("AccessGroup.RoleLinks.Role.PermissionLinks.Permission.OperationLinks", models.Active).
		Preload("AccessGroup.RoleLinks.Role.PermissionLinks.Permission.OperationLinks.Operation", models.Active).
		Find(&grants).Error
	if err != nil {
		return nil, err
	}

	// Flatten roles across all groups into one module set, deduplicated by
	// module key with operations unioned across paths.
	merged := make(map[string]*ModuleGrant)
	for _, grant := range grants {
		group := grant.AccessGroup
		if group == nil || !group.IsActive {
			continue
		}
		for _, roleLink := range group.RoleLinks {
			role := roleLink.Role
			if role == nil || !role.IsActive {
				continue
			}
			for _, permLink := range role.PermissionLinks {
				perm := permLink.Permission
				if perm == nil || !perm.IsActive || perm.Module == nil || !perm.Module.IsActive {
					continue
				}
				r.mergeModule(merged, perm)
			}
		}
	}

	closure := &Closure{
		UserID:     userID,
		TenantSlug: tenantSlug,
		Modules:    make([]ModuleGrant, 0, len(merged)),
		ResolvedAt: now,
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		closure.Modules = append(closure.Modules, *merged[key])
	}
	return closure, nil
}

func (r *Resolver) mergeModule(merged map[string]*ModuleGrant, perm *models.Permission) {
	key := strings.ToUpper(perm.Module.ModuleKey)
	entry, ok := merged[key]
	if !ok {
		entry = &ModuleGrant{Key: perm.Module.ModuleKey}
		merged[key] = entry
	}

	for _, opLink := range perm.OperationLinks {
		op := opLink.Operation
		if op == nil || !op.IsActive {
			continue
		}
		if !entry.Allows(op.Value) {
			entry.Operations = append(entry.Operations, op.Value)
		}
	}
	sort.Strings(entry.Operations)
}
