package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// The access graph: user -> access group -> role -> permission -> module/operations.
// Every join table is soft-revocable via IsActive; rows are never hard-deleted,
// so historical grant/revoke state stays reconstructable.

type AccessGroup struct {
	Base
	TenantID  string            `gorm:"type:uuid;default:NULL" json:"tenantId" validate:"omitempty,uuid"`
	Tenant    *Tenant           `json:"tenant,omitempty"`
	Name      string            `gorm:"not null" json:"name" validate:"required,min=2"`
	GroupType GroupType         `gorm:"not null;default:'CUSTOM'" json:"groupType" validate:"omitempty,group_type"`
	IsActive  bool              `gorm:"not null;default:true" json:"isActive"`
	RoleLinks []RoleAccessGroup `gorm:"foreignKey:AccessGroupID" json:"roleLinks,omitempty"`
}

// AccountAccessGroup links a user to an access group. The unique index on the
// pair guarantees at most one row per (user, group): reactivation flips
// IsActive on the existing row instead of inserting a duplicate.
type AccountAccessGroup struct {
	Base
	UserAccountID string       `gorm:"type:uuid;not null;uniqueIndex:idx_account_access_group" json:"userAccountId" validate:"required,uuid"`
	UserAccount   *UserAccount `json:"userAccount,omitempty"`
	AccessGroupID string       `gorm:"type:uuid;not null;uniqueIndex:idx_account_access_group" json:"accessGroupId" validate:"required,uuid"`
	AccessGroup   *AccessGroup `json:"accessGroup,omitempty"`
	IsActive      bool         `gorm:"not null;default:true" json:"isActive"`
	GrantedBy     string       `gorm:"type:uuid;default:NULL" json:"grantedBy"`
	GrantedAt     time.Time    `json:"grantedAt"`
	ExpiresAt     *time.Time   `json:"expiresAt,omitempty"`
}

// Expired reports whether the grant has lapsed.
func (g *AccountAccessGroup) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

type Role struct {
	Base
	TenantID        string           `gorm:"type:uuid;default:NULL" json:"tenantId" validate:"omitempty,uuid"`
	Tenant          *Tenant          `json:"tenant,omitempty"`
	Name            string           `gorm:"not null" json:"name" validate:"required,min=2"`
	IsActive        bool             `gorm:"not null;default:true" json:"isActive"`
	PermissionLinks []RolePermission `gorm:"foreignKey:RoleID" json:"permissionLinks,omitempty"`
}

type RoleAccessGroup struct {
	Base
	RoleID        string       `gorm:"type:uuid;not null;uniqueIndex:idx_role_access_group" json:"roleId" validate:"required,uuid"`
	Role          *Role        `json:"role,omitempty"`
	AccessGroupID string       `gorm:"type:uuid;not null;uniqueIndex:idx_role_access_group" json:"accessGroupId" validate:"required,uuid"`
	AccessGroup   *AccessGroup `json:"accessGroup,omitempty"`
	IsActive      bool         `gorm:"not null;default:true" json:"isActive"`
}

type RolePermission struct {
	Base
	RoleID       string      `gorm:"type:uuid;not null;uniqueIndex:idx_role_permission" json:"roleId" validate:"required,uuid"`
	Role         *Role       `json:"role,omitempty"`
	PermissionID string      `gorm:"type:uuid;not null;uniqueIndex:idx_role_permission" json:"permissionId" validate:"required,uuid"`
	Permission   *Permission `json:"permission,omitempty"`
	IsActive     bool        `gorm:"not null;default:true" json:"isActive"`
}

// Module is a named feature area, the unit permissions are granted against.
// ModuleKey is the stable identifier carried in tokens.
type Module struct {
	Base
	ApplicationID string `gorm:"type:uuid;default:NULL" json:"applicationId" validate:"omitempty,uuid"`
	ModuleKey     string `gorm:"uniqueIndex;not null" json:"moduleKey" validate:"required,min=2"`
	Name          string `gorm:"not null" json:"name" validate:"required"`
	Description   string `json:"description"`
	Code          string `json:"code"`
	IsActive      bool   `gorm:"not null;default:true" json:"isActive"`
}

// Permission grants access to a module. Its name, description and code are
// derived from the linked module and are never stored on the permission row,
// so they cannot drift from the module they describe.
type Permission struct {
	Base
	ModuleID       string                `gorm:"type:uuid;default:NULL" json:"moduleId" validate:"omitempty,uuid"`
	Module         *Module               `json:"module,omitempty"`
	IsActive       bool                  `gorm:"not null;default:true" json:"isActive"`
	OperationLinks []PermissionOperation `gorm:"foreignKey:PermissionID" json:"operationLinks,omitempty"`
}

// Name is read through the linked module. A permission without a module gets
// a synthesized default.
func (p *Permission) Name() string {
	if p.Module != nil {
		return p.Module.Name
	}
	return fmt.Sprintf("Permission_%s", p.ID)
}

func (p *Permission) Description() string {
	if p.Module != nil {
		return p.Module.Description
	}
	return ""
}

func (p *Permission) Code() string {
	if p.Module != nil {
		return p.Module.Code
	}
	return ""
}

func (p Permission) MarshalJSON() ([]byte, error) {
	type alias Permission
	return json.Marshal(struct {
		alias
		Name        string `json:"name"`
		Description string `json:"description"`
		Code        string `json:"code"`
	}{
		alias:       alias(p),
		Name:        (&p).Name(),
		Description: (&p).Description(),
		Code:        (&p).Code(),
	})
}

// Operation is an action within a module. Global catalogue, not tenant-scoped.
type Operation struct {
	Base
	Value    string `gorm:"uniqueIndex;not null" json:"value" validate:"required,operation_value"`
	IsActive bool   `gorm:"not null;default:true" json:"isActive"`
}

type PermissionOperation struct {
	Base
	PermissionID string      `gorm:"type:uuid;not null;uniqueIndex:idx_permission_operation" json:"permissionId" validate:"required,uuid"`
	Permission   *Permission `json:"permission,omitempty"`
	OperationID  string      `gorm:"type:uuid;not null;uniqueIndex:idx_permission_operation" json:"operationId" validate:"required,uuid"`
	Operation    *Operation  `json:"operation,omitempty"`
	IsActive     bool        `gorm:"not null;default:true" json:"isActive"`
}
