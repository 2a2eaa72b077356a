package models

import (
	"time"

	"authgate/internal/events"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tenant is the root of isolation. Every tenant-scoped entity carries an
// optional TenantId; rows with an empty TenantId are platform-level.
type Tenant struct {
	Base
	Slug          string         `gorm:"uniqueIndex;not null" json:"slug" validate:"required,min=2"`
	Name          string         `gorm:"not null" json:"name" validate:"required,min=2"`
	Status        TenantStatus   `gorm:"not null;default:'TRIAL'" json:"status" validate:"omitempty,tenant_status"`
	Users         []UserAccount  `gorm:"foreignKey:TenantID;references:ID" json:"users,omitempty"`
	Subscriptions []Subscription `gorm:"foreignKey:TenantID;references:ID" json:"subscriptions,omitempty"`
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

func (t *Tenant) AfterCreate(tx *gorm.DB) error {
	events.Emit("tenant.created", t)
	return nil
}

type Plan struct {
	Base
	Name        string         `gorm:"uniqueIndex;not null" json:"name" validate:"required"`
	Description string         `json:"description"`
	PriceCents  int64          `gorm:"not null;default:0" json:"priceCents" validate:"min=0"`
	Interval    string         `gorm:"not null;default:'month'" json:"interval" validate:"omitempty,oneof=month year"`
	Features    datatypes.JSON `gorm:"type:jsonb" json:"features,omitempty"`
}

type Subscription struct {
	Base
	TenantID         string             `gorm:"type:uuid;not null" json:"tenantId" validate:"omitempty,uuid"`
	Tenant           *Tenant            `json:"tenant,omitempty"`
	PlanID           string             `gorm:"type:uuid;not null" json:"planId" validate:"required,uuid"`
	Plan             *Plan              `json:"plan,omitempty"`
	Status           SubscriptionStatus `gorm:"not null;default:'ACTIVE'" json:"status"`
	CurrentPeriodEnd time.Time          `json:"currentPeriodEnd"`
}

// UserAccount belongs to exactly one tenant, or none for platform-level accounts.
type UserAccount struct {
	Base
	TenantID  string               `gorm:"type:uuid;default:NULL" json:"tenantId" validate:"omitempty,uuid"`
	Tenant    *Tenant              `json:"tenant,omitempty"`
	Email     string               `gorm:"uniqueIndex;not null" json:"email" validate:"required,email"`
	Password  string               `gorm:"not null" json:"-"`
	FirstName string               `json:"firstName"`
	LastName  string               `json:"lastName"`
	Groups    []AccountAccessGroup `gorm:"foreignKey:UserAccountID" json:"groups,omitempty"`
	Sessions  []AuthSession        `gorm:"foreignKey:UserAccountID" json:"-"`
}

// IsPlatform reports whether the account is platform-level (no tenant).
func (u *UserAccount) IsPlatform() bool {
	return u.TenantID == ""
}

type AuthSession struct {
	Base
	UserAccountID string       `gorm:"type:uuid;not null" json:"userAccountId"`
	UserAccount   *UserAccount `json:"userAccount,omitempty"`
	TenantID      string       `gorm:"type:uuid;default:NULL" json:"tenantId"`
	Token         string       `gorm:"not null" json:"token"`
	Refresh       string       `gorm:"not null" json:"refresh"`
	IPAddress     string       `json:"ipAddress"`
	UserAgent     string       `json:"userAgent"`
	ExpiresAt     time.Time    `json:"expiresAt"`
}
