package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base contains common columns for all tables
type Base struct {
	ID        string    `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	DeletedAt time.Time `gorm:"index;default:NULL" json:"-" validate:"omitempty"`
	IsDeleted bool      `json:"isDeleted" default:"false"`
}

// BeforeCreate will set a UUID rather than numeric ID
func (base *Base) BeforeCreate(tx *gorm.DB) error {
	if base.ID == "" {
		base.ID = uuid.New().String()
	}
	return nil
}

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
	TenantStatusTrial     TenantStatus = "TRIAL"
	TenantStatusCancelled TenantStatus = "CANCELLED"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

type GroupType string

const (
	GroupTypeSystem GroupType = "SYSTEM"
	GroupTypeCustom GroupType = "CUSTOM"
)

// Operation values form a global catalogue, not tenant-scoped.
const (
	OperationCreate = "CREATE"
	OperationRead   = "READ"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"
)

// IsValidTenantStatus checks if a given status is valid
func IsValidTenantStatus(status TenantStatus) bool {
	switch status {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusTrial, TenantStatusCancelled:
		return true
	default:
		return false
	}
}

func IsValidOperationValue(value string) bool {
	switch value {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete:
		return true
	default:
		return false
	}
}
