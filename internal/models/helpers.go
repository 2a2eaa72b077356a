package models

import (
	"gorm.io/gorm"
)

// GetTenantBySlug retrieves a tenant from the database by its slug
func GetTenantBySlug(slug string, db *gorm.DB) (*Tenant, error) {
	tenant := &Tenant{}
	if err := db.Where("slug = ? AND is_deleted = false", slug).First(tenant).Error; err != nil {
		return nil, err
	}
	return tenant, nil
}

func GetUserByEmail(email string, db *gorm.DB) (*UserAccount, error) {
	user := &UserAccount{}
	if err := db.Where("email = ? AND is_deleted = false", email).First(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func GetOperationByValue(value string, db *gorm.DB) (*Operation, error) {
	op := &Operation{}
	if err := db.Where("value = ? AND is_deleted = false", value).First(op).Error; err != nil {
		return nil, err
	}
	return op, nil
}

// Active scopes a query to live join rows; every hop of the permission graph
// must apply it, otherwise revoked grants leak back into closures.
func Active(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}
