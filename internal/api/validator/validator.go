package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"authgate/internal/models"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// ValidationErrors wraps the validator's ValidationErrors
type ValidationErrors []playgroundvalidator.FieldError

// CustomValidator wraps go-playground/validator
type CustomValidator struct {
	validator *playgroundvalidator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() echo.Validator {
	v := playgroundvalidator.New()

	// Report json field names in validation errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	err := v.RegisterValidation("tenant_status", validateTenantStatus)
	if err != nil {
		return nil
	}
	err = v.RegisterValidation("subscription_status", validateSubscriptionStatus)
	if err != nil {
		return nil
	}
	err = v.RegisterValidation("operation_value", validateOperationValue)
	if err != nil {
		return nil
	}
	err = v.RegisterValidation("group_type", validateGroupType)
	if err != nil {
		return nil
	}

	return &CustomValidator{validator: v}
}

// Custom validation functions
func validateTenantStatus(fl playgroundvalidator.FieldLevel) bool {
	return models.IsValidTenantStatus(models.TenantStatus(fl.Field().String()))
}

func validateSubscriptionStatus(fl playgroundvalidator.FieldLevel) bool {
	status := fl.Field().String()
	return status == string(models.SubscriptionStatusActive) ||
		status == string(models.SubscriptionStatusPastDue) ||
		status == string(models.SubscriptionStatusCancelled)
}

func validateOperationValue(fl playgroundvalidator.FieldLevel) bool {
	return models.IsValidOperationValue(fl.Field().String())
}

func validateGroupType(fl playgroundvalidator.FieldLevel) bool {
	groupType := fl.Field().String()
	return groupType == string(models.GroupTypeSystem) || groupType == string(models.GroupTypeCustom)
}

// Validate implements echo.Validator interface
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		var validationErrors playgroundvalidator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return ValidationErrors(validationErrors)
		}
		return err
	}
	return nil
}

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	var fields []string
	for _, err := range ve {
		fields = append(fields, err.Field())
	}
	return fmt.Sprintf("validation failed on fields: %s", strings.Join(fields, ", "))
}

// Request validation structs based on models

type RegisterRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	TenantSlug string `json:"tenantSlug" validate:"omitempty,min=2"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type TenantRequest struct {
	Name   string `json:"name" validate:"required,min=2"`
	Slug   string `json:"slug" validate:"required,min=2,lowercase"`
	Status string `json:"status" validate:"omitempty,tenant_status"`
}

type AccessGroupRequest struct {
	Name      string `json:"name" validate:"required,min=2"`
	GroupType string `json:"groupType" validate:"omitempty,group_type"`
	TenantID  string `json:"tenantId" validate:"omitempty,uuid"`
}

type RoleRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	TenantID string `json:"tenantId" validate:"omitempty,uuid"`
}

type ModuleRequest struct {
	ModuleKey   string `json:"moduleKey" validate:"required,min=2,uppercase"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

type OperationRequest struct {
	Value string `json:"value" validate:"required,operation_value"`
}

type PermissionRequest struct {
	ModuleID string `json:"moduleId" validate:"required,uuid"`
}

type AssignGroupsRequest struct {
	GroupIDs  []string   `json:"groupIds" validate:"required,min=1,dive,uuid"`
	ExpiresAt *time.Time `json:"expiresAt" validate:"omitempty,gt=now"`
}

type AssignRolesRequest struct {
	RoleIDs []string `json:"roleIds" validate:"required,min=1,dive,uuid"`
}

type AssignPermissionsRequest struct {
	PermissionIDs []string `json:"permissionIds" validate:"required,min=1,dive,uuid"`
}

type GrantOperationsRequest struct {
	OperationIDs []string `json:"operationIds" validate:"required,min=1,dive,uuid"`
}

type PlanRequest struct {
	Name       string `json:"name" validate:"required"`
	PriceCents int64  `json:"priceCents" validate:"min=0"`
	Interval   string `json:"interval" validate:"required,oneof=month year"`
}

type SubscriptionRequest struct {
	TenantID string `json:"tenantId" validate:"required,uuid"`
	PlanID   string `json:"planId" validate:"required,uuid"`
	Status   string `json:"status" validate:"omitempty,subscription_status"`
}
