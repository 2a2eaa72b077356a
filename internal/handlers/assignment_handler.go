package handlers

import (
	"errors"
	"net/http"
	"time"

	"authgate/internal/services"
	"authgate/internal/utils/logger"

	"github.com/labstack/echo/v4"
)

// AssignmentHandler exposes the grant/revoke surface of the access graph:
// groups to users, roles to groups, permissions to roles and operations to
// permissions.
type AssignmentHandler struct {
	assignments *services.AssignmentService
	log         *logger.Logger
}

func NewAssignmentHandler(assignments *services.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{
		assignments: assignments,
		log:         logger.New("AssignmentHandler"),
	}
}

type AssignGroupsRequest struct {
	GroupIDs  []string   `json:"groupIds" validate:"required,min=1,dive,uuid"`
	ExpiresAt *time.Time `json:"expiresAt"`
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

// AssignGroups grants access groups to a user.
// @Summary Assign access groups to a user
// @Description Grant one or more access groups to a user, reactivating revoked grants
// @Tags assignments
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body AssignGroupsRequest true "Group IDs and optional expiry"
// @Success 200 {object} map[string]string "Groups assigned"
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /users/{id}/groups [post]
func (h *AssignmentHandler) AssignGroups(c echo.Context) error {
	userID := c.Param("id")
	var req AssignGroupsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now()) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "expiresAt must be in the future"})
	}

	grantedBy, _ := c.Get("userID").(string)
	if err := h.assignments.AssignGroups(c.Request().Context(), userID, req.GroupIDs, grantedBy, req.ExpiresAt); err != nil {
		return h.assignError(c, err, "Failed to assign groups")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Groups assigned"})
}

// RevokeGroup revokes a single access group from a user.
// @Summary Revoke an access group from a user
// @Tags assignments
// @Produce json
// @Param id path string true "User ID"
// @Param groupId path string true "Access group ID"
// @Success 200 {object} map[string]string "Group revoked"
// @Failure 404 {object} map[string]string "No active grant"
// @Router /users/{id}/groups/{groupId} [delete]
func (h *AssignmentHandler) RevokeGroup(c echo.Context) error {
	err := h.assignments.RevokeGroup(c.Request().Context(), c.Param("id"), c.Param("groupId"))
	return h.revokeResponse(c, err, "Group revoked")
}

// AssignRoles links roles to an access group.
// @Summary Assign roles to an access group
// @Tags assignments
// @Accept json
// @Produce json
// @Param id path string true "Access group ID"
// @Param request body AssignRolesRequest true "Role IDs"
// @Success 200 {object} map[string]string "Roles assigned"
// @Router /access-groups/{id}/roles [post]
func (h *AssignmentHandler) AssignRoles(c echo.Context) error {
	groupID := c.Param("id")
	var req AssignRolesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := h.assignments.AssignRoles(c.Request().Context(), groupID, req.RoleIDs); err != nil {
		return h.assignError(c, err, "Failed to assign roles")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Roles assigned"})
}

// RevokeRole unlinks a role from an access group.
// @Summary Revoke a role from an access group
// @Tags assignments
// @Produce json
// @Param id path string true "Access group ID"
// @Param roleId path string true "Role ID"
// @Success 200 {object} map[string]string "Role revoked"
// @Router /access-groups/{id}/roles/{roleId} [delete]
func (h *AssignmentHandler) RevokeRole(c echo.Context) error {
	err := h.assignments.RevokeRole(c.Request().Context(), c.Param("id"), c.Param("roleId"))
	return h.revokeResponse(c, err, "Role revoked")
}

// AssignPermissions links permissions to a role.
// @Summary Assign permissions to a role
// @Tags assignments
// @Accept json
// @Produce json
// @Param id path string true "Role ID"
// @Param request body AssignPermissionsRequest true "Permission IDs"
// @Success 200 {object} map[string]string "Permissions assigned"
// @Router /roles/{id}/permissions [post]
func (h *AssignmentHandler) AssignPermissions(c echo.Context) error {
	roleID := c.Param("id")
	var req AssignPermissionsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := h.assignments.AssignPermissions(c.Request().Context(), roleID, req.PermissionIDs); err != nil {
		return h.assignError(c, err, "Failed to assign permissions")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Permissions assigned"})
}

// RevokePermission unlinks a permission from a role.
// @Summary Revoke a permission from a role
// @Tags assignments
// @Produce json
// @Param id path string true "Role ID"
// @Param permissionId path string true "Permission ID"
// @Success 200 {object} map[string]string "Permission revoked"
// @Router /roles/{id}/permissions/{permissionId} [delete]
func (h *AssignmentHandler) RevokePermission(c echo.Context) error {
	err := h.assignments.RevokePermission(c.Request().Context(), c.Param("id"), c.Param("permissionId"))
	return h.revokeResponse(c, err, "Permission revoked")
}

// GrantOperations enables operations on a permission.
// @Summary Grant operations on a permission
// @Tags assignments
// @Accept json
// @Produce json
// @Param id path string true "Permission ID"
// @Param request body GrantOperationsRequest true "Operation IDs"
// @Success 200 {object} map[string]string "Operations granted"
// @Router /permissions/{id}/operations [post]
func (h *AssignmentHandler) GrantOperations(c echo.Context) error {
	permissionID := c.Param("id")
	var req GrantOperationsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := h.assignments.GrantOperations(c.Request().Context(), permissionID, req.OperationIDs); err != nil {
		return h.assignError(c, err, "Failed to grant operations")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Operations granted"})
}

// RevokeOperation disables one operation on a permission.
// @Summary Revoke an operation from a permission
// @Tags assignments
// @Produce json
// @Param id path string true "Permission ID"
// @Param operationId path string true "Operation ID"
// @Success 200 {object} map[string]string "Operation revoked"
// @Router /permissions/{id}/operations/{operationId} [delete]
func (h *AssignmentHandler) RevokeOperation(c echo.Context) error {
	err := h.assignments.RevokeOperation(c.Request().Context(), c.Param("id"), c.Param("operationId"))
	return h.revokeResponse(c, err, "Operation revoked")
}

// RevokeAllOperations disables every operation on a permission.
// @Summary Revoke all operations from a permission
// @Tags assignments
// @Produce json
// @Param id path string true "Permission ID"
// @Success 200 {object} map[string]string "Operations revoked"
// @Router /permissions/{id}/operations [delete]
func (h *AssignmentHandler) RevokeAllOperations(c echo.Context) error {
	if err := h.assignments.RevokeAllOperations(c.Request().Context(), c.Param("id")); err != nil {
		return h.assignError(c, err, "Failed to revoke operations")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Operations revoked"})
}

func (h *AssignmentHandler) assignError(c echo.Context, err error, message string) error {
	if errors.Is(err, services.ErrCrossTenantAssignment) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": message})
}

func (h *AssignmentHandler) revokeResponse(c echo.Context, err error, message string) error {
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]string{"message": message})
	case errors.Is(err, services.ErrNothingToRevoke):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrCrossTenantAssignment):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to revoke"})
	}
}
