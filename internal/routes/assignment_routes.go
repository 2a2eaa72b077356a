package routes

import (
	"net/http"

	"authgate/internal/authz"
	"authgate/internal/handlers"
	"authgate/internal/models"
	"authgate/internal/services"

	"github.com/labstack/echo/v4"
)

// SetupAssignmentRoutes registers the access-graph mutation routes on an
// already-authenticated group and declares their authorization requirements.
// Assignment routes always require UPDATE on the module whose links they
// mutate.
func SetupAssignmentRoutes(g *echo.Group, reg *authz.Registry, assignments *services.AssignmentService, basePath string) {
	h := handlers.NewAssignmentHandler(assignments)

	g.POST("/users/:id/groups", h.AssignGroups)
	g.DELETE("/users/:id/groups/:groupId", h.RevokeGroup)
	reg.Register(http.MethodPost, basePath+"/users/:id/groups", models.ModuleAccessGroups, models.OperationUpdate)
	reg.Register(http.MethodDelete, basePath+"/users/:id/groups/:groupId", models.ModuleAccessGroups, models.OperationUpdate)

	g.POST("/access-groups/:id/roles", h.AssignRoles)
	g.DELETE("/access-groups/:id/roles/:roleId", h.RevokeRole)
	reg.Register(http.MethodPost, basePath+"/access-groups/:id/roles", models.ModuleRoles, models.OperationUpdate)
	reg.Register(http.MethodDelete, basePath+"/access-groups/:id/roles/:roleId", models.ModuleRoles, models.OperationUpdate)

	g.POST("/roles/:id/permissions", h.AssignPermissions)
	g.DELETE("/roles/:id/permissions/:permissionId", h.RevokePermission)
	reg.Register(http.MethodPost, basePath+"/roles/:id/permissions", models.ModulePermissions, models.OperationUpdate)
	reg.Register(http.MethodDelete, basePath+"/roles/:id/permissions/:permissionId", models.ModulePermissions, models.OperationUpdate)

	g.POST("/permissions/:id/operations", h.GrantOperations)
	g.DELETE("/permissions/:id/operations/:operationId", h.RevokeOperation)
	g.DELETE("/permissions/:id/operations", h.RevokeAllOperations)
	reg.Register(http.MethodPost, basePath+"/permissions/:id/operations", models.ModulePermissions, models.OperationUpdate)
	reg.Register(http.MethodDelete, basePath+"/permissions/:id/operations/:operationId", models.ModulePermissions, models.OperationUpdate)
	reg.Register(http.MethodDelete, basePath+"/permissions/:id/operations", models.ModulePermissions, models.OperationUpdate)
}
