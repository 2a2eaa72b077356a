package registry

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"authgate/internal/api/controllers"
	"authgate/internal/authz"
	"authgate/internal/models"
	"authgate/internal/services"

	"gorm.io/gorm"
)

// methodOperations maps HTTP methods to catalogue operation values.
var methodOperations = map[string]string{
	http.MethodPost:   models.OperationCreate,
	http.MethodGet:    models.OperationRead,
	http.MethodPut:    models.OperationUpdate,
	http.MethodDelete: models.OperationDelete,
}

// registerResource wires generic CRUD routes for one model and declares the
// (module, operation) requirement for each of them. Paths registered with the
// requirement registry are the full route patterns, matching what
// echo.Context.Path reports at request time.
func registerResource[T any](g *echo.Group, reg *authz.Registry, db *gorm.DB, basePath, path, moduleKey string) {
	service := services.NewBaseService(db, *new(T))
	controller := controllers.NewBaseController(service)
	controller.RegisterRoutes(g, path)

	full := basePath + path
	reg.Register(http.MethodPost, full, moduleKey, methodOperations[http.MethodPost])
	reg.Register(http.MethodGet, full, moduleKey, methodOperations[http.MethodGet])
	reg.Register(http.MethodGet, full+"/:id", moduleKey, methodOperations[http.MethodGet])
	reg.Register(http.MethodPut, full+"/:id", moduleKey, methodOperations[http.MethodPut])
	reg.Register(http.MethodDelete, full+"/:id", moduleKey, methodOperations[http.MethodDelete])
}

// RegisterCRUDRoutes registers CRUD routes for all models - godoc
// @Summary Register CRUD routes for all models
// @Description Register CRUD routes for all models
// @Accept json
// @Produce json
func RegisterCRUDRoutes(g *echo.Group, db *gorm.DB, reg *authz.Registry, basePath string) {
	// @Summary Tenant CRUD
	// @Description Create, read, update and delete tenants
	// @Router /api/v1/tenants [get]
	registerResource[models.Tenant](g, reg, db, basePath, "/tenants", models.ModuleTenants)

	// @Summary Plan CRUD
	// @Router /api/v1/plans [get]
	registerResource[models.Plan](g, reg, db, basePath, "/plans", models.ModulePlans)

	// @Summary Subscription CRUD
	// @Router /api/v1/subscriptions [get]
	registerResource[models.Subscription](g, reg, db, basePath, "/subscriptions", models.ModuleSubscriptions)

	// @Summary User account CRUD
	// @Router /api/v1/users [get]
	registerResource[models.UserAccount](g, reg, db, basePath, "/users", models.ModuleUsers)

	// @Summary Access group CRUD
	// @Router /api/v1/access-groups [get]
	registerResource[models.AccessGroup](g, reg, db, basePath, "/access-groups", models.ModuleAccessGroups)

	// @Summary Role CRUD
	// @Router /api/v1/roles [get]
	registerResource[models.Role](g, reg, db, basePath, "/roles", models.ModuleRoles)

	// @Summary Module CRUD
	// @Router /api/v1/modules [get]
	registerResource[models.Module](g, reg, db, basePath, "/modules", models.ModuleModules)

	// @Summary Operation CRUD
	// @Router /api/v1/operations [get]
	registerResource[models.Operation](g, reg, db, basePath, "/operations", models.ModuleOperations)

	// @Summary Permission CRUD
	// @Router /api/v1/permissions [get]
	registerResource[models.Permission](g, reg, db, basePath, "/permissions", models.ModulePermissions)
}
