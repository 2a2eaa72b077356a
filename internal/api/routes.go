package api

import (
	"net/http"

	"authgate/internal/api/middleware"
	"authgate/internal/api/registry"
	"authgate/internal/routes"

	_ "authgate/docs/swagger"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

const apiBasePath = "/api/v1"

func (s *Server) registerRoutes() {
	s.echo.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "AuthGate")
	})
	// Health check
	// @Summary Health check
	// @Description Check if the server is running
	// @Accept json
	// @Produce json
	// @Success 200 {object} map[string]string "OK"
	// @Router /health [get]
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 group: authenticate, resolve the tenant, then authorize against
	// the declared route requirements.
	api := s.echo.Group(apiBasePath)
	auth := middleware.NewAuthMiddleware(s.config.JWT.Secret)
	api.Use(auth.Middleware())
	api.Use(middleware.TenantContext())
	api.Use(middleware.RequirePermissions(s.registry, s.filter))

	// Register CRUD routes for all models
	registry.RegisterCRUDRoutes(api, s.db, s.registry, apiBasePath)

	// Access graph assignment routes
	routes.SetupAssignmentRoutes(api, s.registry, s.assignments, apiBasePath)
}
