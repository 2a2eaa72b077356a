package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"authgate/internal/api/validator"
	"authgate/internal/authz"
	"authgate/internal/config"
	"authgate/internal/models"
	"authgate/internal/permissions"
	"authgate/internal/routes"
	"authgate/internal/services"
	"authgate/internal/tenant"
	"authgate/internal/utils"

	appmw "authgate/internal/api/middleware"
	console "authgate/internal/utils/logger"

	"github.com/go-advanced-admin/admin"
	admingorm "github.com/go-advanced-admin/orm-gorm"
	adminecho "github.com/go-advanced-admin/web-echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	db          *gorm.DB
	resolver    *permissions.Resolver
	filter      *authz.Filter
	registry    *authz.Registry
	assignments *services.AssignmentService
}

var log = console.New("API-Server")

// NewServer @title AuthGate API
// @version 1.0
// @description Multi-tenant authentication and authorization administration API.
// @host localhost:8080
// @BasePath /api/v1
func NewServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Server {
	e := echo.New()

	// Create custom validator
	e.Validator = validator.NewValidator()

	// Configure middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentLength},
	}))
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())
	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: 30 * time.Second,
	}))
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
	}))
	e.Use(middleware.BodyLimit("1M"))

	// Custom error handler
	e.HTTPErrorHandler = customHTTPErrorHandler

	// Authorization core
	var cache *permissions.Cache
	if cfg.AuthZ.CacheEnabled && redisClient != nil {
		cache = permissions.NewCache(redisClient, cfg.AuthZ.CacheTTL)
	}
	resolver := permissions.NewResolver(db, cache)

	s := &Server{
		echo:        e,
		config:      cfg,
		db:          db,
		resolver:    resolver,
		filter:      authz.NewFilter(resolver),
		registry:    authz.NewRegistry(),
		assignments: services.NewAssignmentService(db, resolver),
	}

	// Seed the catalogue and platform admin graph
	if err := models.SeedCatalogue(db); err != nil {
		log.Warn("Warning: Failed to seed catalogue: %v", err)
	} else {
		log.Success("Successfully seeded operation and module catalogue")
	}

	if err := models.CreateSuperAdminFromEnv(db, cfg); err != nil {
		log.Warn("Warning: Failed to create super admin: %v", err)
	} else {
		log.Success("Successfully created super admin")
	}

	if err := seedDefaultPlans(db); err != nil {
		log.Warn("Warning: Failed to seed default plans: %v", err)
	}

	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(20))))

	s.setupAdminPanel(e)

	routes.SetupAuthRoutes(s.echo, s.db, s.resolver, s.config)

	// Register routes
	s.registerRoutes()
	return s
}

// setupAdminPanel mounts the generated admin UI behind the same auth and
// tenant middleware as the API. Panel permission checks go through the
// authorization filter, so the panel honors the same (module, operation)
// grants as the declared routes.
func (s *Server) setupAdminPanel(e *echo.Echo) {
	auth := appmw.NewAuthMiddleware(s.config.JWT.Secret)
	group := e.Group("", auth.Middleware(), appmw.TenantContext())

	// Create a new GORM integrator
	gormIntegrator := admingorm.NewIntegrator(s.db)
	// Create a new Echo integrator
	echoIntegrator := adminecho.NewIntegrator(group)

	permissionChecker := func(
		request admin.PermissionRequest, ctx interface{},
	) (bool, error) {
		c, ok := ctx.(echo.Context)
		if !ok {
			return false, nil
		}
		requirement := adminRequirement(request)
		if requirement == nil {
			// Panel-level pages carry no model; any authenticated caller.
			return appmw.GetPrincipal(c).Authenticated, nil
		}
		outcome := s.filter.Check(
			c.Request().Context(), requirement,
			appmw.GetPrincipal(c), appmw.GetTenantContext(c),
		)
		return outcome.Proceed(), nil
	}

	// Create a new admin panel
	adminPanel, err := admin.NewPanel(
		gormIntegrator, echoIntegrator, permissionChecker, nil,
	)
	if err != nil {
		log.Warn("Warning: Failed to create admin panel: %v", err)
		return
	}

	// Register the admin panel
	_, err = adminPanel.RegisterApp(
		"AuthGate",
		"AuthGate Admin Panel",
		nil,
	)
	if err != nil {
		log.Warn("Warning: Failed to register admin app: %v", err)
	}
}

// adminRequirement translates a panel permission request into the same
// (module, operation) pair the API routes declare. Panel model names line up
// with the seeded module keys.
func adminRequirement(request admin.PermissionRequest) *authz.Requirement {
	if request.ModelName == nil || *request.ModelName == "" {
		return nil
	}
	operation := models.OperationRead
	if request.Action != nil {
		if value := strings.ToUpper(string(*request.Action)); models.IsValidOperationValue(value) {
			operation = value
		}
	}
	return &authz.Requirement{
		Module:    strings.ToUpper(*request.ModelName),
		Operation: operation,
	}
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Resolver exposes the permission resolver for task handlers.
func (s *Server) Resolver() *permissions.Resolver {
	return s.resolver
}

// Assignments exposes the assignment service for task handlers.
func (s *Server) Assignments() *services.AssignmentService {
	return s.assignments
}

// seedDefaultPlans ensures a free plan exists so new tenants always have a
// subscription target. Idempotent by plan name.
func seedDefaultPlans(db *gorm.DB) error {
	features, err := utils.MapToJSON(map[string]string{
		"maxUsers":        "5",
		"maxAccessGroups": "3",
		"support":         "community",
	})
	if err != nil {
		return err
	}

	plan := models.Plan{
		Name:        "Free",
		Description: "Default plan for new tenants",
		PriceCents:  0,
		Interval:    "month",
		Features:    features,
	}
	return db.Where(models.Plan{Name: plan.Name}).FirstOrCreate(&plan).Error
}

// Health check endpoint
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// Custom HTTP error handler
func customHTTPErrorHandler(err error, c echo.Context) {
	var (
		code    = http.StatusInternalServerError
		message interface{}
	)

	switch e := err.(type) {
	case *echo.HTTPError:
		code = e.Code
		message = e.Message
	case validator.ValidationErrors:
		code = http.StatusBadRequest
		message = formatValidationErrors(e)
	default:
		if errors.Is(err, tenant.ErrCrossTenantCreate) || errors.Is(err, tenant.ErrCrossTenantUpdate) {
			code = http.StatusForbidden
			message = err.Error()
		} else {
			message = http.StatusText(code)
		}
	}

	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, map[string]interface{}{
				"error": message,
				"code":  code,
				"time":  time.Now().Format(time.RFC3339),
			})
		}
		if err != nil {
			c.Echo().Logger.Error(err)
		}
	}
}

// formatValidationErrors formats validation errors into a map
func formatValidationErrors(errors validator.ValidationErrors) map[string]string {
	errMap := make(map[string]string)
	for _, err := range errors {
		field := err.Field()
		tag := err.Tag()
		param := err.Param()

		switch tag {
		case "required":
			errMap[field] = fmt.Sprintf("%s is required", field)
		case "email":
			errMap[field] = fmt.Sprintf("%s must be a valid email", field)
		case "min":
			errMap[field] = fmt.Sprintf("%s must be at least %s", field, param)
		case "max":
			errMap[field] = fmt.Sprintf("%s must be at most %s", field, param)
		case "uuid":
			errMap[field] = fmt.Sprintf("%s must be a valid UUID", field)
		case "oneof":
			errMap[field] = fmt.Sprintf("%s must be one of [%s]", field, param)
		case "gt":
			errMap[field] = fmt.Sprintf("%s must be greater than %s", field, param)
		case "lowercase":
			errMap[field] = fmt.Sprintf("%s must be lowercase", field)
		case "uppercase":
			errMap[field] = fmt.Sprintf("%s must be uppercase", field)
		case "tenant_status":
			errMap[field] = fmt.Sprintf("%s must be one of: ACTIVE, SUSPENDED, TRIAL, CANCELLED", field)
		case "subscription_status":
			errMap[field] = fmt.Sprintf("%s must be one of: ACTIVE, PAST_DUE, CANCELLED", field)
		case "operation_value":
			errMap[field] = fmt.Sprintf("%s must be one of: CREATE, READ, UPDATE, DELETE", field)
		case "group_type":
			errMap[field] = fmt.Sprintf("%s must be either 'SYSTEM' or 'CUSTOM'", field)
		default:
			errMap[field] = fmt.Sprintf("%s failed validation: %s", field, tag)
		}
	}
	return errMap
}
