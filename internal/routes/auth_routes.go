package routes

import (
	"authgate/internal/api/middleware"
	"authgate/internal/config"
	"authgate/internal/handlers"
	"authgate/internal/permissions"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

func SetupAuthRoutes(e *echo.Echo, db *gorm.DB, resolver *permissions.Resolver, cfg *config.Config) {
	authHandler := handlers.NewAuthHandler(db, resolver, cfg)

	base := e.Group("/api/v1")

	// Public auth routes group
	auth := base.Group("/auth")

	// Public routes (no auth required)
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.RefreshToken)

	// Protected auth routes (require authentication)
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	protectedAuth := base.Group("/auth")
	protectedAuth.Use(authMiddleware.Middleware())
	protectedAuth.POST("/logout", authHandler.Logout)

	users := base.Group("/users")
	users.Use(authMiddleware.Middleware())
	users.Use(middleware.TenantContext())
	users.GET("/me", authHandler.GetMe) // Accessible to any authenticated user
}
