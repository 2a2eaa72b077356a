package middleware

import (
	"net/http"
	"strings"
	"time"

	"authgate/internal/authz"
	"authgate/internal/db"
	"authgate/internal/models"
	"authgate/internal/utils"
	"authgate/internal/utils/logger"

	"github.com/labstack/echo/v4"
)

var log = logger.New("auth_middleware")

type AuthMiddleware struct {
	jwtSecret string
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

func (m *AuthMiddleware) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			return m.validateJWT(c, tokenParts[1], next)
		}
	}
}

func (m *AuthMiddleware) validateJWT(c echo.Context, tokenString string, next echo.HandlerFunc) error {
	claims, err := utils.ParseJWT(tokenString)
	if err != nil {
		_ = log.Error("Error parsing JWT token: %v", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Token has expired")
	}

	// Verify the session was issued by us and is still live
	session := &models.AuthSession{}
	if err := db.DB.Where("user_account_id = ? AND token = ?",
		claims.UserID, tokenString).First(session).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Session not found")
	}
	if session.ExpiresAt.Before(time.Now()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Session has expired")
	}

	user := &models.UserAccount{}
	if err := db.DB.Where("id = ?", claims.UserID).First(user).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not found")
	}
	if user.IsDeleted {
		return echo.NewHTTPError(http.StatusUnauthorized, "User is deactivated")
	}

	c.Set("userID", claims.UserID)
	c.Set("email", claims.Email)
	c.Set("tenantID", claims.TenantID)
	c.Set("tenantSlug", claims.TenantSlug)
	c.Set("tenantName", claims.TenantName)
	c.Set("permissions", claims.Permissions)
	c.Set("principal", authz.Principal{
		Authenticated: true,
		UserID:        claims.UserID,
		Permissions:   claims.Permissions,
	})

	return next(c)
}

// GetUserID Helper functions to get values from context
func GetUserID(c echo.Context) string {
	if id, ok := c.Get("userID").(string); ok {
		return id
	}
	return ""
}

func GetTenantID(c echo.Context) string {
	if id, ok := c.Get("tenantID").(string); ok {
		return id
	}
	return ""
}

func GetEmail(c echo.Context) string {
	if email, ok := c.Get("email").(string); ok {
		return email
	}
	return ""
}

func GetPermissions(c echo.Context) []string {
	if permissions, ok := c.Get("permissions").([]string); ok {
		return permissions
	}
	return nil
}

// GetPrincipal returns the authenticated principal, or a zero principal when
// the request never passed the auth middleware.
func GetPrincipal(c echo.Context) authz.Principal {
	if principal, ok := c.Get("principal").(authz.Principal); ok {
		return principal
	}
	return authz.Principal{}
}
