package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"authgate/internal/config"
	"authgate/internal/events"
	"authgate/internal/models"
	"authgate/internal/permissions"
	"authgate/internal/utils"
	"authgate/internal/utils/logger"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthHandler struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	cfg      *config.Config
	log      *logger.Logger
}

func NewAuthHandler(db *gorm.DB, resolver *permissions.Resolver, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		db:       db,
		resolver: resolver,
		cfg:      cfg,
		log:      logger.New("AuthHandler"),
	}
}

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

// Register handles the registration of a new user account.
// @Summary Register a new user
// @Description Register a new user with email, password and an optional tenant slug
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} map[string]string "User registered successfully"
// @Failure 400 {object} map[string]string "Validation error or email exists"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	var existing models.UserAccount
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "User already exists"})
	}

	var tenantID string
	if req.TenantSlug != "" {
		t, err := models.GetTenantBySlug(req.TenantSlug, h.db)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown tenant"})
		}
		if t.Status == models.TenantStatusSuspended || t.Status == models.TenantStatusCancelled {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "Tenant is not accepting registrations"})
		}
		if full, err := h.tenantAtUserLimit(t.ID); err == nil && full {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "Tenant has reached its user limit"})
		}
		tenantID = t.ID
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to hash password"})
	}

	user := models.UserAccount{
		TenantID:  tenantID,
		Email:     req.Email,
		Password:  string(hashedPassword),
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}

	if err := h.db.Create(&user).Error; err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Email already exists"})
	}

	events.Emit("user.created", &user)

	return c.JSON(http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

// tenantAtUserLimit checks the tenant's active subscription plan for a
// maxUsers feature and compares it against the current headcount. Tenants
// without a subscription or without the feature are unlimited.
func (h *AuthHandler) tenantAtUserLimit(tenantID string) (bool, error) {
	var sub models.Subscription
	err := h.db.Where("tenant_id = ? AND status = ?", tenantID, models.SubscriptionStatusActive).
		Preload("Plan").First(&sub).Error
	if err != nil || sub.Plan == nil || len(sub.Plan.Features) == 0 {
		return false, err
	}

	features, err := utils.JSONToMap(sub.Plan.Features)
	if err != nil {
		return false, err
	}
	limit, err := strconv.Atoi(features["maxUsers"])
	if err != nil || limit <= 0 {
		return false, nil
	}

	var count int64
	if err := h.db.Model(&models.UserAccount{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return false, err
	}
	return count >= int64(limit), nil
}

// Login authenticates a user, resolves their permission closure and issues a
// token pair. The closure's module keys are flattened into the token's
// permission claim so authorization can degrade gracefully if live resolution
// is ever unavailable.
// @Summary Login user
// @Description Authenticate user and return JWT token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} map[string]string "JWT token"
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	var user models.UserAccount
	if err := h.db.Where("email = ?", req.Email).Preload("Tenant").First(&user).Error; err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
	}

	if user.Tenant != nil && user.Tenant.Status == models.TenantStatusSuspended {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Tenant is suspended"})
	}

	modules := h.moduleKeys(c, &user)

	token, err := utils.GenerateJWT(user, modules, h.cfg.JWT.AccessTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate token"})
	}
	refreshToken, err := utils.GenerateRefreshToken(user, h.cfg.JWT.RefreshTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate token"})
	}

	session := &models.AuthSession{
		UserAccountID: user.ID,
		TenantID:      user.TenantID,
		Token:         token,
		Refresh:       refreshToken,
		IPAddress:     c.RealIP(),
		UserAgent:     c.Request().UserAgent(),
		ExpiresAt:     time.Now().Add(h.cfg.JWT.RefreshTTL),
	}

	if err := h.db.Create(session).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create session"})
	}

	return c.JSON(http.StatusOK, map[string]string{"token": token, "refresh_token": refreshToken})
}

// moduleKeys resolves the user's closure and flattens it to module keys.
// Resolution failure at login is not fatal; the token just carries no
// fallback claims.
func (h *AuthHandler) moduleKeys(c echo.Context, user *models.UserAccount) []string {
	slug := ""
	if user.Tenant != nil {
		slug = user.Tenant.Slug
	}
	closure, err := h.resolver.Resolve(c.Request().Context(), user.ID, slug)
	if err != nil {
		h.log.Warn("failed to resolve permissions at login for %s: %v", user.Email, err)
		return nil
	}
	modules := make([]string, 0, len(closure.Modules))
	for _, m := range closure.Modules {
		modules = append(modules, m.Key)
	}
	return modules
}

// RefreshToken exchanges a valid refresh token for a new access token.
// @Summary Refresh access token
// @Description Exchange a refresh token for a new access token
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "New access token"
// @Failure 401 {object} map[string]string "Invalid refresh token"
// @Router /auth/refresh [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var input struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid input"})
	}

	claims, err := utils.ParseRefreshToken(input.RefreshToken)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
	}

	var session models.AuthSession
	if err := h.db.Where("refresh = ? AND expires_at > ?", input.RefreshToken, time.Now()).First(&session).Error; err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
	}

	var user models.UserAccount
	if err := h.db.Where("id = ?", claims.UserID).Preload("Tenant").First(&user).Error; err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "User not found"})
	}

	modules := h.moduleKeys(c, &user)

	accessToken, err := utils.GenerateJWT(user, modules, h.cfg.JWT.AccessTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate access token"})
	}

	session.Token = accessToken
	if err := h.db.Save(&session).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save session"})
	}

	return c.JSON(http.StatusOK, map[string]string{"token": accessToken})
}

// Logout invalidates the current session.
// @Summary Logout
// @Description Invalidate the current session's tokens
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logged out"
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	userID, _ := c.Get("userID").(string)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
	}

	if err := h.db.Where("user_account_id = ?", userID).Delete(&models.AuthSession{}).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete session"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out"})
}

// GetMe returns the current user with their resolved permission closure.
// @Summary Get current user
// @Description Get details of the current authenticated user and their effective permissions
// @Tags users
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /users/me [get]
func (h *AuthHandler) GetMe(c echo.Context) error {
	userID := c.Get("userID").(string)

	var user models.UserAccount
	if err := h.db.Where("id = ?", userID).Preload("Tenant").First(&user).Error; err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "User not found"})
	}

	slug := ""
	if user.Tenant != nil {
		slug = user.Tenant.Slug
	}

	closure, err := h.resolver.Resolve(c.Request().Context(), userID, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "User not found"})
		}
		h.log.Warn("failed to resolve permissions for %s: %v", user.Email, err)
		closure = &permissions.Closure{UserID: userID, TenantSlug: slug}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":        user,
		"permissions": closure.Modules,
	})
}
