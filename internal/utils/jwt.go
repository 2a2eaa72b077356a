package utils

import (
	"os"
	"time"

	"authgate/internal/models"

	"github.com/golang-jwt/jwt/v4"
)

type Claims struct {
	UserID     string   `json:"user_id"`
	TenantID   string   `json:"tenant_id,omitempty"`
	TenantSlug string   `json:"tenant_slug,omitempty"`
	TenantName string   `json:"tenant_name,omitempty"`
	Email      string   `json:"email"`
	// Permissions is the flat module-key list; it carries no operation
	// granularity and is only consulted when live resolution fails.
	Permissions []string `json:"permission"`
	jwt.RegisteredClaims
}

// GenerateJWT issues an access token for a user. modules is the flat list of
// module keys from the user's resolved closure at login time.
func GenerateJWT(user models.UserAccount, modules []string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:      user.ID,
		TenantID:    user.TenantID,
		Email:       user.Email,
		Permissions: modules,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if user.Tenant != nil {
		claims.TenantSlug = user.Tenant.Slug
		claims.TenantName = user.Tenant.Name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}

// ParseJWT parses and validates a JWT token
func ParseJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(os.Getenv("JWT_SECRET")), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	return claims, nil
}

// GenerateRefreshToken generates a refresh token for a user
func GenerateRefreshToken(user models.UserAccount, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}

// ParseRefreshToken parses and validates a refresh token
func ParseRefreshToken(tokenString string) (*Claims, error) {
	return ParseJWT(tokenString)
}
