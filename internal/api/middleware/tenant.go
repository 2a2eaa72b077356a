package middleware

import (
	"authgate/internal/tenant"

	"github.com/labstack/echo/v4"
)

// TenantContext resolves the request's tenant and attaches it to the request
// context. Token claims win; the X-Tenant-* headers are only consulted for
// requests that carry no tenant claims (platform tooling acting on behalf of
// a tenant). A malformed tenant id resolves to no tenant rather than an error.
func TenantContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := GetTenantID(c)
			slug, _ := c.Get("tenantSlug").(string)
			name, _ := c.Get("tenantName").(string)

			if id == "" {
				id = c.Request().Header.Get("X-Tenant-Id")
				slug = c.Request().Header.Get("X-Tenant-Slug")
				name = c.Request().Header.Get("X-Tenant-Name")
			}

			tc := tenant.Resolve(id, slug, name)
			c.Set("tenantContext", tc)
			c.SetRequest(c.Request().WithContext(tenant.WithContext(c.Request().Context(), tc)))

			return next(c)
		}
	}
}

// GetTenantContext returns the resolved tenant context for the request.
func GetTenantContext(c echo.Context) tenant.Context {
	if tc, ok := c.Get("tenantContext").(tenant.Context); ok {
		return tc
	}
	return tenant.Context{}
}
