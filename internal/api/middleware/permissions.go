package middleware

import (
	"net/http"

	"authgate/internal/authz"

	"github.com/labstack/echo/v4"
)

// RequirePermissions looks up the route's declared requirement and runs the
// authorization filter against the caller's resolved permissions. Routes with
// no registered requirement pass through unchecked; put them behind the auth
// middleware if they still need a valid session.
func RequirePermissions(registry *authz.Registry, filter *authz.Filter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var requirement *authz.Requirement
			if req, ok := registry.Lookup(c.Request().Method, c.Path()); ok {
				requirement = &req
			}

			outcome := filter.Check(c.Request().Context(), requirement, GetPrincipal(c), GetTenantContext(c))
			if outcome.Proceed() {
				return next(c)
			}

			status := outcome.Status
			if status == 0 {
				status = http.StatusForbidden
			}
			return echo.NewHTTPError(status, outcome.Reason)
		}
	}
}
