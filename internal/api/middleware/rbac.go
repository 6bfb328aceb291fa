package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/service"
)

// RBAC enforces role-based access control. It must run after Auth.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, _ := c.Get(ContextKeyUser).(*domain.User)
			if err := service.RequireRole(user, allowedRoles...); err != nil {
				return err
			}
			return next(c)
		}
	}
}
