package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stallpos/auth-service/internal/api/middleware"
	"github.com/stallpos/auth-service/internal/core/domain"
)

// ctxUser extracts the user and raw token injected by the Auth middleware.
// A missing value means the route was mounted without Auth.
func ctxUser(c echo.Context) (*domain.User, string, error) {
	user, _ := c.Get(middleware.ContextKeyUser).(*domain.User)
	token, _ := c.Get(middleware.ContextKeyToken).(string)
	if user == nil || token == "" {
		return nil, "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication context")
	}
	return user, token, nil
}

// bindAndValidate binds the JSON body into req and runs the registered validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return c.Validate(req)
}
