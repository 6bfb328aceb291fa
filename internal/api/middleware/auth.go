package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/stallpos/auth-service/internal/api/metrics"
	"github.com/stallpos/auth-service/internal/core/domain"
)

// Context keys set by Auth.
const (
	ContextKeyUser  = "user"
	ContextKeyToken = "token"
	ContextKeyRole  = "role"
)

// Authenticator validates a bearer token and returns its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// Auth runs every request through the token authenticator and injects the
// authenticated user into the context.
func Auth(authenticator Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := BearerToken(c.Request())
			if err != nil {
				metrics.AuthenticationFailuresTotal.WithLabelValues("invalid_token").Inc()
				return err
			}

			user, err := authenticator.Authenticate(c.Request().Context(), token)
			if err != nil {
				metrics.AuthenticationFailuresTotal.WithLabelValues(failureReason(err)).Inc()
				return err
			}

			c.Set(ContextKeyUser, user)
			c.Set(ContextKeyToken, token)
			c.Set(ContextKeyRole, user.Role)

			return next(c)
		}
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrSessionInvalid):
		return "session_invalid"
	case errors.Is(err, domain.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, domain.ErrPasswordChanged):
		return "password_changed"
	case errors.Is(err, domain.ErrAccountInactive):
		return "inactive"
	default:
		return "error"
	}
}
