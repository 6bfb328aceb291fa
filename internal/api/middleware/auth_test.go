package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/stallpos/auth-service/internal/core/domain"
)

type stubAuthenticator struct {
	users map[string]*domain.User
	err   error
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*domain.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[token]
	if !ok {
		return nil, domain.ErrInvalidToken
	}
	return u, nil
}

func newContext(authHeader string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	auth := &stubAuthenticator{users: map[string]*domain.User{
		"tok-1": {ID: "u1", Username: "alice", Role: domain.RoleAdmin},
	}}
	c, rec := newContext("Bearer tok-1")

	called := false
	handler := Auth(auth)(func(c echo.Context) error {
		called = true
		user, ok := c.Get(ContextKeyUser).(*domain.User)
		if !ok || user.Username != "alice" {
			t.Fatalf("user not set")
		}
		if c.Get(ContextKeyToken) != "tok-1" {
			t.Fatalf("token not set")
		}
		if c.Get(ContextKeyRole) != domain.RoleAdmin {
			t.Fatalf("role not set")
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_HeaderErrors(t *testing.T) {
	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Token abc",
		"empty token":  "Bearer   ",
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newContext(header)
			handler := Auth(&stubAuthenticator{})(func(c echo.Context) error {
				t.Fatalf("should not reach next")
				return nil
			})

			err := handler(c)
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401 HTTPError, got %v", err)
			}
		})
	}
}

func TestAuthMiddleware_PropagatesAuthenticatorError(t *testing.T) {
	c, _ := newContext("Bearer stale")
	handler := Auth(&stubAuthenticator{err: domain.NewPasswordChangedError()})(func(c echo.Context) error {
		t.Fatalf("should not reach next")
		return nil
	})

	err := handler(c)
	if !errors.Is(err, domain.ErrPasswordChanged) {
		t.Fatalf("expected ErrPasswordChanged, got %v", err)
	}
}

func TestFailureReason(t *testing.T) {
	if got := failureReason(domain.ErrSessionExpired); got != "session_expired" {
		t.Fatalf("unexpected reason %s", got)
	}
	if got := failureReason(errors.New("boom")); got != "error" {
		t.Fatalf("unexpected reason %s", got)
	}
}
