package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stallpos/auth-service/internal/core/credential"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
	"github.com/stallpos/auth-service/internal/core/service"
	"github.com/stallpos/auth-service/internal/infrastructure/db/memory"
	"github.com/stallpos/auth-service/internal/infrastructure/email"
	"github.com/stallpos/auth-service/internal/infrastructure/queue"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func (c *apiClient) do(method, path, token, body string) (int, map[string]any) {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			c.t.Fatalf("%s %s: invalid json %q", method, path, rec.Body.String())
		}
	}
	return rec.Code, resp
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	toucher := queue.NewActivityToucher(1, sessions, zerolog.Nop())
	toucher.Start(ctx)

	hasher := credential.NewHasher(bcrypt.MinCost)
	tokens := service.NewTokenManager("router-secret", "stallauth", time.Hour, 10*time.Minute)
	auth := service.NewAuthService(users, sessions, toucher, hasher, tokens, zerolog.Nop())
	recovery := service.NewRecoveryService(users, memory.NewVerificationRepository(), email.NewLogSender(zerolog.Nop()), hasher, tokens, 0, zerolog.Nop())

	if _, err := auth.Register(ctx, ports.RegisterInput{Username: "admin", Password: "adm!n!23", Role: domain.RoleAdmin}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	e := NewRouter(Dependencies{
		Auth:       auth,
		Recovery:   recovery,
		Log:        zerolog.Nop(),
		Registerer: prometheus.NewRegistry(),
	})
	return &apiClient{t: t, handler: e}
}

func TestRouter_SessionLifecycle(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(http.MethodPost, "/v1/auth/login", "", `{"username":"admin","password":"adm!n!23"}`)
	if status != http.StatusOK {
		t.Fatalf("admin login: %d %v", status, body)
	}
	adminToken := body["token"].(string)

	status, body = api.do(http.MethodPost, "/v1/users", adminToken, `{"username":"maria","password":"m@r!a1","email":"maria@example.com"}`)
	if status != http.StatusCreated {
		t.Fatalf("register: %d %v", status, body)
	}

	status, body = api.do(http.MethodPost, "/v1/auth/login", "", `{"username":"maria","password":"m@r!a1"}`)
	if status != http.StatusOK {
		t.Fatalf("maria login: %d %v", status, body)
	}
	first := body["token"].(string)

	status, _ = api.do(http.MethodPost, "/v1/users", first, `{"username":"x","password":"p@ss!1"}`)
	if status != http.StatusForbidden {
		t.Fatalf("non-admin register: expected 403, got %d", status)
	}

	status, body = api.do(http.MethodGet, "/v1/auth/me", first, "")
	if status != http.StatusOK || body["user"].(map[string]any)["username"] != "maria" {
		t.Fatalf("me: %d %v", status, body)
	}

	status, body = api.do(http.MethodPost, "/v1/auth/password", first, `{"old_password":"m@r!a1","new_password":"n3w!pass!"}`)
	if status != http.StatusOK {
		t.Fatalf("change password: %d %v", status, body)
	}
	second := body["token"].(string)

	status, body = api.do(http.MethodGet, "/v1/auth/me", first, "")
	if status != http.StatusUnauthorized || body["password_changed"] != true {
		t.Fatalf("stale token: expected 401 with password_changed, got %d %v", status, body)
	}

	status, _ = api.do(http.MethodPost, "/v1/auth/logout", second, "")
	if status != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", status)
	}
	status, body = api.do(http.MethodGet, "/v1/auth/me", second, "")
	if status != http.StatusUnauthorized || body["code"] != "session_invalid" {
		t.Fatalf("after logout: %d %v", status, body)
	}
}

func TestRouter_LoginIsOpaque(t *testing.T) {
	api := newTestAPI(t)

	_, unknown := api.do(http.MethodPost, "/v1/auth/login", "", `{"username":"ghost","password":"whatever"}`)
	_, wrong := api.do(http.MethodPost, "/v1/auth/login", "", `{"username":"admin","password":"whatever"}`)
	if unknown["error"] != wrong["error"] || unknown["code"] != "invalid_credentials" {
		t.Fatalf("login failures must be indistinguishable: %v vs %v", unknown, wrong)
	}
}

func TestRouter_Health(t *testing.T) {
	api := newTestAPI(t)

	if status, _ := api.do(http.MethodGet, "/health", "", ""); status != http.StatusOK {
		t.Fatalf("liveness: %d", status)
	}
	if status, body := api.do(http.MethodGet, "/health/ready", "", ""); status != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("readiness without backends: %d %v", status, body)
	}
}
