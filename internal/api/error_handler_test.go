package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stallpos/auth-service/internal/core/domain"
)

func render(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	NewHTTPErrorHandler(zerolog.Nop())(err, c)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return rec, body
}

func TestHTTPErrorHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{domain.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
		{domain.ErrAccountInactive, http.StatusForbidden, "account_inactive"},
		{domain.NewValidationError("password", "is too short"), http.StatusUnprocessableEntity, "validation_error"},
		{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{domain.ErrEmailMismatch, http.StatusBadRequest, "email_mismatch"},
		{domain.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
		{fmt.Errorf("register: %w", domain.ErrUserExists), http.StatusConflict, "duplicate_username"},
		{&domain.AuthError{Kind: domain.ErrEmailUnavailable}, http.StatusBadGateway, "email_unavailable"},
		{errors.New("mongo: connection reset"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec, body := render(t, tt.err)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			if body["code"] != tt.code {
				t.Fatalf("expected code %s, got %v", tt.code, body["code"])
			}
		})
	}
}

func TestHTTPErrorHandler_HidesInternalErrors(t *testing.T) {
	_, body := render(t, errors.New("pq: relation users does not exist"))
	if body["error"] != "internal server error" {
		t.Fatalf("internal detail leaked: %v", body["error"])
	}
}

func TestHTTPErrorHandler_Details(t *testing.T) {
	rec, body := render(t, domain.NewRateLimitedError(90*time.Second))
	if rec.Header().Get("Retry-After") != "90" {
		t.Fatalf("expected Retry-After 90, got %q", rec.Header().Get("Retry-After"))
	}
	if body["retry_after_seconds"] != float64(90) {
		t.Fatalf("unexpected retry_after_seconds %v", body["retry_after_seconds"])
	}

	_, body = render(t, domain.NewInvalidCodeError(0))
	if body["remaining_attempts"] != float64(0) {
		t.Fatalf("expected remaining_attempts 0, got %v", body["remaining_attempts"])
	}

	rec, body = render(t, domain.NewPasswordChangedError())
	if rec.Code != http.StatusUnauthorized || body["password_changed"] != true {
		t.Fatalf("expected password_changed flag, got %d %v", rec.Code, body)
	}

	_, body = render(t, domain.NewValidationError("secret_word", "must be 6-20 characters"))
	if body["field"] != "secret_word" {
		t.Fatalf("expected field secret_word, got %v", body["field"])
	}
}
