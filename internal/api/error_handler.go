package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stallpos/auth-service/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	Field             string `json:"field,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	PasswordChanged   bool   `json:"password_changed,omitempty"`
}

type errorMapping struct {
	kind   error
	status int
	code   string
}

// errorTable is ordered: the first matching sentinel wins.
var errorTable = []errorMapping{
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{domain.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{domain.ErrSessionInvalid, http.StatusUnauthorized, "session_invalid"},
	{domain.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
	{domain.ErrPasswordChanged, http.StatusUnauthorized, "password_changed"},
	{domain.ErrResetTokenInvalid, http.StatusUnauthorized, "reset_token_invalid"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrAccountInactive, http.StatusForbidden, "account_inactive"},
	{domain.ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
	{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{domain.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{domain.ErrNoCodeFound, http.StatusNotFound, "code_not_found"},
	{domain.ErrEmailMismatch, http.StatusBadRequest, "email_mismatch"},
	{domain.ErrContactMismatch, http.StatusBadRequest, "contact_mismatch"},
	{domain.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{domain.ErrCodeExpired, http.StatusBadRequest, "code_expired"},
	{domain.ErrSecretWordNotSet, http.StatusBadRequest, "secret_word_not_set"},
	{domain.ErrChallengeFailed, http.StatusBadRequest, "challenge_failed"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
	{domain.ErrUserExists, http.StatusConflict, "duplicate_username"},
	{domain.ErrDuplicateCode, http.StatusConflict, "duplicate_code"},
	{domain.ErrEmailUnavailable, http.StatusBadGateway, "email_unavailable"},
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "code": "<kind>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, resp := resolveError(err, log, c)
		if resp.RetryAfterSeconds > 0 {
			c.Response().Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, resp)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message), Code: "http_error"}
	}

	for _, m := range errorTable {
		if !errors.Is(err, m.kind) {
			continue
		}
		resp := errorResponse{Error: err.Error(), Code: m.code}
		if ae, ok := domain.AsAuthError(err); ok {
			resp.Field = ae.Field
			resp.PasswordChanged = ae.PasswordChanged
			if ae.RetryAfter > 0 {
				resp.RetryAfterSeconds = int(math.Ceil(ae.RetryAfter.Seconds()))
			}
			if errors.Is(err, domain.ErrInvalidCode) {
				remaining := ae.Remaining
				resp.RemainingAttempts = &remaining
			}
		}
		return m.status, resp
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "internal"}
}

// KindForCode maps an envelope code back to its domain sentinel. Clients use
// it to rebuild typed errors from API responses.
func KindForCode(code string) (error, bool) {
	for _, m := range errorTable {
		if m.code == code {
			return m.kind, true
		}
	}
	return nil, false
}
