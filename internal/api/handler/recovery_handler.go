package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stallpos/auth-service/internal/api/metrics"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

// RecoveryHandler exposes the password recovery paths. None of its routes
// require authentication.
type RecoveryHandler struct {
	recovery ports.RecoveryService
}

func NewRecoveryHandler(recovery ports.RecoveryService) *RecoveryHandler {
	return &RecoveryHandler{recovery: recovery}
}

type requestCodeRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

type verifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type resetWithTokenRequest struct {
	ResetToken  string `json:"reset_token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type resetByContactRequest struct {
	Username    string `json:"username" validate:"required"`
	Method      string `json:"method" validate:"required,oneof=phone email"`
	Contact     string `json:"contact" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type secretWordResetRequest struct {
	Username    string `json:"username" validate:"required"`
	SecretWord  string `json:"secret_word" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type verifyCodeResponse struct {
	ResetToken string `json:"reset_token"`
}

type resetResponse struct {
	PasswordVersion string       `json:"password_version"`
	User            *domain.User `json:"user"`
}

// RequestCode emails a verification code to the user's registered address.
//
// @Summary      Request a recovery code
// @Tags         recovery
// @Accept       json
// @Produce      json
// @Param        body  body      requestCodeRequest  true  "Username and registered email"
// @Success      202   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /v1/recovery/code [post]
func (h *RecoveryHandler) RequestCode(c echo.Context) error {
	var req requestCodeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.recovery.RequestCode(c.Request().Context(), req.Username, req.Email); err != nil {
		metrics.RecoveryCodesTotal.WithLabelValues("request", codeResult(err)).Inc()
		return err
	}
	metrics.RecoveryCodesTotal.WithLabelValues("request", "success").Inc()

	return c.JSON(http.StatusAccepted, map[string]string{"status": "sent"})
}

// VerifyCode exchanges a valid code for a short-lived reset token.
//
// @Summary      Verify a recovery code
// @Tags         recovery
// @Accept       json
// @Produce      json
// @Param        body  body      verifyCodeRequest  true  "Email and six digit code"
// @Success      200   {object}  verifyCodeResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /v1/recovery/code/verify [post]
func (h *RecoveryHandler) VerifyCode(c echo.Context) error {
	var req verifyCodeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := h.recovery.VerifyCode(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		metrics.RecoveryCodesTotal.WithLabelValues("verify", codeResult(err)).Inc()
		return err
	}
	metrics.RecoveryCodesTotal.WithLabelValues("verify", "success").Inc()

	return c.JSON(http.StatusOK, verifyCodeResponse{ResetToken: token})
}

// ResetWithToken sets a new password using a reset token.
//
// @Summary      Reset password with a reset token
// @Tags         recovery
// @Accept       json
// @Produce      json
// @Param        body  body      resetWithTokenRequest  true  "Reset token and new password"
// @Success      200   {object}  resetResponse
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/recovery/reset [post]
func (h *RecoveryHandler) ResetWithToken(c echo.Context) error {
	var req resetWithTokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.recovery.ResetPasswordWithToken(c.Request().Context(), req.ResetToken, req.NewPassword)
	if err != nil {
		return err
	}
	metrics.PasswordChangesTotal.WithLabelValues("token").Inc()

	return c.JSON(http.StatusOK, resetResponse{PasswordVersion: res.PasswordVersion, User: res.User})
}

// ResetByContact sets a new password when the supplied phone or email matches.
//
// @Summary      Reset password by contact match
// @Tags         recovery
// @Accept       json
// @Produce      json
// @Param        body  body      resetByContactRequest  true  "Username, contact method, contact and new password"
// @Success      200   {object}  resetResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/recovery/contact [post]
func (h *RecoveryHandler) ResetByContact(c echo.Context) error {
	var req resetByContactRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.recovery.ResetPasswordByContact(c.Request().Context(), req.Username, req.Method, req.Contact, req.NewPassword)
	if err != nil {
		return err
	}
	metrics.PasswordChangesTotal.WithLabelValues("contact").Inc()

	return c.JSON(http.StatusOK, resetResponse{PasswordVersion: res.PasswordVersion, User: res.User})
}

// ResetWithSecretWord sets a new password when the full secret word matches.
//
// @Summary      Reset password with the secret word
// @Tags         recovery
// @Accept       json
// @Produce      json
// @Param        body  body      secretWordResetRequest  true  "Username, secret word and new password"
// @Success      200   {object}  resetResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /v1/recovery/secret-word [post]
func (h *RecoveryHandler) ResetWithSecretWord(c echo.Context) error {
	var req secretWordResetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.recovery.RecoverWithSecretWord(c.Request().Context(), req.Username, req.SecretWord, req.NewPassword)
	if err != nil {
		return err
	}
	metrics.PasswordChangesTotal.WithLabelValues("secret_word").Inc()

	return c.JSON(http.StatusOK, resetResponse{PasswordVersion: res.PasswordVersion, User: res.User})
}

func codeResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, domain.ErrInvalidCode):
		return "invalid"
	case errors.Is(err, domain.ErrCodeExpired):
		return "expired"
	default:
		return "error"
	}
}
