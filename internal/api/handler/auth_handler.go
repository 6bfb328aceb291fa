package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stallpos/auth-service/internal/api/metrics"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=admin user"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	StallID  string `json:"stall_id,omitempty"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type recoveryProfileRequest struct {
	Phone      *string `json:"phone,omitempty"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email"`
	SecretWord *string `json:"secret_word,omitempty"`
}

type sessionResponse struct {
	Token           string       `json:"token"`
	PasswordVersion string       `json:"password_version"`
	ExpiresAt       string       `json:"expires_at"`
	User            *domain.User `json:"user"`
}

type userResponse struct {
	User *domain.User `json:"user"`
}

func newSessionResponse(res *ports.LoginResult) sessionResponse {
	return sessionResponse{
		Token:           res.Token,
		PasswordVersion: res.PasswordVersion,
		ExpiresAt:       res.ExpiresAt.UTC().Format(time.RFC3339),
		User:            res.User,
	}
}

// Login authenticates a user and returns a bearer token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  sessionResponse
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
		return err
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()

	return c.JSON(http.StatusOK, newSessionResponse(res))
}

// Logout invalidates the caller's session.
//
// @Summary      Logout
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  map[string]string
// @Router       /v1/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	_, token, err := ctxUser(c)
	if err != nil {
		return err
	}
	if err := h.authService.Logout(c.Request().Context(), token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user snapshot.
//
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userResponse
// @Failure      401  {object}  map[string]string
// @Router       /v1/auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	user, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{User: user})
}

// ChangePassword replaces the caller's password and returns a fresh session.
// Every other session of the user is invalidated.
//
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "Old and new password"
// @Success      200   {object}  sessionResponse
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/auth/password [post]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	_, token, err := ctxUser(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.authService.ChangePassword(c.Request().Context(), token, req.OldPassword, req.NewPassword)
	if err != nil {
		return err
	}
	metrics.PasswordChangesTotal.WithLabelValues("change").Inc()

	return c.JSON(http.StatusOK, newSessionResponse(res))
}

// UpdateRecovery sets the caller's recovery contacts and secret word.
//
// @Summary      Update recovery profile
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      recoveryProfileRequest  true  "Recovery fields; omitted fields are unchanged"
// @Success      200   {object}  userResponse
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/auth/recovery [put]
func (h *AuthHandler) UpdateRecovery(c echo.Context) error {
	user, _, err := ctxUser(c)
	if err != nil {
		return err
	}
	var req recoveryProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := h.authService.UpdateRecovery(c.Request().Context(), user, ports.RecoveryInput{
		Phone:      req.Phone,
		Email:      req.Email,
		SecretWord: req.SecretWord,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{User: updated})
}

// Register creates a new user account. Admin only.
//
// @Summary      Register a new user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  userResponse
// @Failure      403   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /v1/users [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Phone:    req.Phone,
		Email:    req.Email,
		StallID:  req.StallID,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, userResponse{User: user})
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrAccountInactive):
		return "inactive"
	default:
		return "error"
	}
}
