package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid token")
	ErrSessionInvalid     = errors.New("session is no longer valid")
	ErrSessionExpired     = errors.New("session expired")
	ErrPasswordChanged    = errors.New("password changed; sign in again")
	ErrForbidden          = errors.New("access forbidden")
	ErrValidation         = errors.New("validation failed")

	ErrUserNotFound    = errors.New("user not found")
	ErrAccountNotFound = errors.New("account not found on this device")
	ErrSessionNotFound = errors.New("session not found")
	ErrNoCodeFound     = errors.New("no verification code found")
	ErrUserExists      = errors.New("user already exists")
	ErrDuplicateCode   = errors.New("verification code already exists")

	ErrEmailMismatch     = errors.New("email does not match our records")
	ErrContactMismatch   = errors.New("contact does not match our records")
	ErrRateLimited       = errors.New("too many requests")
	ErrCodeExpired       = errors.New("verification code expired")
	ErrTooManyAttempts   = errors.New("too many attempts")
	ErrInvalidCode       = errors.New("invalid verification code")
	ErrSecretWordNotSet  = errors.New("secret word is not set")
	ErrChallengeFailed   = errors.New("secret word answers do not match")
	ErrEmailUnavailable  = errors.New("email channel unavailable")
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
)

// AuthError decorates a sentinel error with the details a client needs to
// self-correct. errors.Is matches against the wrapped sentinel.
type AuthError struct {
	Kind            error
	Message         string
	Field           string
	Remaining       int
	RetryAfter      time.Duration
	PasswordChanged bool
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Kind
}

// NewValidationError reports a rejected input field.
func NewValidationError(field, reason string) *AuthError {
	return &AuthError{
		Kind:    ErrValidation,
		Field:   field,
		Message: fmt.Sprintf("%s %s", field, reason),
	}
}

// NewInvalidCodeError reports a wrong code along with the attempts left.
func NewInvalidCodeError(remaining int) *AuthError {
	if remaining < 0 {
		remaining = 0
	}
	return &AuthError{
		Kind:      ErrInvalidCode,
		Remaining: remaining,
		Message:   fmt.Sprintf("invalid verification code; %d attempt(s) remaining", remaining),
	}
}

// NewRateLimitedError reports a throttled request and how long to wait when known.
func NewRateLimitedError(retryAfter time.Duration) *AuthError {
	msg := "too many verification codes requested; try again later"
	if retryAfter > 0 {
		msg = fmt.Sprintf("too many verification codes requested; try again in %d minute(s)", int(retryAfter.Round(time.Minute)/time.Minute))
	}
	return &AuthError{Kind: ErrRateLimited, RetryAfter: retryAfter, Message: msg}
}

// NewPasswordChangedError flags a session issued under an older password.
func NewPasswordChangedError() *AuthError {
	return &AuthError{Kind: ErrPasswordChanged, PasswordChanged: true}
}

// AsAuthError extracts the *AuthError from err, if any.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
