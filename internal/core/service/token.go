package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stallpos/auth-service/internal/core/domain"
)

const (
	tokenTypeSession = "session"
	tokenTypeReset   = "password_reset"

	DefaultSessionTTL = 24 * time.Hour
	DefaultResetTTL   = 10 * time.Minute
)

// SessionClaims is carried by every bearer token issued at login.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username        string `json:"username"`
	Role            string `json:"role"`
	PasswordVersion string `json:"pv"`
	Type            string `json:"typ"`
}

// ResetClaims is carried by the narrowly scoped token minted after a
// verification code is confirmed.
type ResetClaims struct {
	jwt.RegisteredClaims
	Email           string `json:"email"`
	Purpose         string `json:"purpose"`
	PasswordVersion string `json:"pv"`
	Type            string `json:"typ"`
}

// TokenManager signs and parses HS256 tokens.
type TokenManager struct {
	secret     []byte
	issuer     string
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

// NewTokenManager creates a manager. Non-positive lifetimes fall back to the defaults.
func NewTokenManager(secret, issuer string, sessionTTL, resetTTL time.Duration) *TokenManager {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		sessionTTL: sessionTTL,
		resetTTL:   resetTTL,
		now:        time.Now,
	}
}

// SessionTTL returns the configured session lifetime.
func (t *TokenManager) SessionTTL() time.Duration {
	return t.sessionTTL
}

// IssueSession mints a session token for user.
func (t *TokenManager) IssueSession(user *domain.User) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.sessionTTL)
	claims := SessionClaims{
		RegisteredClaims: t.registered(user.ID, now, expiresAt),
		Username:         user.Username,
		Role:             user.Role,
		PasswordVersion:  user.PasswordVersion,
		Type:             tokenTypeSession,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseSession verifies signature, expiry and token type.
func (t *TokenManager) ParseSession(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := t.parse(token, claims); err != nil || claims.Type != tokenTypeSession || claims.Subject == "" {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// IssueReset mints a password-reset token bound to the user, email and the
// current password version.
func (t *TokenManager) IssueReset(user *domain.User, email string) (string, error) {
	now := t.now()
	claims := ResetClaims{
		RegisteredClaims: t.registered(user.ID, now, now.Add(t.resetTTL)),
		Email:            email,
		Purpose:          domain.PurposePasswordReset,
		PasswordVersion:  user.PasswordVersion,
		Type:             tokenTypeReset,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return signed, nil
}

// ParseReset accepts only reset tokens whose purpose is password_reset.
func (t *TokenManager) ParseReset(token string) (*ResetClaims, error) {
	claims := &ResetClaims{}
	if err := t.parse(token, claims); err != nil {
		return nil, domain.ErrResetTokenInvalid
	}
	if claims.Type != tokenTypeReset || claims.Purpose != domain.PurposePasswordReset || claims.Subject == "" {
		return nil, domain.ErrResetTokenInvalid
	}
	return claims, nil
}

func (t *TokenManager) registered(subject string, now, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    t.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (t *TokenManager) parse(token string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return domain.ErrInvalidToken
	}
	return nil
}
