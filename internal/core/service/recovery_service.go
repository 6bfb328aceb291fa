package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"html"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stallpos/auth-service/internal/core/credential"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

const (
	CodeWindow        = 60 * time.Minute
	MaxCodesPerWindow = 3
	MaxCodeAttempts   = 5
	DefaultCodeTTL    = 5 * time.Minute

	codeMin = 100000
	codeMax = 999999
)

var _ ports.RecoveryService = (*RecoveryService)(nil)

// RecoveryService implements the emailed-code, contact-match and secret-word
// recovery paths.
type RecoveryService struct {
	users   ports.UserRepository
	codes   ports.VerificationRepository
	email   ports.EmailSender
	hasher  *credential.Hasher
	tokens  *TokenManager
	codeTTL time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

func NewRecoveryService(
	users ports.UserRepository,
	codes ports.VerificationRepository,
	email ports.EmailSender,
	hasher *credential.Hasher,
	tokens *TokenManager,
	codeTTL time.Duration,
	log zerolog.Logger,
) *RecoveryService {
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}
	return &RecoveryService{
		users:   users,
		codes:   codes,
		email:   email,
		hasher:  hasher,
		tokens:  tokens,
		codeTTL: codeTTL,
		log:     log,
		now:     time.Now,
	}
}

// RequestCode generates a one-time code for the user's registered email and
// dispatches it. A failed dispatch leaves the stored code orphaned.
func (s *RecoveryService) RequestCode(ctx context.Context, username, email string) error {
	user, err := s.lookupUser(ctx, username)
	if err != nil {
		return err
	}

	normalized := credential.NormalizeEmail(email)
	if normalized == "" || normalized != credential.NormalizeEmail(user.Email) {
		return domain.ErrEmailMismatch
	}

	now := s.now().UTC()
	since := now.Add(-CodeWindow)
	count, err := s.codes.CountSince(ctx, normalized, domain.PurposePasswordReset, since)
	if err != nil {
		s.log.Error().Err(err).Str("email", normalized).Msg("request code: count failed")
		return fmt.Errorf("request code: %w", err)
	}
	if count >= MaxCodesPerWindow {
		var retryAfter time.Duration
		if oldest, err := s.codes.OldestSince(ctx, normalized, domain.PurposePasswordReset, since); err == nil {
			retryAfter = oldest.Add(CodeWindow).Sub(now)
		}
		return domain.NewRateLimitedError(retryAfter)
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("request code: %w", err)
	}
	record := &domain.VerificationCode{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     normalized,
		Purpose:   domain.PurposePasswordReset,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.codeTTL),
	}
	if err := s.codes.Create(ctx, record); err != nil {
		if errors.Is(err, domain.ErrDuplicateCode) {
			return err
		}
		s.log.Error().Err(err).Str("email", normalized).Msg("request code: persist failed")
		return fmt.Errorf("request code: %w", err)
	}

	subject, body := codeEmail(user.Username, code, s.codeTTL)
	if err := s.email.Send(ctx, normalized, subject, body); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Str("email", normalized).Msg("request code: email dispatch failed")
		return &domain.AuthError{Kind: domain.ErrEmailUnavailable, Message: "could not send verification email"}
	}

	s.log.Info().Str("user_id", user.ID).Msg("verification code sent")
	return nil
}

// VerifyCode checks code against the latest unverified code for email and, on
// success, returns a reset token.
func (s *RecoveryService) VerifyCode(ctx context.Context, email, code string) (string, error) {
	normalized := credential.NormalizeEmail(email)
	record, err := s.codes.FindLatestUnverified(ctx, normalized, domain.PurposePasswordReset)
	if err != nil {
		if errors.Is(err, domain.ErrNoCodeFound) {
			return "", err
		}
		s.log.Error().Err(err).Str("email", normalized).Msg("verify code: lookup failed")
		return "", fmt.Errorf("verify code: %w", err)
	}

	if record.Expired(s.now()) {
		return "", domain.ErrCodeExpired
	}

	// Every comparison holds a reserved attempt, so the ceiling bounds the
	// number of guesses evaluated even when requests race.
	attempts, err := s.codes.ReserveAttempt(ctx, record.ID, MaxCodeAttempts)
	if err != nil {
		if errors.Is(err, domain.ErrTooManyAttempts) || errors.Is(err, domain.ErrNoCodeFound) {
			return "", err
		}
		s.log.Error().Err(err).Str("code_id", record.ID).Msg("verify code: reserve attempt failed")
		return "", fmt.Errorf("verify code: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(record.Code)) != 1 {
		return "", domain.NewInvalidCodeError(MaxCodeAttempts - attempts)
	}

	if err := s.codes.MarkVerified(ctx, record.ID); err != nil {
		if errors.Is(err, domain.ErrNoCodeFound) {
			return "", err
		}
		s.log.Error().Err(err).Str("code_id", record.ID).Msg("verify code: mark verified failed")
		return "", fmt.Errorf("verify code: %w", err)
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", err
		}
		s.log.Error().Err(err).Str("user_id", record.UserID).Msg("verify code: user lookup failed")
		return "", fmt.Errorf("verify code: %w", err)
	}
	if user.PasswordVersion == "" {
		user.PasswordVersion = passwordVersion(user)
	}

	return s.tokens.IssueReset(user, normalized)
}

// ResetPasswordWithToken sets a new password using a token minted by VerifyCode.
// The token is bound to the password version at mint time, so it stops working
// once any password reset succeeds.
func (s *RecoveryService) ResetPasswordWithToken(ctx context.Context, resetToken, newPassword string) (*ports.ResetResult, error) {
	claims, err := s.tokens.ParseReset(resetToken)
	if err != nil {
		return nil, domain.ErrResetTokenInvalid
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrResetTokenInvalid
		}
		s.log.Error().Err(err).Str("user_id", claims.Subject).Msg("reset with token: user lookup failed")
		return nil, fmt.Errorf("reset with token: %w", err)
	}
	if credential.NormalizeEmail(user.Email) != claims.Email {
		return nil, domain.ErrResetTokenInvalid
	}
	if claims.PasswordVersion != passwordVersion(user) {
		return nil, domain.ErrResetTokenInvalid
	}

	return s.reset(ctx, user, newPassword, "token")
}

// ResetPasswordByContact sets a new password when contact matches the stored
// phone or email for username.
func (s *RecoveryService) ResetPasswordByContact(ctx context.Context, username, method, contact, newPassword string) (*ports.ResetResult, error) {
	user, err := s.lookupUser(ctx, username)
	if err != nil {
		return nil, err
	}

	var stored, provided string
	switch method {
	case ports.ContactPhone:
		stored, provided = credential.NormalizePhone(user.Phone), credential.NormalizePhone(contact)
	case ports.ContactEmail:
		stored, provided = credential.NormalizeEmail(user.Email), credential.NormalizeEmail(contact)
	default:
		return nil, domain.NewValidationError("method", "must be phone or email")
	}
	if stored == "" || provided != stored {
		return nil, &domain.AuthError{
			Kind:    domain.ErrContactMismatch,
			Message: fmt.Sprintf("%s does not match our records", method),
		}
	}

	return s.reset(ctx, user, newPassword, "contact:"+method)
}

// RecoverWithSecretWord checks the full secret word against its stored hash
// and sets a new password.
func (s *RecoveryService) RecoverWithSecretWord(ctx context.Context, username, secretWord, newPassword string) (*ports.ResetResult, error) {
	user, err := s.lookupUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.HasSecretWord() {
		return nil, domain.ErrSecretWordNotSet
	}
	if !s.hasher.VerifyStorageHash(credential.NormalizeSecretWord(secretWord), user.SecretWordHash) {
		return nil, domain.ErrChallengeFailed
	}

	return s.reset(ctx, user, newPassword, "secret_word")
}

func (s *RecoveryService) reset(ctx context.Context, user *domain.User, newPassword, path string) (*ports.ResetResult, error) {
	updated, err := setPassword(ctx, s.users, s.hasher, user.ID, newPassword, s.now())
	if err != nil {
		if !isClientError(err) {
			s.log.Error().Err(err).Str("user_id", user.ID).Str("path", path).Msg("password reset failed")
		}
		return nil, err
	}
	s.log.Info().Str("user_id", user.ID).Str("path", path).Msg("password reset")
	return &ports.ResetResult{PasswordVersion: updated.PasswordVersion, User: updated}, nil
}

func (s *RecoveryService) lookupUser(ctx context.Context, username string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, domain.NewValidationError("username", "is required")
	}
	user, err := s.users.FindByUsername(ctx, credential.NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, err
		}
		s.log.Error().Err(err).Str("username", username).Msg("recovery: user lookup failed")
		return nil, fmt.Errorf("recovery: %w", err)
	}
	return user, nil
}

// generateCode returns a six digit code drawn uniformly from 100000..999999.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

func codeEmail(username, code string, ttl time.Duration) (string, string) {
	subject := "Your password reset code"
	body := fmt.Sprintf(
		`<p>Hello %s,</p><p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes. If you did not request a password reset you can ignore this email.</p>`,
		html.EscapeString(username), code, int(ttl/time.Minute),
	)
	return subject, body
}
