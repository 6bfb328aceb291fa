package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stallpos/auth-service/internal/core/credential"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

var _ ports.AuthService = (*AuthService)(nil)

// AuthService implements login, the token authenticator and password management.
type AuthService struct {
	users    ports.UserRepository
	sessions ports.SessionRepository
	activity ports.ActivityRecorder
	hasher   *credential.Hasher
	tokens   *TokenManager
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthService(
	users ports.UserRepository,
	sessions ports.SessionRepository,
	activity ports.ActivityRecorder,
	hasher *credential.Hasher,
	tokens *TokenManager,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		activity: activity,
		hasher:   hasher,
		tokens:   tokens,
		log:      log,
		now:      time.Now,
	}
}

// Login verifies credentials and issues a session. Unknown usernames and wrong
// passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (*ports.LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByUsername(ctx, credential.NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		s.log.Error().Err(err).Str("username", username).Msg("login: user lookup failed")
		return nil, fmt.Errorf("login: %w", err)
	}

	if !s.hasher.VerifyStorageHash(password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, domain.ErrAccountInactive
	}

	return s.issueSession(ctx, user)
}

// Authenticate is the gate every protected operation passes through.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.ParseSession(token)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidToken
		}
		s.log.Error().Err(err).Str("user_id", claims.Subject).Msg("authenticate: user lookup failed")
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !user.IsActive() {
		return nil, domain.ErrAccountInactive
	}

	fingerprint := credential.TokenFingerprint(token)
	session, err := s.sessions.FindByToken(ctx, fingerprint, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrSessionInvalid
		}
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("authenticate: session lookup failed")
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	now := s.now()
	if session.Expired(now) {
		s.dropSession(ctx, fingerprint, user.ID)
		return nil, domain.ErrSessionExpired
	}
	if session.PasswordVersion != passwordVersion(user) {
		s.dropSession(ctx, fingerprint, user.ID)
		return nil, domain.NewPasswordChangedError()
	}

	s.activity.Record(fingerprint, now)
	return user, nil
}

// Logout deletes the session bound to token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if _, err := s.tokens.ParseSession(token); err != nil {
		return domain.ErrInvalidToken
	}
	if err := s.sessions.Delete(ctx, credential.TokenFingerprint(token)); err != nil {
		s.log.Error().Err(err).Msg("logout: delete session failed")
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Register creates a new active account.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || strings.ContainsAny(username, " \t\r\n") {
		return nil, domain.NewValidationError("username", "must be non-empty and contain no spaces")
	}
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if role != domain.RoleAdmin && role != domain.RoleUser {
		return nil, domain.NewValidationError("role", "must be admin or user")
	}
	if err := credential.ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashForStorage(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		Username:          username,
		Role:              role,
		Status:            domain.StatusActive,
		PasswordHash:      hash,
		PasswordVersion:   credential.PasswordVersionFingerprint(hash),
		PasswordUpdatedAt: now,
		Phone:             strings.TrimSpace(in.Phone),
		Email:             credential.NormalizeEmail(in.Email),
		StallID:           strings.TrimSpace(in.StallID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if user.Phone != "" || user.Email != "" {
		user.RecoveryUpdatedAt = now
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if !errors.Is(err, domain.ErrUserExists) {
			s.log.Error().Err(err).Str("username", username).Msg("register: create user failed")
		}
		return nil, err
	}
	s.log.Info().Str("user_id", created.ID).Str("username", created.Username).Str("role", created.Role).Msg("user registered")
	return created, nil
}

// EnsureBootstrapAdmin creates an admin account unless the username already exists.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, username, password string) (*domain.User, bool, error) {
	existing, err := s.users.FindByUsername(ctx, credential.NormalizeUsername(username))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, false, err
	}
	created, err := s.Register(ctx, ports.RegisterInput{Username: username, Password: password, Role: domain.RoleAdmin})
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// ChangePassword replaces the caller's password. Every session issued under the
// old password fails its next authentication; the caller receives a fresh one.
func (s *AuthService) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) (*ports.LoginResult, error) {
	user, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if !s.hasher.VerifyStorageHash(oldPassword, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	updated, err := setPassword(ctx, s.users, s.hasher, user.ID, newPassword, s.now())
	if err != nil {
		if !isClientError(err) {
			s.log.Error().Err(err).Str("user_id", user.ID).Msg("change password: update failed")
		}
		return nil, err
	}
	s.log.Info().Str("user_id", user.ID).Msg("password changed")

	return s.issueSession(ctx, updated)
}

// UpdateRecovery stores recovery contacts and the secret word for user.
func (s *AuthService) UpdateRecovery(ctx context.Context, user *domain.User, in ports.RecoveryInput) (*domain.User, error) {
	var upd domain.UserUpdate
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		upd.Phone = &phone
	}
	if in.Email != nil {
		email := credential.NormalizeEmail(*in.Email)
		upd.Email = &email
	}
	if in.SecretWord != nil {
		if err := credential.ValidateSecretWord(*in.SecretWord); err != nil {
			return nil, err
		}
		word := credential.NormalizeSecretWord(*in.SecretWord)
		hash, err := s.hasher.HashForStorage(word)
		if err != nil {
			return nil, fmt.Errorf("update recovery: hash secret word: %w", err)
		}
		length := len(word)
		upd.SecretWordHash = &hash
		upd.SecretWordLength = &length
	}
	now := s.now().UTC()
	upd.RecoveryUpdatedAt = &now

	updated, err := s.users.Update(ctx, user.ID, upd)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("update recovery failed")
		return nil, err
	}
	return updated, nil
}

// RequireRole reports domain.ErrForbidden unless user holds one of roles.
func RequireRole(user *domain.User, roles ...string) error {
	if user == nil {
		return domain.ErrForbidden
	}
	for _, r := range roles {
		if user.Role == r {
			return nil
		}
	}
	return &domain.AuthError{
		Kind:    domain.ErrForbidden,
		Message: fmt.Sprintf("role %s required", strings.Join(roles, " or ")),
	}
}

func (s *AuthService) issueSession(ctx context.Context, user *domain.User) (*ports.LoginResult, error) {
	if user.PasswordVersion == "" {
		user.PasswordVersion = passwordVersion(user)
	}
	token, expiresAt, err := s.tokens.IssueSession(user)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &domain.Session{
		ID:               uuid.NewString(),
		TokenFingerprint: credential.TokenFingerprint(token),
		UserID:           user.ID,
		PasswordVersion:  user.PasswordVersion,
		ExpiresAt:        expiresAt.UTC(),
		LastActivityAt:   now,
		CreatedAt:        now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("persist session failed")
		return nil, fmt.Errorf("issue session: %w", err)
	}

	return &ports.LoginResult{
		Token:           token,
		PasswordVersion: user.PasswordVersion,
		ExpiresAt:       expiresAt,
		User:            user,
	}, nil
}

func (s *AuthService) dropSession(ctx context.Context, fingerprint, userID string) {
	if err := s.sessions.Delete(ctx, fingerprint); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to delete stale session")
	}
}

// passwordVersion returns the stored fingerprint, deriving it for records
// written before fingerprints were persisted.
func passwordVersion(user *domain.User) string {
	if user.PasswordVersion != "" {
		return user.PasswordVersion
	}
	return credential.PasswordVersionFingerprint(user.PasswordHash)
}
