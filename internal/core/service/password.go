package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stallpos/auth-service/internal/core/credential"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

// setPassword validates, hashes and stores a new password together with its
// version fingerprint. Stale sessions are evicted lazily on their next check.
func setPassword(ctx context.Context, users ports.UserRepository, hasher *credential.Hasher, userID, password string, now time.Time) (*domain.User, error) {
	if err := credential.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := hasher.HashForStorage(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	version := credential.PasswordVersionFingerprint(hash)
	at := now.UTC()

	return users.Update(ctx, userID, domain.UserUpdate{
		PasswordHash:      &hash,
		PasswordVersion:   &version,
		PasswordUpdatedAt: &at,
	})
}

// isClientError reports errors that are surfaced to the caller as-is and need
// no internal logging.
func isClientError(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrInvalidCredentials,
		domain.ErrUserNotFound,
		domain.ErrContactMismatch,
		domain.ErrEmailMismatch,
		domain.ErrChallengeFailed,
		domain.ErrSecretWordNotSet,
		domain.ErrResetTokenInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
