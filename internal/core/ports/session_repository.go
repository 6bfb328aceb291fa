package ports

import (
	"context"
	"time"

	"github.com/stallpos/auth-service/internal/core/domain"
)

// SessionRepository persists issued sessions keyed by token fingerprint.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	// FindByToken returns domain.ErrSessionNotFound when no session matches
	// both the fingerprint and the owning user.
	FindByToken(ctx context.Context, tokenFingerprint, userID string) (*domain.Session, error)
	// Delete is idempotent.
	Delete(ctx context.Context, tokenFingerprint string) error
	Touch(ctx context.Context, tokenFingerprint string, at time.Time) error
}

// ActivityRecorder accepts last-activity touches without blocking the caller.
type ActivityRecorder interface {
	Record(tokenFingerprint string, at time.Time)
}
