package ports

import (
	"context"
	"time"

	"github.com/stallpos/auth-service/internal/core/domain"
)

// VerificationRepository persists emailed one-time codes.
type VerificationRepository interface {
	Create(ctx context.Context, code *domain.VerificationCode) error
	// CountSince counts codes for email+purpose created at or after since.
	CountSince(ctx context.Context, email, purpose string, since time.Time) (int64, error)
	// OldestSince returns the creation time of the oldest code in the window.
	OldestSince(ctx context.Context, email, purpose string, since time.Time) (time.Time, error)
	// FindLatestUnverified sorts by creation time descending and takes the first
	// unverified code. Returns domain.ErrNoCodeFound when there is none.
	FindLatestUnverified(ctx context.Context, email, purpose string) (*domain.VerificationCode, error)
	// ReserveAttempt bumps the attempt counter only while it is below limit and
	// the code is unverified, in one atomic step, and returns the new value.
	// It fails with domain.ErrTooManyAttempts once the ceiling is reached and
	// domain.ErrNoCodeFound when the code is gone or already verified.
	ReserveAttempt(ctx context.Context, id string, limit int) (int, error)
	// MarkVerified flips an unverified code to verified; a code that is already
	// verified yields domain.ErrNoCodeFound.
	MarkVerified(ctx context.Context, id string) error
}
