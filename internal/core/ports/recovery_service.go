package ports

import (
	"context"

	"github.com/stallpos/auth-service/internal/core/domain"
)

const (
	ContactPhone = "phone"
	ContactEmail = "email"
)

// ResetResult is returned by every path that sets a new password.
type ResetResult struct {
	PasswordVersion string
	User            *domain.User
}

// RecoveryService covers the password recovery paths. Each path is
// independently sufficient.
type RecoveryService interface {
	RequestCode(ctx context.Context, username, email string) error
	VerifyCode(ctx context.Context, email, code string) (string, error)
	ResetPasswordWithToken(ctx context.Context, resetToken, newPassword string) (*ResetResult, error)
	ResetPasswordByContact(ctx context.Context, username, method, contact, newPassword string) (*ResetResult, error)
	RecoverWithSecretWord(ctx context.Context, username, secretWord, newPassword string) (*ResetResult, error)
}
