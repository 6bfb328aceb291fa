package ports

import (
	"context"
	"time"

	"github.com/stallpos/auth-service/internal/core/domain"
)

// RegisterInput carries the fields an admin supplies for a new account.
type RegisterInput struct {
	Username string
	Password string
	Role     string
	Phone    string
	Email    string
	StallID  string
}

// RecoveryInput updates recovery contacts. Nil fields are left untouched.
type RecoveryInput struct {
	Phone      *string
	Email      *string
	SecretWord *string
}

// LoginResult is returned by a successful login or password change.
type LoginResult struct {
	Token           string
	PasswordVersion string
	ExpiresAt       time.Time
	User            *domain.User
}

// AuthService covers login, session validation and password management.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	Logout(ctx context.Context, token string) error
	Register(ctx context.Context, input RegisterInput) (*domain.User, error)
	ChangePassword(ctx context.Context, token, oldPassword, newPassword string) (*LoginResult, error)
	UpdateRecovery(ctx context.Context, user *domain.User, input RecoveryInput) (*domain.User, error)
}
