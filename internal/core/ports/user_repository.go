package ports

import (
	"context"

	"github.com/stallpos/auth-service/internal/core/domain"
)

// UserRepository is the user directory. Usernames are unique case-insensitively.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// Update applies the set fields of upd and returns the stored user.
	Update(ctx context.Context, id string, upd domain.UserUpdate) (*domain.User, error)
}
