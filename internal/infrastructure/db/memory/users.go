// Package memory provides in-process repositories for tests, local
// development and the memory session backend.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

var _ ports.UserRepository = (*UserRepository)(nil)

// UserRepository is a thread-safe user directory keyed by id with a
// case-insensitive username index.
type UserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*domain.User
	byUsername map[string]string
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[string]*domain.User),
		byUsername: make(map[string]string),
	}
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	key := usernameKey(user.Username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[key]; exists {
		return nil, domain.ErrUserExists
	}
	stored := cloneUser(user)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	r.byID[stored.ID] = stored
	r.byUsername[key] = stored.ID
	return cloneUser(stored), nil
}

func (r *UserRepository) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[usernameKey(username)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) Update(_ context.Context, id string, upd domain.UserUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	upd.Apply(u)
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u), nil
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}
