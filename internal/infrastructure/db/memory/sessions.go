package memory

import (
	"context"
	"sync"
	"time"

	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

var _ ports.SessionRepository = (*SessionRepository)(nil)

// SessionRepository keeps sessions in a map keyed by token fingerprint.
// Contents are lost on restart, which invalidates every issued token.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]domain.Session)}
}

func (r *SessionRepository) Create(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.TokenFingerprint] = *session
	return nil
}

func (r *SessionRepository) FindByToken(_ context.Context, tokenFingerprint, userID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[tokenFingerprint]
	if !ok || s.UserID != userID {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (r *SessionRepository) Delete(_ context.Context, tokenFingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, tokenFingerprint)
	return nil
}

func (r *SessionRepository) Touch(_ context.Context, tokenFingerprint string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[tokenFingerprint]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.LastActivityAt = at.UTC()
	r.sessions[tokenFingerprint] = s
	return nil
}

// Len returns the number of stored sessions.
func (r *SessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
