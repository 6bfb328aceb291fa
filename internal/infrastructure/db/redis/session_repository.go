package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

var _ ports.SessionRepository = (*SessionRepository)(nil)

// SessionRepository stores sessions as JSON values with a native TTL.
// Key format: session:<token_fingerprint>
type SessionRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewSessionRepository creates a SessionRepository wrapping the given Redis client.
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client, now: time.Now}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.TokenFingerprint), payload, r.ttl(s.ExpiresAt)).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByToken(ctx context.Context, tokenFingerprint, userID string) (*domain.Session, error) {
	s, err := r.load(ctx, tokenFingerprint)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, tokenFingerprint string) error {
	if err := r.client.Del(ctx, sessionKey(tokenFingerprint)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Touch rewrites last-activity and keeps the existing TTL. It never creates a
// session that was deleted concurrently.
func (r *SessionRepository) Touch(ctx context.Context, tokenFingerprint string, at time.Time) error {
	s, err := r.load(ctx, tokenFingerprint)
	if err != nil {
		return err
	}
	s.LastActivityAt = at.UTC()

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = r.client.SetArgs(ctx, sessionKey(tokenFingerprint), payload, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (r *SessionRepository) load(ctx context.Context, tokenFingerprint string) (*domain.Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(tokenFingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// ttl ends the key with the session. The token carries the same expiry, so a
// lapsed session is refused at parse time and never read back.
func (r *SessionRepository) ttl(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(r.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func sessionKey(tokenFingerprint string) string {
	return "session:" + tokenFingerprint
}
