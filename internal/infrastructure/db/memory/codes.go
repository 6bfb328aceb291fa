package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

var _ ports.VerificationRepository = (*VerificationRepository)(nil)

// VerificationRepository stores verification codes in insertion order.
type VerificationRepository struct {
	mu    sync.Mutex
	codes []*domain.VerificationCode
}

func NewVerificationRepository() *VerificationRepository {
	return &VerificationRepository{}
}

func (r *VerificationRepository) Create(_ context.Context, code *domain.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.codes {
		if c.ID == code.ID {
			return domain.ErrDuplicateCode
		}
	}
	stored := *code
	r.codes = append(r.codes, &stored)
	return nil
}

func (r *VerificationRepository) CountSince(_ context.Context, email, purpose string, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.window(email, purpose, since))), nil
}

func (r *VerificationRepository) OldestSince(_ context.Context, email, purpose string, since time.Time) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matches := r.window(email, purpose, since)
	if len(matches) == 0 {
		return time.Time{}, domain.ErrNoCodeFound
	}
	oldest := matches[0].CreatedAt
	for _, c := range matches[1:] {
		if c.CreatedAt.Before(oldest) {
			oldest = c.CreatedAt
		}
	}
	return oldest, nil
}

func (r *VerificationRepository) FindLatestUnverified(_ context.Context, email, purpose string) (*domain.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*domain.VerificationCode
	for _, c := range r.codes {
		if c.Email == email && c.Purpose == purpose && !c.Verified {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoCodeFound
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	latest := *candidates[0]
	return &latest, nil
}

func (r *VerificationRepository) ReserveAttempt(_ context.Context, id string, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(id)
	if c == nil || c.Verified {
		return 0, domain.ErrNoCodeFound
	}
	if c.Attempts >= limit {
		return c.Attempts, domain.ErrTooManyAttempts
	}
	c.Attempts++
	return c.Attempts, nil
}

func (r *VerificationRepository) MarkVerified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(id)
	if c == nil || c.Verified {
		return domain.ErrNoCodeFound
	}
	c.Verified = true
	return nil
}

func (r *VerificationRepository) window(email, purpose string, since time.Time) []*domain.VerificationCode {
	var out []*domain.VerificationCode
	for _, c := range r.codes {
		if c.Email == email && c.Purpose == purpose && !c.CreatedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out
}

func (r *VerificationRepository) find(id string) *domain.VerificationCode {
	for _, c := range r.codes {
		if c.ID == id {
			return c
		}
	}
	return nil
}
