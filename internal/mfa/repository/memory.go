package repository

import (
	"context"
	"sync"
	"time"

	"passkey-gate/internal/mfa/domain"
)

// MemoryRepository keeps OTP codes in process. Used when no DATABASE_URL is configured and in tests.
type MemoryRepository struct {
	mu    sync.Mutex
	codes []*domain.OTPChallenge
}

// NewMemoryRepository returns an empty in-memory OTP repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, c *domain.OTPChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, old := range r.codes {
		if old.IdentityID == c.IdentityID && old.ConsumedAt == nil {
			t := c.CreatedAt
			old.ConsumedAt = &t
		}
	}
	cp := *c
	r.codes = append(r.codes, &cp)
	return nil
}

func (r *MemoryRepository) GetLatestActive(ctx context.Context, identityID string, now time.Time) (*domain.OTPChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.OTPChallenge
	for _, c := range r.codes {
		if c.IdentityID != identityID || !c.Active(now) {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryRepository) Consume(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.ID == id {
			if c.ConsumedAt != nil {
				return false, nil
			}
			t := now
			c.ConsumedAt = &t
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.codes[:0]
	var n int64
	for _, c := range r.codes {
		if c.ExpiresAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	r.codes = kept
	return n, nil
}
