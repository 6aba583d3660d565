package repository

import (
	"context"
	"sync"
	"time"

	"passkey-gate/internal/challenge/domain"
)

// MemoryRepository is an in-memory Repository. ConsumeLatest runs under the mutex, so the
// check-unused-then-mark-used sequence is atomic just like the Postgres conditional UPDATE.
type MemoryRepository struct {
	mu   sync.Mutex
	rows []*domain.Challenge
}

// NewMemoryRepository returns an empty in-memory challenge repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Create supersedes older unused challenges of the same identity and kind, then stores a copy of c.
func (r *MemoryRepository) Create(ctx context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.IdentityID == c.IdentityID && row.Kind == c.Kind && !row.Used {
			row.Used = true
			t := c.IssuedAt
			row.UsedAt = &t
		}
	}
	r.rows = append(r.rows, copyChallenge(c))
	return nil
}

// ConsumeLatest marks and returns the newest active challenge for identityID and kind.
func (r *MemoryRepository) ConsumeLatest(ctx context.Context, identityID string, kind domain.Kind, now time.Time) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Challenge
	for _, row := range r.rows {
		if row.IdentityID != identityID || row.Kind != kind || !row.Active(now) {
			continue
		}
		if latest == nil || row.IssuedAt.After(latest.IssuedAt) ||
			(row.IssuedAt.Equal(latest.IssuedAt) && row.ID > latest.ID) {
			latest = row
		}
	}
	if latest == nil {
		return nil, nil
	}
	latest.Used = true
	t := now
	latest.UsedAt = &t
	return copyChallenge(latest), nil
}

// DeleteExpired drops challenges that expired before cutoff.
func (r *MemoryRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	var n int64
	for _, row := range r.rows {
		if row.ExpiresAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return n, nil
}

func copyChallenge(c *domain.Challenge) *domain.Challenge {
	out := *c
	out.Value = append([]byte(nil), c.Value...)
	out.SessionData = append([]byte(nil), c.SessionData...)
	if c.UsedAt != nil {
		t := *c.UsedAt
		out.UsedAt = &t
	}
	return &out
}
