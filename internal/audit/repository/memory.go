package repository

import (
	"context"
	"sort"
	"sync"

	"passkey-gate/internal/audit/domain"
)

// MemoryRepository keeps audit entries in memory. Used in tests and when no database is configured.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []domain.Entry
}

// NewMemoryRepository returns an empty in-memory audit repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Append stores a copy of e.
func (r *MemoryRepository) Append(ctx context.Context, e *domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

// ListByIdentity returns up to limit entries for identityID, newest first.
func (r *MemoryRepository) ListByIdentity(ctx context.Context, identityID string, limit int) ([]*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Entry
	for i := range r.entries {
		if r.entries[i].IdentityID == identityID {
			e := r.entries[i]
			out = append(out, &e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns a copy of every entry in insertion order.
func (r *MemoryRepository) All() []domain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Entry(nil), r.entries...)
}
