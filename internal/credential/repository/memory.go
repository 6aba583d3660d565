package repository

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"passkey-gate/internal/credential/domain"
)

// MemoryRepository is an in-memory Repository used in tests and when no database is configured.
// All mutations happen under one mutex, so compare-and-set semantics match the Postgres implementation.
type MemoryRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.Credential // keyed by string(credential id)
}

// NewMemoryRepository returns an empty in-memory credential repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Credential)}
}

// GetByCredentialID returns a copy of the credential, or nil if not found.
func (r *MemoryRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[string(credentialID)]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

// ListByIdentity returns copies of the identity's credentials ordered by creation time.
func (r *MemoryRepository) ListByIdentity(ctx context.Context, identityID string) ([]*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Credential
	for _, c := range r.byID {
		if c.IdentityID == identityID {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return bytes.Compare(out[i].CredentialID, out[j].CredentialID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Upsert inserts c or updates the same identity's active row.
func (r *MemoryRepository) Upsert(ctx context.Context, c *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(c.CredentialID)
	if existing, ok := r.byID[key]; ok {
		if existing.IdentityID != c.IdentityID {
			return ErrOwnedByOtherIdentity
		}
		if !existing.IsActive {
			return ErrRevoked
		}
		updated := clone(c)
		updated.ID = existing.ID
		updated.CreatedAt = existing.CreatedAt
		updated.LastUsedAt = existing.LastUsedAt
		updated.IsActive = true
		r.byID[key] = updated
		c.ID = existing.ID
		c.IsActive = true
		return nil
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.IsActive = true
	r.byID[key] = clone(c)
	return nil
}

// UpdateCounter performs a compare-and-set on the stored counter.
func (r *MemoryRepository) UpdateCounter(ctx context.Context, credentialID []byte, expected, next uint32, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[string(credentialID)]
	if !ok || !c.IsActive || c.SignCount != expected {
		return ErrCounterConflict
	}
	c.SignCount = next
	t := usedAt
	c.LastUsedAt = &t
	return nil
}

// Deactivate marks the identity's active credential inactive.
func (r *MemoryRepository) Deactivate(ctx context.Context, identityID string, credentialID []byte, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[string(credentialID)]
	if !ok || c.IdentityID != identityID || !c.IsActive {
		return ErrNotFound
	}
	c.IsActive = false
	t := at
	c.RevokedAt = &t
	return nil
}

func clone(c *domain.Credential) *domain.Credential {
	out := *c
	out.CredentialID = append([]byte(nil), c.CredentialID...)
	out.PublicKey = append([]byte(nil), c.PublicKey...)
	out.AAGUID = append([]byte(nil), c.AAGUID...)
	out.Transports = append([]string(nil), c.Transports...)
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		out.LastUsedAt = &t
	}
	if c.RevokedAt != nil {
		t := *c.RevokedAt
		out.RevokedAt = &t
	}
	return &out
}
