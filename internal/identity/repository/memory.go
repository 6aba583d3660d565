package repository

import (
	"context"
	"sync"
	"time"

	"passkey-gate/internal/identity/domain"
)

// MemoryRepository keeps admin accounts in memory. Used in tests and in development without a database.
type MemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.Admin
	byEmail map[string]string
}

// NewMemoryRepository returns an empty in-memory admin repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Admin), byEmail: make(map[string]string)}
}

// GetByID returns a copy of the admin, or nil.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Admin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

// GetByEmail returns a copy of the admin, or nil.
func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	r.mu.Lock()
	id, ok := r.byEmail[email]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

// Create stores a copy of a.
func (r *MemoryRepository) Create(ctx context.Context, a *domain.Admin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[a.Email]; ok {
		return ErrEmailTaken
	}
	c := *a
	r.byID[a.ID] = &c
	r.byEmail[a.Email] = a.ID
	return nil
}

// UpdatePasswordHash replaces the stored hash for id.
func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.byID[id]; ok {
		a.PasswordHash = passwordHash
		a.UpdatedAt = time.Now().UTC()
	}
	return nil
}
