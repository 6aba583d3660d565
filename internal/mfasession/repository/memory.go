package repository

import (
	"context"
	"sync"
	"time"

	"passkey-gate/internal/mfasession/domain"
)

// MemoryRepository is an in-memory Repository with the same version semantics as Postgres.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session)}
}

// Get returns a copy of the identity's session, or nil.
func (r *MemoryRepository) Get(ctx context.Context, identityID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[identityID]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

// Save stores a copy of s under the version check.
func (r *MemoryRepository) Save(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[s.IdentityID]
	switch {
	case s.Version == 0 && ok:
		return ErrVersionConflict
	case s.Version != 0 && (!ok || cur.Version != s.Version):
		return ErrVersionConflict
	}
	s.Version++
	r.sessions[s.IdentityID] = copySession(s)
	return nil
}

// Delete removes the identity's session.
func (r *MemoryRepository) Delete(ctx context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, identityID)
	return nil
}

func copySession(s *domain.Session) *domain.Session {
	c := *s
	c.OTPVerifiedAt = copyTime(s.OTPVerifiedAt)
	c.StepAVerifiedAt = copyTime(s.StepAVerifiedAt)
	c.StepBVerifiedAt = copyTime(s.StepBVerifiedAt)
	c.FullyVerifiedAt = copyTime(s.FullyVerifiedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
