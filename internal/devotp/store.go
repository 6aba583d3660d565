// Package devotp keeps the latest plaintext OTP per identity for GET /dev/otp.
// Only wired when OTP_RETURN_TO_CLIENT is set outside production.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds the latest plain OTP per identity for dev-only retrieval.
type Store interface {
	// Put stores code for identityID until expiresAt, replacing any previous code.
	Put(ctx context.Context, identityID, code string, expiresAt time.Time)
	// Get returns the code for identityID if present and not expired.
	Get(ctx context.Context, identityID string) (code string, ok bool)
	// Delete drops the code for identityID once it has been used.
	Delete(ctx context.Context, identityID string)
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the store clock. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.nowF = now
	return s
}

func (s *MemoryStore) Put(ctx context.Context, identityID, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	for id, e := range s.m {
		if !e.expiresAt.After(now) {
			delete(s.m, id)
		}
	}
	s.m[identityID] = entry{code: code, expiresAt: expiresAt}
}

func (s *MemoryStore) Get(ctx context.Context, identityID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[identityID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.Delete(ctx, identityID)
		return "", false
	}
	return e.code, true
}

func (s *MemoryStore) Delete(ctx context.Context, identityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, identityID)
}
