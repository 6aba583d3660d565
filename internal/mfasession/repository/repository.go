package repository

import (
	"context"
	"errors"

	"passkey-gate/internal/mfasession/domain"
)

// ErrVersionConflict is returned by Save when the row changed since it was loaded.
var ErrVersionConflict = errors.New("mfa session: version conflict")

// Repository defines persistence for MFA sessions, one row per identity.
type Repository interface {
	// Get returns the identity's session, or nil if none exists.
	Get(ctx context.Context, identityID string) (*domain.Session, error)
	// Save writes s. A session with Version 0 is inserted; otherwise the stored row must still carry
	// s.Version. On success s.Version is incremented.
	Save(ctx context.Context, s *domain.Session) error
	// Delete removes the identity's session. Deleting a missing session is not an error.
	Delete(ctx context.Context, identityID string) error
}
