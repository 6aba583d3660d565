package repository

import (
	"context"
	"errors"
	"time"

	"passkey-gate/internal/credential/domain"
)

var (
	// ErrNotFound is returned by Deactivate when no active credential matches.
	ErrNotFound = errors.New("credential: not found")
	// ErrOwnedByOtherIdentity is returned by Upsert when the credential id is registered to a different identity.
	ErrOwnedByOtherIdentity = errors.New("credential: id registered to another identity")
	// ErrRevoked is returned by Upsert when the credential id belongs to a revoked credential.
	ErrRevoked = errors.New("credential: id was revoked")
	// ErrCounterConflict is returned by UpdateCounter when the stored counter no longer equals the expected value.
	ErrCounterConflict = errors.New("credential: signature counter changed concurrently")
)

// Repository defines persistence for WebAuthn credentials.
type Repository interface {
	// GetByCredentialID returns the credential with the given raw id (active or not), or nil if not found.
	GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.Credential, error)
	// ListByIdentity returns all credentials of identityID, oldest first, including revoked ones.
	ListByIdentity(ctx context.Context, identityID string) ([]*domain.Credential, error)
	// Upsert inserts c, or updates the existing row with the same credential id when it belongs to
	// the same identity and is still active. c.ID is set to the persisted row id.
	Upsert(ctx context.Context, c *domain.Credential) error
	// UpdateCounter sets sign_count to next and last_used_at to usedAt only if the stored counter equals expected.
	UpdateCounter(ctx context.Context, credentialID []byte, expected, next uint32, usedAt time.Time) error
	// Deactivate marks the identity's credential inactive. Rows are never deleted.
	Deactivate(ctx context.Context, identityID string, credentialID []byte, at time.Time) error
}
