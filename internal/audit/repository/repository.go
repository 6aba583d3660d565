package repository

import (
	"context"

	"passkey-gate/internal/audit/domain"
)

// Repository defines append-only persistence for audit entries. There is no update or delete.
type Repository interface {
	Append(ctx context.Context, e *domain.Entry) error
	// ListByIdentity returns the identity's most recent entries, newest first.
	ListByIdentity(ctx context.Context, identityID string, limit int) ([]*domain.Entry, error)
}
