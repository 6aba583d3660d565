package repository

import (
	"context"
	"time"

	"passkey-gate/internal/challenge/domain"
)

// Repository defines persistence for WebAuthn challenges.
type Repository interface {
	// Create stores c and marks every older unused challenge of the same identity and kind as used.
	Create(ctx context.Context, c *domain.Challenge) error
	// ConsumeLatest atomically marks the most recent unused challenge of identityID and kind that has
	// not expired at now as used, and returns it. Returns nil when there is no such challenge.
	// Two concurrent callers can never both receive the same challenge.
	ConsumeLatest(ctx context.Context, identityID string, kind domain.Kind, now time.Time) (*domain.Challenge, error)
	// DeleteExpired removes challenges that expired before cutoff and returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
