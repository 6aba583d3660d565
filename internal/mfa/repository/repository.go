package repository

import (
	"context"
	"time"

	"passkey-gate/internal/mfa/domain"
)

// Repository defines persistence for emailed OTP codes.
type Repository interface {
	// Create stores c and marks every older unconsumed code for the same identity consumed.
	Create(ctx context.Context, c *domain.OTPChallenge) error
	// GetLatestActive returns the newest unconsumed code unexpired at now, or nil if there is none.
	GetLatestActive(ctx context.Context, identityID string, now time.Time) (*domain.OTPChallenge, error)
	// Consume marks code id consumed. Returns false if it was already consumed.
	Consume(ctx context.Context, id string, now time.Time) (bool, error)
	// DeleteExpired removes codes whose expiry is before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// DefaultCodeTTL is the default OTP expiry.
const DefaultCodeTTL = 10 * time.Minute
