package domain

import "time"

// OTPChallenge is an emailed one-time code (stored in the otp_challenges table). Only the hash is kept.
type OTPChallenge struct {
	ID         string
	IdentityID string
	CodeHash   string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Active reports whether the code is unconsumed and unexpired at now.
func (c *OTPChallenge) Active(now time.Time) bool {
	return c != nil && c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}
