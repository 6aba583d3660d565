package domain

import "time"

// Kind is the ceremony a challenge was issued for.
type Kind string

const (
	KindRegistration   Kind = "registration"
	KindAuthentication Kind = "authentication"
)

// MinValueLength is the minimum number of random bytes in a challenge value.
const MinValueLength = 16

// Challenge is a single-use WebAuthn challenge scoped to one identity, relying party, and origin.
// SessionData holds the serialized webauthn session needed to finish the ceremony.
type Challenge struct {
	ID             string
	IdentityID     string
	Value          []byte
	Kind           Kind
	RelyingPartyID string
	ExpectedOrigin string
	SessionData    []byte
	IssuedAt       time.Time
	ExpiresAt      time.Time
	Used           bool
	UsedAt         *time.Time
}

// Active reports whether the challenge can still be consumed at now.
func (c *Challenge) Active(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindRegistration || k == KindAuthentication
}
