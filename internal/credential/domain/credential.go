package domain

import (
	"encoding/base64"
	"time"
)

// Credential is a registered WebAuthn public-key credential owned by one admin identity.
// CredentialID is globally unique; rows are never hard deleted, only deactivated.
type Credential struct {
	ID              string
	IdentityID      string
	CredentialID    []byte
	PublicKey       []byte
	SignCount       uint32
	Transports      []string
	DeviceLabel     string
	AttestationType string
	AAGUID          []byte
	BackupEligible  bool
	BackupState     bool
	IsActive        bool
	CreatedAt       time.Time
	LastUsedAt      *time.Time
	RevokedAt       *time.Time
}

// EncodedID returns the credential id as unpadded base64url, the form used on the wire.
func (c *Credential) EncodedID() string {
	return EncodeID(c.CredentialID)
}

// EncodeID encodes a raw credential id as unpadded base64url.
func EncodeID(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

// DecodeID decodes an unpadded base64url credential id. Padded input is accepted as well.
func DecodeID(s string) ([]byte, error) {
	if n := len(s); n > 0 && s[n-1] == '=' {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// ActiveIDs returns the raw credential ids of the active credentials in creds, in order.
func ActiveIDs(creds []*Credential) [][]byte {
	out := make([][]byte, 0, len(creds))
	for _, c := range creds {
		if c != nil && c.IsActive {
			out = append(out, c.CredentialID)
		}
	}
	return out
}
