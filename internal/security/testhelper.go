package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"time"
)

// NewTestTokenProvider returns a TokenProvider over a fresh in-memory P-256 key, with issuer
// "test-issuer", audience "test-audience" and a 15 minute TTL. For tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	kp, err := NewKeyPair(key, key.Public())
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(kp, "test-issuer", "test-audience", 15*time.Minute), nil
}
