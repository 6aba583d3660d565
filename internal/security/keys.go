package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Supported signing algorithms.
const (
	AlgRS256 = "RS256"
	AlgES256 = "ES256"
)

const minRSABits = 2048

var (
	// ErrInvalidKey is returned for unreadable PEM or an unsupported key type.
	ErrInvalidKey = errors.New("invalid key")
	// ErrKeyMismatch is returned when the public key does not belong to the private key.
	ErrKeyMismatch = errors.New("public key does not match private key")
)

// KeyPair is the token signing key, its verification key and the JWT algorithm they imply.
type KeyPair struct {
	Signer crypto.Signer
	Public crypto.PublicKey
	Alg    string
}

// LoadKeyPair reads both keys (inline PEM or file path each), checks they belong together and picks
// RS256 for RSA (at least 2048 bits) or ES256 for ECDSA P-256.
func LoadKeyPair(privateSrc, publicSrc string) (*KeyPair, error) {
	signer, err := parsePrivate(privateSrc)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	pub, err := parsePublic(publicSrc)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	return NewKeyPair(signer, pub)
}

// NewKeyPair validates an in-memory pair.
func NewKeyPair(signer crypto.Signer, pub crypto.PublicKey) (*KeyPair, error) {
	alg, err := algFor(pub)
	if err != nil {
		return nil, err
	}
	type equaler interface{ Equal(crypto.PublicKey) bool }
	if eq, ok := signer.Public().(equaler); !ok || !eq.Equal(pub) {
		return nil, ErrKeyMismatch
	}
	return &KeyPair{Signer: signer, Public: pub, Alg: alg}, nil
}

func algFor(pub crypto.PublicKey) (string, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if k.N.BitLen() < minRSABits {
			return "", fmt.Errorf("%w: rsa key is %d bits, need %d", ErrInvalidKey, k.N.BitLen(), minRSABits)
		}
		return AlgRS256, nil
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return "", fmt.Errorf("%w: ecdsa key must use P-256", ErrInvalidKey)
		}
		return AlgES256, nil
	default:
		return "", fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, pub)
	}
}

// readPEM decodes src, which is inline PEM (literal \n sequences allowed, as env files often carry
// them) or a path to a PEM file.
func readPEM(src string) (*pem.Block, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, ErrInvalidKey
	}
	var raw []byte
	if strings.HasPrefix(src, "-----BEGIN") {
		raw = []byte(strings.ReplaceAll(src, `\n`, "\n"))
	} else {
		b, err := os.ReadFile(src)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ErrInvalidKey
	}
	return block, nil
}

func parsePrivate(src string) (crypto.Signer, error) {
	block, err := readPEM(src)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("%w: pem type %q", ErrInvalidKey, block.Type)
	}
}

func parsePublic(src string) (crypto.PublicKey, error) {
	block, err := readPEM(src)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: pem type %q", ErrInvalidKey, block.Type)
	}
}
