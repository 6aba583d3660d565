package mfa

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
)

// CodeLength is the number of decimal digits in an emailed code.
const CodeLength = 6

// Bytes at or above this value are rejected so every digit is uniform.
const digitCeiling = 250

// NewCode draws a CodeLength digit code from r (crypto/rand.Reader outside tests).
func NewCode(r io.Reader) (string, error) {
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(out) < CodeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("mfa: read random: %w", err)
		}
		for _, b := range buf {
			if b >= digitCeiling {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}

// HashCode returns the hex SHA-256 of code. Only the hash is stored.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// CodeMatches reports whether code is well formed and hashes to storedHash, in constant time.
func CodeMatches(code, storedHash string) bool {
	if !wellFormed(code) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashCode(code)), []byte(storedHash)) == 1
}

func wellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
