// Package webauthntest provides a software ES256 authenticator that produces attestation and assertion
// responses accepted by go-webauthn. It is only meant for tests.
package webauthntest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// Authenticator data flags.
const (
	FlagUserPresent    byte = 0x01
	FlagUserVerified   byte = 0x04
	FlagBackupEligible byte = 0x08
	FlagBackupState    byte = 0x10
	FlagAttestedData   byte = 0x40
)

// Authenticator holds one credential key pair bound to a relying party.
type Authenticator struct {
	RPID   string
	Origin string
	// Flags are set on every response in addition to attested data on registration.
	Flags        byte
	CredentialID []byte
	AAGUID       []byte
	// Transports are reported with the attestation response.
	Transports []string

	key *ecdsa.PrivateKey
}

// New returns an authenticator with a fresh P-256 key and a random 32-byte credential id.
func New(rpID, origin string) (*Authenticator, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	id := make([]byte, 32)
	if _, err := rand.Read(id); err != nil {
		return nil, err
	}
	return &Authenticator{
		RPID:         rpID,
		Origin:       origin,
		Flags:        FlagUserPresent | FlagUserVerified,
		CredentialID: id,
		AAGUID:       make([]byte, 16),
		Transports:   []string{"internal"},
		key:          key,
	}, nil
}

// EncodedID returns the credential id as unpadded base64url.
func (a *Authenticator) EncodedID() string {
	return b64(a.CredentialID)
}

// Attest builds a "none" attestation response for the given challenge with a zero counter.
func (a *Authenticator) Attest(challenge []byte) ([]byte, error) {
	return a.AttestWithCounter(challenge, 0)
}

// AttestWithCounter builds a "none" attestation response whose authenticator data carries counter.
func (a *Authenticator) AttestWithCounter(challenge []byte, counter uint32) ([]byte, error) {
	cose, err := a.publicKey()
	if err != nil {
		return nil, err
	}
	authData := a.authData(a.Flags|FlagAttestedData, counter)
	idLen := make([]byte, 2)
	binary.BigEndian.PutUint16(idLen, uint16(len(a.CredentialID)))
	authData = append(authData, a.AAGUID...)
	authData = append(authData, idLen...)
	authData = append(authData, a.CredentialID...)
	authData = append(authData, cose...)

	attObj, err := webauthncbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthntest: encode attestation object: %w", err)
	}
	clientData, err := a.clientData(protocol.CreateCeremony, challenge)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"id":    a.EncodedID(),
		"rawId": a.EncodedID(),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64(clientData),
			"attestationObject": b64(attObj),
			"transports":        a.Transports,
		},
	})
}

// Assert builds a signed assertion response for challenge carrying counter.
func (a *Authenticator) Assert(challenge []byte, counter uint32, userHandle []byte) ([]byte, error) {
	authData := a.authData(a.Flags, counter)
	clientData, err := a.clientData(protocol.AssertCeremony, challenge)
	if err != nil {
		return nil, err
	}
	clientHash := sha256.Sum256(clientData)
	digest := sha256.Sum256(append(append([]byte(nil), authData...), clientHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("webauthntest: sign: %w", err)
	}
	response := map[string]any{
		"clientDataJSON":    b64(clientData),
		"authenticatorData": b64(authData),
		"signature":         b64(sig),
	}
	if len(userHandle) > 0 {
		response["userHandle"] = b64(userHandle)
	}
	return json.Marshal(map[string]any{
		"id":       a.EncodedID(),
		"rawId":    a.EncodedID(),
		"type":     "public-key",
		"response": response,
	})
}

func (a *Authenticator) authData(flags byte, counter uint32) []byte {
	rpHash := sha256.Sum256([]byte(a.RPID))
	out := make([]byte, 0, 37)
	out = append(out, rpHash[:]...)
	out = append(out, flags)
	ctr := make([]byte, 4)
	binary.BigEndian.PutUint32(ctr, counter)
	return append(out, ctr...)
}

func (a *Authenticator) clientData(ceremony protocol.CeremonyType, challenge []byte) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":      string(ceremony),
		"challenge": b64(challenge),
		"origin":    a.Origin,
	})
}

func (a *Authenticator) publicKey() ([]byte, error) {
	pub, err := a.key.PublicKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("webauthntest: public key: %w", err)
	}
	// uncompressed point: 0x04 || X || Y
	point := pub.Bytes()
	key := webauthncose.EC2PublicKeyData{
		PublicKeyData: webauthncose.PublicKeyData{
			KeyType:   int64(webauthncose.EllipticKey),
			Algorithm: int64(webauthncose.AlgES256),
		},
		Curve:  int64(webauthncose.P256),
		XCoord: point[1:33],
		YCoord: point[33:65],
	}
	out, err := webauthncbor.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("webauthntest: encode public key: %w", err)
	}
	return out, nil
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
