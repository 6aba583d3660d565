package ceremony

import (
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	credentialdomain "passkey-gate/internal/credential/domain"
	identitydomain "passkey-gate/internal/identity/domain"
)

// webauthnUser adapts an admin caller and their stored credentials to webauthn.User.
type webauthnUser struct {
	caller identitydomain.Caller
	creds  []webauthn.Credential
}

func newUser(caller identitydomain.Caller, creds []*credentialdomain.Credential) *webauthnUser {
	u := &webauthnUser{caller: caller, creds: make([]webauthn.Credential, 0, len(creds))}
	for _, c := range creds {
		if c != nil {
			u.creds = append(u.creds, toWebauthn(c))
		}
	}
	return u
}

func (u *webauthnUser) WebAuthnID() []byte {
	return UserHandle(u.caller.ID)
}

func (u *webauthnUser) WebAuthnName() string {
	if u.caller.Email != "" {
		return u.caller.Email
	}
	return u.caller.ID
}

func (u *webauthnUser) WebAuthnDisplayName() string {
	if u.caller.Name != "" {
		return u.caller.Name
	}
	return u.WebAuthnName()
}

func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.creds
}

// UserHandle is the WebAuthn user handle for an identity: the 16 bytes of its UUID.
// Identifiers that are not UUIDs are used as raw bytes.
func UserHandle(identityID string) []byte {
	id, err := uuid.Parse(identityID)
	if err != nil {
		return []byte(identityID)
	}
	return id[:]
}

func toWebauthn(c *credentialdomain.Credential) webauthn.Credential {
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports(c.Transports),
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

func transports(in []string) []protocol.AuthenticatorTransport {
	if len(in) == 0 {
		return nil
	}
	out := make([]protocol.AuthenticatorTransport, len(in))
	for i, t := range in {
		out[i] = protocol.AuthenticatorTransport(t)
	}
	return out
}

// Descriptors maps the active credentials in creds to credential descriptors, in order.
// It is used for both the registration exclude list and the authentication allow list and is
// recomputed on every request.
func Descriptors(creds []*credentialdomain.Credential) []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		if c == nil || !c.IsActive {
			continue
		}
		out = append(out, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.CredentialID,
			Transport:    transports(c.Transports),
		})
	}
	return out
}
