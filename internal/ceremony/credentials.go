package ceremony

import (
	"context"
	"errors"
	"fmt"

	auditdomain "passkey-gate/internal/audit/domain"
	credentialdomain "passkey-gate/internal/credential/domain"
	credentialrepo "passkey-gate/internal/credential/repository"
	"passkey-gate/internal/platform/errs"
)

// ListCredentials returns the caller's credentials, revoked ones included, oldest first.
func (s *Service) ListCredentials(ctx context.Context, req Request) (_ []*credentialdomain.Credential, err error) {
	ctx, span := startSpan(ctx, "ListCredentials", req)
	defer func() { endSpan(span, err) }()
	if err := s.gate(ctx, req); err != nil {
		return nil, err
	}
	creds, err := s.creds.ListByIdentity(ctx, req.Caller.ID)
	if err != nil {
		return nil, fmt.Errorf("ceremony: list credentials: %w", err)
	}
	return creds, nil
}

// RevokeCredential deactivates one of the caller's credentials. credentialID is unpadded base64url.
func (s *Service) RevokeCredential(ctx context.Context, req Request, credentialID string) (err error) {
	ctx, span := startSpan(ctx, "RevokeCredential", req)
	defer func() { endSpan(span, err) }()
	if err := s.gate(ctx, req); err != nil {
		return err
	}
	raw, err := credentialdomain.DecodeID(credentialID)
	if err != nil || len(raw) == 0 {
		return errs.WithReason(errs.ErrCredentialNotFound, "malformed-credential-id")
	}
	if err := s.creds.Deactivate(ctx, req.Caller.ID, raw, s.nowF()); err != nil {
		if errors.Is(err, credentialrepo.ErrNotFound) {
			return errs.WithReason(errs.ErrCredentialNotFound, "no-active-credential")
		}
		return fmt.Errorf("ceremony: revoke credential: %w", err)
	}
	s.record(ctx, req, auditdomain.CredentialRevoked, "", map[string]string{
		"credential_id": credentialdomain.EncodeID(raw),
	})
	return nil
}
