package ceremony

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"go.uber.org/zap"

	auditdomain "passkey-gate/internal/audit/domain"
	challengedomain "passkey-gate/internal/challenge/domain"
	credentialdomain "passkey-gate/internal/credential/domain"
	credentialrepo "passkey-gate/internal/credential/repository"
	"passkey-gate/internal/metrics"
	"passkey-gate/internal/notify"
	"passkey-gate/internal/platform/errs"
)

// credentialParameters lists the accepted key algorithms in preference order.
var credentialParameters = []protocol.CredentialParameter{
	{Type: protocol.PublicKeyCredentialType, Algorithm: -7},
	{Type: protocol.PublicKeyCredentialType, Algorithm: -257},
}

// BeginRegistration returns creation options for a new platform passkey and records the challenge.
// Credentials the caller already holds are excluded.
func (s *Service) BeginRegistration(ctx context.Context, req Request) (_ *protocol.CredentialCreation, err error) {
	ctx, span := startSpan(ctx, "BeginRegistration", req)
	defer func() { endSpan(span, err) }()
	if err := s.gate(ctx, req); err != nil {
		return nil, err
	}
	creds, err := s.creds.ListByIdentity(ctx, req.Caller.ID)
	if err != nil {
		return nil, fmt.Errorf("ceremony: list credentials: %w", err)
	}
	exclude := Descriptors(creds)

	creation, session, err := s.wa.BeginRegistration(newUser(req.Caller, creds),
		webauthn.WithCredentialParameters(credentialParameters),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			UserVerification:        protocol.VerificationPreferred,
		}),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
		webauthn.WithExclusions(exclude),
	)
	if err != nil {
		return nil, fmt.Errorf("ceremony: begin registration: %w", err)
	}
	if err := s.issue(ctx, req.Caller.ID, challengedomain.KindRegistration, creation.Response.Challenge, session, s.cfg.RegistrationTTL); err != nil {
		return nil, fmt.Errorf("ceremony: %w", err)
	}

	s.record(ctx, req, auditdomain.RegistrationOptionsIssued, "", map[string]string{
		"excluded": strconv.Itoa(len(exclude)),
	})
	return creation, nil
}

// VerifyRegistration consumes the caller's registration challenge, verifies the attestation in raw
// and stores the new credential. The challenge is burned whether or not verification succeeds.
func (s *Service) VerifyRegistration(ctx context.Context, req Request, raw []byte) (_ *credentialdomain.Credential, err error) {
	ctx, span := startSpan(ctx, "VerifyRegistration", req)
	defer func() { endSpan(span, err) }()
	if err := s.gate(ctx, req); err != nil {
		return nil, err
	}
	cred, err := s.verifyRegistration(ctx, req, raw)
	if err != nil {
		metrics.CeremoniesTotal.WithLabelValues("registration", "failure").Inc()
		s.record(ctx, req, auditdomain.RegistrationFailed, errs.Reason(err), nil)
		return nil, err
	}
	metrics.CeremoniesTotal.WithLabelValues("registration", "success").Inc()
	s.record(ctx, req, auditdomain.RegistrationVerified, "", map[string]string{
		"credential_id": cred.EncodedID(),
		"device_label":  cred.DeviceLabel,
	})
	s.log.Info("passkey registered",
		zap.String("identity_id", req.Caller.ID),
		zap.String("credential_id", cred.EncodedID()),
		zap.String("device_label", cred.DeviceLabel))
	s.alert(ctx, notify.PasskeyRegisteredMessage(req.Caller.Email, cred.DeviceLabel))
	return cred, nil
}

func (s *Service) verifyRegistration(ctx context.Context, req Request, raw []byte) (*credentialdomain.Credential, error) {
	session, err := s.consume(ctx, req.Caller.ID, challengedomain.KindRegistration)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBytes(raw)
	if err != nil {
		return nil, errs.WithReason(errs.ErrVerificationFailed, "malformed-response")
	}
	creds, err := s.creds.ListByIdentity(ctx, req.Caller.ID)
	if err != nil {
		return nil, fmt.Errorf("ceremony: list credentials: %w", err)
	}
	created, err := s.wa.CreateCredential(newUser(req.Caller, creds), session, parsed)
	if err != nil {
		return nil, errs.WithReason(errs.ErrVerificationFailed, protocolReason(err))
	}

	cred := &credentialdomain.Credential{
		IdentityID:      req.Caller.ID,
		CredentialID:    created.ID,
		PublicKey:       created.PublicKey,
		SignCount:       created.Authenticator.SignCount,
		Transports:      transportNames(created.Transport),
		DeviceLabel:     DeviceLabel(req.Client.UserAgent),
		AttestationType: created.AttestationType,
		AAGUID:          created.Authenticator.AAGUID,
		BackupEligible:  created.Flags.BackupEligible,
		BackupState:     created.Flags.BackupState,
		IsActive:        true,
		CreatedAt:       s.nowF(),
	}
	if err := s.creds.Upsert(ctx, cred); err != nil {
		switch {
		case errors.Is(err, credentialrepo.ErrOwnedByOtherIdentity):
			return nil, errs.WithReason(errs.ErrVerificationFailed, "credential-id-conflict")
		case errors.Is(err, credentialrepo.ErrRevoked):
			return nil, errs.WithReason(errs.ErrVerificationFailed, "credential-revoked")
		}
		return nil, fmt.Errorf("ceremony: store credential: %w", err)
	}
	return cred, nil
}

func transportNames(in []protocol.AuthenticatorTransport) []string {
	out := make([]string, len(in))
	for i, t := range in {
		out[i] = string(t)
	}
	return out
}
