package ceremony

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	auditdomain "passkey-gate/internal/audit/domain"
	challengedomain "passkey-gate/internal/challenge/domain"
	credentialdomain "passkey-gate/internal/credential/domain"
	credentialrepo "passkey-gate/internal/credential/repository"
	"passkey-gate/internal/metrics"
	sessiondomain "passkey-gate/internal/mfasession/domain"
	"passkey-gate/internal/platform/errs"
)

// ReasonCounterUnsupported is audited when an assertion is accepted from an authenticator that
// reports a zero signature counter.
const ReasonCounterUnsupported = "counter-unsupported"

// Result is the outcome of a verified assertion.
type Result struct {
	Credential *credentialdomain.Credential
	// Step is the MFA step recorded, or empty when none was requested.
	Step sessiondomain.Step
	// Session is the MFA session after recording Step; nil when Step is empty.
	Session *sessiondomain.Session
	// CounterSupported is false when both the stored and presented counters are zero.
	CounterSupported bool
}

// BeginAuthentication returns request options whose allow list is exactly the caller's active
// credentials and records the challenge.
func (s *Service) BeginAuthentication(ctx context.Context, req Request) (_ *protocol.CredentialAssertion, err error) {
	ctx, span := startSpan(ctx, "BeginAuthentication", req)
	defer func() { endSpan(span, err) }()
	if err := s.gate(ctx, req); err != nil {
		return nil, err
	}
	creds, err := s.creds.ListByIdentity(ctx, req.Caller.ID)
	if err != nil {
		return nil, fmt.Errorf("ceremony: list credentials: %w", err)
	}
	allow := Descriptors(creds)
	if len(allow) == 0 {
		return nil, errs.ErrNoCredentialsRegistered
	}

	assertion, session, err := s.wa.BeginLogin(newUser(req.Caller, creds),
		webauthn.WithAllowedCredentials(allow),
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return nil, fmt.Errorf("ceremony: begin login: %w", err)
	}
	if err := s.issue(ctx, req.Caller.ID, challengedomain.KindAuthentication, assertion.Response.Challenge, session, s.cfg.AuthenticationTTL); err != nil {
		return nil, fmt.Errorf("ceremony: %w", err)
	}

	s.record(ctx, req, auditdomain.AuthenticationOptionsIssued, "", map[string]string{
		"allowed": strconv.Itoa(len(allow)),
	})
	return assertion, nil
}

// VerifyAuthentication consumes the caller's authentication challenge and verifies the assertion in raw,
// enforcing signature counter monotonicity. When stepTag is step_a or step_b the MFA session is advanced.
func (s *Service) VerifyAuthentication(ctx context.Context, req Request, raw []byte, stepTag string) (_ *Result, err error) {
	ctx, span := startSpan(ctx, "VerifyAuthentication", req)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("ceremony.step", stepTag))
	if err := s.gate(ctx, req); err != nil {
		return nil, err
	}
	step, ok := sessiondomain.ParseWebauthnStep(stepTag)
	if !ok {
		return nil, errs.WithReason(errs.ErrInvalidStep, fmt.Sprintf("unknown step %q", stepTag))
	}

	res, err := s.verifyAuthentication(ctx, req, raw, step)
	if err != nil {
		if errors.Is(err, errs.ErrPossibleCloneDetected) {
			metrics.CloneDetectionsTotal.Inc()
			s.log.Warn("possible cloned authenticator",
				zap.String("identity_id", req.Caller.ID),
				zap.String("reason", errs.Reason(err)))
		}
		metrics.CeremoniesTotal.WithLabelValues("authentication", "failure").Inc()
		s.record(ctx, req, auditdomain.AuthenticationFailed, errs.Reason(err), nil)
		return nil, err
	}

	metrics.CeremoniesTotal.WithLabelValues("authentication", "success").Inc()
	var reason string
	if !res.CounterSupported {
		reason = ReasonCounterUnsupported
	}
	md := map[string]string{
		"credential_id": res.Credential.EncodedID(),
		"sign_count":    strconv.FormatUint(uint64(res.Credential.SignCount), 10),
	}
	if step != "" {
		md["step"] = string(step)
	}
	s.record(ctx, req, auditdomain.AuthenticationVerified, reason, md)
	return res, nil
}

func (s *Service) verifyAuthentication(ctx context.Context, req Request, raw []byte, step sessiondomain.Step) (*Result, error) {
	session, err := s.consume(ctx, req.Caller.ID, challengedomain.KindAuthentication)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBytes(raw)
	if err != nil {
		return nil, errs.WithReason(errs.ErrVerificationFailed, "malformed-response")
	}

	stored, err := s.creds.GetByCredentialID(ctx, parsed.RawID)
	if err != nil {
		return nil, fmt.Errorf("ceremony: load credential: %w", err)
	}
	switch {
	case stored == nil:
		return nil, errs.WithReason(errs.ErrCredentialNotFound, "unknown-credential")
	case stored.IdentityID != req.Caller.ID:
		return nil, errs.WithReason(errs.ErrCredentialNotFound, "credential-owned-by-other-identity")
	case !stored.IsActive:
		return nil, errs.WithReason(errs.ErrCredentialNotFound, "credential-revoked")
	}

	// The library needs every credential named in the session allow list, revoked ones included.
	creds, err := s.creds.ListByIdentity(ctx, req.Caller.ID)
	if err != nil {
		return nil, fmt.Errorf("ceremony: list credentials: %w", err)
	}
	if _, err := s.wa.ValidateLogin(newUser(req.Caller, creds), session, parsed); err != nil {
		return nil, errs.WithReason(errs.ErrVerificationFailed, protocolReason(err))
	}

	presented := parsed.Response.AuthenticatorData.Counter
	supported, err := s.advanceCounter(ctx, stored, presented)
	if err != nil {
		return nil, err
	}

	res := &Result{Credential: stored, Step: step, CounterSupported: supported}
	if step != "" {
		sess, err := s.sessions.RecordWebauthnStep(ctx, req.Caller.ID, step)
		if err != nil {
			return nil, fmt.Errorf("ceremony: record mfa step: %w", err)
		}
		res.Session = sess
	}
	return res, nil
}

// advanceCounter applies the clone check and moves the stored counter to presented with a
// compare-and-set. It reports whether the authenticator supports counters.
func (s *Service) advanceCounter(ctx context.Context, stored *credentialdomain.Credential, presented uint32) (bool, error) {
	supported := true
	switch {
	case presented == 0 && stored.SignCount == 0:
		supported = false
	case presented <= stored.SignCount:
		return false, errs.WithReason(errs.ErrPossibleCloneDetected,
			fmt.Sprintf("counter %d not greater than stored %d", presented, stored.SignCount))
	}

	now := s.nowF()
	if err := s.creds.UpdateCounter(ctx, stored.CredentialID, stored.SignCount, presented, now); err != nil {
		if errors.Is(err, credentialrepo.ErrCounterConflict) {
			return false, errs.WithReason(errs.ErrPossibleCloneDetected, "counter changed concurrently")
		}
		return false, fmt.Errorf("ceremony: update counter: %w", err)
	}
	stored.SignCount = presented
	stored.LastUsedAt = &now
	return supported, nil
}
