// Package ceremony runs the WebAuthn registration and authentication ceremonies for admin identities.
// Every operation is gated on the declared origin and the authorization policy before any challenge
// or credential state is read or written.
package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"go.uber.org/zap"

	"passkey-gate/internal/audit"
	auditdomain "passkey-gate/internal/audit/domain"
	"passkey-gate/internal/challenge"
	challengedomain "passkey-gate/internal/challenge/domain"
	credentialrepo "passkey-gate/internal/credential/repository"
	identitydomain "passkey-gate/internal/identity/domain"
	"passkey-gate/internal/logger"
	sessiondomain "passkey-gate/internal/mfasession/domain"
	"passkey-gate/internal/notify"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/policy/engine"
)

const (
	// DefaultTimeout caps the client-side ceremony timeout advertised in options. The advertised
	// value never exceeds the ceremony's challenge TTL.
	DefaultTimeout = 120 * time.Second

	alertTimeout = 5 * time.Second
)

// Config describes the single relying party this service acts for.
type Config struct {
	// Origin is the only origin ceremonies may declare, compared exactly.
	Origin string
	// RPID is the relying party id, the host of Origin.
	RPID          string
	RPDisplayName string
	// RegistrationTTL and AuthenticationTTL bound how long an issued challenge can be consumed.
	RegistrationTTL   time.Duration
	AuthenticationTTL time.Duration
}

// Request carries who is asking and what the server observed about the request.
type Request struct {
	Caller identitydomain.Caller
	// Origin is the origin the client declared, not a server-derived value.
	Origin string
	Client auditdomain.Client
}

// ChallengeLedger issues and burns single-use challenges.
type ChallengeLedger interface {
	Issue(ctx context.Context, p challenge.IssueParams) (*challengedomain.Challenge, error)
	Consume(ctx context.Context, identityID string, kind challengedomain.Kind) (*challengedomain.Challenge, error)
}

// StepRecorder advances the identity's MFA session after a verified assertion.
type StepRecorder interface {
	RecordWebauthnStep(ctx context.Context, identityID string, step sessiondomain.Step) (*sessiondomain.Session, error)
}

// Service runs ceremonies against a credential store and a challenge ledger.
type Service struct {
	cfg      Config
	wa       *webauthn.WebAuthn
	creds    credentialrepo.Repository
	ledger   ChallengeLedger
	sessions StepRecorder
	authz    engine.Authorizer
	audit    audit.Recorder
	alerter  notify.Alerter
	log      *zap.Logger
	nowF     func() time.Time
}

// NewService validates cfg and returns a ceremony service. rec and alerter may be nil.
func NewService(cfg Config, creds credentialrepo.Repository, ledger ChallengeLedger, sessions StepRecorder,
	authz engine.Authorizer, rec audit.Recorder, alerter notify.Alerter, log *zap.Logger) (*Service, error) {
	if cfg.Origin == "" || cfg.RPID == "" {
		return nil, errors.New("ceremony: origin and rp id are required")
	}
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = cfg.RPID
	}
	if cfg.RegistrationTTL <= 0 {
		cfg.RegistrationTTL = 5 * time.Minute
	}
	if cfg.AuthenticationTTL <= 0 {
		cfg.AuthenticationTTL = time.Minute
	}
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     []string{cfg.Origin},
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationPreferred,
		},
		Timeouts: webauthn.TimeoutsConfig{
			Login:        clientTimeout(cfg.AuthenticationTTL),
			Registration: clientTimeout(cfg.RegistrationTTL),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ceremony: webauthn config: %w", err)
	}
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Service{
		cfg:      cfg,
		wa:       wa,
		creds:    creds,
		ledger:   ledger,
		sessions: sessions,
		authz:    authz,
		audit:    rec,
		alerter:  alerter,
		log:      logger.OrNop(log),
		nowF:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// clientTimeout advertises DefaultTimeout, shortened to ttl so a client is never told it has longer
// than the challenge lives.
func clientTimeout(ttl time.Duration) webauthn.TimeoutConfig {
	d := min(DefaultTimeout, ttl)
	return webauthn.TimeoutConfig{Timeout: d, TimeoutUVD: d}
}

// WithClock replaces the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.nowF = now
	return s
}

// gate enforces origin pinning and then the ceremony policy. It only writes audit entries.
func (s *Service) gate(ctx context.Context, req Request) error {
	if req.Origin != s.cfg.Origin {
		reason := fmt.Sprintf("declared origin %q", req.Origin)
		s.record(ctx, req, auditdomain.OriginRejected, reason, nil)
		return errs.WithReason(errs.ErrOriginNotAllowed, reason)
	}
	d, err := s.authz.Authorize(ctx, engine.Input{Caller: req.Caller, Action: engine.ActionCeremony})
	if err != nil {
		reason := fmt.Sprintf("policy-error: %v", err)
		s.log.Error("ceremony: policy evaluation failed", zap.String("identity_id", req.Caller.ID), zap.Error(err))
		s.record(ctx, req, auditdomain.AuthorizationDenied, reason, nil)
		return errs.WithReason(errs.ErrNotAuthorized, reason)
	}
	if !d.Allow {
		s.record(ctx, req, auditdomain.AuthorizationDenied, d.Reason, nil)
		return errs.WithReason(errs.ErrNotAuthorized, d.Reason)
	}
	return nil
}

func (s *Service) record(ctx context.Context, req Request, kind auditdomain.EventKind, reason string, md map[string]string) {
	s.audit.Record(ctx, audit.Event{
		IdentityID: req.Caller.ID,
		Kind:       kind,
		Reason:     reason,
		Client:     req.Client,
		Metadata:   md,
	})
}

// consume burns the caller's latest challenge of kind and decodes its stored session.
func (s *Service) consume(ctx context.Context, identityID string, kind challengedomain.Kind) (webauthn.SessionData, error) {
	var session webauthn.SessionData
	ch, err := s.ledger.Consume(ctx, identityID, kind)
	if err != nil {
		return session, err
	}
	if ch == nil {
		return session, errs.WithReason(errs.ErrNoActiveChallenge, "no-active-challenge")
	}
	if err := json.Unmarshal(ch.SessionData, &session); err != nil {
		return session, fmt.Errorf("ceremony: decode session data: %w", err)
	}
	return session, nil
}

// issue persists the session that go-webauthn built for value, the raw challenge sent to the client.
func (s *Service) issue(ctx context.Context, identityID string, kind challengedomain.Kind, value []byte,
	session *webauthn.SessionData, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("ceremony: encode session data: %w", err)
	}
	_, err = s.ledger.Issue(ctx, challenge.IssueParams{
		IdentityID:     identityID,
		Kind:           kind,
		RelyingPartyID: s.cfg.RPID,
		ExpectedOrigin: s.cfg.Origin,
		Value:          value,
		SessionData:    data,
		TTL:            ttl,
	})
	return err
}

// protocolReason flattens a go-webauthn error into an audit reason.
func protocolReason(err error) string {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		if perr.DevInfo != "" {
			return perr.Details + ": " + perr.DevInfo
		}
		return perr.Details
	}
	return err.Error()
}

func (s *Service) alert(ctx context.Context, message string) {
	if s.alerter == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := s.alerter.Alert(actx, message); err != nil {
		s.log.Warn("ceremony: registration alert failed", zap.Error(err))
	}
}
