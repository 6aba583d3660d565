// Package mfa implements the emailed one-time code step of the admin MFA session, with per-identity
// and per-IP lockout.
package mfa

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"passkey-gate/internal/audit"
	auditdomain "passkey-gate/internal/audit/domain"
	"passkey-gate/internal/devotp"
	"passkey-gate/internal/logger"
	"passkey-gate/internal/metrics"
	"passkey-gate/internal/mfa/domain"
	"passkey-gate/internal/mfa/ratelimit"
	"passkey-gate/internal/mfa/repository"
	sessiondomain "passkey-gate/internal/mfasession/domain"
	"passkey-gate/internal/platform/errs"
)

// CodeSender delivers a code to the identity's email address.
type CodeSender interface {
	SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error
}

// SessionRecorder records a completed OTP step on the identity's MFA session.
type SessionRecorder interface {
	RecordOTP(ctx context.Context, identityID string) (*sessiondomain.Session, error)
}

// Config holds OTP timings.
type Config struct {
	// CodeTTL is how long an emailed code stays valid.
	CodeTTL time.Duration
	// FailureDelay is slept before answering an invalid code.
	FailureDelay time.Duration
}

// SendResult describes an issued code. The code itself is never returned.
type SendResult struct {
	ExpiresAt time.Time
	Delivered bool
}

// Service issues and verifies OTP codes.
type Service struct {
	repo     repository.Repository
	limiter  ratelimit.Limiter
	sender   CodeSender
	sessions SessionRecorder
	audit    audit.Recorder
	devStore devotp.Store
	cfg      Config
	log      *zap.Logger
	nowF     func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
}

// NewService returns an OTP service. sender may be nil (codes are not delivered), rec may be nil,
// and devStore is only set in dev OTP mode.
func NewService(repo repository.Repository, limiter ratelimit.Limiter, sender CodeSender, sessions SessionRecorder,
	rec audit.Recorder, devStore devotp.Store, cfg Config, log *zap.Logger) *Service {
	if rec == nil {
		rec = audit.Nop{}
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = repository.DefaultCodeTTL
	}
	return &Service{
		repo:     repo,
		limiter:  limiter,
		sender:   sender,
		sessions: sessions,
		audit:    rec,
		devStore: devStore,
		cfg:      cfg,
		log:      logger.OrNop(log),
		nowF:     func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
}

// WithClock replaces the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.nowF = now
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// SendOTP issues a new code for identityID, superseding any earlier one, and emails it to email.
// A delivery failure is logged and audited but does not fail the call.
func (s *Service) SendOTP(ctx context.Context, identityID, email string, client auditdomain.Client) (*SendResult, error) {
	keys := ratelimit.Keys(ratelimit.ActionSend, identityID, client.IP)
	if until, locked, err := s.lockedUntil(ctx, keys); err != nil {
		return nil, err
	} else if locked {
		s.audit.Record(ctx, audit.Event{IdentityID: identityID, Kind: auditdomain.OTPLocked, Reason: "send-locked", Client: client})
		return nil, errs.TooManyAttempts(until)
	}
	// Sends count toward the send lockout; the send that reaches the limit still goes out.
	if _, err := s.fail(ctx, identityID, keys, client); err != nil {
		return nil, err
	}

	code, err := NewCode(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("mfa: generate otp: %w", err)
	}
	now := s.nowF()
	c := &domain.OTPChallenge{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		CodeHash:   HashCode(code),
		ExpiresAt:  now.Add(s.cfg.CodeTTL),
		CreatedAt:  now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("mfa: store otp: %w", err)
	}
	if s.devStore != nil {
		s.devStore.Put(ctx, identityID, code, c.ExpiresAt)
	}

	res := &SendResult{ExpiresAt: c.ExpiresAt}
	switch {
	case s.sender == nil:
		s.log.Warn("mfa: otp not delivered, no email sender configured", zap.String("identity_id", identityID))
		s.audit.Record(ctx, audit.Event{IdentityID: identityID, Kind: auditdomain.OTPSendFailed, Reason: "email-disabled", Client: client})
	case email == "":
		s.log.Warn("mfa: otp not delivered, identity has no email", zap.String("identity_id", identityID))
		s.audit.Record(ctx, audit.Event{IdentityID: identityID, Kind: auditdomain.OTPSendFailed, Reason: "no-email-address", Client: client})
	default:
		if err := s.sender.SendOTP(ctx, email, code, c.ExpiresAt); err != nil {
			s.log.Error("mfa: otp delivery failed", zap.String("identity_id", identityID), zap.Error(err))
			s.audit.Record(ctx, audit.Event{IdentityID: identityID, Kind: auditdomain.OTPSendFailed, Reason: "smtp-error", Client: client})
		} else {
			res.Delivered = true
			s.audit.Record(ctx, audit.Event{IdentityID: identityID, Kind: auditdomain.OTPSent, Client: client})
		}
	}
	return res, nil
}

// VerifyOTP checks code against the identity's latest live code. An active lockout on either the
// identity or the source IP fails with TooManyAttempts before the code is looked at. A wrong,
// missing or expired code counts a failure against both keys and fails after FailureDelay. Success
// consumes the code, resets every counter for the identity and IP, and records the OTP step.
func (s *Service) VerifyOTP(ctx context.Context, identityID, code string, client auditdomain.Client) (*sessiondomain.Session, error) {
	keys := ratelimit.Keys(ratelimit.ActionVerify, identityID, client.IP)
	if until, locked, err := s.lockedUntil(ctx, keys); err != nil {
		return nil, err
	} else if locked {
		s.audit.Record(ctx, audit.Event{IdentityID: identityID, Kind: auditdomain.OTPLocked, Reason: "verify-locked", Client: client})
		return nil, errs.TooManyAttempts(until)
	}

	now := s.nowF()
	latest, err := s.repo.GetLatestActive(ctx, identityID, now)
	if err != nil {
		return nil, fmt.Errorf("mfa: load otp: %w", err)
	}
	switch {
	case latest == nil:
		return nil, s.rejectCode(ctx, identityID, keys, "no-active-code", client)
	case !CodeMatches(code, latest.CodeHash):
		return nil, s.rejectCode(ctx, identityID, keys, "code-mismatch", client)
	}
	consumed, err := s.repo.Consume(ctx, latest.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mfa: consume otp: %w", err)
	}
	if !consumed {
		return nil, s.rejectCode(ctx, identityID, keys, "code-already-used", client)
	}
	if s.devStore != nil {
		s.devStore.Delete(ctx, identityID)
	}

	s.resetAll(ctx, identityID, client.IP)
	sess, err := s.sessions.RecordOTP(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("mfa: record otp step: %w", err)
	}
	s.audit.Record(ctx, audit.Event{IdentityID: identityID, Kind: auditdomain.OTPVerified, Client: client})
	return sess, nil
}

// rejectCode counts the failure, sleeps the artificial delay and returns InvalidOTP, or
// TooManyAttempts when this failure engaged the lockout.
func (s *Service) rejectCode(ctx context.Context, identityID string, keys []ratelimit.Key, reason string, client auditdomain.Client) error {
	until, err := s.fail(ctx, identityID, keys, client)
	s.sleep(ctx, s.cfg.FailureDelay)
	if err != nil {
		return err
	}
	if !until.IsZero() {
		s.audit.Record(ctx, audit.Event{IdentityID: identityID, Kind: auditdomain.OTPLocked, Reason: reason, Client: client})
		return errs.TooManyAttempts(until)
	}
	s.audit.Record(ctx, audit.Event{IdentityID: identityID, Kind: auditdomain.OTPFailed, Reason: reason, Client: client})
	return errs.WithReason(errs.ErrInvalidOTP, reason)
}

// lockedUntil returns the latest lockout expiry across keys.
func (s *Service) lockedUntil(ctx context.Context, keys []ratelimit.Key) (time.Time, bool, error) {
	var latest time.Time
	for _, k := range keys {
		until, locked, err := s.limiter.Locked(ctx, k)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("mfa: check lockout: %w", err)
		}
		if locked && until.After(latest) {
			latest = until
		}
	}
	return latest, !latest.IsZero(), nil
}

// fail counts one attempt against every key and returns the latest lockout expiry, or zero if none engaged.
func (s *Service) fail(ctx context.Context, identityID string, keys []ratelimit.Key, client auditdomain.Client) (time.Time, error) {
	var latest time.Time
	for _, k := range keys {
		until, locked, err := s.limiter.Fail(ctx, k)
		if err != nil {
			return time.Time{}, fmt.Errorf("mfa: record attempt: %w", err)
		}
		if !locked {
			continue
		}
		metrics.OTPLockoutsTotal.WithLabelValues(string(k.Action), string(k.Scope)).Inc()
		s.log.Warn("mfa: otp lockout engaged",
			zap.String("action", string(k.Action)),
			zap.String("scope", string(k.Scope)),
			zap.String("identity_id", identityID),
			zap.String("client_ip", client.IP),
			zap.Time("locked_until", until))
		if until.After(latest) {
			latest = until
		}
	}
	return latest, nil
}

// resetAll clears send and verify counters for both the identity and the IP. Errors are logged only.
func (s *Service) resetAll(ctx context.Context, identityID, ip string) {
	for _, action := range []ratelimit.Action{ratelimit.ActionSend, ratelimit.ActionVerify} {
		for _, k := range ratelimit.Keys(action, identityID, ip) {
			if err := s.limiter.Reset(ctx, k); err != nil {
				s.log.Warn("mfa: reset limiter", zap.String("key", k.String()), zap.Error(err))
			}
		}
	}
}
