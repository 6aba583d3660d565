// Package mfasession tracks per-identity progress through the OTP step and two WebAuthn steps,
// and answers whether an identity currently holds a fully verified admin session.
package mfasession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"passkey-gate/internal/logger"
	"passkey-gate/internal/mfasession/domain"
	"passkey-gate/internal/mfasession/repository"
	"passkey-gate/internal/platform/errs"
)

const maxSaveAttempts = 5

// Status is the result of CheckStatus. Session is nil when the identity has no row.
type Status struct {
	OK      bool
	State   domain.State
	Session *domain.Session
}

// Service implements the session state machine over a Repository.
type Service struct {
	repo        repository.Repository
	window      time.Duration
	maxLifetime time.Duration
	log         *zap.Logger
	nowF        func() time.Time
}

// NewService returns a session service. window is the sliding validity window refreshed on every
// sub-step; maxLifetime caps a session measured from its first sub-step (0 disables the cap).
func NewService(repo repository.Repository, window, maxLifetime time.Duration, log *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		window:      window,
		maxLifetime: maxLifetime,
		log:         logger.OrNop(log),
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.nowF = now
	return s
}

// RecordOTP marks the OTP step complete for identityID.
func (s *Service) RecordOTP(ctx context.Context, identityID string) (*domain.Session, error) {
	return s.record(ctx, identityID, domain.StepOTP)
}

// RecordWebauthnStep marks a WebAuthn step (step_a or step_b) complete for identityID.
func (s *Service) RecordWebauthnStep(ctx context.Context, identityID string, step domain.Step) (*domain.Session, error) {
	if step != domain.StepA && step != domain.StepB {
		return nil, errs.WithReason(errs.ErrInvalidStep, fmt.Sprintf("unknown step %q", step))
	}
	return s.record(ctx, identityID, step)
}

func (s *Service) record(ctx context.Context, identityID string, step domain.Step) (*domain.Session, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		sess, err := s.repo.Get(ctx, identityID)
		if err != nil {
			return nil, fmt.Errorf("mfa session: load: %w", err)
		}
		now := s.nowF()
		if sess == nil {
			sess = &domain.Session{IdentityID: identityID}
			sess.Reset(now)
		} else if sess.Expired(now) {
			sess.Reset(now)
		}
		sess.Set(step, now)
		sess.UpdatedAt = now
		sess.ExpiresAt = s.expiry(sess, now)
		if sess.Complete() {
			sess.FullyVerifiedAt = &now
		} else {
			sess.FullyVerifiedAt = nil
		}

		err = s.repo.Save(ctx, sess)
		if err == nil {
			s.log.Debug("mfa step recorded",
				zap.String("identity_id", identityID),
				zap.String("step", string(step)),
				zap.Bool("fully_verified", sess.FullyVerifiedAt != nil))
			return sess, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("mfa session: save: %w", err)
		}
	}
	return nil, fmt.Errorf("mfa session: save: %w after %d attempts", repository.ErrVersionConflict, maxSaveAttempts)
}

func (s *Service) expiry(sess *domain.Session, now time.Time) time.Time {
	exp := now.Add(s.window)
	if s.maxLifetime > 0 {
		if ceiling := sess.FirstStepAt.Add(s.maxLifetime); ceiling.Before(exp) {
			exp = ceiling
		}
	}
	return exp
}

// CheckStatus recomputes validity from the stored timestamps at the current instant.
func (s *Service) CheckStatus(ctx context.Context, identityID string) (Status, error) {
	sess, err := s.repo.Get(ctx, identityID)
	if err != nil {
		return Status{}, fmt.Errorf("mfa session: load: %w", err)
	}
	now := s.nowF()
	return Status{OK: sess.Verified(now), State: sess.StateAt(now), Session: sess}, nil
}

// Verified reports whether identityID holds a fully verified, unexpired session.
func (s *Service) Verified(ctx context.Context, identityID string) (bool, error) {
	st, err := s.CheckStatus(ctx, identityID)
	if err != nil {
		return false, err
	}
	return st.OK, nil
}

// Clear drops the identity's session.
func (s *Service) Clear(ctx context.Context, identityID string) error {
	if err := s.repo.Delete(ctx, identityID); err != nil {
		return fmt.Errorf("mfa session: clear: %w", err)
	}
	return nil
}
