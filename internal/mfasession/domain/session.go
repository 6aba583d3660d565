package domain

import "time"

// Step is one of the three independent sub-steps of a verified admin session.
type Step string

const (
	StepOTP Step = "otp"
	StepA   Step = "step_a"
	StepB   Step = "step_b"
)

// ParseWebauthnStep validates a WebAuthn step tag. An empty tag is valid and means no step.
func ParseWebauthnStep(tag string) (Step, bool) {
	switch Step(tag) {
	case "":
		return "", true
	case StepA, StepB:
		return Step(tag), true
	}
	return "", false
}

// State is the derived status of a session at a given instant.
type State string

const (
	StateEmpty             State = "empty"
	StatePartiallyVerified State = "partially_verified"
	StateFullyVerified     State = "fully_verified"
	StateExpired           State = "expired"
)

// Session is the per-identity MFA progress row. Validity is never stored; it is derived at read time.
type Session struct {
	IdentityID      string
	OTPVerifiedAt   *time.Time
	StepAVerifiedAt *time.Time
	StepBVerifiedAt *time.Time
	FullyVerifiedAt *time.Time
	FirstStepAt     time.Time
	ExpiresAt       time.Time
	UpdatedAt       time.Time
	Version         int64
}

// Complete reports whether all three sub-steps are recorded.
func (s *Session) Complete() bool {
	return s.OTPVerifiedAt != nil && s.StepAVerifiedAt != nil && s.StepBVerifiedAt != nil
}

// Expired reports whether the window has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Verified reports whether the session authorizes access at now.
func (s *Session) Verified(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.FullyVerifiedAt != nil && s.Complete() && !s.Expired(now)
}

// StateAt derives the session state at now. A nil session is empty.
func (s *Session) StateAt(now time.Time) State {
	switch {
	case s == nil:
		return StateEmpty
	case s.Expired(now):
		return StateExpired
	case s.Verified(now):
		return StateFullyVerified
	case s.OTPVerifiedAt != nil || s.StepAVerifiedAt != nil || s.StepBVerifiedAt != nil:
		return StatePartiallyVerified
	}
	return StateEmpty
}

// Set stamps step at t. Unknown steps are ignored.
func (s *Session) Set(step Step, t time.Time) {
	ts := t
	switch step {
	case StepOTP:
		s.OTPVerifiedAt = &ts
	case StepA:
		s.StepAVerifiedAt = &ts
	case StepB:
		s.StepBVerifiedAt = &ts
	}
}

// Reset clears every sub-step and restarts the ceiling clock at now.
func (s *Session) Reset(now time.Time) {
	s.OTPVerifiedAt = nil
	s.StepAVerifiedAt = nil
	s.StepBVerifiedAt = nil
	s.FullyVerifiedAt = nil
	s.FirstStepAt = now
}
