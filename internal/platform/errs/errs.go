// Package errs defines the bounded error taxonomy surfaced by the ceremony, OTP and MFA session
// services. Handlers map these to stable client codes; anything else is an internal error.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Services return these (possibly wrapped with WithReason); handlers map them to codes.
var (
	ErrNotAuthorized           = errors.New("not authorized")
	ErrOriginNotAllowed        = errors.New("origin not allowed")
	ErrNoActiveChallenge       = errors.New("no active challenge")
	ErrNoCredentialsRegistered = errors.New("no credentials registered")
	ErrCredentialNotFound      = errors.New("credential not found")
	ErrVerificationFailed      = errors.New("verification failed")
	ErrPossibleCloneDetected   = errors.New("possible cloned authenticator")
	ErrTooManyAttempts         = errors.New("too many attempts")
	ErrInvalidOTP              = errors.New("invalid or expired code")
	ErrInvalidStep             = errors.New("invalid step tag")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrUnauthenticated         = errors.New("authentication required")
	ErrBadRequest              = errors.New("bad request")
)

// Client-facing codes. The set is closed; Code never returns anything else.
const (
	CodeNotAuthorized           = "not_authorized"
	CodeOriginNotAllowed        = "origin_not_allowed"
	CodeNoActiveChallenge       = "no_active_challenge"
	CodeNoCredentialsRegistered = "no_credentials_registered"
	CodeCredentialNotFound      = "credential_not_found"
	CodeVerificationFailed      = "verification_failed"
	CodePossibleCloneDetected   = "possible_clone_detected"
	CodeTooManyAttempts         = "too_many_attempts"
	CodeInvalidOTP              = "invalid_otp"
	CodeInvalidStep             = "invalid_step"
	CodeInvalidCredentials      = "invalid_credentials"
	CodeUnauthenticated         = "unauthenticated"
	CodeBadRequest              = "bad_request"
	CodeInternal                = "internal"
)

// ReasonError attaches a specific forensic reason to one of the sentinel errors.
// The reason goes to the audit log; clients only ever see the sentinel's code.
type ReasonError struct {
	Err    error
	Reason string
}

func (e *ReasonError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *ReasonError) Unwrap() error { return e.Err }

// WithReason wraps sentinel with reason.
func WithReason(sentinel error, reason string) error {
	return &ReasonError{Err: sentinel, Reason: reason}
}

// Reason returns the most specific reason carried by err: the ReasonError reason if present,
// otherwise the error text. Returns "" for nil.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Reason
	}
	var tm *TooManyAttemptsError
	if errors.As(err, &tm) {
		return "locked-until " + tm.LockedUntil.UTC().Format(time.RFC3339)
	}
	return err.Error()
}

// TooManyAttemptsError is returned while a lockout is active. It matches ErrTooManyAttempts.
type TooManyAttemptsError struct {
	LockedUntil time.Time
}

func (e *TooManyAttemptsError) Error() string {
	return "too many attempts; locked until " + e.LockedUntil.UTC().Format(time.RFC3339)
}

func (e *TooManyAttemptsError) Is(target error) bool { return target == ErrTooManyAttempts }

// TooManyAttempts returns a lockout error with the given expiry.
func TooManyAttempts(lockedUntil time.Time) error {
	return &TooManyAttemptsError{LockedUntil: lockedUntil}
}

// LockedUntil returns the lockout expiry carried by err, if any.
func LockedUntil(err error) (time.Time, bool) {
	var tm *TooManyAttemptsError
	if errors.As(err, &tm) {
		return tm.LockedUntil, true
	}
	return time.Time{}, false
}

var codes = []struct {
	err  error
	code string
}{
	{ErrNotAuthorized, CodeNotAuthorized},
	{ErrOriginNotAllowed, CodeOriginNotAllowed},
	{ErrNoActiveChallenge, CodeNoActiveChallenge},
	{ErrNoCredentialsRegistered, CodeNoCredentialsRegistered},
	{ErrCredentialNotFound, CodeCredentialNotFound},
	{ErrPossibleCloneDetected, CodePossibleCloneDetected},
	{ErrVerificationFailed, CodeVerificationFailed},
	{ErrTooManyAttempts, CodeTooManyAttempts},
	{ErrInvalidOTP, CodeInvalidOTP},
	{ErrInvalidStep, CodeInvalidStep},
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrUnauthenticated, CodeUnauthenticated},
	{ErrBadRequest, CodeBadRequest},
}

// Sentinel returns the taxonomy sentinel err matches, or nil when it matches none.
func Sentinel(err error) error {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.err
		}
	}
	return nil
}

// Code maps err to its client-facing code. Unknown errors map to CodeInternal.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
