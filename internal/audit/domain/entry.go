package domain

import "time"

// EventKind names what happened. The set is fixed; see the constants below.
type EventKind string

const (
	RegistrationOptionsIssued   EventKind = "registration-options-issued"
	RegistrationVerified        EventKind = "registration-verified"
	RegistrationFailed          EventKind = "registration-failed"
	AuthenticationOptionsIssued EventKind = "authentication-options-issued"
	AuthenticationVerified      EventKind = "authentication-verified"
	AuthenticationFailed        EventKind = "authentication-failed"
	CredentialRevoked           EventKind = "credential-revoked"
	OTPSent                     EventKind = "otp-sent"
	OTPSendFailed               EventKind = "otp-send-failed"
	OTPVerified                 EventKind = "otp-verified"
	OTPFailed                   EventKind = "otp-failed"
	OTPLocked                   EventKind = "otp-locked"
	AuthorizationDenied         EventKind = "authorization-denied"
	OriginRejected              EventKind = "origin-rejected"
	LoginSucceeded              EventKind = "login-succeeded"
	LoginFailed                 EventKind = "login-failed"
)

// Client is what the server observed about the requesting client.
type Client struct {
	UserAgent string
	IP        string
}

// Entry is one append-only audit record.
type Entry struct {
	ID            string
	IdentityID    string
	EventKind     EventKind
	FailureReason *string
	UserAgent     string
	IP            string
	Metadata      map[string]string
	CreatedAt     time.Time
}
