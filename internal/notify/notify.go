// Package notify delivers outbound notifications: OTP emails over SMTP and SMS alerts via SMS Local.
// Delivery is best-effort; callers log failures and carry on.
package notify

import (
	"context"
	"fmt"
	"time"
)

// EmailSender sends one email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Alerter sends a short operational alert to a fixed operator channel.
type Alerter interface {
	Alert(ctx context.Context, message string) error
}

// OTPMailer formats and emails one-time codes.
type OTPMailer struct {
	sender  EmailSender
	appName string
}

// NewOTPMailer returns a mailer that sends through sender. appName is used in the subject line.
func NewOTPMailer(sender EmailSender, appName string) *OTPMailer {
	if appName == "" {
		appName = "Admin Console"
	}
	return &OTPMailer{sender: sender, appName: appName}
}

// SendOTP emails code to the given address. The code is never logged.
func (m *OTPMailer) SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error {
	subject := fmt.Sprintf("%s verification code", m.appName)
	body := fmt.Sprintf(
		"<p>Your %s verification code is <strong>%s</strong>.</p>"+
			"<p>It expires at %s UTC. If you did not request it, contact your administrator.</p>",
		m.appName, code, expiresAt.UTC().Format("15:04"))
	return m.sender.Send(ctx, to, subject, body)
}

// PasskeyRegisteredMessage is the alert text for a new passkey on an admin account.
func PasskeyRegisteredMessage(email, deviceLabel string) string {
	return fmt.Sprintf("New passkey registered for %s (%s). If this was not you, revoke it now.", email, deviceLabel)
}
