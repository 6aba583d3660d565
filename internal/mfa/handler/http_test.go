package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	auditdomain "passkey-gate/internal/audit/domain"
	"passkey-gate/internal/identity/domain"
	"passkey-gate/internal/mfa"
	sessiondomain "passkey-gate/internal/mfasession/domain"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/platform/httpx"
	"passkey-gate/internal/server/middleware"
)

type fakeOTP struct {
	gotEmail  string
	gotCode   string
	gotClient auditdomain.Client
	verifyErr error
}

func (f *fakeOTP) SendOTP(ctx context.Context, identityID, email string, client auditdomain.Client) (*mfa.SendResult, error) {
	f.gotEmail = email
	f.gotClient = client
	return &mfa.SendResult{ExpiresAt: time.Now().Add(10 * time.Minute), Delivered: true}, nil
}

func (f *fakeOTP) VerifyOTP(ctx context.Context, identityID, code string, client auditdomain.Client) (*sessiondomain.Session, error) {
	f.gotCode = code
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	now := time.Now().UTC()
	return &sessiondomain.Session{IdentityID: identityID, OTPVerifiedAt: &now, FirstStepAt: now, ExpiresAt: now.Add(4 * time.Hour)}, nil
}

func authed(req *http.Request) *http.Request {
	ctx := middleware.WithCaller(req.Context(), domain.Caller{ID: "alice", Email: "alice@example.com", Role: domain.RoleAdmin})
	ctx = middleware.WithClient(ctx, auditdomain.Client{UserAgent: "ua", IP: "203.0.113.1"})
	return req.WithContext(ctx)
}

func TestSend(t *testing.T) {
	f := &fakeOTP{}
	rec := httptest.NewRecorder()
	New(f, nil).Send(rec, authed(httptest.NewRequest(http.MethodPost, "/v1/mfa/otp/send", nil)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if f.gotEmail != "alice@example.com" || f.gotClient.IP != "203.0.113.1" {
		t.Errorf("email %q client %+v", f.gotEmail, f.gotClient)
	}
	var body sendResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if !body.Delivered || body.ExpiresAt.IsZero() {
		t.Errorf("body = %+v", body)
	}
}

func TestVerify(t *testing.T) {
	f := &fakeOTP{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mfa/otp/verify", strings.NewReader(`{"code":"123456"}`))
	New(f, nil).Verify(rec, authed(req))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.gotCode != "123456" {
		t.Errorf("code = %q", f.gotCode)
	}
	var body verifyResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.OK {
		t.Error("OTP alone must not be ok")
	}
	if body.Session.State != sessiondomain.StatePartiallyVerified {
		t.Errorf("state = %q", body.Session.State)
	}
}

func TestVerify_Lockout(t *testing.T) {
	until := time.Now().UTC().Add(15 * time.Minute).Truncate(time.Second)
	f := &fakeOTP{verifyErr: errs.TooManyAttempts(until)}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mfa/otp/verify", strings.NewReader(`{"code":"123456"}`))
	New(f, nil).Verify(rec, authed(req))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var body httpx.ErrorBody
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Error.Code != errs.CodeTooManyAttempts || body.Error.LockedUntil == nil || !body.Error.LockedUntil.Equal(until) {
		t.Errorf("body = %+v", body.Error)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
}

func TestVerify_BadBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/mfa/otp/verify", strings.NewReader(`{"code":`))
	New(&fakeOTP{}, nil).Verify(rec, authed(req))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
