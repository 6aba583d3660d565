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
	"passkey-gate/internal/identity/service"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/server/middleware"
)

type fakeLogin struct {
	gotEmail  string
	gotClient auditdomain.Client
	err       error
}

func (f *fakeLogin) Login(ctx context.Context, email, password string, client auditdomain.Client) (*service.LoginResult, error) {
	f.gotEmail, f.gotClient = email, client
	if f.err != nil {
		return nil, f.err
	}
	return &service.LoginResult{
		AccessToken: "token",
		ExpiresAt:   time.Now().Add(15 * time.Minute),
		Caller:      domain.Caller{ID: "alice", Email: email, Role: domain.RoleAdmin},
	}, nil
}

func withClient(req *http.Request) *http.Request {
	return req.WithContext(middleware.WithClient(req.Context(), auditdomain.Client{UserAgent: "ua", IP: "203.0.113.9"}))
}

func TestLogin(t *testing.T) {
	f := &fakeLogin{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"Correct-Horse-1"}`))
	New(f, nil).Login(rec, withClient(req))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.gotEmail != "alice@example.com" || f.gotClient.IP != "203.0.113.9" {
		t.Errorf("email %q client %+v", f.gotEmail, f.gotClient)
	}
	var body loginResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.AccessToken != "token" || body.TokenType != "Bearer" || body.Identity.Role != domain.RoleAdmin {
		t.Errorf("body = %+v", body)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := &fakeLogin{err: errs.ErrInvalidCredentials}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
	New(f, nil).Login(rec, withClient(req))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	f := &fakeLogin{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"email":"alice@example.com"}`))
	New(f, nil).Login(rec, withClient(req))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if f.gotEmail != "" {
		t.Error("service must not be called")
	}
}
