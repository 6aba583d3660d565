package rbac

import (
	"context"
	"errors"
	"testing"

	"passkey-gate/internal/identity/domain"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/policy/engine"
	"passkey-gate/internal/server/middleware"
)

type fakeStatus struct {
	verified bool
	err      error
	calls    int
}

func (f *fakeStatus) Verified(ctx context.Context, identityID string) (bool, error) {
	f.calls++
	return f.verified, f.err
}

type failingAuthorizer struct{}

func (failingAuthorizer) Authorize(ctx context.Context, in engine.Input) (engine.Decision, error) {
	return engine.Decision{}, errors.New("policy unavailable")
}

func newAuthz(t *testing.T) engine.Authorizer {
	t.Helper()
	e, err := engine.NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func withCaller(role domain.Role) context.Context {
	return middleware.WithCaller(context.Background(), domain.Caller{ID: "user-1", Email: "u@example.com", Role: role})
}

func TestRequireAdmin(t *testing.T) {
	authz := newAuthz(t)

	caller, err := RequireAdmin(withCaller(domain.RoleAdmin), authz)
	if err != nil {
		t.Fatalf("RequireAdmin(admin): %v", err)
	}
	if caller.ID != "user-1" {
		t.Errorf("caller id = %q, want %q", caller.ID, "user-1")
	}

	if _, err := RequireAdmin(withCaller(domain.RoleViewer), authz); !errors.Is(err, errs.ErrNotAuthorized) {
		t.Errorf("RequireAdmin(viewer) err = %v, want ErrNotAuthorized", err)
	}
	if _, err := RequireAdmin(context.Background(), authz); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Errorf("RequireAdmin(no caller) err = %v, want ErrUnauthenticated", err)
	}
}

func TestRequireAdmin_PolicyErrorDenies(t *testing.T) {
	_, err := RequireAdmin(withCaller(domain.RoleAdmin), failingAuthorizer{})
	if !errors.Is(err, errs.ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestRequireVerifiedAdmin(t *testing.T) {
	authz := newAuthz(t)

	if _, err := RequireVerifiedAdmin(withCaller(domain.RoleAdmin), authz, &fakeStatus{verified: true}); err != nil {
		t.Fatalf("verified admin: %v", err)
	}

	_, err := RequireVerifiedAdmin(withCaller(domain.RoleAdmin), authz, &fakeStatus{verified: false})
	if !errors.Is(err, errs.ErrNotAuthorized) {
		t.Errorf("unverified admin err = %v, want ErrNotAuthorized", err)
	}
	if got := errs.Reason(err); got != "mfa" {
		t.Errorf("reason = %q, want %q", got, "mfa")
	}

	if _, err := RequireVerifiedAdmin(withCaller(domain.RoleViewer), authz, &fakeStatus{verified: true}); !errors.Is(err, errs.ErrNotAuthorized) {
		t.Errorf("verified viewer err = %v, want ErrNotAuthorized", err)
	}
}

func TestRequireVerifiedAdmin_StatusError(t *testing.T) {
	storeErr := errors.New("connection refused")
	_, err := RequireVerifiedAdmin(withCaller(domain.RoleAdmin), newAuthz(t), &fakeStatus{err: storeErr})
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
	if errs.Code(err) != errs.CodeInternal {
		t.Errorf("code = %q, want internal", errs.Code(err))
	}
}

func TestRequireVerifiedAdmin_NoCaller(t *testing.T) {
	st := &fakeStatus{verified: true}
	if _, err := RequireVerifiedAdmin(context.Background(), newAuthz(t), st); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if st.calls != 0 {
		t.Error("status should not be consulted without a caller")
	}
}
