package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"passkey-gate/internal/identity/domain"
)

func newEvaluator(t *testing.T, policy string) *OPAEvaluator {
	t.Helper()
	e, err := NewOPAEvaluator(context.Background(), policy)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	e := newEvaluator(t, "")
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	e := newEvaluator(t, "")
	admin := domain.Caller{ID: "a1", Email: "a@example.com", Role: domain.RoleAdmin}
	viewer := domain.Caller{ID: "v1", Email: "v@example.com", Role: domain.RoleViewer}

	tests := []struct {
		name       string
		in         Input
		wantAllow  bool
		wantReason string
	}{
		{"admin ceremony", Input{Caller: admin, Action: ActionCeremony}, true, ""},
		{"viewer ceremony", Input{Caller: viewer, Action: ActionCeremony}, false, "role"},
		{"anonymous ceremony", Input{Action: ActionCeremony}, false, "role"},
		{"admin api verified", Input{Caller: admin, Action: ActionAdminAPI, MFAVerified: true}, true, ""},
		{"admin api unverified", Input{Caller: admin, Action: ActionAdminAPI}, false, "mfa"},
		{"viewer api verified", Input{Caller: viewer, Action: ActionAdminAPI, MFAVerified: true}, false, "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Authorize(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("Authorize: %v", err)
			}
			if d.Allow != tt.wantAllow {
				t.Errorf("Allow = %v, want %v", d.Allow, tt.wantAllow)
			}
			if d.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.wantReason)
			}
		})
	}
}

func TestOPAEvaluator_UnknownActionDenies(t *testing.T) {
	e := newEvaluator(t, "")
	d, err := e.Authorize(context.Background(), Input{
		Caller: domain.Caller{ID: "a1", Role: domain.RoleAdmin},
		Action: Action("delete_everything"),
	})
	if err == nil {
		t.Fatal("Authorize should return error for unknown action")
	}
	if d.Allow {
		t.Error("unknown action must deny")
	}
}

func TestOPAEvaluator_UndefinedRuleDenies(t *testing.T) {
	// Neither rule has a default, so both are undefined for every input.
	policy := `package passkey_gate.authz

allow_ceremony if {
	input.caller.role == "superuser"
}

allow_admin_api if {
	allow_ceremony
}
`
	e := newEvaluator(t, policy)
	d, err := e.Authorize(context.Background(), Input{
		Caller: domain.Caller{ID: "a1", Role: domain.RoleAdmin},
		Action: ActionCeremony,
	})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allow {
		t.Error("undefined allow_ceremony must deny")
	}
	if d.Reason != "denied" {
		t.Errorf("Reason = %q, want %q", d.Reason, "denied")
	}
	if err := e.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck should fail when the policy denies an admin")
	}
}

func TestOPAEvaluator_NonBooleanDenies(t *testing.T) {
	policy := `package passkey_gate.authz

allow_ceremony := "yes"

allow_admin_api := 1
`
	e := newEvaluator(t, policy)
	for _, action := range []Action{ActionCeremony, ActionAdminAPI} {
		d, err := e.Authorize(context.Background(), Input{
			Caller:      domain.Caller{ID: "a1", Role: domain.RoleAdmin},
			Action:      action,
			MFAVerified: true,
		})
		if err != nil {
			t.Fatalf("Authorize(%s): %v", action, err)
		}
		if d.Allow {
			t.Errorf("Authorize(%s) allowed a non-boolean result", action)
		}
	}
}

func TestNewOPAEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), "package broken\n\nallow if {"); err == nil {
		t.Fatal("NewOPAEvaluator should reject a policy that does not compile")
	}
}

func TestLoadPolicy(t *testing.T) {
	got, err := LoadPolicy("")
	if err != nil || got != "" {
		t.Fatalf("LoadPolicy(\"\") = %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "authz.rego")
	if err := os.WriteFile(path, []byte(DefaultPolicy), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if got != DefaultPolicy {
		t.Error("LoadPolicy returned different contents")
	}

	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.rego")); err == nil {
		t.Error("LoadPolicy should fail for a missing file")
	}
}
