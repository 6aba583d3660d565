package main

import (
	"context"
	"testing"

	"passkey-gate/internal/config"
)

func TestOptionalCollaboratorsAreNilInterfaces(t *testing.T) {
	cfg := &config.Config{}
	if s := codeSender(cfg, nil); s != nil {
		t.Errorf("codeSender = %#v, want nil", s)
	}
	if a := alerter(cfg); a != nil {
		t.Errorf("alerter = %#v, want nil", a)
	}
	em, closeFn := auditEmitter(cfg, nil, nil)
	if em != nil {
		t.Errorf("auditEmitter = %#v, want nil", em)
	}
	closeFn()
}

func TestOptionalCollaboratorsConfigured(t *testing.T) {
	cfg := &config.Config{
		SMTPHost:       "smtp.example.com",
		SMTPPort:       "465",
		SMTPFrom:       "gate@example.com",
		SMSLocalAPIKey: "key",
		AlertPhone:     "15550001111",
	}
	if codeSender(cfg, nil) == nil {
		t.Error("codeSender must be set when SMTP_HOST is configured")
	}
	if alerter(cfg) == nil {
		t.Error("alerter must be set when SMS Local is configured")
	}
}

func TestOpenStores_InMemory(t *testing.T) {
	cfg := &config.Config{OTPMaxAttempts: 5}
	st, err := openStores(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("openStores: %v", err)
	}
	defer st.Close()
	if st.db != nil || st.rdb != nil {
		t.Error("in-memory stores must not open connections")
	}
	if st.credentials == nil || st.challenges == nil || st.sessions == nil || st.otps == nil ||
		st.identities == nil || st.audit == nil || st.limiter == nil {
		t.Errorf("stores not fully populated: %+v", st)
	}
}

func TestOpenStores_ProductionRequiresDatabase(t *testing.T) {
	cfg := &config.Config{Env: "production", OTPMaxAttempts: 5}
	if _, err := openStores(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected an error without DATABASE_URL in production")
	}
}

func TestTokenProvider_RequiresKeys(t *testing.T) {
	if _, err := tokenProvider(&config.Config{}); err == nil {
		t.Fatal("expected an error without JWT keys")
	}
}
