package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":9090")
	}
	if cfg.RPOrigin != "http://localhost:3000" {
		t.Errorf("RPOrigin = %q, want default", cfg.RPOrigin)
	}
	if cfg.JWTIssuer != "passkey-gate" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "passkey-gate")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Errorf("OTPMaxAttempts = %d, want 5", cfg.OTPMaxAttempts)
	}
	if cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should default to false")
	}
	if cfg.AuditKafkaTopic != "passkey-gate-audit" {
		t.Errorf("AuditKafkaTopic = %q, want default", cfg.AuditKafkaTopic)
	}

	durations := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"RegistrationTTL", cfg.RegistrationTTL(), 5 * time.Minute},
		{"AuthenticationTTL", cfg.AuthenticationTTL(), time.Minute},
		{"SessionWindow", cfg.SessionWindow(), 4 * time.Hour},
		{"SessionMaxLifetime", cfg.SessionMaxLifetime(), 12 * time.Hour},
		{"OTPCodeTTL", cfg.OTPCodeTTL(), 10 * time.Minute},
		{"AttemptWindow", cfg.AttemptWindow(), 15 * time.Minute},
		{"LockoutDuration", cfg.LockoutDuration(), 15 * time.Minute},
		{"FailureDelay", cfg.FailureDelay(), 400 * time.Millisecond},
		{"AccessTTL", cfg.AccessTTL(), 15 * time.Minute},
	}
	for _, d := range durations {
		if d.got != d.want {
			t.Errorf("%s = %v, want %v", d.name, d.got, d.want)
		}
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9999")
	os.Setenv("RP_ORIGIN", "https://admin.example.com")
	os.Setenv("MFA_SESSION_WINDOW", "2h")
	os.Setenv("OTP_MAX_ATTEMPTS", "3")
	os.Setenv("BCRYPT_COST", "10")
	os.Setenv("BOOTSTRAP_ADMIN_EMAIL", "root@example.com")
	os.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "correct-horse-battery")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9999")
	}
	if cfg.SessionWindow() != 2*time.Hour {
		t.Errorf("SessionWindow = %v, want 2h", cfg.SessionWindow())
	}
	if cfg.OTPMaxAttempts != 3 {
		t.Errorf("OTPMaxAttempts = %d, want 3", cfg.OTPMaxAttempts)
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, want 10", cfg.BcryptCost)
	}
	if cfg.BootstrapAdminEmail != "root@example.com" || cfg.BootstrapAdminPassword != "correct-horse-battery" {
		t.Errorf("bootstrap admin = %q/%q", cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
	}
	rpID, err := cfg.RPID()
	if err != nil {
		t.Fatalf("RPID: %v", err)
	}
	if rpID != "admin.example.com" {
		t.Errorf("RPID = %q, want %q", rpID, "admin.example.com")
	}
}

func TestLoad_RPOriginValidation(t *testing.T) {
	testCases := []struct {
		name   string
		origin string
		rpID   string
		err    bool
	}{
		{"https origin", "https://admin.example.com", "admin.example.com", false},
		{"with port", "http://localhost:3000", "localhost", false},
		{"trailing slash", "https://admin.example.com/", "admin.example.com", false},
		{"with path", "https://admin.example.com/login", "", true},
		{"no scheme", "admin.example.com", "", true},
		{"ftp scheme", "ftp://admin.example.com", "", true},
		{"with query", "https://admin.example.com?x=1", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("RP_ORIGIN", tc.origin)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			rpID, _ := cfg.RPID()
			if rpID != tc.rpID {
				t.Errorf("RPID = %q, want %q", rpID, tc.rpID)
			}
		})
	}
}

func TestConfig_OriginTrimsTrailingSlash(t *testing.T) {
	cfg := &Config{RPOrigin: "https://admin.example.com/"}
	if got := cfg.Origin(); got != "https://admin.example.com" {
		t.Errorf("Origin = %q, want %q", got, "https://admin.example.com")
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_OTPMaxAttemptsMustBePositive(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_MAX_ATTEMPTS", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject negative OTP_MAX_ATTEMPTS")
	}
}

func TestLoad_OTPReturnToClientProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when OTP_RETURN_TO_CLIENT=true and APP_ENV=production")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
	if err.Error() != "config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production" {
		t.Errorf("error = %q, want production guard message", err.Error())
	}
}

func TestLoad_OTPReturnToClientDevelopment(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should be true")
	}
}

func TestDurations_InvalidFallBack(t *testing.T) {
	cfg := &Config{
		RegistrationChallengeTTL:   "invalid",
		AuthenticationChallengeTTL: "0",
		MFASessionWindow:           "-1h",
		OTPFailureDelay:            "nope",
		JWTAccessTTL:               "",
	}
	if got := cfg.RegistrationTTL(); got != 5*time.Minute {
		t.Errorf("RegistrationTTL = %v, want 5m", got)
	}
	if got := cfg.AuthenticationTTL(); got != time.Minute {
		t.Errorf("AuthenticationTTL = %v, want 1m", got)
	}
	if got := cfg.SessionWindow(); got != 4*time.Hour {
		t.Errorf("SessionWindow = %v, want 4h", got)
	}
	if got := cfg.FailureDelay(); got != 400*time.Millisecond {
		t.Errorf("FailureDelay = %v, want 400ms", got)
	}
	if got := cfg.AccessTTL(); got != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", got)
	}
}

func TestFailureDelay_ZeroDisables(t *testing.T) {
	cfg := &Config{OTPFailureDelay: "0s"}
	if got := cfg.FailureDelay(); got != 0 {
		t.Errorf("FailureDelay = %v, want 0", got)
	}
}

func TestAuditKafkaBrokersList(t *testing.T) {
	cfg := &Config{AuditKafkaBrokers: " a:9092, ,b:9092 "}
	got := cfg.AuditKafkaBrokersList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("AuditKafkaBrokersList = %v, want [a:9092 b:9092]", got)
	}
	var nilCfg *Config
	if nilCfg.AuditKafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
}

func TestCORSOrigins(t *testing.T) {
	cfg := &Config{RPOrigin: "https://admin.example.com/", CORSAllowedOrigins: "http://localhost:5173, "}
	got := cfg.CORSOrigins()
	if len(got) != 2 || got[0] != "https://admin.example.com" || got[1] != "http://localhost:5173" {
		t.Errorf("CORSOrigins = %v", got)
	}
	if cfg.JanitorInterval() != 5*time.Minute {
		t.Errorf("JanitorInterval = %v, want 5m", cfg.JanitorInterval())
	}
}

func TestTrustedProxies(t *testing.T) {
	cfg := &Config{TrustedProxiesRaw: "10.0.0.0/8, 192.0.2.7 ,fd00::1/64,"}
	got, err := cfg.TrustedProxies()
	if err != nil {
		t.Fatalf("TrustedProxies: %v", err)
	}
	want := []string{"10.0.0.0/8", "192.0.2.7/32", "fd00::/64"}
	if len(got) != len(want) {
		t.Fatalf("TrustedProxies = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("prefix %d = %s, want %s", i, got[i], want[i])
		}
	}

	if got, err := (&Config{}).TrustedProxies(); err != nil || len(got) != 0 {
		t.Errorf("empty TrustedProxies = %v, %v; want none", got, err)
	}
}

func TestLoad_TrustedProxiesInvalid(t *testing.T) {
	os.Clearenv()
	os.Setenv("TRUSTED_PROXIES", "10.0.0.0/33")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject an invalid TRUSTED_PROXIES entry")
	}
}
