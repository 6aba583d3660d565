// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects in-memory stores (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the redis URL for the OTP limiter (e.g. redis://localhost:6379/0). Empty selects the in-memory limiter.
	RedisURL string `mapstructure:"REDIS_URL"`

	// RPOrigin is the single origin allowed to run ceremonies (e.g. https://admin.example.com). The RP ID is its host.
	RPOrigin string `mapstructure:"RP_ORIGIN"`
	// RPDisplayName is the relying party name shown by authenticators.
	RPDisplayName string `mapstructure:"RP_DISPLAY_NAME"`
	// RegistrationChallengeTTL is the registration challenge lifetime (e.g. "5m").
	RegistrationChallengeTTL string `mapstructure:"REGISTRATION_CHALLENGE_TTL"`
	// AuthenticationChallengeTTL is the authentication challenge lifetime (e.g. "1m").
	AuthenticationChallengeTTL string `mapstructure:"AUTHENTICATION_CHALLENGE_TTL"`

	// MFASessionWindow is the sliding MFA session window refreshed on each sub-step (e.g. "4h").
	MFASessionWindow string `mapstructure:"MFA_SESSION_WINDOW"`
	// MFASessionMaxLifetime caps a session measured from its first sub-step (e.g. "12h").
	MFASessionMaxLifetime string `mapstructure:"MFA_SESSION_MAX_LIFETIME"`

	// OTPTTL is the lifetime of an emailed code.
	OTPTTL string `mapstructure:"OTP_TTL"`
	// OTPMaxAttempts is the number of attempts within OTPAttemptWindow that triggers a lockout.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPAttemptWindow is the attempt counting window.
	OTPAttemptWindow string `mapstructure:"OTP_ATTEMPT_WINDOW"`
	// OTPLockoutDuration is how long a lockout lasts.
	OTPLockoutDuration string `mapstructure:"OTP_LOCKOUT_DURATION"`
	// OTPFailureDelay is the artificial delay before an invalid-code response.
	OTPFailureDelay string `mapstructure:"OTP_FAILURE_DELAY"`
	// OTPReturnToClient when true enables dev OTP mode: codes are kept for GET /dev/otp. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SMTP settings for the OTP email sender. When SMTPHost is empty, codes are only logged as "not sent".
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// SMSLocalAPIKey enables SMS alerts for new passkey registrations (optional).
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// AlertPhone receives SMS alerts (digits only, with country code).
	AlertPhone string `mapstructure:"ALERT_PHONE"`

	// AuditKafkaBrokers is a comma-separated list of Kafka brokers. When set, audit entries are also published to Kafka.
	AuditKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for audit events.
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// Worker-only: Loki URL for the audit worker to push entries (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the audit worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// PolicyPath is an optional rego file replacing the built-in authorization policy.
	PolicyPath string `mapstructure:"POLICY_PATH"`
	// JanitorIntervalRaw is how often expired challenges and codes are purged (e.g. "5m").
	JanitorIntervalRaw string `mapstructure:"JANITOR_INTERVAL"`
	// CORSAllowedOrigins is a comma-separated list of extra origins allowed by CORS. RPOrigin is always allowed.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// TrustedProxiesRaw is a comma-separated list of CIDRs or IPs whose X-Forwarded-For and X-Real-IP
	// headers are honored. Empty trusts no proxy and keys clients by the TCP peer.
	TrustedProxiesRaw string `mapstructure:"TRUSTED_PROXIES"`

	// BootstrapAdminEmail and BootstrapAdminPassword provision an admin account: cmd/seed writes it to the
	// database, and the server creates it at startup when running on in-memory stores.
	BootstrapAdminEmail    string `mapstructure:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `mapstructure:"BOOTSTRAP_ADMIN_PASSWORD"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RP_ORIGIN", "http://localhost:3000")
	v.SetDefault("RP_DISPLAY_NAME", "Admin Console")
	v.SetDefault("REGISTRATION_CHALLENGE_TTL", "5m")
	v.SetDefault("AUTHENTICATION_CHALLENGE_TTL", "1m")
	v.SetDefault("MFA_SESSION_WINDOW", "4h")
	v.SetDefault("MFA_SESSION_MAX_LIFETIME", "12h")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_ATTEMPT_WINDOW", "15m")
	v.SetDefault("OTP_LOCKOUT_DURATION", "15m")
	v.SetDefault("OTP_FAILURE_DELAY", "400ms")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "passkey-gate")
	v.SetDefault("JWT_AUDIENCE", "passkey-gate-admin")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", "465")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("ALERT_PHONE", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "passkey-gate-audit")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "passkey-gate-audit-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("POLICY_PATH", "")
	v.SetDefault("JANITOR_INTERVAL", "5m")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("BOOTSTRAP_ADMIN_EMAIL", "")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if _, err := cfg.TrustedProxies(); err != nil {
		return nil, err
	}

	if cfg.OTPReturnToClient && cfg.IsProduction() {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if _, err := cfg.RPID(); err != nil {
		return nil, err
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.OTPMaxAttempts <= 0 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must be positive")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// RPID returns the relying party ID: the host (without port) of RPOrigin.
// RPOrigin must be an absolute http(s) origin with no path, query, or fragment.
func (c *Config) RPID() (string, error) {
	u, err := url.Parse(strings.TrimSpace(c.RPOrigin))
	if err != nil {
		return "", errors.New("config: RP_ORIGIN is not a valid URL")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", errors.New("config: RP_ORIGIN must use http or https")
	}
	if u.Hostname() == "" {
		return "", errors.New("config: RP_ORIGIN must include a host")
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return "", errors.New("config: RP_ORIGIN must be an origin without path, query, or fragment")
	}
	return u.Hostname(), nil
}

// Origin returns RPOrigin without a trailing slash, as browsers report it in clientDataJSON.
func (c *Config) Origin() string {
	return strings.TrimSuffix(strings.TrimSpace(c.RPOrigin), "/")
}

// RegistrationTTL parses RegistrationChallengeTTL. Returns 5m if unset or invalid.
func (c *Config) RegistrationTTL() time.Duration {
	return parseDuration(c.RegistrationChallengeTTL, 5*time.Minute)
}

// AuthenticationTTL parses AuthenticationChallengeTTL. Returns 1m if unset or invalid.
func (c *Config) AuthenticationTTL() time.Duration {
	return parseDuration(c.AuthenticationChallengeTTL, time.Minute)
}

// SessionWindow parses MFASessionWindow. Returns 4h if unset or invalid.
func (c *Config) SessionWindow() time.Duration {
	return parseDuration(c.MFASessionWindow, 4*time.Hour)
}

// SessionMaxLifetime parses MFASessionMaxLifetime. Returns 12h if unset or invalid.
func (c *Config) SessionMaxLifetime() time.Duration {
	return parseDuration(c.MFASessionMaxLifetime, 12*time.Hour)
}

// OTPCodeTTL parses OTPTTL. Returns 10m if unset or invalid.
func (c *Config) OTPCodeTTL() time.Duration {
	return parseDuration(c.OTPTTL, 10*time.Minute)
}

// AttemptWindow parses OTPAttemptWindow. Returns 15m if unset or invalid.
func (c *Config) AttemptWindow() time.Duration {
	return parseDuration(c.OTPAttemptWindow, 15*time.Minute)
}

// LockoutDuration parses OTPLockoutDuration. Returns 15m if unset or invalid.
func (c *Config) LockoutDuration() time.Duration {
	return parseDuration(c.OTPLockoutDuration, 15*time.Minute)
}

// FailureDelay parses OTPFailureDelay. Returns 400ms if unset or invalid; "0s" disables the delay.
func (c *Config) FailureDelay() time.Duration {
	d, err := time.ParseDuration(c.OTPFailureDelay)
	if err != nil || d < 0 {
		return 400 * time.Millisecond
	}
	return d
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// JanitorInterval parses JanitorIntervalRaw. Returns 5m if unset or invalid.
func (c *Config) JanitorInterval() time.Duration {
	return parseDuration(c.JanitorIntervalRaw, 5*time.Minute)
}

// CORSOrigins returns RPOrigin followed by any extra CORS origins.
func (c *Config) CORSOrigins() []string {
	out := []string{c.Origin()}
	for _, p := range strings.Split(c.CORSAllowedOrigins, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TrustedProxies parses TrustedProxiesRaw. A bare IP is taken as a single-host prefix.
func (c *Config) TrustedProxies() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, p := range strings.Split(c.TrustedProxiesRaw, ",") {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q: %w", s, err)
			}
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q: %w", s, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

// AuditKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if audit fan-out is enabled (non-empty list) and to create the producer.
func (c *Config) AuditKafkaBrokersList() []string {
	if c == nil || c.AuditKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AuditKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
