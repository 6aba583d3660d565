package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	auditrepo "passkey-gate/internal/audit/repository"
	challengerepo "passkey-gate/internal/challenge/repository"
	"passkey-gate/internal/config"
	credentialrepo "passkey-gate/internal/credential/repository"
	"passkey-gate/internal/db"
	"passkey-gate/internal/identity/domain"
	identityrepo "passkey-gate/internal/identity/repository"
	identityservice "passkey-gate/internal/identity/service"
	"passkey-gate/internal/logger"
	"passkey-gate/internal/mfa"
	"passkey-gate/internal/mfa/ratelimit"
	mfarepo "passkey-gate/internal/mfa/repository"
	sessionrepo "passkey-gate/internal/mfasession/repository"
	"passkey-gate/internal/notify"
	"passkey-gate/internal/security"
	"passkey-gate/internal/telemetry"
	oteltelemetry "passkey-gate/internal/telemetry/otel"
	"passkey-gate/internal/telemetry/producer"
)

const redisPingTimeout = 3 * time.Second

// stores holds every repository plus the connections behind them.
type stores struct {
	db  *sql.DB
	rdb *redis.Client

	credentials credentialrepo.Repository
	challenges  challengerepo.Repository
	sessions    sessionrepo.Repository
	otps        mfarepo.Repository
	identities  identityrepo.Repository
	audit       auditrepo.Repository
	limiter     ratelimit.Limiter
}

// openStores selects Postgres when DATABASE_URL is set and in-memory stores otherwise, and redis for
// the OTP limiter when REDIS_URL is set.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	log = logger.OrNop(log)
	st := &stores{}
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		st.db = conn
		st.credentials = credentialrepo.NewPostgresRepository(conn)
		st.challenges = challengerepo.NewPostgresRepository(conn)
		st.sessions = sessionrepo.NewPostgresRepository(conn)
		st.otps = mfarepo.NewPostgresRepository(conn)
		st.identities = identityrepo.NewPostgresRepository(conn)
		st.audit = auditrepo.NewPostgresRepository(conn)
	} else {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("db: DATABASE_URL is required when APP_ENV=production")
		}
		log.Warn("DATABASE_URL not set; using in-memory stores")
		st.credentials = credentialrepo.NewMemoryRepository()
		st.challenges = challengerepo.NewMemoryRepository()
		st.sessions = sessionrepo.NewMemoryRepository()
		st.otps = mfarepo.NewMemoryRepository()
		st.identities = identityrepo.NewMemoryRepository()
		st.audit = auditrepo.NewMemoryRepository()
	}

	policy := ratelimit.Policy{
		MaxAttempts: cfg.OTPMaxAttempts,
		Window:      cfg.AttemptWindow(),
		Lockout:     cfg.LockoutDuration(),
	}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		st.rdb = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := st.rdb.Ping(pingCtx).Err(); err != nil {
			st.Close()
			return nil, fmt.Errorf("redis: ping: %w", err)
		}
		st.limiter = ratelimit.NewRedisLimiter(st.rdb, policy)
	} else {
		st.limiter = ratelimit.NewMemoryLimiter(policy)
	}
	return st, nil
}

// Close releases the database and redis connections.
func (s *stores) Close() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// auditEmitter fans audit entries out to Kafka and OTel logs when configured. The returned
// emitter is nil when neither is.
func auditEmitter(cfg *config.Config, providers *oteltelemetry.Providers, log *zap.Logger) (telemetry.EventEmitter, func()) {
	log = logger.OrNop(log)
	var sinks telemetry.MultiEmitter
	closeFn := func() {}
	if brokers := cfg.AuditKafkaBrokersList(); len(brokers) > 0 {
		p := producer.NewKafkaProducer(brokers, cfg.AuditKafkaTopic)
		sinks = append(sinks, p)
		closeFn = func() {
			if err := p.Close(); err != nil {
				log.Warn("kafka producer close", zap.Error(err))
			}
		}
		log.Info("audit fan-out to kafka enabled", zap.String("topic", cfg.AuditKafkaTopic))
	}
	if cfg.OTLPEndpoint != "" {
		sinks = append(sinks, oteltelemetry.NewEventEmitter(providers.LoggerProvider))
	}
	if len(sinks) == 0 {
		return nil, closeFn
	}
	return sinks, closeFn
}

func tokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		return nil, fmt.Errorf("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required")
	}
	keys, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	return security.NewTokenProvider(keys, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}

// bootstrapAdmin creates the configured admin account on in-memory stores so the API is usable
// without a database.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, auth *identityservice.AuthService, log *zap.Logger) {
	if cfg.BootstrapAdminEmail == "" || cfg.BootstrapAdminPassword == "" {
		log.Warn("in-memory stores without BOOTSTRAP_ADMIN_EMAIL/BOOTSTRAP_ADMIN_PASSWORD: no account can sign in")
		return
	}
	a, err := auth.CreateAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword, "Bootstrap Admin", domain.RoleAdmin)
	if err != nil {
		log.Warn("bootstrap admin not created", zap.Error(err))
		return
	}
	log.Info("bootstrap admin created", zap.String("identity_id", a.ID), zap.String("email", a.Email))
}

// codeSender returns the SMTP OTP mailer, or nil when SMTP is not configured.
func codeSender(cfg *config.Config, log *zap.Logger) mfa.CodeSender {
	if cfg.SMTPHost == "" {
		logger.OrNop(log).Warn("SMTP_HOST not set; OTP codes will not be delivered")
		return nil
	}
	smtp := notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	return notify.NewOTPMailer(smtp, cfg.RPDisplayName)
}

// alerter returns the SMS alerter for new passkeys, or nil when SMS Local is not configured.
func alerter(cfg *config.Config) notify.Alerter {
	if cfg.SMSLocalAPIKey == "" || cfg.AlertPhone == "" {
		return nil
	}
	return notify.NewSMSAlerter(notify.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender), cfg.AlertPhone)
}
