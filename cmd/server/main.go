// server runs the admin passkey gate: the JSON API over HTTP and the gRPC health service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	adminhandler "passkey-gate/internal/admin/handler"
	"passkey-gate/internal/audit"
	audithandler "passkey-gate/internal/audit/handler"
	"passkey-gate/internal/ceremony"
	ceremonyhandler "passkey-gate/internal/ceremony/handler"
	"passkey-gate/internal/challenge"
	"passkey-gate/internal/config"
	"passkey-gate/internal/devotp"
	devotphandler "passkey-gate/internal/devotp/handler"
	healthhandler "passkey-gate/internal/health/handler"
	identityhandler "passkey-gate/internal/identity/handler"
	identityservice "passkey-gate/internal/identity/service"
	"passkey-gate/internal/janitor"
	"passkey-gate/internal/logger"
	"passkey-gate/internal/metrics"
	"passkey-gate/internal/mfa"
	mfahandler "passkey-gate/internal/mfa/handler"
	"passkey-gate/internal/mfasession"
	sessionhandler "passkey-gate/internal/mfasession/handler"
	"passkey-gate/internal/policy/engine"
	"passkey-gate/internal/security"
	"passkey-gate/internal/server"
	oteltelemetry "passkey-gate/internal/telemetry/otel"
)

const (
	serviceName     = "passkey-gate"
	shutdownTimeout = 15 * time.Second
	healthInterval  = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpID, err := cfg.RPID()
	if err != nil {
		return err
	}

	providers, err := oteltelemetry.NewProviders(ctx, oteltelemetry.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer shutdown(log, "otel", providers.Shutdown)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	policy, err := engine.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return err
	}
	authz, err := engine.NewOPAEvaluator(ctx, policy)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	emitter, closeEmitter := auditEmitter(cfg, providers, log)
	defer closeEmitter()
	recorder := audit.NewLogger(st.audit, emitter, log)

	tokens, err := tokenProvider(cfg)
	if err != nil {
		return err
	}
	auth := identityservice.NewAuthService(st.identities, security.NewHasher(cfg.BcryptCost), tokens, recorder, log)
	if st.db == nil {
		bootstrapAdmin(ctx, cfg, auth, log)
	}

	sessions := mfasession.NewService(st.sessions, cfg.SessionWindow(), cfg.SessionMaxLifetime(), log)
	ledger := challenge.NewLedger(st.challenges)

	var devStore devotp.Store
	var devOTP *devotphandler.Handler
	if cfg.OTPReturnToClient {
		mem := devotp.NewMemoryStore()
		devStore = mem
		devOTP = devotphandler.New(mem, log)
		log.Warn("dev OTP mode enabled: codes are served at /dev/otp")
	}
	otp := mfa.NewService(st.otps, st.limiter, codeSender(cfg, log), sessions, recorder, devStore, mfa.Config{
		CodeTTL:      cfg.OTPCodeTTL(),
		FailureDelay: cfg.FailureDelay(),
	}, log)

	ceremonies, err := ceremony.NewService(ceremony.Config{
		Origin:            cfg.Origin(),
		RPID:              rpID,
		RPDisplayName:     cfg.RPDisplayName,
		RegistrationTTL:   cfg.RegistrationTTL(),
		AuthenticationTTL: cfg.AuthenticationTTL(),
	}, st.credentials, ledger, sessions, authz, recorder, alerter(cfg), log)
	if err != nil {
		return err
	}

	var pinger healthhandler.Pinger
	if st.db != nil {
		pinger = st.db
	}
	checker := healthhandler.NewChecker(pinger, authz, log)

	trusted, err := cfg.TrustedProxies()
	if err != nil {
		return err
	}
	router := server.NewRouter(server.HTTPDeps{
		Log:            log,
		CORSOrigins:    cfg.CORSOrigins(),
		TrustedProxies: trusted,
		Tokens:         tokens,
		Login:          identityhandler.New(auth, log),
		Ceremony:       ceremonyhandler.New(ceremonies, log),
		OTP:            mfahandler.New(otp, log),
		Session:        sessionhandler.New(sessions, log),
		Audit:          audithandler.New(st.audit, authz, log),
		Admin:          adminhandler.New(authz, sessions, log),
		Health:         checker,
		DevOTP:         devOTP,
		Metrics:        promhttp.Handler(),
	})
	httpSrv := server.NewHTTPServer(cfg.HTTPAddr, router)

	grpcSrv, hs := server.NewGRPCServer(log)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	go checker.Sync(ctx, hs, healthInterval)
	janitor.New(ledger, st.otps, janitor.DefaultRetention, log).Start(ctx, cfg.JanitorInterval())

	errCh := make(chan error, 2)
	go func() {
		log.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr), zap.String("rp_id", rpID), zap.String("origin", cfg.Origin()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hs.Shutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	log.Info("stopped")
	return nil
}

func shutdown(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("shutdown failed", zap.String("component", name), zap.Error(err))
	}
}
