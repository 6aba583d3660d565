// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	adminhandler "passkey-gate/internal/admin/handler"
	audithandler "passkey-gate/internal/audit/handler"
	ceremonyhandler "passkey-gate/internal/ceremony/handler"
	devotphandler "passkey-gate/internal/devotp/handler"
	healthhandler "passkey-gate/internal/health/handler"
	identityhandler "passkey-gate/internal/identity/handler"
	"passkey-gate/internal/logger"
	mfahandler "passkey-gate/internal/mfa/handler"
	sessionhandler "passkey-gate/internal/mfasession/handler"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/platform/httpx"
	"passkey-gate/internal/server/middleware"
)

const (
	defaultLoginPerMinute = 10
	defaultOTPPerMinute   = 20
)

// HTTPDeps holds the handlers and settings mounted by NewRouter.
type HTTPDeps struct {
	Log *zap.Logger
	// CORSOrigins are the only origins allowed by CORS; the first is the relying party origin.
	CORSOrigins []string
	Tokens      middleware.TokenValidator
	// TrustedProxies are the networks whose forwarding headers are believed when resolving the client IP.
	TrustedProxies []netip.Prefix

	Login    *identityhandler.Handler
	Ceremony *ceremonyhandler.Handler
	OTP      *mfahandler.Handler
	Session  *sessionhandler.Handler
	Audit    *audithandler.Handler
	Admin    *adminhandler.Handler
	Health   *healthhandler.Checker
	// DevOTP is mounted at /dev/otp only when non-nil.
	DevOTP *devotphandler.Handler
	// Metrics serves /metrics (e.g. promhttp.Handler()). Nil leaves the route unmounted.
	Metrics http.Handler

	// LoginPerMinute and OTPPerMinute cap requests per client IP. Zero selects the defaults.
	LoginPerMinute int
	OTPPerMinute   int
}

var unobserved = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

// NewRouter returns the chi router serving the JSON API.
func NewRouter(d HTTPDeps) http.Handler {
	log := logger.OrNop(d.Log)
	loginLimit := d.LoginPerMinute
	if loginLimit <= 0 {
		loginLimit = defaultLoginPerMinute
	}
	otpLimit := d.OTPPerMinute
	if otpLimit <= 0 {
		otpLimit = defaultOTPPerMinute
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Origin"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.ClientInfo(middleware.NewProxyTrust(d.TrustedProxies)))
	r.Use(middleware.Observe(log, unobserved))

	r.Get("/healthz", d.Health.Live)
	r.Get("/readyz", d.Health.Ready)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(limitByClientIP(loginLimit, log)).Post("/auth/login", d.Login.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(d.Tokens, log))

			r.Route("/webauthn", func(r chi.Router) {
				r.Post("/registration/options", d.Ceremony.RegistrationOptions)
				r.Post("/registration/verify", d.Ceremony.RegistrationVerify)
				r.Post("/authentication/options", d.Ceremony.AuthenticationOptions)
				r.Post("/authentication/verify", d.Ceremony.AuthenticationVerify)
				r.Get("/credentials", d.Ceremony.List)
				r.Delete("/credentials/{credentialID}", d.Ceremony.Revoke)
			})

			r.Route("/mfa", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(limitByClientIP(otpLimit, log))
					r.Post("/otp/send", d.OTP.Send)
					r.Post("/otp/verify", d.OTP.Verify)
				})
				r.Get("/status", d.Session.Status)
				r.Delete("/session", d.Session.Clear)
			})

			r.Get("/audit", d.Audit.List)
			r.Get("/admin/session", d.Admin.Session)
		})
	})

	if d.DevOTP != nil {
		r.With(middleware.Authenticate(d.Tokens, log)).Get("/dev/otp", d.DevOTP.GetOTP)
	}
	return r
}

// limitByClientIP caps requests per minute per client IP and answers excess requests with too_many_attempts.
// The key is the IP ClientInfo resolved, so forwarding headers count only from trusted proxies.
func limitByClientIP(perMinute int, log *zap.Logger) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return middleware.ClientFrom(r.Context()).IP, nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteError(w, log, errs.ErrTooManyAttempts)
		}),
	)
}

// NewHTTPServer returns an http.Server with timeouts suited to small JSON requests.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
