package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"passkey-gate/internal/identity/domain"
	"passkey-gate/internal/logger"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/platform/httpx"
)

const bearerPrefix = "bearer "

// TokenValidator validates an access token and returns its principal.
type TokenValidator interface {
	ValidateAccess(token string) (domain.Caller, error)
}

// Authenticate validates the Bearer access token and stores the caller in the request context.
// Requests with a missing or invalid token get 401 unauthenticated.
func Authenticate(tokens TokenValidator, log *zap.Logger) func(http.Handler) http.Handler {
	log = logger.OrNop(log)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				httpx.WriteError(w, log, errs.ErrUnauthenticated)
				return
			}
			caller, err := tokens.ValidateAccess(token)
			if err != nil {
				log.Debug("access token rejected", zap.Error(err))
				httpx.WriteError(w, log, errs.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
