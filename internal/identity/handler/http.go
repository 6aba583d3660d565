// Package handler serves admin password login.
package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	auditdomain "passkey-gate/internal/audit/domain"
	"passkey-gate/internal/identity/domain"
	"passkey-gate/internal/identity/service"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/platform/httpx"
	"passkey-gate/internal/server/middleware"
)

// LoginService is the subset of service.AuthService used by the handler.
type LoginService interface {
	Login(ctx context.Context, email, password string, client auditdomain.Client) (*service.LoginResult, error)
}

// Handler serves /v1/auth/login.
type Handler struct {
	svc LoginService
	log *zap.Logger
}

// New returns a login handler.
func New(svc LoginService, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type identityView struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name,omitempty"`
	Role  domain.Role `json:"role"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	Identity    identityView `json:"identity"`
}

// Login exchanges email and password for a bearer access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, h.log, errs.WithReason(errs.ErrBadRequest, "email and password are required"))
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password, middleware.ClientFrom(r.Context()))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		Identity: identityView{
			ID:    res.Caller.ID,
			Email: res.Caller.Email,
			Name:  res.Caller.Name,
			Role:  res.Caller.Role,
		},
	})
}
