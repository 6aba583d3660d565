// Package handler serves the OTP send and verify endpoints.
package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	auditdomain "passkey-gate/internal/audit/domain"
	"passkey-gate/internal/mfa"
	sessiondomain "passkey-gate/internal/mfasession/domain"
	sessionhandler "passkey-gate/internal/mfasession/handler"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/platform/httpx"
	"passkey-gate/internal/server/middleware"
)

// OTPService is the subset of mfa.Service used by the handler.
type OTPService interface {
	SendOTP(ctx context.Context, identityID, email string, client auditdomain.Client) (*mfa.SendResult, error)
	VerifyOTP(ctx context.Context, identityID, code string, client auditdomain.Client) (*sessiondomain.Session, error)
}

// Handler serves /v1/mfa/otp/*.
type Handler struct {
	svc OTPService
	log *zap.Logger
}

// New returns an OTP handler.
func New(svc OTPService, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type sendResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
	Delivered bool      `json:"delivered"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	OK      bool                       `json:"ok"`
	Session sessionhandler.SessionView `json:"session"`
}

// Send emails a fresh code to the caller.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	res, err := h.svc.SendOTP(r.Context(), caller.ID, caller.Email, middleware.ClientFrom(r.Context()))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, sendResponse{ExpiresAt: res.ExpiresAt, Delivered: res.Delivered})
}

// Verify checks the submitted code and returns the updated session snapshot.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	var req verifyRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	sess, err := h.svc.VerifyOTP(r.Context(), caller.ID, req.Code, middleware.ClientFrom(r.Context()))
	if err != nil {
		httpx.WriteError(w, h.log, err)
		return
	}
	now := time.Now().UTC()
	httpx.WriteJSON(w, http.StatusOK, verifyResponse{OK: sess.Verified(now), Session: sessionhandler.View(sess, now)})
}
