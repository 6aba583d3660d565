// Package handler serves GET /dev/otp. Only mounted when dev OTP mode is enabled and not in production.
package handler

import (
	"net/http"

	"go.uber.org/zap"

	"passkey-gate/internal/devotp"
	"passkey-gate/internal/platform/errs"
	"passkey-gate/internal/platform/httpx"
	"passkey-gate/internal/server/middleware"
)

const devOTPNote = "DEV MODE ONLY"

// Handler serves the caller's latest OTP from the dev store.
type Handler struct {
	store devotp.Store
	log   *zap.Logger
}

// New returns a dev OTP handler reading from store.
func New(store devotp.Store, log *zap.Logger) *Handler {
	return &Handler{store: store, log: log}
}

type otpResponse struct {
	OTP  string `json:"otp"`
	Note string `json:"note"`
}

// GetOTP returns the caller's latest unexpired OTP, or 404 if there is none.
func (h *Handler) GetOTP(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		httpx.WriteError(w, h.log, errs.ErrUnauthenticated)
		return
	}
	code, ok := h.store.Get(r.Context(), caller.ID)
	if !ok {
		httpx.WriteJSON(w, http.StatusNotFound, httpx.ErrorBody{Error: httpx.ErrorDetail{
			Code:    errs.CodeBadRequest,
			Message: "OTP not found or expired",
		}})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, otpResponse{OTP: code, Note: devOTPNote})
}
