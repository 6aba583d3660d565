// Package httpx holds the JSON request and response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"passkey-gate/internal/platform/errs"
)

// MaxBodyBytes caps request bodies. Attestation objects are the largest payload.
const MaxBodyBytes = 64 << 10

// ErrorBody is the envelope written for every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a bounded error code, a human message and an optional lockout expiry.
type ErrorDetail struct {
	Code        string     `json:"code"`
	Message     string     `json:"message"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// WriteError maps err to its code and status. Internal errors are logged and their text is not exposed.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := errs.Code(err)
	detail := ErrorDetail{Code: code, Message: messageFor(code, err)}
	if until, ok := errs.LockedUntil(err); ok {
		u := until.UTC()
		detail.LockedUntil = &u
		if secs := int(time.Until(u).Seconds()); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	if code == errs.CodeInternal && log != nil {
		log.Error("request failed", zap.Error(err))
	}
	WriteJSON(w, StatusFor(code), ErrorBody{Error: detail})
}

// StatusFor returns the HTTP status for an error code.
func StatusFor(code string) int {
	switch code {
	case errs.CodeNotAuthorized, errs.CodeOriginNotAllowed, errs.CodePossibleCloneDetected:
		return http.StatusForbidden
	case errs.CodeNoActiveChallenge, errs.CodeVerificationFailed, errs.CodeInvalidOTP,
		errs.CodeInvalidStep, errs.CodeBadRequest:
		return http.StatusBadRequest
	case errs.CodeNoCredentialsRegistered:
		return http.StatusConflict
	case errs.CodeCredentialNotFound:
		return http.StatusNotFound
	case errs.CodeTooManyAttempts:
		return http.StatusTooManyRequests
	case errs.CodeInvalidCredentials, errs.CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(code string, err error) string {
	if code == errs.CodeTooManyAttempts {
		return errs.ErrTooManyAttempts.Error()
	}
	if s := errs.Sentinel(err); s != nil {
		return s.Error()
	}
	return "internal error"
}

// DecodeJSON decodes the request body into v. An empty body leaves v untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errs.WithReason(errs.ErrBadRequest, fmt.Sprintf("decode body: %v", err))
	}
	return nil
}
