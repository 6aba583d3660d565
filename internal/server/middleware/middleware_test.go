package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"passkey-gate/internal/identity/domain"
	"passkey-gate/internal/metrics"
)

type fakeTokens struct {
	caller domain.Caller
	token  string
}

func (f *fakeTokens) ValidateAccess(token string) (domain.Caller, error) {
	if token != f.token {
		return domain.Caller{}, errors.New("invalid token")
	}
	return f.caller, nil
}

func TestWithCaller_RoundTrip(t *testing.T) {
	want := domain.Caller{ID: "id-1", Email: "a@example.com", Role: domain.RoleAdmin}
	got, ok := CallerFrom(WithCaller(context.Background(), want))
	if !ok {
		t.Fatal("CallerFrom ok = false")
	}
	if got != want {
		t.Errorf("caller = %+v, want %+v", got, want)
	}
	if _, ok := CallerFrom(context.Background()); ok {
		t.Error("CallerFrom on empty context should be false")
	}
	if _, ok := CallerFrom(WithCaller(context.Background(), domain.Caller{})); ok {
		t.Error("CallerFrom with empty ID should be false")
	}
}

func TestAuthenticate(t *testing.T) {
	tokens := &fakeTokens{token: "good", caller: domain.Caller{ID: "id-1", Role: domain.RoleAdmin}}
	var seen domain.Caller
	h := Authenticate(tokens, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"invalid token", "Bearer bad", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusNoContent},
		{"lowercase scheme", "bearer good", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = domain.Caller{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && seen.ID != "id-1" {
				t.Errorf("caller id = %q, want %q", seen.ID, "id-1")
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	trust := NewProxyTrust([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})
	tests := []struct {
		name    string
		trust   *ProxyTrust
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded via trusted proxy", trust, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.2:1234", "203.0.113.7"},
		{"rightmost untrusted hop wins", trust, map[string]string{"X-Forwarded-For": "198.51.100.9, 203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"all hops trusted", trust, map[string]string{"X-Forwarded-For": "10.0.0.5"}, "10.0.0.2:1234", "10.0.0.2"},
		{"malformed hop", trust, map[string]string{"X-Forwarded-For": "203.0.113.7, garbage"}, "10.0.0.2:1234", "10.0.0.2"},
		{"real ip via trusted proxy", trust, map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:1234", "198.51.100.4"},
		{"forwarded from untrusted peer", trust, map[string]string{"X-Forwarded-For": "10.0.0.9"}, "203.0.113.10:5555", "203.0.113.10"},
		{"real ip from untrusted peer", trust, map[string]string{"X-Real-IP": "10.0.0.9"}, "203.0.113.10:5555", "203.0.113.10"},
		{"no trust configured", nil, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.2:1234", "10.0.0.2"},
		{"remote addr", trust, nil, "192.0.2.1:5555", "192.0.2.1"},
		{"remote without port", trust, nil, "192.0.2.1", "192.0.2.1"},
		{"unknown", trust, nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := tt.trust.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientInfo(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:443"
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh)")
	var ip, ua string
	ClientInfo(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := ClientFrom(r.Context())
		ip, ua = c.IP, c.UserAgent
	})).ServeHTTP(httptest.NewRecorder(), req)
	if ip != "192.0.2.1" {
		t.Errorf("IP = %q, want %q", ip, "192.0.2.1")
	}
	if ua != "Mozilla/5.0 (Macintosh)" {
		t.Errorf("UserAgent = %q", ua)
	}
}

func TestClientInfo_SpoofedForwardingKeepsPeerKey(t *testing.T) {
	h := ClientInfo(NewProxyTrust([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}))
	seen := map[string]bool{}
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/mfa/otp/verify", nil)
		req.RemoteAddr = "203.0.113.10:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
		h(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen[ClientFrom(r.Context()).IP] = true
		})).ServeHTTP(httptest.NewRecorder(), req)
	}
	if len(seen) != 1 || !seen["203.0.113.10"] {
		t.Errorf("client IPs = %v, want only the TCP peer", seen)
	}
}

func TestDeclaredOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Request-Origin", "https://cli.example.com")
	if got := DeclaredOrigin(req); got != "https://cli.example.com" {
		t.Errorf("DeclaredOrigin = %q, want fallback header", got)
	}
	req.Header.Set("Origin", "https://admin.example.com")
	if got := DeclaredOrigin(req); got != "https://admin.example.com" {
		t.Errorf("DeclaredOrigin = %q, want Origin header", got)
	}
}

func TestObserve_CountsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Observe(nil, map[string]bool{"/metrics": true}))
	r.Get("/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {})

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/items/{id}", "418"))
	for _, p := range []string{"/v1/items/1", "/v1/items/2", "/metrics"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/items/{id}", "418"))
	if after-before != 2 {
		t.Errorf("requests counted = %v, want 2", after-before)
	}
}
