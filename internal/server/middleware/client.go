package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	auditdomain "passkey-gate/internal/audit/domain"
)

const maxUserAgentLen = 512

// ProxyTrust lists the reverse proxies whose forwarding headers are believed. The zero value and a
// nil *ProxyTrust trust nobody, so the client IP is always the TCP peer.
type ProxyTrust struct {
	prefixes []netip.Prefix
}

// NewProxyTrust returns a ProxyTrust for the given proxy networks.
func NewProxyTrust(prefixes []netip.Prefix) *ProxyTrust {
	return &ProxyTrust{prefixes: prefixes}
}

func (t *ProxyTrust) trusts(addr netip.Addr) bool {
	if t == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientInfo stores the client IP and User-Agent in the request context for audit and lockout keys.
func ClientInfo(trust *ProxyTrust) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := r.UserAgent()
			if len(ua) > maxUserAgentLen {
				ua = ua[:maxUserAgentLen]
			}
			ctx := WithClient(r.Context(), auditdomain.Client{UserAgent: ua, IP: trust.ClientIP(r)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the TCP peer address unless the peer is a trusted proxy. Behind a trusted proxy
// X-Forwarded-For is walked from the right and the first hop that is not itself a trusted proxy
// wins; X-Real-IP is used when there is no X-Forwarded-For. Returns "unknown" with no RemoteAddr.
func (t *ProxyTrust) ClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if peer == "" {
		return "unknown"
	}
	peerAddr, err := netip.ParseAddr(peer)
	if err != nil || !t.trusts(peerAddr) {
		return peer
	}
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				// Anything left of a malformed hop was written by the client.
				break
			}
			if !t.trusts(hop) {
				return hop.Unmap().String()
			}
		}
		return peer
	}
	if ip, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return ip.Unmap().String()
	}
	return peer
}

func remoteHost(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// DeclaredOrigin returns the Origin header, falling back to X-Request-Origin for non-browser clients.
func DeclaredOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	return r.Header.Get("X-Request-Origin")
}
