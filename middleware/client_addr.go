package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/mkarpis/authcore"
)

// ClientAddr resolves the caller's address and attaches it, with the
// User-Agent, to the request context for rate admission, sessions,
// and audit events. Forwarded headers are advisory; the address is an
// abuse deterrent, not a security boundary.
func ClientAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authcore.WithClientIP(r.Context(), resolveAddr(r))
		ctx = authcore.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveAddr prefers the first hop of X-Forwarded-For, then
// X-Real-IP, then the transport peer.
func resolveAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if addr := strings.TrimSpace(first); addr != "" {
			return addr
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
