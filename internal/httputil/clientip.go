package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's IP for rate limiting and logs. With
// trustProxy set it prefers the leftmost X-Forwarded-For entry, then
// X-Real-IP; otherwise the connection's RemoteAddr is authoritative. Never
// set trustProxy unless a trusted reverse proxy writes those headers, or
// clients can spoof their way past per-IP limits.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := forwardedClient(r); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port (some test setups); use it as-is.
		return r.RemoteAddr
	}
	return host
}

// forwardedClient returns the proxy-reported client IP, or "" when the
// headers are absent or empty.
func forwardedClient(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if first, _, found := strings.Cut(xff, ","); found {
		xff = first
	}
	if ip := strings.TrimSpace(xff); ip != "" {
		return ip
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}
