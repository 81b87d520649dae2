// Package auth guards the catalog API with a single static bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Al3xBlack0ut/satelity/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// public decides whether a path is served without a token. Probes, metrics,
// the web UI root, and the live stream stay open; catalog mutations and
// imports require the token.
func public(path string) bool {
	switch path {
	case "/", "/healthz", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/api/v1/stream/") ||
		strings.HasPrefix(path, "/static/")
}

// bearerToken pulls the token out of the Authorization header, or returns ""
// when the header is missing or not a Bearer scheme.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return header[len(prefix):]
}

// Middleware enforces bearer-token auth on non-public paths when enabled.
// Token comparison is constant-time.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || public(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
