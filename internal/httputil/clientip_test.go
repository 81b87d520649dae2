package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func requestFrom(remoteAddr string, headers map[string]string) *http.Request {
	r := httptest.NewRequest("GET", "/api/v1/stream/positions", nil)
	r.RemoteAddr = remoteAddr
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr host port",
			remoteAddr: "192.168.1.1:12345",
			want:       "192.168.1.1",
		},
		{
			name:       "remote addr ipv6",
			remoteAddr: "[::1]:12345",
			want:       "::1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.168.1.1",
			want:       "192.168.1.1",
		},
		{
			name:       "forwarded-for single",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4"},
			trustProxy: true,
			want:       "1.2.3.4",
		},
		{
			name:       "forwarded-for chain takes leftmost",
			remoteAddr: "10.0.0.3:1234",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1, 10.0.0.2"},
			trustProxy: true,
			want:       "1.2.3.4",
		},
		{
			name:       "real-ip fallback",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "5.6.7.8"},
			trustProxy: true,
			want:       "5.6.7.8",
		},
		{
			name:       "forwarded-for wins over real-ip",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "5.6.7.8"},
			trustProxy: true,
			want:       "1.2.3.4",
		},
		{
			name:       "trusted but no proxy headers",
			remoteAddr: "10.0.0.1:1234",
			trustProxy: true,
			want:       "10.0.0.1",
		},
		{
			name:       "headers ignored when proxy untrusted",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "5.6.7.8"},
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClientIP(requestFrom(tt.remoteAddr, tt.headers), tt.trustProxy)
			if got != tt.want {
				t.Errorf("ClientIP(%q, trustProxy=%v) = %q, want %q", tt.remoteAddr, tt.trustProxy, got, tt.want)
			}
		})
	}
}
