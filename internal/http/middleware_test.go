package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP_Extract(t *testing.T) {
	tests := []struct {
		name       string
		trust      bool
		xff        string
		xRealIP    string
		remoteAddr string
		expected   string
	}{
		{
			name:       "forwarded first hop",
			trust:      true,
			xff:        "203.0.113.1, 198.51.100.1",
			remoteAddr: "10.0.0.1:443",
			expected:   "203.0.113.1",
		},
		{
			name:       "forwarded with spaces",
			trust:      true,
			xff:        "  203.0.113.1  ,198.51.100.1",
			remoteAddr: "10.0.0.1:443",
			expected:   "203.0.113.1",
		},
		{
			name:       "forwarded takes preference over real ip",
			trust:      true,
			xff:        "203.0.113.1",
			xRealIP:    "192.168.1.100",
			remoteAddr: "10.0.0.1:443",
			expected:   "203.0.113.1",
		},
		{
			name:       "real ip",
			trust:      true,
			xRealIP:    "192.168.1.100",
			remoteAddr: "10.0.0.1:443",
			expected:   "192.168.1.100",
		},
		{
			name:       "garbage header falls back to remote addr",
			trust:      true,
			xff:        "not-an-ip",
			remoteAddr: "10.0.0.1:443",
			expected:   "10.0.0.1",
		},
		{
			name:       "headers ignored without trust",
			xff:        "203.0.113.1",
			xRealIP:    "192.168.1.100",
			remoteAddr: "10.0.0.1:443",
			expected:   "10.0.0.1",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:54321",
			expected:   "2001:db8::1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.168.1.1",
			expected:   "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			require.Equal(t, tt.expected, ClientIP{TrustProxyHeaders: tt.trust}.Extract(r))
		})
	}
}

func TestClientIP_Middleware(t *testing.T) {
	var captured string
	handler := ClientIP{TrustProxyHeaders: true}.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = ClientIPFromRequest(r)
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1")

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "203.0.113.1", captured)
}

func TestClientIPFromContext_missing(t *testing.T) {
	require.Empty(t, ClientIPFromContext(context.Background()))
}
