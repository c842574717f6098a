package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentora-ai/mentora/internal/log"
)

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeAdmitter{}, &fakeUserLoader{}, &fakeUsageReader{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestReadinessWithoutPool(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeAdmitter{}, &fakeUserLoader{}, &fakeUsageReader{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeAdmitter{}, &fakeUserLoader{}, &fakeUsageReader{})

	rec := getUsage(t, srv, "")
	first := rec.Header().Get("X-Request-ID")
	assert.NotEmpty(t, first)

	rec = getUsage(t, srv, "")
	assert.NotEqual(t, first, rec.Header().Get("X-Request-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeAdmitter{}, &fakeUserLoader{}, &fakeUsageReader{})

	rec := getUsage(t, srv, "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	// Dev mode skips HSTS.
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	panicHandler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(log.NewNop())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(ServerConfig{
		Logger:      log.NewNop(),
		Admitter:    &fakeAdmitter{},
		Users:       &fakeUserLoader{},
		Usage:       &fakeUsageReader{},
		CORSOrigins: []string{"https://app.mentora.ai"},
		IsDev:       true,
		RateBurst:   1000,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://app.mentora.ai")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.mentora.ai", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-User-ID")
}

func TestCORSUnknownOrigin(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(ServerConfig{
		Logger:      log.NewNop(),
		Admitter:    &fakeAdmitter{},
		Users:       &fakeUserLoader{},
		Usage:       &fakeUsageReader{},
		CORSOrigins: []string{"https://app.mentora.ai"},
		IsDev:       true,
		RateBurst:   1000,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		realIP     string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{name: "remote addr only", remoteAddr: "10.0.0.5:1234", want: "10.0.0.5"},
		{name: "proxy headers ignored when untrusted", remoteAddr: "10.0.0.5:1234", realIP: "1.2.3.4", want: "10.0.0.5"},
		{name: "x-real-ip wins", remoteAddr: "10.0.0.5:1234", realIP: "1.2.3.4", forwarded: "5.6.7.8", trustProxy: true, want: "1.2.3.4"},
		{name: "first forwarded entry", remoteAddr: "10.0.0.5:1234", forwarded: "5.6.7.8, 9.9.9.9", trustProxy: true, want: "5.6.7.8"},
		{name: "non-ip header falls back", remoteAddr: "10.0.0.5:1234", realIP: "not-an-ip", trustProxy: true, want: "10.0.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			assert.Equal(t, tt.want, clientIP(req, tt.trustProxy))
		})
	}
}

func TestIPRateLimit(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Admitter:  &fakeAdmitter{},
		Users:     &fakeUserLoader{},
		Usage:     &fakeUsageReader{},
		IsDev:     true,
		RateBurst: 2,
	})
	require.NoError(t, err)

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
		req.RemoteAddr = "203.0.113.9:4567"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do())
	assert.Equal(t, http.StatusUnauthorized, do())
	// Burst of 2 exhausted.
	assert.Equal(t, http.StatusTooManyRequests, do())
}
