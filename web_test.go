package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeVersion(t *testing.T) {
	errs := make(chan error, 1)
	handler := serveVersion(validConfig(), errs)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/version", nil)

	handler(w, r, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "starslide v"+releaseVersion+"\n", w.Body.String())
}

func TestServeHealthCheck(t *testing.T) {
	errs := make(chan error, 1)
	handler := serveHealthCheck(validConfig(), errs)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	handler(w, r, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ok\n", w.Body.String())
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:52180"

	assert.Equal(t, "203.0.113.7:52180", realIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.9")
	assert.Equal(t, "198.51.100.9:52180", realIP(r))

	r.Header.Set("CF-Connecting-IP", "192.0.2.44")
	assert.Equal(t, "192.0.2.44:52180", realIP(r))

	// Garbage headers are ignored rather than trusted.
	r.Header.Set("CF-Connecting-IP", "not-an-ip")
	assert.Equal(t, "203.0.113.7:52180", realIP(r))
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	securityHeaders(validConfig(), w)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	cfg := validConfig()
	cfg.tlsCert = "/path/to/cert"
	cfg.tlsKey = "/path/to/key"

	w = httptest.NewRecorder()
	securityHeaders(cfg, w)

	require.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}
