package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robilabs/robi/internal/config"
)

func authConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Security.APIKey = "secret"
	return cfg
}

func TestRequireAuthRejectsMissingKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RequireAuth(next, authConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthAcceptsHeaderKey(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	h := RequireAuth(next, authConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-API-Key", "secret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.True(t, called)
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	h := RequireAuth(next, authConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/restore", nil)
	req.Header.Set("Authorization", "Bearer secret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.True(t, called)
}

func TestRequireAuthRejectsWrongKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	h := RequireAuth(next, authConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-API-Key", "wrong")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
