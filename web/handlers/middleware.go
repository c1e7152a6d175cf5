// Package handlers provides the HTTP surface of the Robi backend: the
// WebSocket interaction endpoint and the REST API for health and state
// restoration.
package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/robilabs/robi/internal/config"
)

// RequireAuth enforces the shared API key on REST endpoints. The key is
// accepted either as an X-API-Key header or as a Bearer token.
func RequireAuth(next http.Handler, cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Security.APIKey)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"unauthorized","code":"UNAUTHORIZED"}`,
				http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
