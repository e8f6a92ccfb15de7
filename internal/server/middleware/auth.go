package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth returns middleware that gates API access behind a shared key. Clients
// present the key as a Bearer token, an X-API-Key header, or an api_key
// query parameter; the query form exists because browser WebSocket clients
// cannot set headers on the upgrade request. An empty configured key
// disables authentication.
func Auth(apiKey string) func(http.Handler) http.Handler {
	key := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			presented := presentedKey(r)
			if presented == "" {
				denyAuth(w, "authentication required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), key) != 1 {
				denyAuth(w, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// presentedKey extracts the client's key from the Bearer scheme, the
// X-API-Key header, or the api_key query parameter, in that order.
func presentedKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, rest, found := strings.Cut(auth, " "); found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return r.URL.Query().Get("api_key")
}

func denyAuth(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
