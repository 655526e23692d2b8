package middleware

import (
	"crypto/subtle"
	"net/http"
)

const TokenHeader = "X-Bridge-Token"

// Token rejects requests that do not carry the bridge token, either as the
// `token` query parameter (what a WebSocket from a web page can send) or
// in the X-Bridge-Token header. An empty token disables the check.
func Token(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := r.URL.Query().Get("token")
			if got == "" {
				got = r.Header.Get(TokenHeader)
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
