package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/finbot/finbot/internal/models"
)

// publicPaths skip API key checks. The webhook authenticates with its own secret header.
var publicPaths = map[string]bool{
	"/":        true,
	"/health":  true,
	"/webhook": true,
}

// Auth guards the operations API with static API keys.
func Auth(apiKeys []string, headerName string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerName)
			if key == "" {
				if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					key = bearer
				}
			}
			if key == "" {
				models.WriteError(w, http.StatusUnauthorized, "API key required")
				return
			}
			if !validKey(keys, key) {
				models.WriteError(w, http.StatusForbidden, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func validKey(keys [][]byte, key string) bool {
	ok := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}
