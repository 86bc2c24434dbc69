package chi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// apiKeyHeader is accepted alongside "Authorization: Bearer <key>".
const apiKeyHeader = "X-API-Key"

// openPaths stay reachable for probes and scrapers.
var openPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// APIKeyAuth rejects requests that carry none of keys. Empty keys are
// ignored; with no keys left the middleware is a no-op.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	var accepted [][]byte
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			accepted = append(accepted, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(accepted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if openPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			key, msg := presentedKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, msg)
				return
			}
			if !knownKey(accepted, []byte(key)) {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// presentedKey extracts the caller's key, or explains why there is none.
func presentedKey(r *http.Request) (key, problem string) {
	if k := r.Header.Get(apiKeyHeader); k != "" {
		return k, ""
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", "missing api key"
	}
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", "authorization header must use Bearer scheme"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}

// knownKey compares against every key so timing does not leak which one matched.
func knownKey(accepted [][]byte, key []byte) bool {
	match := 0
	for _, k := range accepted {
		match |= subtle.ConstantTimeCompare(key, k)
	}
	return match == 1
}
