package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/formbricks/image-embedding-skill/internal/api/response"
)

// apiKeyHeader is the header search services send for custom skills configured with an api key.
const apiKeyHeader = "api-key"

// Auth validates a static API key sent either as "Authorization: Bearer <key>" or in the
// api-key header. An empty apiKey disables the check (hosting platform handles auth).
func Auth(apiKey string) func(http.Handler) http.Handler {
	if apiKey == "" {
		return func(next http.Handler) http.Handler { return next }
	}

	expected := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided, ok := credential(r)
			if !ok {
				response.RespondUnauthorized(w, "Missing credentials. Expected: Authorization: Bearer <api-key> or api-key header")

				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				response.RespondUnauthorized(w, "Invalid API key")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// credential returns the key from the api-key header, falling back to a Bearer token.
func credential(r *http.Request) (string, bool) {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return key, true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}
