package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/formbricks/image-embedding-skill/internal/observability"
)

// knownRoutes bounds the "route" attribute; the /api/ prefix is folded into the bare route.
var knownRoutes = map[string]bool{
	"/GetImageEmbedding": true,
	"/GetTextEmbedding":  true,
	"/health":            true,
	"/metrics":           true,
}

// Metrics returns middleware that records HTTP request count and duration.
// When metrics is nil, recording is skipped.
func Metrics(metrics observability.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			metrics.RecordRequest(r.Context(), r.Method, normalizeRoute(r.URL.Path), statusToClass(rw.statusCode), time.Since(start))
		})
	}
}

// normalizeRoute maps a path to a known route, or "other" to bound cardinality.
func normalizeRoute(path string) string {
	route := strings.TrimPrefix(path, "/api")
	if knownRoutes[route] {
		return route
	}

	return "other"
}

// statusToClass maps HTTP status code to 1xx, 2xx, 3xx, 4xx, 5xx.
func statusToClass(status int) string {
	switch {
	case status >= 600 || status < 100:
		return "unknown"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
