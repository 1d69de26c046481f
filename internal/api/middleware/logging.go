package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// slowRequestThreshold logs requests at warn level when exceeded. Batches call the vision
// service once per record, so this is well above a single call's latency.
const slowRequestThreshold = 30 * time.Second

// Logging writes one access log line per request. Run it inside otelhttp so r.Context()
// carries the span and the log line gets trace_id/span_id.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)

			return
		}

		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		level := slog.LevelInfo

		switch {
		case rw.statusCode >= http.StatusInternalServerError:
			level = slog.LevelError
		case rw.statusCode >= http.StatusBadRequest, duration > slowRequestThreshold:
			level = slog.LevelWarn
		}

		slog.Default().Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"bytes", rw.written,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
