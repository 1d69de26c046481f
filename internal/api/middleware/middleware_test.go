package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/image-embedding-skill/internal/observability"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func TestRequestID(t *testing.T) {
	t.Run("generates an id when missing", func(t *testing.T) {
		var seen string

		handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = observability.RequestIDFromContext(r.Context())
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/GetImageEmbedding", nil))

		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(requestIDHeader))
	})

	t.Run("propagates client id", func(t *testing.T) {
		var seen string

		handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = observability.RequestIDFromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodPost, "/GetImageEmbedding", nil)
		req.Header.Set(requestIDHeader, "abc-123")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/GetImageEmbedding", nil)
		req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLength+1))

		rec := httptest.NewRecorder()
		RequestID(okHandler).ServeHTTP(rec, req)

		assert.Len(t, rec.Header().Get(requestIDHeader), 36)
	})
}

func TestAuth(t *testing.T) {
	handler := Auth("secret")(okHandler)

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"bearer ok", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"bearer lowercase scheme", map[string]string{"Authorization": "bearer secret"}, http.StatusOK},
		{"bearer wrong", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"basic scheme", map[string]string{"Authorization": "Basic c2VjcmV0"}, http.StatusUnauthorized},
		{"bearer empty", map[string]string{"Authorization": "Bearer "}, http.StatusUnauthorized},
		{"api-key ok", map[string]string{"api-key": "secret"}, http.StatusOK},
		{"api-key wrong", map[string]string{"api-key": "nope"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/GetImageEmbedding", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	rec := httptest.NewRecorder()
	Auth("")(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/GetImageEmbedding", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

type countingRecorder struct {
	count int
}

func (c *countingRecorder) RecordRequestBodyTooLarge(context.Context) {
	c.count++
}

func readAllHandler(t *testing.T) http.Handler {
	t.Helper()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read failed", http.StatusBadRequest)

			return
		}

		w.Header().Set("X-Body-Length", "set")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}

func TestMaxBody(t *testing.T) {
	t.Run("under limit passes through", func(t *testing.T) {
		recorder := &countingRecorder{}
		handler := MaxBody(16, recorder)(readAllHandler(t))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/GetImageEmbedding", strings.NewReader(`{"values":[]}`)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"values":[]}`, rec.Body.String())
		assert.Equal(t, "set", rec.Header().Get("X-Body-Length"))
		assert.Zero(t, recorder.count)
	})

	t.Run("declared length over limit is rejected", func(t *testing.T) {
		recorder := &countingRecorder{}
		handler := MaxBody(4, recorder)(readAllHandler(t))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/GetImageEmbedding", strings.NewReader(`{"values":[]}`)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, 1, recorder.count)
	})

	t.Run("streamed body over limit is rejected", func(t *testing.T) {
		recorder := &countingRecorder{}
		handler := MaxBody(4, recorder)(readAllHandler(t))

		req := httptest.NewRequest(http.MethodPost, "/GetImageEmbedding", io.NopCloser(strings.NewReader(`{"values":[]}`)))
		req.ContentLength = -1

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Body-Length"))
		assert.Contains(t, rec.Body.String(), "Request Entity Too Large")
		assert.Equal(t, 1, recorder.count)
	})

	t.Run("GET is not buffered", func(t *testing.T) {
		rec := httptest.NewRecorder()
		MaxBody(4, nil)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

type recordedRequest struct {
	method, route, statusClass string
}

type fakeHTTPMetrics struct {
	requests []recordedRequest
}

func (f *fakeHTTPMetrics) RecordRequest(_ context.Context, method, route, statusClass string, _ time.Duration) {
	f.requests = append(f.requests, recordedRequest{method, route, statusClass})
}

func (f *fakeHTTPMetrics) RecordRequestBodyTooLarge(context.Context) {}

func TestMetrics(t *testing.T) {
	metrics := &fakeHTTPMetrics{}
	handler := Metrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/nope" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/GetImageEmbedding", "/api/GetImageEmbedding", "/nope"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	assert.Equal(t, []recordedRequest{
		{http.MethodPost, "/GetImageEmbedding", "2xx"},
		{http.MethodPost, "/GetImageEmbedding", "2xx"},
		{http.MethodPost, "other", "4xx"},
	}, metrics.requests)
}

func TestMetrics_NilIsPassthrough(t *testing.T) {
	rec := httptest.NewRecorder()
	Metrics(nil)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusToClass(t *testing.T) {
	tests := map[int]string{
		0:   "unknown",
		101: "1xx",
		200: "2xx",
		304: "3xx",
		413: "4xx",
		502: "5xx",
		700: "unknown",
	}

	for status, want := range tests {
		assert.Equal(t, want, statusToClass(status), "status %d", status)
	}
}

func TestLogging_PassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	Logging(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/GetImageEmbedding", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
