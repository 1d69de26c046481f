package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/formbricks/image-embedding-skill/internal/api/response"
)

// RequestBodyTooLargeRecorder records when a request is rejected for exceeding the body limit (optional).
// Pass nil when metrics are disabled.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MaxBody returns a middleware that limits request body size to maxBytes.
// When the handler reads past the limit, whatever it wrote is discarded and the response is
// 413 Request Entity Too Large. Only POST/PUT/PATCH responses are buffered.
// Use 0 or negative to disable.
func MaxBody(maxBytes int64, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mayHaveBody(r.Method) {
				next.ServeHTTP(w, r)

				return
			}

			if r.ContentLength > maxBytes {
				rejectTooLarge(w, r, recorder)

				return
			}

			body := &maxBodyReader{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes)}
			r.Body = body

			buf := &responseBuffer{ResponseWriter: w}
			next.ServeHTTP(buf, r)

			if body.exceeded {
				rejectTooLarge(w, r, recorder)

				return
			}

			buf.flush()
		})
	}
}

func mayHaveBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func rejectTooLarge(w http.ResponseWriter, r *http.Request, recorder RequestBodyTooLargeRecorder) {
	if recorder != nil {
		recorder.RecordRequestBodyTooLarge(r.Context())
	}

	response.RespondError(w, http.StatusRequestEntityTooLarge,
		"Request Entity Too Large", "request body exceeds maximum allowed size")
}

type maxBodyReader struct {
	io.ReadCloser

	exceeded bool
}

func (r *maxBodyReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err == nil || errors.Is(err, io.EOF) {
		return n, err //nolint:wrapcheck // io.EOF must be returned unwrapped
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		r.exceeded = true
	}

	return n, fmt.Errorf("read body: %w", err)
}

// responseBuffer captures status, headers and body so they can be discarded in favour of a 413.
type responseBuffer struct {
	http.ResponseWriter

	status int
	header http.Header
	buf    bytes.Buffer
}

func (b *responseBuffer) Header() http.Header {
	if b.header == nil {
		b.header = http.Header{}
	}

	return b.header
}

func (b *responseBuffer) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	n, err := b.buf.Write(p)
	if err != nil {
		return n, fmt.Errorf("buffer write: %w", err)
	}

	return n, nil
}

func (b *responseBuffer) flush() {
	dst := b.ResponseWriter.Header()
	for k, v := range b.header {
		dst[k] = v
	}

	if b.status != 0 {
		b.ResponseWriter.WriteHeader(b.status)
	}

	_, _ = b.buf.WriteTo(b.ResponseWriter)
}
