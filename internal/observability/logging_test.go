package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func newBufferedLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(NewTraceContextHandler(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func TestTraceContextHandler_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer

	logger := newBufferedLogger(&buf)
	ctx := WithRequestID(context.Background(), "req-123")

	logger.InfoContext(ctx, "processing record", "record_id", "1")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-123")
	assert.Contains(t, out, "record_id=1")
	assert.NotContains(t, out, "trace_id")
}

func TestTraceContextHandler_AddsTraceContext(t *testing.T) {
	var buf bytes.Buffer

	logger := newBufferedLogger(&buf).With("component", "test")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "trace_id=4bf92f3577b34da6a3ce929d0e0e4736")
	assert.Contains(t, out, "span_id=00f067aa0ba902b7")
	assert.Contains(t, out, "component=test")
	assert.NotContains(t, out, "request_id")
}

func TestTraceContextHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewTraceContextHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	logger.Info("dropped")

	assert.Empty(t, buf.String())
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
