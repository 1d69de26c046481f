package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const defaultServiceName = "image-embedding-skill"

// Trace exporter names accepted in OTEL_TRACES_EXPORTER.
const (
	TracesExporterOTLP   = "otlp"
	TracesExporterStdout = "stdout"
)

// newResource returns a resource carrying the service name. A single schema URL is used so the
// resource never conflicts with the exporters' own.
func newResource(serviceName string) *resource.Resource {
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
}

// NewTracerProvider creates a TracerProvider for the given exporter ("otlp" or "stdout") and
// registers it, with W3C trace context propagation, as the global provider.
// When exporter is empty or unknown, returns (nil, nil).
func NewTracerProvider(ctx context.Context, exporter, serviceName string) (*sdktrace.TracerProvider, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)

	switch exporter {
	case TracesExporterOTLP:
		exp, err = newOTLPTraceExporter(ctx)
	case TracesExporterStdout:
		exp, err = newStdoutTraceExporter()
	default:
		//nolint:nilnil // tracing disabled, caller checks for nil
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(newResource(serviceName)),
		sdktrace.WithSampler(newSampler()),
		sdktrace.WithBatcher(exp),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// ShutdownTracerProvider flushes and shuts down the TracerProvider. Safe to call with nil.
func ShutdownTracerProvider(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}

	return nil
}
