package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterScope = "github.com/formbricks/image-embedding-skill/internal/observability"

// latencyHistogramBoundaries are Prometheus-style buckets (seconds). Vision calls with retries
// can take tens of seconds, so the tail is wider than a typical API.
var latencyHistogramBoundaries = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// HTTPMetrics records inbound HTTP request metrics.
type HTTPMetrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordRequestBodyTooLarge(ctx context.Context)
}

// VisionMetrics records outbound vision service calls. Duration covers all retry attempts.
type VisionMetrics interface {
	RecordVisionRequest(ctx context.Context, operation, outcome string, duration time.Duration)
	RecordVisionRetry(ctx context.Context, operation string)
}

// BatchMetrics records per-batch enrichment results.
type BatchMetrics interface {
	RecordRecord(ctx context.Context, kind, outcome string)
	RecordBatch(ctx context.Context, kind string, duration time.Duration)
}

// SkillMetrics is the full set of metrics for the service.
type SkillMetrics interface {
	HTTPMetrics
	VisionMetrics
	BatchMetrics
}

// MeterProviderConfig holds configuration for creating the MeterProvider and metrics.
type MeterProviderConfig struct {
	// ServiceName is used in the resource (default: image-embedding-skill).
	ServiceName string
}

// NewMeterProvider creates a MeterProvider with Prometheus exporter and returns the provider,
// an HTTP handler for /metrics, and SkillMetrics that use the provider's Meter.
// Caller must call ShutdownMeterProvider on exit. When metrics are disabled, pass nil for metrics at call sites.
func NewMeterProvider(
	_ context.Context, cfg MeterProviderConfig,
) (provider *sdkmetric.MeterProvider, metricsHandler http.Handler, metrics SkillMetrics, err error) {
	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	latencyView := func(name string) sdkmetric.View {
		return sdkmetric.NewView(
			sdkmetric.Instrument{Name: name},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
		)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(newResource(cfg.ServiceName)),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithView(
			latencyView(MetricNameHTTPRequestDuration),
			latencyView(MetricNameVisionRequestDuration),
			latencyView(MetricNameBatchDuration),
		),
	)

	metrics, err = newMetricsFromMeter(mp.Meter(meterScope))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create metrics instruments: %w", err)
	}

	metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return mp, metricsHandler, metrics, nil
}

// ShutdownMeterProvider flushes and shuts down the MeterProvider. Safe to call with nil.
func ShutdownMeterProvider(ctx context.Context, provider *sdkmetric.MeterProvider) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}

	return nil
}

func newMetricsFromMeter(meter metric.Meter) (*skillMetricsImpl, error) {
	requestCount, err := meter.Int64Counter(
		MetricNameHTTPRequests,
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameHTTPRequests, err)
	}

	requestDuration, err := meter.Float64Histogram(
		MetricNameHTTPRequestDuration,
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameHTTPRequestDuration, err)
	}

	bodyTooLarge, err := meter.Int64Counter(
		MetricNameRequestBodyTooLarge,
		metric.WithDescription("Requests rejected because the body exceeded the configured limit (413)"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameRequestBodyTooLarge, err)
	}

	visionRequests, err := meter.Int64Counter(
		MetricNameVisionRequests,
		metric.WithDescription("Vision service calls by operation and final outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameVisionRequests, err)
	}

	visionDuration, err := meter.Float64Histogram(
		MetricNameVisionRequestDuration,
		metric.WithDescription("Vision service call duration in seconds, including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameVisionRequestDuration, err)
	}

	visionRetries, err := meter.Int64Counter(
		MetricNameVisionRetries,
		metric.WithDescription("Vision service retry attempts (first attempt not counted)"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameVisionRetries, err)
	}

	batchRecords, err := meter.Int64Counter(
		MetricNameBatchRecords,
		metric.WithDescription("Skill records processed by kind and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameBatchRecords, err)
	}

	batchDuration, err := meter.Float64Histogram(
		MetricNameBatchDuration,
		metric.WithDescription("Batch enrichment duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MetricNameBatchDuration, err)
	}

	return &skillMetricsImpl{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		bodyTooLarge:    bodyTooLarge,
		visionRequests:  visionRequests,
		visionDuration:  visionDuration,
		visionRetries:   visionRetries,
		batchRecords:    batchRecords,
		batchDuration:   batchDuration,
	}, nil
}

type skillMetricsImpl struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	bodyTooLarge    metric.Int64Counter
	visionRequests  metric.Int64Counter
	visionDuration  metric.Float64Histogram
	visionRetries   metric.Int64Counter
	batchRecords    metric.Int64Counter
	batchDuration   metric.Float64Histogram
}

func (m *skillMetricsImpl) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	attrs := attribute.NewSet(
		attribute.String(AttrMethod, method),
		attribute.String(AttrRoute, route),
		attribute.String(AttrStatusClass, statusClass),
	)
	m.requestCount.Add(ctx, 1, metric.WithAttributeSet(attrs))

	durAttrs := attribute.NewSet(
		attribute.String(AttrMethod, method),
		attribute.String(AttrRoute, route),
	)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributeSet(durAttrs))
}

func (m *skillMetricsImpl) RecordRequestBodyTooLarge(ctx context.Context) {
	m.bodyTooLarge.Add(ctx, 1)
}

func (m *skillMetricsImpl) RecordVisionRequest(ctx context.Context, operation, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrOperation, NormalizeOperation(operation)),
		attribute.String(AttrOutcome, NormalizeReason(outcome, AllowedVisionOutcomes)),
	)
	m.visionRequests.Add(ctx, 1, attrs)
	m.visionDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *skillMetricsImpl) RecordVisionRetry(ctx context.Context, operation string) {
	m.visionRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrOperation, NormalizeOperation(operation)),
	))
}

func (m *skillMetricsImpl) RecordRecord(ctx context.Context, kind, outcome string) {
	m.batchRecords.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrKind, NormalizeReason(kind, AllowedKinds)),
		attribute.String(AttrOutcome, NormalizeReason(outcome, AllowedRecordOutcomes)),
	))
}

func (m *skillMetricsImpl) RecordBatch(ctx context.Context, kind string, duration time.Duration) {
	m.batchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrKind, NormalizeReason(kind, AllowedKinds)),
	))
}
