package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/formbricks/image-embedding-skill/internal/api/handlers"
	"github.com/formbricks/image-embedding-skill/internal/api/middleware"
	"github.com/formbricks/image-embedding-skill/internal/config"
	"github.com/formbricks/image-embedding-skill/internal/observability"
	"github.com/formbricks/image-embedding-skill/internal/service"
	"github.com/formbricks/image-embedding-skill/internal/vision"
)

const (
	metricsExporterPrometheus = "prometheus"
	serviceName               = "image-embedding-skill"
)

// Skill routes are registered bare and under /api, the prefix serverless custom handlers forward.
var skillRoutePrefixes = []string{"", "/api"}

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	server         *http.Server
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

// setupMetrics creates the meter provider, /metrics handler and skill metrics when
// OTEL_METRICS_EXPORTER=prometheus. Any other value disables metrics.
func setupMetrics(ctx context.Context, cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, observability.SkillMetrics, error) {
	switch cfg.OtelMetricsExporter {
	case "":
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")

		return nil, nil, nil, nil
	case metricsExporterPrometheus:
	default:
		slog.Warn("metrics not enabled: unsupported OTEL_METRICS_EXPORTER", "value", cfg.OtelMetricsExporter)

		return nil, nil, nil, nil
	}

	mp, handler, metrics, err := observability.NewMeterProvider(ctx, observability.MeterProviderConfig{ServiceName: serviceName})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	otel.SetMeterProvider(mp)

	return mp, handler, metrics, nil
}

// NewApp builds and wires all components. It does not start the HTTP server;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	meterProvider, metricsHandler, metrics, err := setupMetrics(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(ctx, cfg.OtelTracesExporter, serviceName)
		if err != nil {
			if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after tracer provider error", "error", err2)
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}

		if tracerProvider == nil {
			slog.Warn("tracing not enabled: unsupported OTEL_TRACES_EXPORTER", "value", cfg.OtelTracesExporter)
		}
	}

	// Install TraceContextHandler unconditionally so request_id (and trace_id/span_id when tracing is on) appear in logs.
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(slog.Default().Handler())))

	logger := slog.Default()

	var (
		visionMetrics observability.VisionMetrics
		batchMetrics  observability.BatchMetrics
		httpMetrics   observability.HTTPMetrics
	)

	if metrics != nil {
		visionMetrics = metrics
		batchMetrics = metrics
		httpMetrics = metrics
	}

	visionClient, err := vision.NewClient(vision.Options{
		Endpoint:     cfg.VisionEndpoint,
		APIKey:       cfg.VisionAPIKey,
		APIVersion:   cfg.VisionAPIVersion,
		ModelVersion: cfg.VisionModelVersion,
		Timeout:      cfg.VisionTimeout,
		RetryMax:     cfg.VisionRetryMax,
		RetryWaitMin: cfg.VisionRetryWaitMin,
		RetryWaitMax: cfg.VisionRetryWaitMax,
		Logger:       logger,
		Metrics:      visionMetrics,
	})
	if err != nil {
		if err2 := shutdownObservability(context.Background(), tracerProvider, meterProvider); err2 != nil {
			slog.Error("shutdown observability after vision client error", "error", err2)
		}

		return nil, fmt.Errorf("create vision client: %w", err)
	}

	skillService := service.NewSkillService(service.SkillServiceParams{
		Vectorizer:   visionClient,
		BatchTimeout: cfg.BatchTimeout,
		Metrics:      batchMetrics,
		Logger:       logger,
	})

	server := newHTTPServer(
		cfg,
		handlers.NewHealthHandler(),
		handlers.NewSkillHandler(skillService, logger),
		metricsHandler,
		httpMetrics,
		meterProvider, tracerProvider,
	)

	slog.Info("vision client configured",
		"api_version", cfg.VisionAPIVersion,
		"retry_max", cfg.VisionRetryMax,
		"timeout", cfg.VisionTimeout,
		"batch_timeout", cfg.BatchTimeout,
	)

	return &App{
		cfg:            cfg,
		server:         server,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health and /metrics, API key on skill routes).
// Handler chain: RequestID -> otelhttp(Logging(Metrics(mux))) so access logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	skill *handlers.SkillHandler,
	metricsHandler http.Handler,
	httpMetrics observability.HTTPMetrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Check)

	if metricsHandler != nil {
		public.Handle("GET /metrics", metricsHandler)
	}

	protected := http.NewServeMux()
	for _, prefix := range skillRoutePrefixes {
		protected.HandleFunc("POST "+prefix+"/GetImageEmbedding", skill.GetImageEmbedding)
		protected.HandleFunc("POST "+prefix+"/GetTextEmbedding", skill.GetTextEmbedding)
	}

	var bodyRecorder middleware.RequestBodyTooLargeRecorder
	if httpMetrics != nil {
		bodyRecorder = httpMetrics
	}

	protectedHandler := middleware.Auth(cfg.APIKey)(
		middleware.MaxBody(cfg.MaxRequestBodyBytes, bodyRecorder)(protected),
	)

	mux := http.NewServeMux()
	for _, prefix := range skillRoutePrefixes {
		mux.Handle(prefix+"/GetImageEmbedding", protectedHandler)
		mux.Handle(prefix+"/GetTextEmbedding", protectedHandler)
	}

	mux.Handle("/", public)

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks and scrapes to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log (trace_id/span_id in access logs).
	inner := middleware.Logging(middleware.Metrics(httpMetrics)(mux))
	handler := otelhttp.NewHandler(inner, serviceName, otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		idleTimeout  = 60 * time.Second
		writeSlack   = 15 * time.Second
		headerTimout = 5 * time.Second
	)

	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: headerTimout,
		// A batch may legitimately run for BatchTimeout; the response must still be writable after it.
		WriteTimeout: cfg.BatchTimeout + writeSlack,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server, then blocks until ctx is cancelled (e.g. signal) or the server fails.
// Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr <- fmt.Errorf("server: %w", err)
		}
	}()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
		first = err
	}

	if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
		if first == nil {
			first = err
		} else {
			slog.Error("shutdown meter provider", "error", err)
		}
	}

	return first
}

// Shutdown stops the server, letting in-flight batches finish until ctx expires, then flushes observability.
// Observability is shut down once via defer; its error is returned only when the server shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
