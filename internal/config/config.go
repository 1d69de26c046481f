// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultVisionAPIVersion is the vision retrieval API version used when VISION_API_VERSION is unset.
const DefaultVisionAPIVersion = "2023-02-01-preview"

// Config holds all application configuration.
type Config struct {
	Port     string
	APIKey   string
	LogLevel string

	// Vision service (image/text vectorization)
	VisionEndpoint     string
	VisionAPIKey       string
	VisionAPIVersion   string
	VisionModelVersion string

	// Per-attempt timeout for outbound vision calls
	VisionTimeout time.Duration

	// Retries after the first attempt; 0 disables retrying
	VisionRetryMax     int
	VisionRetryWaitMin time.Duration
	VisionRetryWaitMax time.Duration

	// Deadline for processing one inbound batch
	BatchTimeout time.Duration

	MaxRequestBodyBytes int64

	// OpenTelemetry exporters; empty disables
	OtelMetricsExporter string
	OtelTracesExporter  string
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a time.Duration (e.g. "30s", "1m")
// or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", valueStr, "default", defaultValue)
		return defaultValue
	}
	return value
}

// validateEndpoint checks that the vision endpoint is an absolute http(s) URL.
func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("VISION_ENDPOINT is not a valid URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("VISION_ENDPOINT must be an absolute http(s) URL")
	}
	return nil
}

// Load reads configuration from environment variables and returns a Config struct.
// It automatically loads .env file if it exists.
// Returns default values for any missing optional environment variables.
// VISION_ENDPOINT and VISION_API_KEY are required.
func Load() (*Config, error) {
	// Load .env file if it exists. Skip logging when absent (e.g. env from app settings / key vault).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	endpoint := os.Getenv("VISION_ENDPOINT")
	if endpoint == "" {
		return nil, errors.New("VISION_ENDPOINT environment variable is required but not set")
	}
	if err := validateEndpoint(endpoint); err != nil {
		return nil, err
	}

	visionKey := os.Getenv("VISION_API_KEY")
	if visionKey == "" {
		return nil, errors.New("VISION_API_KEY environment variable is required but not set")
	}

	visionTimeout := getEnvAsDuration("VISION_TIMEOUT", 30*time.Second)
	if visionTimeout <= 0 {
		return nil, errors.New("VISION_TIMEOUT must be a positive duration")
	}

	retryMax := getEnvAsInt("VISION_RETRY_MAX", 3)
	if retryMax < 0 {
		return nil, errors.New("VISION_RETRY_MAX must not be negative")
	}

	retryWaitMin := getEnvAsDuration("VISION_RETRY_WAIT_MIN", 1*time.Second)
	retryWaitMax := getEnvAsDuration("VISION_RETRY_WAIT_MAX", 20*time.Second)
	if retryWaitMin <= 0 || retryWaitMax <= 0 {
		return nil, errors.New("VISION_RETRY_WAIT_MIN and VISION_RETRY_WAIT_MAX must be positive durations")
	}
	if retryWaitMin > retryWaitMax {
		return nil, errors.New("VISION_RETRY_WAIT_MIN must not exceed VISION_RETRY_WAIT_MAX")
	}

	batchTimeout := getEnvAsDuration("BATCH_TIMEOUT", 230*time.Second)
	if batchTimeout <= 0 {
		return nil, errors.New("BATCH_TIMEOUT must be a positive duration")
	}

	maxBody := getEnvAsInt("MAX_REQUEST_BODY_BYTES", 4<<20)
	if maxBody <= 0 {
		return nil, errors.New("MAX_REQUEST_BODY_BYTES must be a positive integer")
	}

	// The serverless custom handler host tells us which port to bind.
	port := getEnv("FUNCTIONS_CUSTOMHANDLER_PORT", getEnv("PORT", "8080"))

	cfg := &Config{
		Port:     port,
		APIKey:   os.Getenv("API_KEY"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		VisionEndpoint:     endpoint,
		VisionAPIKey:       visionKey,
		VisionAPIVersion:   getEnv("VISION_API_VERSION", DefaultVisionAPIVersion),
		VisionModelVersion: os.Getenv("VISION_MODEL_VERSION"),
		VisionTimeout:      visionTimeout,
		VisionRetryMax:     retryMax,
		VisionRetryWaitMin: retryWaitMin,
		VisionRetryWaitMax: retryWaitMax,

		BatchTimeout:        batchTimeout,
		MaxRequestBodyBytes: int64(maxBody),

		OtelMetricsExporter: os.Getenv("OTEL_METRICS_EXPORTER"),
		OtelTracesExporter:  os.Getenv("OTEL_TRACES_EXPORTER"),
	}

	return cfg, nil
}
