package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		shouldSet    bool
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			shouldSet:    true,
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "TEST_VAR_MISSING",
			defaultValue: "default",
			shouldSet:    false,
			want:         "default",
		},
		{
			name:         "returns default when environment variable is empty string",
			key:          "TEST_VAR_EMPTY",
			defaultValue: "default",
			envValue:     "",
			shouldSet:    true,
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.shouldSet {
				t.Setenv(tt.key, tt.envValue)
			}

			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		envValue  string
		shouldSet bool
		want      int
	}{
		{"returns value when set with valid integer", "TEST_INT_VAR", "200", true, 200},
		{"returns default when not set", "TEST_INT_VAR_MISSING", "", false, 100},
		{"returns default when not a valid integer", "TEST_INT_VAR_INVALID", "not_a_number", true, 100},
		{"handles negative integers", "TEST_INT_VAR_NEGATIVE", "-50", true, -50},
		{"handles zero", "TEST_INT_VAR_ZERO", "0", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.shouldSet {
				t.Setenv(tt.key, tt.envValue)
			}

			assert.Equal(t, tt.want, getEnvAsInt(tt.key, 100))
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name      string
		envValue  string
		shouldSet bool
		want      time.Duration
	}{
		{"parses seconds", "45s", true, 45 * time.Second},
		{"parses minutes", "2m", true, 2 * time.Minute},
		{"returns default when not set", "", false, 5 * time.Second},
		{"returns default when not a duration", "soon", true, 5 * time.Second},
		{"bare number is not a duration", "30", true, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.shouldSet {
				t.Setenv("TEST_DURATION_VAR", tt.envValue)
			}

			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION_VAR", 5*time.Second))
		})
	}
}

// setRequired sets the variables Load() cannot run without.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("VISION_ENDPOINT", "https://example.cognitiveservices.azure.com/")
	t.Setenv("VISION_API_KEY", "test-vision-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://example.cognitiveservices.azure.com/", cfg.VisionEndpoint)
	assert.Equal(t, "test-vision-key", cfg.VisionAPIKey)
	assert.Equal(t, DefaultVisionAPIVersion, cfg.VisionAPIVersion)
	assert.Empty(t, cfg.VisionModelVersion)
	assert.Equal(t, 30*time.Second, cfg.VisionTimeout)
	assert.Equal(t, 3, cfg.VisionRetryMax)
	assert.Equal(t, 1*time.Second, cfg.VisionRetryWaitMin)
	assert.Equal(t, 20*time.Second, cfg.VisionRetryWaitMax)
	assert.Equal(t, 230*time.Second, cfg.BatchTimeout)
	assert.Equal(t, int64(4<<20), cfg.MaxRequestBodyBytes)
	assert.Empty(t, cfg.OtelMetricsExporter)
	assert.Empty(t, cfg.OtelTracesExporter)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "3000")
	t.Setenv("API_KEY", "skill-key")
	t.Setenv("VISION_API_VERSION", "2024-02-01")
	t.Setenv("VISION_MODEL_VERSION", "2023-04-15")
	t.Setenv("VISION_TIMEOUT", "10s")
	t.Setenv("VISION_RETRY_MAX", "0")
	t.Setenv("BATCH_TIMEOUT", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "skill-key", cfg.APIKey)
	assert.Equal(t, "2024-02-01", cfg.VisionAPIVersion)
	assert.Equal(t, "2023-04-15", cfg.VisionModelVersion)
	assert.Equal(t, 10*time.Second, cfg.VisionTimeout)
	assert.Equal(t, 0, cfg.VisionRetryMax)
	assert.Equal(t, time.Minute, cfg.BatchTimeout)
}

func TestLoad_CustomHandlerPortWins(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "3000")
	t.Setenv("FUNCTIONS_CUSTOMHANDLER_PORT", "7071")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7071", cfg.Port)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing endpoint", map[string]string{"VISION_ENDPOINT": ""}},
		{"relative endpoint", map[string]string{"VISION_ENDPOINT": "example.cognitiveservices.azure.com"}},
		{"non-http endpoint", map[string]string{"VISION_ENDPOINT": "ftp://example.com"}},
		{"missing vision key", map[string]string{"VISION_API_KEY": ""}},
		{"zero timeout", map[string]string{"VISION_TIMEOUT": "0s"}},
		{"negative retry max", map[string]string{"VISION_RETRY_MAX": "-1"}},
		{"min wait above max wait", map[string]string{"VISION_RETRY_WAIT_MIN": "30s", "VISION_RETRY_WAIT_MAX": "5s"}},
		{"negative batch timeout", map[string]string{"BATCH_TIMEOUT": "-1s"}},
		{"zero body limit", map[string]string{"MAX_REQUEST_BODY_BYTES": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoad_InvalidNumberFallsBackToDefault(t *testing.T) {
	setRequired(t)
	t.Setenv("VISION_RETRY_MAX", "x")
	t.Setenv("VISION_TIMEOUT", "later")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.VisionRetryMax)
	assert.Equal(t, 30*time.Second, cfg.VisionTimeout)
}
