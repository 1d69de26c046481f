package vision

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitterBackoff_Bounds(t *testing.T) {
	minWait := 100 * time.Millisecond
	maxWait := 2 * time.Second

	for attempt := 0; attempt < 10; attempt++ {
		ceiling := minWait << (attempt + 1)
		if ceiling > maxWait {
			ceiling = maxWait
		}

		for i := 0; i < 50; i++ {
			wait := JitterBackoff(minWait, maxWait, attempt, nil)
			assert.GreaterOrEqual(t, wait, minWait, "attempt %d", attempt)
			assert.LessOrEqual(t, wait, ceiling, "attempt %d", attempt)
		}
	}
}

func TestJitterBackoff_FirstRetryIsJittered(t *testing.T) {
	seen := make(map[time.Duration]bool)

	for i := 0; i < 200; i++ {
		wait := JitterBackoff(time.Second, 20*time.Second, 0, nil)
		assert.GreaterOrEqual(t, wait, time.Second)
		assert.LessOrEqual(t, wait, 2*time.Second)

		seen[wait] = true
	}

	assert.Greater(t, len(seen), 1, "first retry wait must vary")
}

func TestJitterBackoff_MinEqualsMax(t *testing.T) {
	assert.Equal(t, time.Second, JitterBackoff(time.Second, time.Second, 0, nil))
}

func TestJitterBackoff_LargeAttemptCapped(t *testing.T) {
	wait := JitterBackoff(time.Second, 20*time.Second, 5000, nil)
	assert.LessOrEqual(t, wait, 20*time.Second)
	assert.GreaterOrEqual(t, wait, time.Second)
}

func TestJitterBackoff_RetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		want       time.Duration
	}{
		{"429 seconds", http.StatusTooManyRequests, "3", 3 * time.Second},
		{"503 seconds", http.StatusServiceUnavailable, "2", 2 * time.Second},
		{"capped at max", http.StatusTooManyRequests, "120", 10 * time.Second},
		{"zero", http.StatusTooManyRequests, "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
			resp.Header.Set("Retry-After", tt.retryAfter)

			assert.Equal(t, tt.want, JitterBackoff(time.Second, 10*time.Second, 3, resp))
		})
	}

	t.Run("ignored on 500", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusInternalServerError, Header: http.Header{}}
		resp.Header.Set("Retry-After", "9")

		assert.Equal(t, time.Second, JitterBackoff(time.Second, 10*time.Second, 0, resp))
	})
}

func TestRetryAfter(t *testing.T) {
	_, ok := retryAfter("")
	assert.False(t, ok)

	_, ok = retryAfter("-1")
	assert.False(t, ok)

	_, ok = retryAfter("soon")
	assert.False(t, ok)

	wait, ok := retryAfter(time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat))
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), wait)

	wait, ok = retryAfter(time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	assert.True(t, ok)
	assert.Greater(t, wait, 58*time.Minute)
}
