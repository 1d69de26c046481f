package vision

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// JitterBackoff is a retryablehttp.Backoff with randomized exponential waits. retryablehttp
// passes attemptNum 0 before the first retry; the wait is drawn uniformly from
// [minWait, min(maxWait, minWait*2^(attemptNum+1))]. A Retry-After header on 429/503 is
// honored, capped at maxWait.
func JitterBackoff(minWait, maxWait time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
		if wait, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
			return min(wait, maxWait)
		}
	}

	ceiling := float64(minWait) * math.Pow(2, float64(attemptNum)+1)
	if math.IsInf(ceiling, 0) || ceiling > float64(maxWait) {
		ceiling = float64(maxWait)
	}

	spread := int64(ceiling) - int64(minWait)
	if spread <= 0 {
		return minWait
	}

	return minWait + time.Duration(rand.Int64N(spread+1)) //nolint:gosec // jitter, not security
}

// retryAfter parses a Retry-After value given either as delay-seconds or an HTTP date.
func retryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}

		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		wait := time.Until(at)
		if wait < 0 {
			return 0, true
		}

		return wait, true
	}

	return 0, false
}
