package providers

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// RateLimitError indicates the provider returned a 429 response.
// The orchestrator retries the same provider with backoff for this error;
// any other error falls through to the next provider immediately.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError reports whether err is (or wraps) a RateLimitError.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// parseRetryAfter parses a Retry-After header value (delta-seconds form).
// Returns 0 if the value is empty or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
