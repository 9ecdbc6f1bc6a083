package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrOverloaded marks a temporary capacity failure (HTTP 503 or an
	// "overloaded" message). Retryable.
	ErrOverloaded = errors.New("model overloaded")

	// ErrRateLimited marks an HTTP 429. Retryable.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a failed backend call.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: status %d: %s (retry after %v)", e.Provider, e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap maps the status onto ErrRateLimited / ErrOverloaded so callers can
// use errors.Is without knowing the backend.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusServiceUnavailable:
		return ErrOverloaded
	case strings.Contains(strings.ToLower(e.Message), "overloaded"):
		return ErrOverloaded
	}
	return nil
}

// IsRetryable reports whether err is a transient capacity failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOverloaded) || errors.Is(err, ErrRateLimited)
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
