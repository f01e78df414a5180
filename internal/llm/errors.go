package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError reports a failed model call. StatusCode is zero for
// transport-level failures (no HTTP response).
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s api error %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s api call failed: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient. Transport errors,
// timeouts, rate limits, and server errors retry; other client errors
// (bad credentials, invalid request) fail immediately.
func (e *ProviderError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// IsRetryable reports whether err should be retried by the Client.
// Unknown error kinds are treated as transient.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}
