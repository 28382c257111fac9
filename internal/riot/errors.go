package riot

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingCredentials is returned before any network call when no API
	// key is configured.
	ErrMissingCredentials = errors.New("riot: missing API key (set RIOT_API_KEY)")

	// ErrRateLimitExceeded is wrapped by the UpstreamError returned once the
	// retry ceiling for HTTP 429 responses is reached.
	ErrRateLimitExceeded = errors.New("riot: rate limit exceeded")
)

// UpstreamError is a non-retryable rejection from the Riot API.
type UpstreamError struct {
	Status int
	Body   string
	URL    string
	Err    error // ErrRateLimitExceeded after exhausted 429 retries
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("riot: API error %d", e.Status)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + truncate(e.Body, 200)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Status == http.StatusNotFound
}

// StatusOf returns the upstream status carried by err, or 0.
func StatusOf(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
