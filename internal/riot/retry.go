package riot

import (
	"strconv"
	"strings"
	"time"
)

// RetryPolicy decides whether and how long to wait after an HTTP 429.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// DefaultAfter is used when Retry-After is absent or unparseable.
	DefaultAfter time.Duration
	// MaxAfter caps an advertised Retry-After. Zero means no cap.
	MaxAfter time.Duration
}

// DefaultRetryPolicy allows three attempts with a 2s fallback wait.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		DefaultAfter: 2 * time.Second,
		MaxAfter:     30 * time.Second,
	}
}

// Backoff returns the wait before the next attempt after attempt (1-based)
// was throttled. ok is false once the ceiling has been reached.
func (p RetryPolicy) Backoff(attempt int, retryAfter string) (wait time.Duration, ok bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	wait = p.DefaultAfter
	if secs, err := strconv.ParseFloat(strings.TrimSpace(retryAfter), 64); err == nil && secs >= 0 {
		wait = time.Duration(secs * float64(time.Second))
	}
	if p.MaxAfter > 0 && wait > p.MaxAfter {
		wait = p.MaxAfter
	}
	return wait, true
}
