package httpx

import (
	"errors"
	"fmt"
)

// NetworkError is a transport-level failure (DNS, dial, TLS, read).
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response other than 429.
type HTTPError struct {
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "…"
	}
	return fmt.Sprintf("HTTP %d from %s: %s", e.Status, e.URL, body)
}

// RateLimitError is a provider 429.
type RateLimitError struct {
	URL  string
	Body string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s", e.URL)
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRateLimit reports whether err is a provider 429.
func IsRateLimit(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// IsServerError reports whether err is a 5xx response.
func IsServerError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status >= 500
}

// Retryable reports whether the request is worth repeating: transport
// failures, rate limits, and 5xx responses. 4xx responses are terminal.
func Retryable(err error) bool {
	return IsNetwork(err) || IsRateLimit(err) || IsServerError(err)
}
