// Package httpx provides the process-wide pooled HTTP client used for
// every outbound call (LLM router, email provider, object store).
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Pool and timeout configuration. TotalTimeout bounds the whole exchange;
// the transport-level timeouts bound connect and first-byte latency.
const (
	TotalTimeout    = 240 * time.Second
	ConnectTimeout  = 10 * time.Second
	ReadTimeout     = 60 * time.Second
	WriteTimeout    = 30 * time.Second
	MaxConnections  = 100
	MaxKeepAlive    = 50
	KeepAliveExpiry = 30 * time.Second
)

// Client is a pooled, HTTP/2-capable JSON client. One instance is shared
// process-wide; create it once and Close it on shutdown.
type Client struct {
	hc *http.Client
}

// NewClient builds the shared client with the standard pool settings.
func NewClient() *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   ConnectTimeout,
			KeepAlive: KeepAliveExpiry,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxConnsPerHost:       MaxConnections,
		MaxIdleConns:          MaxConnections,
		MaxIdleConnsPerHost:   MaxKeepAlive,
		IdleConnTimeout:       KeepAliveExpiry,
		ResponseHeaderTimeout: ReadTimeout,
		TLSHandshakeTimeout:   ConnectTimeout,
		WriteBufferSize:       64 << 10,
	}
	return &Client{
		hc: &http.Client{
			Transport: transport,
			Timeout:   TotalTimeout,
		},
	}
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.hc.CloseIdleConnections()
}

// PostJSON performs a single POST of body as JSON and decodes the JSON
// response. Non-2xx responses return *HTTPError (or *RateLimitError for
// 429); transport failures return *NetworkError.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{URL: url, Body: string(raw)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{URL: url, Status: resp.StatusCode, Body: string(raw)}
	}

	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return decoded, nil
}

// PostJSONWithRetry wraps PostJSON with the standard retry envelope:
// three attempts with exponential backoff starting at 1s. Client errors
// other than 429 are not retried.
func (c *Client) PostJSONWithRetry(ctx context.Context, url string, headers map[string]string, body any) (map[string]any, error) {
	var result map[string]any
	err := retry.Do(
		func() error {
			var err error
			result, err = c.PostJSON(ctx, url, headers, body)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(Retryable),
	)
	return result, err
}

// PostJSONRateLimitAware retries like PostJSONWithRetry but waits longer
// on provider rate limits (10s, 20s, 30s). Used by photo-analysis paths
// where vision models throttle aggressively.
func (c *Client) PostJSONRateLimitAware(ctx context.Context, url string, headers map[string]string, body any) (map[string]any, error) {
	var result map[string]any
	err := retry.Do(
		func() error {
			var err error
			result, err = c.PostJSON(ctx, url, headers, body)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * 10 * time.Second
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return IsRateLimit(err) || IsNetwork(err) }),
	)
	return result, err
}
