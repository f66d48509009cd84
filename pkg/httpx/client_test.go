package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := NewClient()
	defer c.Close()

	resp, err := c.PostJSON(context.Background(), srv.URL,
		map[string]string{"Authorization": "Bearer test-key"},
		map[string]any{"model": "test"})
	require.NoError(t, err)
	assert.Equal(t, true, resp["ok"])
}

func TestPostJSON_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient()
	defer c.Close()

	_, err := c.PostJSON(context.Background(), srv.URL, nil, map[string]any{})
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Contains(t, he.Body, "bad input")
	assert.False(t, Retryable(err))
}

func TestPostJSON_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient()
	defer c.Close()

	_, err := c.PostJSON(context.Background(), srv.URL, nil, map[string]any{})
	assert.True(t, IsRateLimit(err))
	assert.True(t, Retryable(err))
}

func TestPostJSON_NetworkError(t *testing.T) {
	c := NewClient()
	defer c.Close()

	_, err := c.PostJSON(context.Background(), "http://127.0.0.1:1", nil, map[string]any{})
	assert.True(t, IsNetwork(err))
	assert.True(t, Retryable(err))
}

func TestPostJSONWithRetry_RecoverFromServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "transient", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"recovered": true}`))
	}))
	defer srv.Close()

	c := NewClient()
	defer c.Close()

	resp, err := c.PostJSONWithRetry(context.Background(), srv.URL, nil, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, resp["recovered"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPostJSONWithRetry_NoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient()
	defer c.Close()

	_, err := c.PostJSONWithRetry(context.Background(), srv.URL, nil, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
