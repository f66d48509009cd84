package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxima-health/oracle/pkg/httpx"
	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/tokens"
)

type staticTier struct{ tier models.Tier }

func (s staticTier) Resolve(context.Context, string) models.Tier { return s.tier }

func newTestOrchestrator(t *testing.T, routerURL string, table selectionTable) *Orchestrator {
	t.Helper()
	selector, err := NewModelSelector("")
	require.NoError(t, err)
	if table != nil {
		selector.table = table
	}
	client := httpx.NewClient()
	t.Cleanup(client.Close)
	return NewOrchestrator(client, selector, staticTier{tier: models.TierPro}, tokens.NewCounter(), ProviderConfig{
		RouterURL:    routerURL,
		RouterAPIKey: "test-key",
		AppURL:       "https://example.test",
	})
}

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"choices": []any{map[string]any{
			"message":       map[string]any{"content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 12.0, "completion_tokens": 34.0},
	}
}

func TestCall_ExtractsContentAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(chatCompletion(`{"answer": "rest and hydrate"}`))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv.URL, nil)
	result, err := o.Call(context.Background(), []models.ChatMessage{
		{Role: models.RoleUser, Content: "what should I do?"},
	}, "openai/gpt-4o", CallOptions{Endpoint: EndpointChat})
	require.NoError(t, err)

	assert.Equal(t, `{"answer": "rest and hydrate"}`, result.Content)
	require.NotNil(t, result.ParsedContent)
	assert.Equal(t, "rest and hydrate", result.ParsedContent["answer"])
	assert.Equal(t, 12, result.Usage.PromptTokens)
	assert.Equal(t, 34, result.Usage.CompletionTokens)
	assert.Equal(t, "stop", result.FinishReason)
	assert.False(t, result.HasReasoning)
}

func TestCall_ExtractsReasoning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{
				"message": map[string]any{
					"content":   "final answer",
					"reasoning": "step one, step two",
				},
				"finish_reason": "stop",
			}},
		})
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv.URL, nil)
	result, err := o.Call(context.Background(), nil, "deepseek/deepseek-r1", CallOptions{Endpoint: EndpointDeepDive})
	require.NoError(t, err)
	assert.True(t, result.HasReasoning)
	assert.Equal(t, "step one, step two", result.Reasoning)
	assert.Positive(t, result.Usage.ReasoningTokens)
	assert.Positive(t, result.Usage.ResponseTokens)
}

func TestCall_ReasoningShapingPerFamily(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		_ = json.NewEncoder(w).Encode(chatCompletion("ok"))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv.URL, nil)
	call := func(model string) map[string]any {
		_, err := o.Call(context.Background(), nil, model, CallOptions{Endpoint: EndpointDeepDive})
		require.NoError(t, err)
		return captured
	}

	body := call("openai/o1")
	assert.Equal(t, 8000.0, body["max_completion_tokens"])
	assert.NotContains(t, body, "max_tokens")

	body = call("deepseek/deepseek-r1")
	assert.Equal(t, map[string]any{"effort": "high"}, body["reasoning"])
	assert.Equal(t, 8000.0, body["max_tokens"])

	body = call("anthropic/claude-sonnet-4")
	assert.Equal(t, map[string]any{"max_tokens": 4000.0}, body["reasoning"])
	assert.Equal(t, 6000.0, body["max_tokens"])

	body = call("x-ai/grok-3")
	assert.Equal(t, map[string]any{"effort": "high"}, body["reasoning"])
	assert.Equal(t, 12000.0, body["max_tokens"])
	assert.Equal(t, 0.3, body["temperature"])

	body = call("google/gemini-2.5-pro")
	assert.Equal(t, map[string]any{"effort": "medium"}, body["reasoning"])
	assert.Equal(t, 6000.0, body["max_tokens"])
	assert.Equal(t, 0.3, body["temperature"])
}

func TestCall_NoShapingOutsideReasoningEndpoints(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		_ = json.NewEncoder(w).Encode(chatCompletion("ok"))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv.URL, nil)
	_, err := o.Call(context.Background(), nil, "openai/gpt-4o", CallOptions{
		Endpoint:  EndpointChat,
		MaxTokens: 1234,
	})
	require.NoError(t, err)
	assert.Equal(t, 1234.0, captured["max_tokens"])
	assert.NotContains(t, captured, "reasoning")
}

// Fallback cascade: the first model rate-limits on every attempt, the
// second succeeds, and the third is never consulted.
func TestCallWithFallback_AdvancesPastRateLimitedModel(t *testing.T) {
	var m1Calls, m2Calls, m3Calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		switch body["model"] {
		case "test/m1":
			atomic.AddInt32(&m1Calls, 1)
			w.WriteHeader(http.StatusTooManyRequests)
		case "test/m2":
			atomic.AddInt32(&m2Calls, 1)
			_ = json.NewEncoder(w).Encode(chatCompletion("answer from m2"))
		default:
			atomic.AddInt32(&m3Calls, 1)
			_ = json.NewEncoder(w).Encode(chatCompletion("answer from m3"))
		}
	}))
	defer srv.Close()

	table := selectionTable{
		models.TierPro: {EndpointChat: ModelSet{Models: []string{"test/m1", "test/m2", "test/m3"}}},
	}
	o := newTestOrchestrator(t, srv.URL, table)

	result, err := o.CallWithFallback(context.Background(), []models.ChatMessage{
		{Role: models.RoleUser, Content: "hello"},
	}, CallOptions{UserID: "user-1", Endpoint: EndpointChat})
	require.NoError(t, err)

	assert.Equal(t, "answer from m2", result.Content)
	assert.Equal(t, "test/m2", result.Model)
	// The rate-limited model burns its full retry envelope before the
	// cascade advances; the third model is never consulted.
	assert.Equal(t, int32(3), atomic.LoadInt32(&m1Calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&m2Calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&m3Calls))
}

func TestCallWithFallback_AllModelsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid request", http.StatusBadRequest)
	}))
	defer srv.Close()

	table := selectionTable{
		models.TierPro: {EndpointChat: ModelSet{Models: []string{"test/m1", "test/m2"}}},
	}
	o := newTestOrchestrator(t, srv.URL, table)

	_, err := o.CallWithFallback(context.Background(), nil, CallOptions{UserID: "user-1", Endpoint: EndpointChat})
	var allFailed *AllModelsFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Len(t, allFailed.Models, 2)
}

func TestCallWithFallback_EmptyMessageAdvances(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{map[string]any{"message": map[string]any{}}}})
			return
		}
		_ = json.NewEncoder(w).Encode(chatCompletion("recovered"))
	}))
	defer srv.Close()

	table := selectionTable{
		models.TierPro: {EndpointChat: ModelSet{Models: []string{"test/m1", "test/m2"}}},
	}
	o := newTestOrchestrator(t, srv.URL, table)

	result, err := o.CallWithFallback(context.Background(), nil, CallOptions{UserID: "user-1", Endpoint: EndpointChat})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
