package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/proxima-health/oracle/pkg/httpx"
	"github.com/proxima-health/oracle/pkg/jsonx"
	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/tokens"
)

// Usage is the provider's token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	ReasoningTokens  int `json:"reasoning_tokens,omitempty"`
	ResponseTokens   int `json:"response_tokens,omitempty"`
}

// CallResult is the normalized outcome of a single model call.
type CallResult struct {
	Content       string
	ParsedContent map[string]any
	Reasoning     string
	HasReasoning  bool
	Usage         Usage
	Model         string
	FinishReason  string
}

// CallOptions are the per-call knobs. Zero values fall back to the
// defaults below.
type CallOptions struct {
	UserID        string
	Endpoint      Endpoint
	ReasoningMode bool
	Temperature   float64
	MaxTokens     int
	TopP          float64
}

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4000
	defaultTopP        = 1.0
)

// TierResolver yields the caller's subscription tier for model selection.
type TierResolver interface {
	Resolve(ctx context.Context, userID string) models.Tier
}

// AllModelsFailedError means every model in the fallback cascade failed.
type AllModelsFailedError struct {
	Endpoint Endpoint
	Models   []string
	LastErr  error
}

func (e *AllModelsFailedError) Error() string {
	return fmt.Sprintf("all %d models failed for endpoint %q: %v", len(e.Models), e.Endpoint, e.LastErr)
}

func (e *AllModelsFailedError) Unwrap() error { return e.LastErr }

// ProviderConfig carries the router endpoint and API keys.
type ProviderConfig struct {
	RouterURL    string
	RouterAPIKey string

	// Optional provider keys attached for matching model families.
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Referer metadata the router uses for attribution.
	AppURL string
}

// Orchestrator shapes provider requests, extracts responses, and walks
// the tier's fallback cascade on failure.
type Orchestrator struct {
	client   *httpx.Client
	selector *ModelSelector
	tiers    TierResolver
	counter  *tokens.Counter
	cfg      ProviderConfig
}

// NewOrchestrator wires the orchestrator. tiers may be nil when callers
// always pass an explicit model.
func NewOrchestrator(client *httpx.Client, selector *ModelSelector, tiers TierResolver, counter *tokens.Counter, cfg ProviderConfig) *Orchestrator {
	return &Orchestrator{client: client, selector: selector, tiers: tiers, counter: counter, cfg: cfg}
}

// Call performs one provider call against the given model. Failures are
// returned as-is so CallWithFallback can decide whether to advance.
func (o *Orchestrator) Call(ctx context.Context, messages []models.ChatMessage, model string, opts CallOptions) (*CallResult, error) {
	body := o.buildRequest(messages, model, opts)

	resp, err := o.client.PostJSONWithRetry(ctx, o.cfg.RouterURL, o.headers(model), body)
	if err != nil {
		return nil, err
	}
	return o.extract(resp, model)
}

// CallWithFallback resolves the tier's model list for the endpoint and
// tries each in order until one returns a usable message. Pure besides
// the outbound HTTP calls.
func (o *Orchestrator) CallWithFallback(ctx context.Context, messages []models.ChatMessage, opts CallOptions) (*CallResult, error) {
	tier := models.TierFree
	if o.tiers != nil && opts.UserID != "" {
		tier = o.tiers.Resolve(ctx, opts.UserID)
	}

	list := o.selector.Models(tier, opts.Endpoint, opts.ReasoningMode)
	if len(list) == 0 {
		return nil, fmt.Errorf("no models configured for endpoint %q", opts.Endpoint)
	}

	var lastErr error
	for _, model := range list {
		result, err := o.Call(ctx, messages, model, opts)
		if err != nil {
			slog.Warn("Model call failed, advancing fallback",
				"model", model, "endpoint", string(opts.Endpoint), "error", err)
			lastErr = err
			continue
		}
		return result, nil
	}
	return nil, &AllModelsFailedError{Endpoint: opts.Endpoint, Models: list, LastErr: lastErr}
}

func (o *Orchestrator) buildRequest(messages []models.ChatMessage, model string, opts CallOptions) map[string]any {
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	topP := opts.TopP
	if topP == 0 {
		topP = defaultTopP
	}

	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": temperature,
		"max_tokens":  maxTokens,
		"top_p":       topP,
	}

	if !reasoningRequested(opts) {
		return body
	}

	id := strings.ToLower(model)
	switch {
	case strings.Contains(id, "o1") || strings.Contains(id, "gpt-5"):
		// These families reject max_tokens and take a completion cap.
		delete(body, "max_tokens")
		body["max_completion_tokens"] = 8000
	case strings.Contains(id, "deepseek-r1"):
		body["reasoning"] = map[string]any{"effort": "high"}
		body["max_tokens"] = 8000
	case strings.Contains(id, "claude"):
		// Outer max_tokens must exceed the reasoning budget.
		body["reasoning"] = map[string]any{"max_tokens": 4000}
		body["max_tokens"] = 6000
	case strings.Contains(id, "grok"):
		body["reasoning"] = map[string]any{"effort": "high"}
		body["max_tokens"] = 12000
		body["temperature"] = 0.3
	default:
		body["reasoning"] = map[string]any{"effort": "medium"}
		body["max_tokens"] = 6000
		body["temperature"] = 0.3
	}
	return body
}

func reasoningRequested(opts CallOptions) bool {
	if opts.ReasoningMode {
		return true
	}
	switch opts.Endpoint {
	case EndpointDeepDive, EndpointReports, EndpointHealthAnalysis, EndpointUltraThink:
		return true
	}
	return false
}

func (o *Orchestrator) headers(model string) map[string]string {
	h := map[string]string{
		"Authorization": "Bearer " + o.cfg.RouterAPIKey,
	}
	if o.cfg.AppURL != "" {
		h["HTTP-Referer"] = o.cfg.AppURL
		h["X-Title"] = "Proxima Health"
	}

	id := strings.ToLower(model)
	switch {
	case strings.Contains(id, "openai/") && o.cfg.OpenAIAPIKey != "":
		h["X-OpenAI-Api-Key"] = o.cfg.OpenAIAPIKey
	case strings.Contains(id, "anthropic/") && o.cfg.AnthropicAPIKey != "":
		h["X-Anthropic-Api-Key"] = o.cfg.AnthropicAPIKey
	}
	return h
}

func (o *Orchestrator) extract(resp map[string]any, model string) (*CallResult, error) {
	choices, _ := resp["choices"].([]any)
	if len(choices) == 0 {
		return nil, fmt.Errorf("model %s returned no choices", model)
	}
	choice, _ := choices[0].(map[string]any)
	message, _ := choice["message"].(map[string]any)
	if len(message) == 0 {
		return nil, fmt.Errorf("model %s returned an empty message", model)
	}

	content, _ := message["content"].(string)
	finishReason, _ := choice["finish_reason"].(string)

	reasoning, _ := message["reasoning"].(string)
	if reasoning == "" {
		if details, ok := message["reasoning_details"].([]any); ok && len(details) > 0 {
			if d, ok := details[0].(map[string]any); ok {
				reasoning, _ = d["text"].(string)
			}
		}
	}

	result := &CallResult{
		Content:      content,
		Reasoning:    reasoning,
		HasReasoning: reasoning != "",
		Model:        model,
		FinishReason: finishReason,
	}
	if parsed, ok := jsonx.Extract(content); ok {
		result.ParsedContent = parsed
	}
	result.Usage = o.extractUsage(resp, reasoning, content)
	return result, nil
}

func (o *Orchestrator) extractUsage(resp map[string]any, reasoning, content string) Usage {
	usage := Usage{}
	raw, _ := resp["usage"].(map[string]any)
	usage.PromptTokens = intField(raw, "prompt_tokens")
	usage.CompletionTokens = intField(raw, "completion_tokens")

	if reasoning != "" && o.counter != nil {
		usage.ReasoningTokens = o.counter.Count(reasoning)
	}
	if usage.ReasoningTokens == 0 {
		if details, ok := raw["completion_tokens_details"].(map[string]any); ok {
			if n := intField(details, "reasoning_tokens"); n > 0 {
				usage.ReasoningTokens = n
			}
		}
	}
	if usage.ReasoningTokens > 0 && o.counter != nil {
		usage.ResponseTokens = o.counter.Count(content)
	}
	return usage
}

func intField(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}
