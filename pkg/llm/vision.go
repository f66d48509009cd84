package llm

// Vision calls carry image parts alongside the text prompt, so they
// bypass the plain ChatMessage shape. Images are data URLs or https
// URLs, passed through to the provider unchanged.

import (
	"context"
)

// CallVision performs one multimodal call against the given model. The
// rate-limit-aware client path is used because vision models throttle
// far more aggressively than text models.
func (o *Orchestrator) CallVision(ctx context.Context, prompt string, images []string, model string, opts CallOptions) (*CallResult, error) {
	parts := make([]any, 0, len(images)+1)
	parts = append(parts, map[string]any{"type": "text", "text": prompt})
	for _, img := range images {
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": img},
		})
	}

	messages := []any{map[string]any{"role": "user", "content": parts}}

	body := o.buildRequest(nil, model, opts)
	body["messages"] = messages

	resp, err := o.client.PostJSONRateLimitAware(ctx, o.cfg.RouterURL, o.headers(model), body)
	if err != nil {
		return nil, err
	}
	return o.extract(resp, model)
}
