// Package llm selects models by tier and orchestrates provider calls
// with reasoning-mode shaping and multi-model fallback.
package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/proxima-health/oracle/pkg/models"
)

// Endpoint is the kind of LLM work being requested. Model lists are
// keyed by (tier, endpoint).
type Endpoint string

const (
	EndpointChat           Endpoint = "chat"
	EndpointQuickScan      Endpoint = "quick_scan"
	EndpointDeepDive       Endpoint = "deep_dive"
	EndpointPhotoAnalysis  Endpoint = "photo_analysis"
	EndpointReports        Endpoint = "reports"
	EndpointUltraThink     Endpoint = "ultra_think"
	EndpointThinkHarder    Endpoint = "think_harder"
	EndpointHealthAnalysis Endpoint = "health_analysis"
)

// ModelSet is one cell of the selection table: an ordered fallback list
// plus an optional alternate list used when reasoning mode is requested.
type ModelSet struct {
	Models          []string `json:"models"`
	ReasoningModels []string `json:"reasoning_models,omitempty"`
}

type selectionTable map[models.Tier]map[Endpoint]ModelSet

// ModelSelector maps (tier, endpoint, reasoning mode) to an ordered
// model list. The table loads from a JSON file when one exists at the
// configured path, otherwise from compiled defaults, and can be
// reloaded at runtime without a restart.
type ModelSelector struct {
	path string

	mu    sync.RWMutex
	table selectionTable
}

// NewModelSelector builds a selector, loading path if it exists. A
// missing file is not an error; a malformed one is.
func NewModelSelector(path string) (*ModelSelector, error) {
	s := &ModelSelector{path: path, table: defaultTable()}
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Info("Model config file absent, using compiled defaults", "path", path)
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the JSON table from disk. Tiers or endpoints absent
// from the file keep their compiled defaults.
func (s *ModelSelector) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading model config %s: %w", s.path, err)
	}

	var fileTable map[string]map[string]ModelSet
	if err := json.Unmarshal(raw, &fileTable); err != nil {
		return fmt.Errorf("parsing model config %s: %w", s.path, err)
	}

	table := defaultTable()
	for tierName, endpoints := range fileTable {
		tier := models.Tier(tierName)
		if !tier.Valid() {
			return fmt.Errorf("model config %s: unknown tier %q", s.path, tierName)
		}
		if table[tier] == nil {
			table[tier] = make(map[Endpoint]ModelSet)
		}
		for epName, set := range endpoints {
			table[tier][Endpoint(epName)] = set
		}
	}

	s.mu.Lock()
	s.table = table
	s.mu.Unlock()
	slog.Info("Model selection table loaded", "path", s.path, "tiers", len(fileTable))
	return nil
}

// Models returns the ordered fallback list for the given tier and
// endpoint. When the tier has no cell for the endpoint, the free tier's
// cell is used. Reasoning mode prefers the cell's reasoning list when
// one is configured.
func (s *ModelSelector) Models(tier models.Tier, endpoint Endpoint, reasoningMode bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.cell(tier, endpoint)
	if !ok {
		set, ok = s.cell(models.TierFree, endpoint)
		if !ok {
			return nil
		}
	}
	if reasoningMode && len(set.ReasoningModels) > 0 {
		return append([]string(nil), set.ReasoningModels...)
	}
	return append([]string(nil), set.Models...)
}

// Select returns a single model id. preferredIndex saturates at the end
// of the list rather than going out of range.
func (s *ModelSelector) Select(tier models.Tier, endpoint Endpoint, reasoningMode bool, preferredIndex int) (string, error) {
	list := s.Models(tier, endpoint, reasoningMode)
	if len(list) == 0 {
		return "", fmt.Errorf("no models configured for endpoint %q", endpoint)
	}
	if preferredIndex < 0 {
		preferredIndex = 0
	}
	if preferredIndex >= len(list) {
		preferredIndex = len(list) - 1
	}
	return list[preferredIndex], nil
}

func (s *ModelSelector) cell(tier models.Tier, endpoint Endpoint) (ModelSet, bool) {
	endpoints, ok := s.table[tier]
	if !ok {
		return ModelSet{}, false
	}
	set, ok := endpoints[endpoint]
	if !ok || len(set.Models) == 0 {
		return ModelSet{}, false
	}
	return set, true
}

// defaultTable is the compiled fallback used when no JSON file is
// present. Paid tiers share cells where the product treats them alike;
// only cells that differ from free are spelled out per tier.
func defaultTable() selectionTable {
	free := map[Endpoint]ModelSet{
		EndpointChat: {
			Models:          []string{"meta-llama/llama-3.3-70b-instruct:free", "google/gemini-2.0-flash-exp:free", "mistralai/mistral-small-3.1:free"},
			ReasoningModels: []string{"deepseek/deepseek-r1:free", "meta-llama/llama-3.3-70b-instruct:free"},
		},
		EndpointQuickScan: {
			Models: []string{"meta-llama/llama-3.3-70b-instruct:free", "google/gemini-2.0-flash-exp:free"},
		},
		EndpointDeepDive: {
			Models: []string{"deepseek/deepseek-r1:free", "meta-llama/llama-3.3-70b-instruct:free"},
		},
		EndpointPhotoAnalysis: {
			Models: []string{"google/gemini-2.0-flash-exp:free", "qwen/qwen2.5-vl-72b-instruct:free"},
		},
		EndpointReports: {
			Models: []string{"deepseek/deepseek-r1:free", "meta-llama/llama-3.3-70b-instruct:free"},
		},
		EndpointHealthAnalysis: {
			Models: []string{"deepseek/deepseek-r1:free", "meta-llama/llama-3.3-70b-instruct:free"},
		},
	}

	paid := map[Endpoint]ModelSet{
		EndpointChat: {
			Models:          []string{"openai/gpt-4o", "anthropic/claude-sonnet-4", "google/gemini-2.5-pro"},
			ReasoningModels: []string{"openai/o1", "deepseek/deepseek-r1", "anthropic/claude-sonnet-4"},
		},
		EndpointQuickScan: {
			Models: []string{"openai/gpt-4o", "google/gemini-2.5-flash", "meta-llama/llama-3.3-70b-instruct"},
		},
		EndpointDeepDive: {
			Models: []string{"openai/o1", "anthropic/claude-sonnet-4", "deepseek/deepseek-r1"},
		},
		EndpointPhotoAnalysis: {
			Models: []string{"openai/gpt-4o", "google/gemini-2.5-pro", "qwen/qwen2.5-vl-72b-instruct"},
		},
		EndpointReports: {
			Models: []string{"anthropic/claude-sonnet-4", "openai/o1", "deepseek/deepseek-r1"},
		},
		EndpointThinkHarder: {
			Models: []string{"openai/o1", "deepseek/deepseek-r1"},
		},
		EndpointUltraThink: {
			Models: []string{"openai/o1", "anthropic/claude-opus-4", "x-ai/grok-3"},
		},
		EndpointHealthAnalysis: {
			Models: []string{"anthropic/claude-sonnet-4", "openai/o1"},
		},
	}

	table := selectionTable{
		models.TierFree:    free,
		models.TierBasic:   clone(paid),
		models.TierPro:     clone(paid),
		models.TierProPlus: clone(paid),
		models.TierMax:     clone(paid),
	}

	// Basic keeps paid chat but not the deepest reasoning passes.
	delete(table[models.TierBasic], EndpointUltraThink)
	return table
}

func clone(m map[Endpoint]ModelSet) map[Endpoint]ModelSet {
	out := make(map[Endpoint]ModelSet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
