// Package quickscan implements single-shot structured triage and its
// enhancement tiers.
package quickscan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
)

// ErrNoBodyParts is returned when a scan names no body part.
var ErrNoBodyParts = errors.New("at least one body part is required")

// Store is the persistence the engine needs.
type Store interface {
	InsertQuickScan(ctx context.Context, q *models.QuickScan) error
	GetQuickScan(ctx context.Context, id string) (*models.QuickScan, error)
	SetQuickScanEnhanced(ctx context.Context, id string, data models.JSONMap) error
	SetQuickScanUltra(ctx context.Context, id string, data models.JSONMap) error
	SetQuickScanFollowUps(ctx context.Context, id string, questions models.StringSlice) error
}

// Caller is the LLM dependency.
type Caller interface {
	Call(ctx context.Context, messages []models.ChatMessage, model string, opts llm.CallOptions) (*llm.CallResult, error)
	CallWithFallback(ctx context.Context, messages []models.ChatMessage, opts llm.CallOptions) (*llm.CallResult, error)
}

// ContextProvider supplies the user's aggregated medical memory for
// prompt grounding.
type ContextProvider interface {
	AggregateUserContext(ctx context.Context, userID, currentQuery string) string
}

// SymptomTracker turns a scan's symptoms into tracking suggestions.
// Best-effort: failures never fail the scan.
type SymptomTracker interface {
	SuggestFromAnalysis(ctx context.Context, sourceType, sourceID, userID string, analysis models.JSONMap) error
}

// Engine runs quick scans.
type Engine struct {
	store    Store
	caller   Caller
	contexts ContextProvider
	tracker  SymptomTracker

	now   func() time.Time
	newID func() string
}

// NewEngine wires the engine. contexts and tracker may be nil.
func NewEngine(store Store, caller Caller, contexts ContextProvider, tracker SymptomTracker) *Engine {
	return &Engine{
		store:    store,
		caller:   caller,
		contexts: contexts,
		tracker:  tracker,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// ScanResult is the response of Scan.
type ScanResult struct {
	ScanID     string         `json:"scan_id"`
	Analysis   models.JSONMap `json:"analysis"`
	Confidence float64        `json:"confidence"`
	Urgency    string         `json:"urgency"`
	Model      string         `json:"model"`
}

// Scan performs one triage pass and persists the result.
func (e *Engine) Scan(ctx context.Context, bodyParts []string, formData map[string]any, userID, partsRelationship, model string) (*ScanResult, error) {
	if len(bodyParts) == 0 {
		return nil, ErrNoBodyParts
	}

	userContext := ""
	if e.contexts != nil && userID != "" {
		userContext = e.contexts.AggregateUserContext(ctx, userID, strings.Join(bodyParts, ", "))
	}

	prompt := scanPrompt(bodyParts, formData, partsRelationship, userContext)
	result, err := e.call(ctx, prompt, model, userID, llm.EndpointQuickScan)
	if err != nil {
		return nil, fmt.Errorf("running quick scan: %w", err)
	}
	if result.ParsedContent == nil {
		return nil, fmt.Errorf("quick scan produced no structured analysis")
	}

	analysis := normalizeAnalysis(models.JSONMap(result.ParsedContent))
	confidence, _ := analysis.GetFloat("confidence")
	urgency := analysis.GetString("urgency")
	if urgency == "" {
		urgency = models.UrgencyLow
	}

	scan := &models.QuickScan{
		ID:              e.newID(),
		UserID:          optional(userID),
		BodyParts:       bodyParts,
		IsMultiPart:     len(bodyParts) > 1,
		FormData:        formData,
		AnalysisResult:  analysis,
		ConfidenceScore: confidence,
		UrgencyLevel:    urgency,
		ModelUsed:       result.Model,
		CreatedAt:       e.now().UTC(),
	}
	if err := e.store.InsertQuickScan(ctx, scan); err != nil {
		return nil, err
	}

	if e.tracker != nil && userID != "" && analysis["symptoms"] != nil {
		if err := e.tracker.SuggestFromAnalysis(ctx, "quick_scan", scan.ID, userID, analysis); err != nil {
			slog.Warn("Tracking suggestion from scan failed", "scan_id", scan.ID, "error", err)
		}
	}

	return &ScanResult{
		ScanID:     scan.ID,
		Analysis:   analysis,
		Confidence: confidence,
		Urgency:    urgency,
		Model:      result.Model,
	}, nil
}

// ThinkHarder re-analyzes a stored scan with a stronger model and
// attaches the result without touching the original analysis.
func (e *Engine) ThinkHarder(ctx context.Context, scanID, model string) (models.JSONMap, error) {
	return e.enhance(ctx, scanID, model, llm.EndpointThinkHarder, "think_harder",
		"deeper differential reasoning")
}

// O4Mini runs the mid-tier enhancement pass.
func (e *Engine) O4Mini(ctx context.Context, scanID string) (models.JSONMap, error) {
	return e.enhance(ctx, scanID, "openai/o4-mini", llm.EndpointThinkHarder, "o4_mini",
		"a fast second opinion")
}

// UltraThink runs the maximum-reasoning pass into its own column.
func (e *Engine) UltraThink(ctx context.Context, scanID, model string) (models.JSONMap, error) {
	scan, err := e.store.GetQuickScan(ctx, scanID)
	if err != nil {
		return nil, err
	}

	prompt := enhancePrompt(scan, "maximum-depth reasoning, reconsidering every assumption")
	result, err := e.call(ctx, prompt, model, stringOr(scan.UserID), llm.EndpointUltraThink)
	if err != nil {
		return nil, fmt.Errorf("running ultra think: %w", err)
	}
	if result.ParsedContent == nil {
		return nil, fmt.Errorf("ultra think produced no structured analysis")
	}

	ultra := withConfidenceDelta(models.JSONMap(result.ParsedContent), "ultra_confidence", scan.ConfidenceScore)
	if err := e.store.SetQuickScanUltra(ctx, scanID, ultra); err != nil {
		return nil, err
	}
	return ultra, nil
}

// AskMore generates follow-up questions for a stored scan.
func (e *Engine) AskMore(ctx context.Context, scanID string) ([]string, error) {
	scan, err := e.store.GetQuickScan(ctx, scanID)
	if err != nil {
		return nil, err
	}

	prompt := askMorePrompt(scan)
	result, err := e.call(ctx, prompt, "", stringOr(scan.UserID), llm.EndpointQuickScan)
	if err != nil {
		return nil, fmt.Errorf("generating follow-up questions: %w", err)
	}

	questions := models.JSONMap(result.ParsedContent).GetStrings("questions")
	if len(questions) == 0 {
		questions = defaultFollowUpQuestions(scan.BodyParts)
	}
	if len(questions) > 5 {
		questions = questions[:5]
	}
	if err := e.store.SetQuickScanFollowUps(ctx, scanID, questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// enhance runs one enhancement tier and merges it under its own key of
// enhanced_analysis, so tiers never clobber one another.
func (e *Engine) enhance(ctx context.Context, scanID, model string, endpoint llm.Endpoint, tierKey, depth string) (models.JSONMap, error) {
	scan, err := e.store.GetQuickScan(ctx, scanID)
	if err != nil {
		return nil, err
	}

	prompt := enhancePrompt(scan, depth)
	result, err := e.call(ctx, prompt, model, stringOr(scan.UserID), endpoint)
	if err != nil {
		return nil, fmt.Errorf("running %s enhancement: %w", tierKey, err)
	}
	if result.ParsedContent == nil {
		return nil, fmt.Errorf("%s enhancement produced no structured analysis", tierKey)
	}

	tier := withConfidenceDelta(models.JSONMap(result.ParsedContent), "enhanced_confidence", scan.ConfidenceScore)

	merged := scan.EnhancedAnalysis
	if merged == nil {
		merged = models.JSONMap{}
	}
	merged[tierKey] = map[string]any(tier)
	if err := e.store.SetQuickScanEnhanced(ctx, scanID, merged); err != nil {
		return nil, err
	}
	return tier, nil
}

func (e *Engine) call(ctx context.Context, prompt, model, userID string, endpoint llm.Endpoint) (*llm.CallResult, error) {
	messages := []models.ChatMessage{{Role: models.RoleUser, Content: prompt}}
	opts := llm.CallOptions{UserID: userID, Endpoint: endpoint}
	if model != "" {
		return e.caller.Call(ctx, messages, model, opts)
	}
	return e.caller.CallWithFallback(ctx, messages, opts)
}

func withConfidenceDelta(analysis models.JSONMap, key string, original float64) models.JSONMap {
	confidence, _ := analysis.GetFloat("confidence")
	analysis[key] = confidence
	analysis["confidence_improvement"] = confidence - original
	return analysis
}

// normalizeAnalysis attaches the derived reader-facing fields.
func normalizeAnalysis(analysis models.JSONMap) models.JSONMap {
	if analysis.GetString("what_this_means") == "" {
		condition := analysis.GetString("primaryCondition")
		likelihood := analysis.GetString("likelihood")
		switch {
		case condition != "" && likelihood != "":
			analysis["what_this_means"] = fmt.Sprintf("Your symptoms are most consistent with %s (%s).", condition, strings.ToLower(likelihood))
		case condition != "":
			analysis["what_this_means"] = fmt.Sprintf("Your symptoms are most consistent with %s.", condition)
		default:
			analysis["what_this_means"] = "Your symptoms need more information to assess confidently."
		}
	}
	if analysis["immediate_actions"] == nil {
		if recs := analysis.GetStrings("recommendations"); len(recs) > 0 {
			n := min(3, len(recs))
			actions := make([]any, 0, n)
			for _, r := range recs[:n] {
				actions = append(actions, r)
			}
			analysis["immediate_actions"] = actions
		} else {
			analysis["immediate_actions"] = []any{"Monitor your symptoms and seek care if they worsen"}
		}
	}
	return analysis
}

func defaultFollowUpQuestions(bodyParts []string) []string {
	area := "the affected area"
	if len(bodyParts) > 0 {
		area = "your " + bodyParts[0]
	}
	return []string{
		fmt.Sprintf("Has the discomfort in %s changed since it started?", area),
		"Does anything reliably make the symptoms better or worse?",
		"Are you taking any medications for this, and are they helping?",
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
