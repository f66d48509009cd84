package followup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
)

// BaseQuestion is one of the fixed questions every round asks.
type BaseQuestion struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Type     string `json:"type"`
}

// baseQuestions returns the 5 fixed questions. Returned fresh so
// callers can annotate without aliasing.
func baseQuestions() []BaseQuestion {
	return []BaseQuestion{
		{ID: "symptom_change", Question: "How have your symptoms changed since your last assessment?", Type: "scale_choice"},
		{ID: "new_symptoms", Question: "Have you noticed any new symptoms?", Type: "text"},
		{ID: "treatment_followed", Question: "Have you been following the recommendations from your assessment?", Type: "choice"},
		{ID: "medication_changes", Question: "Have you started, stopped, or changed any medications?", Type: "text"},
		{ID: "daily_impact", Question: "How much are your symptoms affecting your daily activities?", Type: "scale"},
	}
}

// defaultAIQuestions fill in when the model yields nothing usable.
func defaultAIQuestions(condition string) []string {
	subject := "your condition"
	if condition != "" {
		subject = condition
	}
	return []string{
		fmt.Sprintf("What time of day is %s most noticeable?", strings.ToLower(subject)),
		"Have you identified anything that reliably triggers or relieves it?",
		"Has anyone around you commented on changes they have noticed?",
	}
}

// generateQuestions asks the model for 3 follow-up questions grounded
// in the chain so far. Degrades to defaults on any failure.
func (e *Engine) generateQuestions(ctx context.Context, original *assessment, chain []models.AssessmentFollowUp, daysSinceOriginal, daysSinceLast int, hasTracking bool, userID string) []string {
	var b strings.Builder
	b.WriteString("Generate exactly 3 follow-up questions for a patient re-assessment.\n")
	fmt.Fprintf(&b, "Original assessment: %s (confidence %.0f)\n", original.condition, original.confidence)
	fmt.Fprintf(&b, "Days since original assessment: %d\n", daysSinceOriginal)
	fmt.Fprintf(&b, "Days since last follow-up: %d\n", daysSinceLast)
	fmt.Fprintf(&b, "The patient %s actively tracking symptoms for this condition.\n", isOrNot(hasTracking))
	if len(chain) > 0 {
		b.WriteString("Previous follow-ups:\n")
		for _, f := range chain {
			fmt.Fprintf(&b, "- Round %d (%d days in): %s, confidence %.0f\n",
				f.FollowUpNumber, f.DaysSinceOriginal, f.PrimaryAssessment, f.ConfidenceScore)
		}
	}
	b.WriteString("\nQuestions must be specific to this case, not generic. ")
	b.WriteString(`Reply as JSON: {"questions": ["...", "...", "..."]}`)

	result, err := e.caller.CallWithFallback(ctx,
		[]models.ChatMessage{{Role: models.RoleUser, Content: b.String()}},
		llm.CallOptions{UserID: userID, Endpoint: llm.EndpointChat})
	if err != nil {
		slog.Warn("Follow-up question generation failed", "error", err)
		return defaultAIQuestions(original.condition)
	}

	questions := models.JSONMap(result.ParsedContent).GetStrings("questions")
	if len(questions) == 0 {
		return defaultAIQuestions(original.condition)
	}
	if len(questions) > 3 {
		questions = questions[:3]
	}
	return questions
}

// ExplainVisit rewrites a clinician note in plain language. On any
// failure the original text is returned unchanged.
func (e *Engine) ExplainVisit(ctx context.Context, text, userID string) string {
	return e.translateJargon(ctx, text, userID)
}

// translateJargon converts a clinician note to plain language. On any
// failure the original text is kept.
func (e *Engine) translateJargon(ctx context.Context, text, userID string) string {
	prompt := "Rewrite this clinician's note in plain language a patient can understand. " +
		"Keep every medical fact, drop nothing, add nothing. Reply with only the rewritten text.\n\n" + text

	result, err := e.caller.CallWithFallback(ctx,
		[]models.ChatMessage{{Role: models.RoleUser, Content: prompt}},
		llm.CallOptions{UserID: userID, Endpoint: llm.EndpointChat})
	if err != nil || strings.TrimSpace(result.Content) == "" {
		return text
	}
	return strings.TrimSpace(result.Content)
}

// analyze runs the comprehensive round analysis. An unusable model
// response degrades to a shape-complete carry-forward of the original.
func (e *Engine) analyze(ctx context.Context, original *assessment, previous *models.AssessmentFollowUp, req SubmitRequest, daysSinceOriginal int) models.JSONMap {
	prompt := analysisPrompt(original, previous, req, daysSinceOriginal)

	result, err := e.caller.CallWithFallback(ctx,
		[]models.ChatMessage{{Role: models.RoleUser, Content: prompt}},
		llm.CallOptions{UserID: req.UserID, Endpoint: llm.EndpointHealthAnalysis})
	if err != nil || result.ParsedContent == nil {
		slog.Warn("Follow-up analysis degraded to carry-forward", "source_id", req.AssessmentID, "error", err)
		return ensureShape(models.JSONMap{
			"primary_assessment":    original.condition,
			"confidence":            original.confidence,
			"progression_narrative": "The assessment could not be updated this round. Previous findings carry forward.",
		}, original)
	}
	return ensureShape(models.JSONMap(result.ParsedContent), original)
}

func analysisPrompt(original *assessment, previous *models.AssessmentFollowUp, req SubmitRequest, daysSinceOriginal int) string {
	var b strings.Builder
	b.WriteString("You are re-assessing a patient based on follow-up responses.\n")
	fmt.Fprintf(&b, "Original assessment (%d days ago): %v\n", daysSinceOriginal, map[string]any(original.analysis))
	if previous != nil {
		fmt.Fprintf(&b, "Most recent follow-up (round %d): %s, confidence %.0f\n",
			previous.FollowUpNumber, previous.PrimaryAssessment, previous.ConfidenceScore)
	}
	fmt.Fprintf(&b, "Base responses: %v\n", map[string]any(req.BaseResponses))
	if len(req.AIResponses) > 0 {
		fmt.Fprintf(&b, "Targeted responses: %v\n", map[string]any(req.AIResponses))
	}
	if len(req.MedicalVisit) > 0 {
		fmt.Fprintf(&b, "Medical visit since last round: %v\n", map[string]any(req.MedicalVisit))
	}
	b.WriteString("\nReply as JSON: ")
	b.WriteString(`{"assessment": {"condition", "confidence": 0-100, "severity", "progression": ` +
		`"improving|stable|worsening"}, "assessment_evolution": {"original_assessment", ` +
		`"current_assessment", "confidence_change", "diagnosis_refined": bool, "key_discoveries": []}, ` +
		`"progression_narrative", "pattern_insights": {"discovered_patterns": [], ` +
		`"concerning_patterns": []}, "treatment_efficacy", "recommendations": {"immediate": [], ` +
		`"this_week": [], "consider": [], "next_follow_up"}, "confidence": 0-100, ` +
		`"primary_assessment", "urgency": "low|medium|high"}`)
	return b.String()
}

// ensureShape enforces the analysis contract: absent fields are
// defaulted and assessment_evolution is synthesized when missing, since
// the store column is NOT NULL.
func ensureShape(analysis models.JSONMap, original *assessment) models.JSONMap {
	inner := analysis.GetMap("assessment")
	if inner == nil {
		inner = models.JSONMap{}
		analysis["assessment"] = map[string]any(inner)
	}
	if inner.GetString("condition") == "" {
		inner["condition"] = original.condition
	}
	if _, ok := inner.GetFloat("confidence"); !ok {
		inner["confidence"] = original.confidence
	}
	if inner.GetString("progression") == "" {
		inner["progression"] = "stable"
	}

	if analysis.GetString("primary_assessment") == "" {
		analysis["primary_assessment"] = inner.GetString("condition")
	}
	if _, ok := analysis.GetFloat("confidence"); !ok {
		conf, _ := inner.GetFloat("confidence")
		analysis["confidence"] = conf
	}
	if analysis.GetString("urgency") == "" {
		analysis["urgency"] = models.UrgencyLow
	}
	if analysis.GetString("progression_narrative") == "" {
		analysis["progression_narrative"] = "No significant changes reported this round."
	}

	if analysis.GetMap("assessment_evolution") == nil {
		current := analysis.GetString("primary_assessment")
		analysis["assessment_evolution"] = map[string]any{
			"original_assessment": original.condition,
			"current_assessment":  current,
			"confidence_change":   0.0,
			"diagnosis_refined":   false,
			"key_discoveries":     []any{},
		}
	}

	patterns := analysis.GetMap("pattern_insights")
	if patterns == nil {
		patterns = models.JSONMap{}
		analysis["pattern_insights"] = map[string]any(patterns)
	}
	if patterns.GetSlice("discovered_patterns") == nil {
		patterns["discovered_patterns"] = []any{}
	}
	if patterns.GetSlice("concerning_patterns") == nil {
		patterns["concerning_patterns"] = []any{}
	}

	recs := analysis.GetMap("recommendations")
	if recs == nil {
		recs = models.JSONMap{}
		analysis["recommendations"] = map[string]any(recs)
	}
	for _, key := range []string{"immediate", "this_week", "consider"} {
		if recs.GetSlice(key) == nil {
			recs[key] = []any{}
		}
	}
	if recs.GetString("next_follow_up") == "" {
		recs["next_follow_up"] = "in one week"
	}
	return analysis
}

func isOrNot(b bool) string {
	if b {
		return "is"
	}
	return "is not"
}
