package photo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/proxima-health/oracle/pkg/models"
)

// comparisonSeparator splits NEW photos from OLD baseline photos in the
// vision prompt. Order is significant: new first, old second.
const comparisonSeparator = "--- COMPARED TO PREVIOUS/BASELINE PHOTOS BELOW ---"

// AnalyzeRequest selects the photos and context for one vision pass.
type AnalyzeRequest struct {
	SessionID          string   `json:"session_id"`
	PhotoIDs           []string `json:"photo_ids"`
	Context            string   `json:"context,omitempty"`
	ComparisonPhotoIDs []string `json:"comparison_photo_ids,omitempty"`
	TemporaryAnalysis  bool     `json:"temporary_analysis,omitempty"`
}

// Analyze runs the vision model chain over the selected photos and
// persists the result. Temporary analyses carry a hard 24h TTL.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*models.PhotoAnalysis, error) {
	session, err := s.store.GetPhotoSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	uploads, err := s.store.ListPhotoUploadsByIDs(ctx, req.PhotoIDs)
	if err != nil {
		return nil, err
	}
	images, sensitive, err := s.collectImages(ctx, uploads)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, ErrNoAnalyzablePhotos
	}

	comparing := len(req.ComparisonPhotoIDs) > 0
	if comparing {
		older, err := s.store.ListPhotoUploadsByIDs(ctx, req.ComparisonPhotoIDs)
		if err != nil {
			return nil, err
		}
		olderImages, olderSensitive, err := s.collectImages(ctx, older)
		if err != nil {
			return nil, err
		}
		sensitive = sensitive || olderSensitive
		images = append(images, olderImages...)
	}

	prompt := analysisPrompt(session, req.Context, comparing)
	result, err := s.callVision(ctx, prompt, images, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("analyzing photos: %w", err)
	}
	if result.ParsedContent == nil {
		return nil, fmt.Errorf("photo analysis produced no structured result")
	}

	data := ensureAnalysisShape(models.JSONMap(result.ParsedContent))
	confidence, _ := data.GetFloat("confidence")

	analysis := &models.PhotoAnalysis{
		ID:              s.newID(),
		SessionID:       session.ID,
		PhotoIDs:        req.PhotoIDs,
		AnalysisData:    data,
		ModelUsed:       result.Model,
		ConfidenceScore: confidence,
		IsSensitive:     sensitive || session.IsSensitive,
		CreatedAt:       s.now().UTC(),
	}
	if comparing {
		analysis.Comparison = data.GetMap("comparison")
	}
	if req.TemporaryAnalysis || analysis.IsSensitive {
		expires := analysis.CreatedAt.Add(temporaryTTL)
		analysis.ExpiresAt = &expires
	}

	if err := s.store.InsertPhotoAnalysis(ctx, analysis); err != nil {
		return nil, err
	}

	if s.tracker != nil && !req.TemporaryAnalysis && len(data.GetSlice("trackable_metrics")) > 0 {
		if err := s.tracker.SuggestFromAnalysis(ctx, "photo_analysis", analysis.ID, session.UserID, data); err != nil {
			slog.Warn("Tracking suggestion from photo analysis failed",
				"analysis_id", analysis.ID, "error", err)
		}
	}

	return analysis, nil
}

// collectImages resolves uploads to data URLs, reporting whether any
// were sensitive.
func (s *Service) collectImages(ctx context.Context, uploads []models.PhotoUpload) ([]string, bool, error) {
	var images []string
	sensitive := false
	for i := range uploads {
		u := &uploads[i]
		if !u.Category.Analyzable() {
			continue
		}
		img, err := s.imageFor(ctx, u)
		if err != nil {
			return nil, false, err
		}
		images = append(images, img)
		if u.Category == models.CategoryMedicalSensitive {
			sensitive = true
		}
	}
	return images, sensitive, nil
}

func analysisPrompt(session *models.PhotoSession, userContext string, comparing bool) string {
	var b strings.Builder
	b.WriteString("You are a medical photo analyst. Examine the attached photos.\n")
	fmt.Fprintf(&b, "Condition being tracked: %s\n", session.ConditionName)
	if session.Description != "" {
		fmt.Fprintf(&b, "Session description: %s\n", session.Description)
	}
	if userContext != "" {
		fmt.Fprintf(&b, "User description: %s\n", userContext)
		b.WriteString("Check the user description for questions of any kind: direct questions, ")
		b.WriteString("implied questions, comparative questions, or expressions of concern. ")
		b.WriteString("If you detect one, set question_detected=true and answer it in question_answer.\n")
	}
	if comparing {
		fmt.Fprintf(&b, "\nThe photos ABOVE the marker are NEW. %s\n", comparisonSeparator)
		b.WriteString("The photos after the marker are PREVIOUS/BASELINE. Compare new against old ")
		b.WriteString("and fill the comparison object.\n")
	}
	b.WriteString("\nReply as JSON: ")
	b.WriteString(`{"description", "observations": [], "key_measurements": {"size_estimate_mm": null}, ` +
		`"red_flags": [], "recommendations": [], "trackable_metrics": [], "confidence": 0-100, ` +
		`"urgency_level": "low|medium|high", "question_detected": false, "question_answer": "", ` +
		`"comparison": {"trend": "improving|stable|worsening", "changes": [], "rate_of_change": ""}, ` +
		`"next_monitoring": {"optimal_interval_days": null, "reasoning": ""}}`)
	return b.String()
}

// Mandatory fields and their zero shapes. Vision models drop fields
// under token pressure, so absent ones are defaulted after extraction.
var (
	mandatoryArrays  = []string{"observations", "red_flags", "recommendations", "trackable_metrics"}
	mandatoryStrings = map[string]string{
		"description":   "No description provided.",
		"urgency_level": "low",
	}
)

func ensureAnalysisShape(data models.JSONMap) models.JSONMap {
	for _, key := range mandatoryArrays {
		if _, ok := data[key].([]any); !ok {
			data[key] = []any{}
		}
	}
	for key, def := range mandatoryStrings {
		if data.GetString(key) == "" {
			data[key] = def
		}
	}
	if _, ok := data["question_detected"].(bool); !ok {
		data["question_detected"] = false
	}
	return data
}
