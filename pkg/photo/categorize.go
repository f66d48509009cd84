package photo

import (
	"context"
	"fmt"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
)

// Categorization is the routing decision for one uploaded image.
type Categorization struct {
	Category     models.PhotoCategory `json:"category"`
	Confidence   float64              `json:"confidence"`
	Subcategory  string               `json:"subcategory,omitempty"`
	QualityScore float64              `json:"quality_score"`
}

const categorizePrompt = `Classify this photo for a medical photo tracking service.

Categories:
- medical_normal: a visible medical condition (rash, wound, swelling, mole, etc.)
- medical_gore: a medical condition with significant blood or exposed tissue
- medical_sensitive: a medical condition in a private or intimate body area
- unclear: too blurry, dark, or cropped to classify
- non_medical: no medical content
- inappropriate: content that violates acceptable use

Reply as JSON: {"category": "...", "confidence": 0-100, "subcategory": "...", "quality_score": 0-100}`

// categorize runs the vision classifier on one image. The image never
// leaves the request path: only the routing decision is kept.
func (s *Service) categorize(ctx context.Context, dataURL, userID string) (*Categorization, error) {
	result, err := s.callVision(ctx, categorizePrompt, []string{dataURL}, userID)
	if err != nil {
		return nil, fmt.Errorf("categorizing photo: %w", err)
	}
	if result.ParsedContent == nil {
		return nil, fmt.Errorf("photo categorization produced no structured result")
	}

	parsed := models.JSONMap(result.ParsedContent)
	cat := models.PhotoCategory(parsed.GetString("category"))
	switch cat {
	case models.CategoryMedicalNormal, models.CategoryMedicalGore, models.CategoryMedicalSensitive,
		models.CategoryUnclear, models.CategoryNonMedical, models.CategoryInappropriate:
	default:
		cat = models.CategoryUnclear
	}

	confidence, _ := parsed.GetFloat("confidence")
	quality, _ := parsed.GetFloat("quality_score")
	return &Categorization{
		Category:     cat,
		Confidence:   confidence,
		Subcategory:  parsed.GetString("subcategory"),
		QualityScore: quality,
	}, nil
}

// callVision walks the vision model chain until one answers.
func (s *Service) callVision(ctx context.Context, prompt string, images []string, userID string) (*llm.CallResult, error) {
	opts := llm.CallOptions{UserID: userID, Endpoint: llm.EndpointPhotoAnalysis}

	var lastErr error
	for _, model := range s.visionModels {
		result, err := s.caller.CallVision(ctx, prompt, images, model, opts)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}
	return nil, fmt.Errorf("all vision models failed: %w", lastErr)
}
