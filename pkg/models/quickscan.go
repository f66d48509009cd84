package models

import "time"

// QuickScan is a single-shot structured triage result. The original
// analysis is written once; enhancement tiers attach parallel fields
// without mutating it.
type QuickScan struct {
	ID                string      `db:"id" json:"id"`
	UserID            *string     `db:"user_id" json:"user_id,omitempty"`
	BodyParts         StringSlice `db:"body_parts" json:"body_parts"`
	IsMultiPart       bool        `db:"is_multi_part" json:"is_multi_part"`
	FormData          JSONMap     `db:"form_data" json:"form_data"`
	AnalysisResult    JSONMap     `db:"analysis_result" json:"analysis_result"`
	ConfidenceScore   float64     `db:"confidence_score" json:"confidence_score"`
	UrgencyLevel      string      `db:"urgency_level" json:"urgency_level"`
	EnhancedAnalysis  JSONMap     `db:"enhanced_analysis" json:"enhanced_analysis,omitempty"`
	UltraAnalysis     JSONMap     `db:"ultra_analysis" json:"ultra_analysis,omitempty"`
	FollowUpQuestions StringSlice `db:"follow_up_questions" json:"follow_up_questions,omitempty"`
	ModelUsed         string      `db:"model_used" json:"model_used"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
}

// Urgency levels shared by scans, dives, and photo analyses.
const (
	UrgencyLow       = "low"
	UrgencyMedium    = "medium"
	UrgencyHigh      = "high"
	UrgencyEmergency = "emergency"
)
