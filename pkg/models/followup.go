package models

import "time"

// AssessmentFollowUp is one link of a temporally chained follow-up series.
// FollowUpNumber strictly increases within a chain.
type AssessmentFollowUp struct {
	ID                  string    `db:"id" json:"id"`
	ChainID             string    `db:"chain_id" json:"chain_id"`
	ParentFollowUpID    *string   `db:"parent_follow_up_id" json:"parent_follow_up_id,omitempty"`
	UserID              *string   `db:"user_id" json:"user_id,omitempty"`
	SourceType          string    `db:"source_type" json:"source_type"`
	SourceID            string    `db:"source_id" json:"source_id"`
	FollowUpNumber      int       `db:"follow_up_number" json:"follow_up_number"`
	DaysSinceOriginal   int       `db:"days_since_original" json:"days_since_original"`
	BaseResponses       JSONMap   `db:"base_responses" json:"base_responses"`
	AIQuestions         JSONMap   `db:"ai_questions" json:"ai_questions,omitempty"`
	AnalysisResult      JSONMap   `db:"analysis_result" json:"analysis_result"`
	PrimaryAssessment   string    `db:"primary_assessment" json:"primary_assessment"`
	ConfidenceScore     float64   `db:"confidence_score" json:"confidence_score"`
	ConfidenceChange    float64   `db:"confidence_change" json:"confidence_change"`
	AssessmentEvolution JSONMap   `db:"assessment_evolution" json:"assessment_evolution"` // NOT NULL in store
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// Follow-up chain event types.
const (
	FollowUpEventScheduled           = "follow_up_scheduled"
	FollowUpEventStarted             = "follow_up_started"
	FollowUpEventCompleted           = "follow_up_completed"
	FollowUpEventPatternDiscovered   = "pattern_discovered"
	FollowUpEventConfidenceMilestone = "confidence_milestone"
	FollowUpEventDiagnosisChanged    = "diagnosis_changed"
)

// FollowUpEvent is an append-only chain audit row. Best-effort: writing
// one never fails its parent request.
type FollowUpEvent struct {
	ID        int64     `db:"id" json:"id"`
	ChainID   string    `db:"chain_id" json:"chain_id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	EventType string    `db:"event_type" json:"event_type"`
	EventData JSONMap   `db:"event_data" json:"event_data,omitempty"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}
