package models

import "time"

// Tracking metric kinds.
const (
	TrackingSeverity   = "severity"
	TrackingFrequency  = "frequency"
	TrackingDuration   = "duration"
	TrackingOccurrence = "occurrence"
)

// Suggestion action states.
const (
	ActionApprovedAll  = "approved_all"
	ActionApprovedSome = "approved_some"
)

// TrackingSuggestion is a metric derived from a scan or dive analysis,
// pending user approval.
type TrackingSuggestion struct {
	ID                 string      `db:"id" json:"id"`
	UserID             string      `db:"user_id" json:"user_id"`
	SourceType         string      `db:"source_type" json:"source_type"`
	SourceID           string      `db:"source_id" json:"source_id"`
	MetricName         string      `db:"metric_name" json:"metric_name"`
	YAxisLabel         string      `db:"y_axis_label" json:"y_axis_label"`
	YAxisType          string      `db:"y_axis_type" json:"y_axis_type"`
	YAxisMin           float64     `db:"y_axis_min" json:"y_axis_min"`
	YAxisMax           float64     `db:"y_axis_max" json:"y_axis_max"`
	TrackingType       string      `db:"tracking_type" json:"tracking_type"`
	SymptomKeywords    StringSlice `db:"symptom_keywords" json:"symptom_keywords,omitempty"`
	SuggestedQuestions StringSlice `db:"suggested_questions" json:"suggested_questions,omitempty"`
	AIReasoning        string      `db:"ai_reasoning" json:"ai_reasoning"`
	ConfidenceScore    float64     `db:"confidence_score" json:"confidence_score"`
	ActionTaken        *string     `db:"action_taken" json:"action_taken,omitempty"`
	ActionedAt         *time.Time  `db:"actioned_at" json:"actioned_at,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
}

// TrackingConfiguration is an approved metric the user records against.
type TrackingConfiguration struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	SuggestionID    *string    `db:"suggestion_id" json:"suggestion_id,omitempty"`
	MetricName      string     `db:"metric_name" json:"metric_name"`
	YAxisLabel      string     `db:"y_axis_label" json:"y_axis_label"`
	YAxisType       string     `db:"y_axis_type" json:"y_axis_type"`
	YAxisMin        float64    `db:"y_axis_min" json:"y_axis_min"`
	YAxisMax        float64    `db:"y_axis_max" json:"y_axis_max"`
	TrackingType    string     `db:"tracking_type" json:"tracking_type"`
	ShowOnHomepage  bool       `db:"show_on_homepage" json:"show_on_homepage"`
	DataPointsCount int        `db:"data_points_count" json:"data_points_count"`
	LastDataPoint   *time.Time `db:"last_data_point" json:"last_data_point,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// TrackingDataPoint is one recorded value for a configuration.
type TrackingDataPoint struct {
	ID              string    `db:"id" json:"id"`
	ConfigurationID string    `db:"configuration_id" json:"configuration_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	Value           float64   `db:"value" json:"value"`
	Notes           *string   `db:"notes" json:"notes,omitempty"`
	RecordedAt      time.Time `db:"recorded_at" json:"recorded_at"`
}
