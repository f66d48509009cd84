package models

import "time"

// Report types produced by the report orchestrator.
const (
	ReportComprehensive    = "comprehensive"
	ReportUrgentTriage     = "urgent_triage"
	ReportSymptomTimeline  = "symptom_timeline"
	ReportPhotoProgression = "photo_progression"
	ReportSpecialist       = "specialist_focused"
	ReportAnnualSummary    = "annual_summary"
	Report30Day            = "30_day"
	ReportAnnual           = "annual"
)

// Report is a generated structured medical report.
type Report struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	AnalysisID       *string    `db:"analysis_id" json:"analysis_id,omitempty"`
	ReportType       string     `db:"report_type" json:"report_type"`
	Specialty        *string    `db:"specialty" json:"specialty,omitempty"`
	ReportData       JSONMap    `db:"report_data" json:"report_data"`
	ExecutiveSummary string     `db:"executive_summary" json:"executive_summary"`
	ConfidenceScore  float64    `db:"confidence_score" json:"confidence_score"`
	ModelUsed        string     `db:"model_used" json:"model_used"`
	TimeRangeStart   *time.Time `db:"time_range_start" json:"time_range_start,omitempty"`
	TimeRangeEnd     *time.Time `db:"time_range_end" json:"time_range_end,omitempty"`
	DoctorReviewed   bool       `db:"doctor_reviewed" json:"doctor_reviewed"`
	DoctorNotes      JSONMap    `db:"doctor_notes" json:"doctor_notes,omitempty"`
	RatingSum        float64    `db:"rating_sum" json:"-"`
	RatingCount      int        `db:"rating_count" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// AverageRating returns the rolling doctor rating, or 0 when unrated.
func (r *Report) AverageRating() float64 {
	if r.RatingCount == 0 {
		return 0
	}
	return r.RatingSum / float64(r.RatingCount)
}

// ReportAnalysis records a classified report request and its data scope.
// The explicit id lists distinguish "selected" gathering from the
// comprehensive time-ranged mode: an empty non-nil list means "load
// nothing of that kind", never "load all".
type ReportAnalysis struct {
	ID                 string      `db:"id" json:"id"`
	UserID             string      `db:"user_id" json:"user_id"`
	RecommendedType    string      `db:"recommended_type" json:"recommended_type"`
	ReportConfig       JSONMap     `db:"report_config" json:"report_config"`
	QuickScanIDs       StringSlice `db:"quick_scan_ids" json:"quick_scan_ids,omitempty"`
	DeepDiveIDs        StringSlice `db:"deep_dive_ids" json:"deep_dive_ids,omitempty"`
	PhotoSessionIDs    StringSlice `db:"photo_session_ids" json:"photo_session_ids,omitempty"`
	GeneralAssessments StringSlice `db:"general_assessment_ids" json:"general_assessment_ids,omitempty"`
	GeneralDeepDives   StringSlice `db:"general_deep_dive_ids" json:"general_deep_dive_ids,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
}

// ReportShare is a time-limited share link for a generated report.
type ReportShare struct {
	ID        string    `db:"id" json:"id"`
	ReportID  string    `db:"report_id" json:"report_id"`
	Token     string    `db:"token" json:"token"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
