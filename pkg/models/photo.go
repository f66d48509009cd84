package models

import "time"

// PhotoCategory is the routing decision for an uploaded photo.
type PhotoCategory string

// Photo categories and their storage routing.
const (
	// Stored in the object store, linked by StorageURL.
	CategoryMedicalNormal PhotoCategory = "medical_normal"
	CategoryMedicalGore   PhotoCategory = "medical_gore"
	// Never persisted to the object store; base64 kept inline with a hard TTL.
	CategoryMedicalSensitive PhotoCategory = "medical_sensitive"
	// Returned to the caller for clarification; not analyzed.
	CategoryUnclear PhotoCategory = "unclear"
	// Ignored.
	CategoryNonMedical PhotoCategory = "non_medical"
	// Rejected with a 400-class error.
	CategoryInappropriate PhotoCategory = "inappropriate"
)

// Analyzable reports whether photos of this category may be analyzed.
func (c PhotoCategory) Analyzable() bool {
	switch c {
	case CategoryMedicalNormal, CategoryMedicalGore, CategoryMedicalSensitive:
		return true
	}
	return false
}

// PhotoSession groups photos of one condition over time.
type PhotoSession struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	ConditionName string     `db:"condition_name" json:"condition_name"`
	Description   string     `db:"description" json:"description"`
	IsSensitive   bool       `db:"is_sensitive" json:"is_sensitive"`
	DeletedAt     *time.Time `db:"deleted_at" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastPhotoAt   *time.Time `db:"last_photo_at" json:"last_photo_at,omitempty"`
}

// PhotoUpload is a single uploaded photo. For analyzable photos exactly
// one of StorageURL / TemporaryData is non-empty; sensitive uploads must
// never reach the object store.
type PhotoUpload struct {
	ID            string        `db:"id" json:"id"`
	SessionID     string        `db:"session_id" json:"session_id"`
	Category      PhotoCategory `db:"category" json:"category"`
	StorageURL    *string       `db:"storage_url" json:"storage_url,omitempty"`
	TemporaryData *string       `db:"temporary_data" json:"-"`
	FileMetadata  JSONMap       `db:"file_metadata" json:"file_metadata,omitempty"`
	QualityScore  *float64      `db:"quality_score" json:"quality_score,omitempty"`
	IsFollowup    bool          `db:"is_followup" json:"is_followup"`
	FollowupNotes string        `db:"followup_notes" json:"followup_notes,omitempty"`
	UploadedAt    time.Time     `db:"uploaded_at" json:"uploaded_at"`
}

// PhotoAnalysis is one vision-model pass over a set of photos.
type PhotoAnalysis struct {
	ID              string      `db:"id" json:"id"`
	SessionID       string      `db:"session_id" json:"session_id"`
	PhotoIDs        StringSlice `db:"photo_ids" json:"photo_ids"`
	AnalysisData    JSONMap     `db:"analysis_data" json:"analysis_data"`
	ModelUsed       string      `db:"model_used" json:"model_used"`
	ConfidenceScore float64     `db:"confidence_score" json:"confidence_score"`
	IsSensitive     bool        `db:"is_sensitive" json:"is_sensitive"`
	ExpiresAt       *time.Time  `db:"expires_at" json:"expires_at,omitempty"`
	Comparison      JSONMap     `db:"comparison" json:"comparison,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
}

// PhotoReminder configures follow-up reminders for one session.
type PhotoReminder struct {
	SessionID        string     `db:"session_id" json:"session_id"`
	AnalysisID       string     `db:"analysis_id" json:"analysis_id"`
	UserID           string     `db:"user_id" json:"user_id"`
	Enabled          bool       `db:"enabled" json:"enabled"`
	IntervalDays     int        `db:"interval_days" json:"interval_days"`
	ReminderMethod   string     `db:"reminder_method" json:"reminder_method"`
	NextReminderDate time.Time  `db:"next_reminder_date" json:"next_reminder_date"`
	AIReasoning      string     `db:"ai_reasoning" json:"ai_reasoning"`
	LastSentAt       *time.Time `db:"last_sent_at" json:"last_sent_at,omitempty"`
}
