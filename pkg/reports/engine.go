// Package reports generates doctor-facing medical reports: request
// classification, two data-gathering modes, type- and specialty-specific
// generation, and reviewer operations (notes, sharing, ratings).
package reports

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
)

// Report types the classifier can recommend.
const (
	TypeComprehensive    = "comprehensive"
	TypeUrgentTriage     = "urgent_triage"
	TypeSymptomTimeline  = "symptom_timeline"
	TypePhotoProgression = "photo_progression"
	TypeAnnualSummary    = "annual_summary"
	TypeSpecialist       = "specialist_focused"
	Type30Day            = "30_day"
	TypeAnnual           = "annual"
)

const (
	defaultShareTTL = 7 * 24 * time.Hour

	// photoProgressionMinSessions is the session count at which the
	// classifier prefers a photo progression report.
	photoProgressionMinSessions = 3
)

// Sentinel errors surfaced to the API layer.
var (
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrUnknownSpecialty = errors.New("unknown specialty")
	ErrNotOwner         = errors.New("report belongs to another user")
)

// Store is the persistence the engine needs.
type Store interface {
	InsertReportAnalysis(ctx context.Context, a *models.ReportAnalysis) error
	GetReportAnalysis(ctx context.Context, id string) (*models.ReportAnalysis, error)
	InsertReport(ctx context.Context, r *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListReports(ctx context.Context, userID string) ([]models.Report, error)
	SetReportDoctorNotes(ctx context.Context, id string, notes models.JSONMap) error
	AddReportRating(ctx context.Context, id string, rating float64) error
	InsertReportShare(ctx context.Context, sh *models.ReportShare) error
	GetReportShareByToken(ctx context.Context, token string, now time.Time) (*models.ReportShare, error)

	ListQuickScansByIDs(ctx context.Context, userID string, ids []string) ([]models.QuickScan, error)
	ListQuickScansInRange(ctx context.Context, userID string, from, to time.Time) ([]models.QuickScan, error)
	ListDeepDivesByIDs(ctx context.Context, userID string, ids []string) ([]models.DeepDiveSession, error)
	ListDeepDivesInRange(ctx context.Context, userID string, from, to time.Time) ([]models.DeepDiveSession, error)
	ListPhotoSessions(ctx context.Context, userID string) ([]models.PhotoSession, error)
	ListPhotoAnalyses(ctx context.Context, sessionID string) ([]models.PhotoAnalysis, error)
	ListPhotoAnalysesForUser(ctx context.Context, userID string, from, to time.Time) ([]models.PhotoAnalysis, error)
	ListTrackingConfigurations(ctx context.Context, userID string) ([]models.TrackingConfiguration, error)
	ListTrackingDataPoints(ctx context.Context, configurationID string, since time.Time) ([]models.TrackingDataPoint, error)
	ListUserMessagesInRange(ctx context.Context, userID string, from, to time.Time) ([]models.Message, error)
}

// Caller is the LLM dependency.
type Caller interface {
	CallWithFallback(ctx context.Context, messages []models.ChatMessage, opts llm.CallOptions) (*llm.CallResult, error)
}

// Engine orchestrates report generation.
type Engine struct {
	store  Store
	caller Caller
	appURL string

	now   func() time.Time
	newID func() string
}

// NewEngine wires the engine. appURL prefixes share links.
func NewEngine(st Store, caller Caller, appURL string) *Engine {
	return &Engine{
		store:  st,
		caller: caller,
		appURL: strings.TrimRight(appURL, "/"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// TimeRange bounds comprehensive data gathering.
type TimeRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// AnalyzeRequest describes what the user wants reported on.
type AnalyzeRequest struct {
	UserID          string    `json:"user_id"`
	Purpose         string    `json:"purpose,omitempty"`
	SymptomFocus    string    `json:"symptom_focus,omitempty"`
	TargetAudience  string    `json:"target_audience,omitempty"`
	Context         string    `json:"context,omitempty"`
	TimeRange       TimeRange `json:"time_range,omitempty"`
	QuickScanIDs    []string  `json:"quick_scan_ids,omitempty"`
	DeepDiveIDs     []string  `json:"deep_dive_ids,omitempty"`
	PhotoSessionIDs []string  `json:"photo_session_ids,omitempty"`
}

// AnalyzeResult routes the caller to the endpoint for the recommended
// report type.
type AnalyzeResult struct {
	AnalysisID      string         `json:"analysis_id"`
	RecommendedType string         `json:"recommended_type"`
	Endpoint        string         `json:"recommended_endpoint"`
	Config          models.JSONMap `json:"report_config"`
}

// urgentMarkers are emergency phrases that force urgent triage.
var urgentMarkers = []string{
	"chest pain", "shortness of breath", "difficulty breathing",
	"severe bleeding", "loss of consciousness", "stroke", "emergency",
	"suicidal", "unbearable",
}

var typeEndpoints = map[string]string{
	TypeComprehensive:    "/api/report/comprehensive",
	TypeUrgentTriage:     "/api/report/urgent-triage",
	TypeSymptomTimeline:  "/api/report/symptom-timeline",
	TypePhotoProgression: "/api/report/photo-progression",
	TypeAnnualSummary:    "/api/report/annual-summary",
	TypeSpecialist:       "/api/report/specialist",
	Type30Day:            "/api/report/30-day",
	TypeAnnual:           "/api/report/annual",
}

// defaultRangeDays per report type, applied when the request leaves the
// time range open.
var defaultRangeDays = map[string]int{
	TypeComprehensive:    30,
	TypeUrgentTriage:     7,
	TypeSymptomTimeline:  30,
	TypePhotoProgression: 90,
	TypeAnnualSummary:    365,
	TypeSpecialist:       90,
	Type30Day:            30,
	TypeAnnual:           365,
}

// Analyze classifies the request, persists the classification, and
// returns the endpoint that will generate it.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	reportType := e.classify(ctx, req)
	start, end := e.resolveRange(reportType, req.TimeRange)

	cfg := models.JSONMap{
		"report_type":      reportType,
		"time_range_start": start.Format(time.RFC3339),
		"time_range_end":   end.Format(time.RFC3339),
	}
	if req.Purpose != "" {
		cfg["purpose"] = req.Purpose
	}
	if req.SymptomFocus != "" {
		cfg["symptom_focus"] = req.SymptomFocus
	}
	if req.TargetAudience != "" {
		cfg["target_audience"] = req.TargetAudience
	}

	analysis := &models.ReportAnalysis{
		ID:              e.newID(),
		UserID:          req.UserID,
		RecommendedType: reportType,
		ReportConfig:    cfg,
		QuickScanIDs:    models.StringSlice(req.QuickScanIDs),
		DeepDiveIDs:     models.StringSlice(req.DeepDiveIDs),
		PhotoSessionIDs: models.StringSlice(req.PhotoSessionIDs),
		CreatedAt:       e.now().UTC(),
	}
	if err := e.store.InsertReportAnalysis(ctx, analysis); err != nil {
		return nil, err
	}

	return &AnalyzeResult{
		AnalysisID:      analysis.ID,
		RecommendedType: reportType,
		Endpoint:        typeEndpoints[reportType],
		Config:          cfg,
	}, nil
}

func (e *Engine) classify(ctx context.Context, req AnalyzeRequest) string {
	haystack := strings.ToLower(req.Purpose + " " + req.SymptomFocus + " " + req.Context)
	for _, marker := range urgentMarkers {
		if strings.Contains(haystack, marker) {
			return TypeUrgentTriage
		}
	}
	if strings.Contains(strings.ToLower(req.Purpose), "annual") {
		return TypeAnnualSummary
	}
	if e.photoSessionCount(ctx, req) >= photoProgressionMinSessions {
		return TypePhotoProgression
	}
	if req.SymptomFocus != "" {
		return TypeSymptomTimeline
	}
	if strings.EqualFold(req.TargetAudience, "specialist") {
		return TypeSpecialist
	}
	return TypeComprehensive
}

func (e *Engine) photoSessionCount(ctx context.Context, req AnalyzeRequest) int {
	if req.PhotoSessionIDs != nil {
		return len(req.PhotoSessionIDs)
	}
	if req.UserID == "" {
		return 0
	}
	sessions, err := e.store.ListPhotoSessions(ctx, req.UserID)
	if err != nil {
		return 0
	}
	return len(sessions)
}

func (e *Engine) resolveRange(reportType string, tr TimeRange) (time.Time, time.Time) {
	end := e.now().UTC()
	if tr.End != nil {
		end = tr.End.UTC()
	}
	start := end.AddDate(0, 0, -defaultRangeDays[reportType])
	if tr.Start != nil {
		start = tr.Start.UTC()
	}
	return start, end
}

// GetReport loads one report, enforcing ownership when userID is set.
func (e *Engine) GetReport(ctx context.Context, id, userID string) (*models.Report, error) {
	r, err := e.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && r.UserID != userID {
		return nil, ErrNotOwner
	}
	return r, nil
}

// ListReports returns a user's reports newest first.
func (e *Engine) ListReports(ctx context.Context, userID string) ([]models.Report, error) {
	return e.store.ListReports(ctx, userID)
}

// AddDoctorNotes attaches reviewer annotations and marks the report
// reviewed.
func (e *Engine) AddDoctorNotes(ctx context.Context, reportID string, notes models.JSONMap) error {
	if _, err := e.store.GetReport(ctx, reportID); err != nil {
		return err
	}
	if notes == nil {
		notes = models.JSONMap{}
	}
	notes["reviewed_at"] = e.now().UTC().Format(time.RFC3339)
	return e.store.SetReportDoctorNotes(ctx, reportID, notes)
}

// ShareResult is a time-limited link to a generated report.
type ShareResult struct {
	ShareID   string    `json:"share_id"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Share creates a share link. ttl <= 0 defaults to one week.
func (e *Engine) Share(ctx context.Context, reportID string, ttl time.Duration) (*ShareResult, error) {
	if _, err := e.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultShareTTL
	}
	sh := &models.ReportShare{
		ID:        e.newID(),
		ReportID:  reportID,
		Token:     e.newID(),
		ExpiresAt: e.now().UTC().Add(ttl),
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.InsertReportShare(ctx, sh); err != nil {
		return nil, err
	}
	return &ShareResult{
		ShareID:   sh.ID,
		Token:     sh.Token,
		URL:       e.appURL + "/report/shared/" + sh.Token,
		ExpiresAt: sh.ExpiresAt,
	}, nil
}

// ResolveShare loads the report behind an unexpired share token.
func (e *Engine) ResolveShare(ctx context.Context, token string) (*models.Report, error) {
	sh, err := e.store.GetReportShareByToken(ctx, token, e.now().UTC())
	if err != nil {
		return nil, err
	}
	return e.store.GetReport(ctx, sh.ReportID)
}

// Rate folds one doctor rating into the report's rolling average and
// returns the updated average.
func (e *Engine) Rate(ctx context.Context, reportID string, rating float64) (float64, error) {
	if rating < 1 || rating > 5 {
		return 0, ErrInvalidRating
	}
	if _, err := e.store.GetReport(ctx, reportID); err != nil {
		return 0, err
	}
	if err := e.store.AddReportRating(ctx, reportID, rating); err != nil {
		return 0, err
	}
	r, err := e.store.GetReport(ctx, reportID)
	if err != nil {
		return 0, err
	}
	return r.AverageRating(), nil
}
