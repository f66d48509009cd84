// Package api exposes the HTTP surface: one handler file per domain,
// gin routing, and a shared error mapping.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proxima-health/oracle/pkg/contextmgr"
	"github.com/proxima-health/oracle/pkg/database"
	"github.com/proxima-health/oracle/pkg/deepdive"
	"github.com/proxima-health/oracle/pkg/email"
	"github.com/proxima-health/oracle/pkg/followup"
	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/photo"
	"github.com/proxima-health/oracle/pkg/quickscan"
	"github.com/proxima-health/oracle/pkg/reports"
	"github.com/proxima-health/oracle/pkg/tracking"
	"github.com/proxima-health/oracle/pkg/version"
)

// QuickScanEngine is the quick-scan surface the handlers need.
type QuickScanEngine interface {
	Scan(ctx context.Context, bodyParts []string, formData map[string]any, userID, partsRelationship, model string) (*quickscan.ScanResult, error)
	ThinkHarder(ctx context.Context, scanID, model string) (models.JSONMap, error)
	O4Mini(ctx context.Context, scanID string) (models.JSONMap, error)
	UltraThink(ctx context.Context, scanID, model string) (models.JSONMap, error)
	AskMore(ctx context.Context, scanID string) ([]string, error)
}

// DeepDiveEngine is the deep-dive surface the handlers need.
type DeepDiveEngine interface {
	Start(ctx context.Context, bodyParts []string, formData map[string]any, userID, preferredModel string) (*deepdive.StartResult, error)
	Continue(ctx context.Context, sessionID, answer string, questionNumber int, fallbackModel string) (*deepdive.ContinueResult, error)
	Complete(ctx context.Context, sessionID, finalAnswer, fallbackModel string) (models.JSONMap, error)
	ThinkHarder(ctx context.Context, sessionID, model string) (models.JSONMap, error)
	UltraThink(ctx context.Context, sessionID, model string) (models.JSONMap, error)
	AskMore(ctx context.Context, sessionID string, currentConfidence, target float64, maxExtra int) (*deepdive.AskMoreResult, error)
}

// PhotoService is the photo-pipeline surface the handlers need.
type PhotoService interface {
	CreateSession(ctx context.Context, userID, conditionName, description string) (*models.PhotoSession, error)
	Upload(ctx context.Context, sessionID, userID string, photos []photo.UploadInput) (*photo.UploadResult, error)
	Analyze(ctx context.Context, req photo.AnalyzeRequest) (*models.PhotoAnalysis, error)
	CompareWithHistory(ctx context.Context, sessionID string, newPhotoIDs []string, userContext string) (*photo.CompareResult, error)
	ConfigureReminder(ctx context.Context, req photo.ReminderRequest) (*models.PhotoReminder, error)
	SessionProgression(ctx context.Context, sessionID, metric string) (*photo.Progression, error)
}

// FollowUpEngine is the follow-up surface the handlers need.
type FollowUpEngine interface {
	Questions(ctx context.Context, assessmentID, assessmentType, userID string) (*followup.QuestionSet, error)
	Submit(ctx context.Context, req followup.SubmitRequest) (*followup.SubmitResult, error)
	Chain(ctx context.Context, assessmentType, assessmentID string) ([]models.AssessmentFollowUp, error)
	ExplainVisit(ctx context.Context, text, userID string) string
}

// ReportEngine is the reporting surface the handlers need.
type ReportEngine interface {
	Analyze(ctx context.Context, req reports.AnalyzeRequest) (*reports.AnalyzeResult, error)
	Generate(ctx context.Context, reportType string, req reports.GenerateRequest) (*reports.GenerateResult, error)
	ListReports(ctx context.Context, userID string) ([]models.Report, error)
	GetReport(ctx context.Context, id, userID string) (*models.Report, error)
	AddDoctorNotes(ctx context.Context, reportID string, notes models.JSONMap) error
	Share(ctx context.Context, reportID string, ttl time.Duration) (*reports.ShareResult, error)
	ResolveShare(ctx context.Context, token string) (*models.Report, error)
	Rate(ctx context.Context, reportID string, rating float64) (float64, error)
	SpecialtyTriage(ctx context.Context, userID, symptomFocus string) (*reports.TriageResult, error)
}

// TrackingEngine is the tracking surface the handlers need.
type TrackingEngine interface {
	Suggest(ctx context.Context, sourceType, sourceID, userID string) ([]models.TrackingSuggestion, error)
	SuggestFromAnalysis(ctx context.Context, sourceType, sourceID, userID string, analysis models.JSONMap) error
	Configure(ctx context.Context, req tracking.ConfigureRequest) (*models.TrackingConfiguration, error)
	ApproveSuggestion(ctx context.Context, suggestionID, userID string) (*models.TrackingConfiguration, error)
	AddDataPoint(ctx context.Context, configurationID, userID string, value float64, notes string, recordedAt *time.Time) (*models.TrackingDataPoint, error)
	GetDashboard(ctx context.Context, userID string) (*tracking.Dashboard, error)
	GetChart(ctx context.Context, configurationID, userID string, days int) (*tracking.Chart, error)
}

// EmailService is the email surface the handlers need.
type EmailService interface {
	SendReport(ctx context.Context, req email.SendReportRequest) (*email.SendResult, error)
	SendScan(ctx context.Context, req email.SendScanRequest) (*email.SendResult, error)
	Webhook(ctx context.Context, events []email.WebhookEvent) error
}

// ChatCaller is the LLM dependency of the chat handler.
type ChatCaller interface {
	CallWithFallback(ctx context.Context, messages []models.ChatMessage, opts llm.CallOptions) (*llm.CallResult, error)
}

// ContextManager is the context-budget surface of the chat handler.
type ContextManager interface {
	StatusFor(messages []models.Message, isPremium bool) contextmgr.Status
	CompressMedical(ctx context.Context, messages []models.Message) []models.Message
	FreeTierContext(ctx context.Context, messages []models.Message) []models.Message
	AggregateUserContext(ctx context.Context, userID, currentQuery string) string
	GenerateTitle(ctx context.Context, messages []models.Message) string
}

// TierReader resolves subscription tiers.
type TierReader interface {
	Resolve(ctx context.Context, userID string) models.Tier
}

// DataStore is the read surface the handlers use directly.
type DataStore interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	UpdateConversationTitle(ctx context.Context, id, title string) error

	GetDeepDive(ctx context.Context, id string) (*models.DeepDiveSession, error)
	ListRecentQuickScans(ctx context.Context, userID string, limit int) ([]models.QuickScan, error)
	ListRecentDeepDives(ctx context.Context, userID string, limit int) ([]models.DeepDiveSession, error)

	ListPhotoSessions(ctx context.Context, userID string) ([]models.PhotoSession, error)
	GetPhotoSession(ctx context.Context, id string) (*models.PhotoSession, error)
	ListPhotoUploads(ctx context.Context, sessionID string) ([]models.PhotoUpload, error)
	ListPhotoAnalyses(ctx context.Context, sessionID string) ([]models.PhotoAnalysis, error)
	SoftDeletePhotoSession(ctx context.Context, id, userID string) error

	ListTrackingConfigurations(ctx context.Context, userID string) ([]models.TrackingConfiguration, error)
	ListTrackingDataPoints(ctx context.Context, configurationID string, since time.Time) ([]models.TrackingDataPoint, error)
}

// ModelRegistry reloads the model-selection table from disk.
type ModelRegistry interface {
	Reload() error
}

// Deps wires the server. Any nil engine disables its routes' behavior
// with a 503; db may be nil in tests.
type Deps struct {
	DB         *sql.DB
	Store      DataStore
	QuickScans QuickScanEngine
	DeepDives  DeepDiveEngine
	Photos     PhotoService
	FollowUps  FollowUpEngine
	Reports    ReportEngine
	Tracking   TrackingEngine
	Emails     EmailService
	Caller     ChatCaller
	Contexts   ContextManager
	Tiers      TierReader
	Models     ModelRegistry
	Debug      bool
}

// Server is the HTTP surface.
type Server struct {
	deps Deps
}

// NewServer builds the server around its dependencies.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), securityHeaders())

	r.GET("/api/health", s.health)
	r.POST("/api/admin/reload-models", s.reloadModels)

	r.POST("/api/chat", s.chat)
	r.POST("/api/health-story", s.healthStory)

	scan := r.Group("/api/quick-scan")
	{
		scan.POST("", s.quickScan)
		scan.POST("/think-harder", s.quickScanThinkHarder)
		scan.POST("/think-harder-o4", s.quickScanO4)
		scan.POST("/ultra-think", s.quickScanUltraThink)
		scan.POST("/ask-more", s.quickScanAskMore)
	}

	dive := r.Group("/api/deep-dive")
	{
		dive.POST("/start", s.deepDiveStart)
		dive.POST("/continue", s.deepDiveContinue)
		dive.POST("/complete", s.deepDiveComplete)
		dive.POST("/think-harder", s.deepDiveThinkHarder)
		dive.POST("/ultra-think", s.deepDiveUltraThink)
		dive.POST("/ask-more", s.deepDiveAskMore)
	}
	r.GET("/api/debug/session/:id", s.debugSession)

	ph := r.Group("/api/photo-analysis")
	{
		ph.GET("/health", s.health)
		ph.POST("/sessions", s.photoCreateSession)
		ph.GET("/sessions", s.photoListSessions)
		ph.POST("/upload", s.photoUpload)
		ph.POST("/analyze", s.photoAnalyze)
		ph.GET("/session/:id", s.photoSessionDetail)
		ph.GET("/session/:id/timeline", s.photoTimeline)
		ph.GET("/session/:id/progression-analysis", s.photoProgression)
		ph.GET("/session/:id/analysis-history", s.photoAnalysisHistory)
		ph.POST("/session/:id/follow-up", s.photoFollowUp)
		ph.DELETE("/session/:id", s.photoDeleteSession)
		ph.POST("/reminders/configure", s.photoConfigureReminder)
		ph.POST("/monitoring/suggest", s.photoMonitoringSuggest)
	}

	// Legacy path kept for older photo clients.
	r.POST("/api/reports/photo-analysis", s.generateReport(reports.TypePhotoProgression))

	fu := r.Group("/api/follow-up")
	{
		fu.GET("/questions/:assessment_id", s.followUpQuestions)
		fu.POST("/submit", s.followUpSubmit)
		fu.GET("/chain/:assessment_id", s.followUpChain)
		fu.POST("/medical-visit/explain", s.medicalVisitExplain)
	}

	rep := r.Group("/api/report")
	{
		rep.POST("/analyze", s.reportAnalyze)
		rep.GET("/list/:user_id", s.reportList)
		rep.GET("/:id", s.reportGet)
		rep.GET("/shared/:token", s.reportShared)
		rep.PUT("/:id/doctor-notes", s.reportDoctorNotes)
		rep.POST("/:id/share", s.reportShare)
		rep.POST("/:id/rate", s.reportRate)
		rep.POST("/specialty-triage", s.reportSpecialtyTriage)

		for path, reportType := range map[string]string{
			"/comprehensive":     reports.TypeComprehensive,
			"/urgent-triage":     reports.TypeUrgentTriage,
			"/symptom-timeline":  reports.TypeSymptomTimeline,
			"/photo-progression": reports.TypePhotoProgression,
			"/30-day":            reports.Type30Day,
			"/annual":            reports.TypeAnnual,
			"/annual-summary":    reports.TypeAnnualSummary,
		} {
			rep.POST(path, s.generateReport(reportType))
		}
		rep.POST("/specialist", s.generateSpecialist(""))
		for _, specialty := range reports.Specialties() {
			path := "/" + strings.ReplaceAll(specialty, "_", "-")
			rep.POST(path, s.generateSpecialist(specialty))
		}
	}

	tr := r.Group("/api/tracking")
	{
		tr.POST("/suggest", s.trackingSuggest)
		tr.POST("/configure", s.trackingConfigure)
		tr.POST("/approve/:suggestion_id", s.trackingApprove)
		tr.POST("/data", s.trackingAddData)
		tr.GET("/dashboard", s.trackingDashboard)
		tr.GET("/chart/:config_id", s.trackingChart)
		tr.GET("/configurations", s.trackingConfigurations)
		tr.GET("/data-points/:config_id", s.trackingDataPoints)
		tr.GET("/past-scans", s.trackingPastScans)
		tr.GET("/past-dives", s.trackingPastDives)
	}

	em := r.Group("/api/email")
	{
		em.GET("/health", s.health)
		em.POST("/send-report", s.emailSendReport)
		em.POST("/send-scan", s.emailSendScan)
		em.POST("/webhooks/sendgrid", s.emailWebhook)
	}

	return r
}

// reloadModels re-reads the model-selection table from disk.
func (s *Server) reloadModels(c *gin.Context) {
	if s.deps.Models == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "model registry not configured"})
		return
	}
	if err := s.deps.Models.Reload(); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// health probes the database when one is wired.
func (s *Server) health(c *gin.Context) {
	if s.deps.DB == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.deps.DB)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "degraded",
			"database": dbHealth,
			"error":    "database unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full(), "database": dbHealth})
}
