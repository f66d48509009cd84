package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/photo"
)

type photoSessionRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	ConditionName string `json:"condition_name" binding:"required"`
	Description   string `json:"description,omitempty"`
}

func (s *Server) photoCreateSession(c *gin.Context) {
	var req photoSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session, err := s.deps.Photos.CreateSession(c.Request.Context(),
		req.UserID, req.ConditionName, req.Description)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "session": session})
}

func (s *Server) photoListSessions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "error": "user_id is required"})
		return
	}

	sessions, err := s.deps.Store.ListPhotoSessions(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "sessions": sessions, "count": len(sessions)})
}

type photoUploadRequest struct {
	SessionID string              `json:"session_id" binding:"required"`
	UserID    string              `json:"user_id" binding:"required"`
	Photos    []photo.UploadInput `json:"photos" binding:"required"`
}

func (s *Server) photoUpload(c *gin.Context) {
	var req photoUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.Photos.Upload(c.Request.Context(), req.SessionID, req.UserID, req.Photos)
	if err != nil {
		s.fail(c, err)
		return
	}

	body := gin.H{"status": "success", "uploads": result.Uploads, "skipped": result.Skipped}
	if result.RequiresAction != nil {
		body["requires_action"] = result.RequiresAction
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) photoAnalyze(c *gin.Context) {
	var req photo.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	analysis, err := s.deps.Photos.Analyze(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "analysis": analysis})
}

func (s *Server) photoSessionDetail(c *gin.Context) {
	ctx := c.Request.Context()
	session, err := s.deps.Store.GetPhotoSession(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	uploads, err := s.deps.Store.ListPhotoUploads(ctx, session.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	analyses, err := s.deps.Store.ListPhotoAnalyses(ctx, session.ID)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"session":  session,
		"uploads":  uploads,
		"analyses": analyses,
	})
}

// timelineEntry is one dated event in a session's history.
type timelineEntry struct {
	Kind       string    `json:"kind"`
	At         time.Time `json:"at"`
	UploadID   string    `json:"upload_id,omitempty"`
	AnalysisID string    `json:"analysis_id,omitempty"`
	Category   string    `json:"category,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
}

// photoTimeline interleaves uploads and analyses in time order.
func (s *Server) photoTimeline(c *gin.Context) {
	ctx := c.Request.Context()
	session, err := s.deps.Store.GetPhotoSession(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	uploads, err := s.deps.Store.ListPhotoUploads(ctx, session.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	analyses, err := s.deps.Store.ListPhotoAnalyses(ctx, session.ID)
	if err != nil {
		s.fail(c, err)
		return
	}

	entries := make([]timelineEntry, 0, len(uploads)+len(analyses))
	for _, u := range uploads {
		entries = append(entries, timelineEntry{
			Kind:     "upload",
			At:       u.UploadedAt,
			UploadID: u.ID,
			Category: string(u.Category),
		})
	}
	for _, a := range analyses {
		entries = append(entries, timelineEntry{
			Kind:       "analysis",
			At:         a.CreatedAt,
			AnalysisID: a.ID,
			Summary:    a.AnalysisData.GetString("description"),
			Confidence: a.ConfidenceScore,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"session":  session,
		"timeline": entries,
	})
}

func (s *Server) photoProgression(c *gin.Context) {
	progression, err := s.deps.Photos.SessionProgression(c.Request.Context(),
		c.Param("id"), c.Query("metric"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "progression": progression})
}

func (s *Server) photoAnalysisHistory(c *gin.Context) {
	analyses, err := s.deps.Store.ListPhotoAnalyses(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "analyses": analyses, "count": len(analyses)})
}

type photoFollowUpRequest struct {
	PhotoIDs []string `json:"photo_ids" binding:"required"`
	Context  string   `json:"context,omitempty"`
}

// photoFollowUp compares fresh photos against the session's history.
func (s *Server) photoFollowUp(c *gin.Context) {
	var req photoFollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.Photos.CompareWithHistory(c.Request.Context(),
		c.Param("id"), req.PhotoIDs, req.Context)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":              "success",
		"analysis":            result.Analysis,
		"smart_batching_info": result.SelectionInfo,
		"progression":         result.Progression,
		"next_interval_days":  result.NextInterval,
		"priority":            result.Priority,
	})
}

func (s *Server) photoDeleteSession(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "error": "user_id is required"})
		return
	}

	if err := s.deps.Store.SoftDeletePhotoSession(c.Request.Context(), c.Param("id"), userID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "deleted": true})
}

func (s *Server) photoConfigureReminder(c *gin.Context) {
	var req photo.ReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	reminder, err := s.deps.Photos.ConfigureReminder(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "reminder": reminder})
}

type monitoringSuggestRequest struct {
	UserID   string         `json:"user_id" binding:"required"`
	SourceID string         `json:"source_id" binding:"required"`
	Analysis models.JSONMap `json:"analysis" binding:"required"`
}

// photoMonitoringSuggest turns a photo analysis into tracking
// suggestions and returns the user's open suggestion list.
func (s *Server) photoMonitoringSuggest(c *gin.Context) {
	var req monitoringSuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	if err := s.deps.Tracking.SuggestFromAnalysis(ctx, "photo_analysis", req.SourceID, req.UserID, req.Analysis); err != nil {
		s.fail(c, err)
		return
	}
	dashboard, err := s.deps.Tracking.GetDashboard(ctx, req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "suggestions": dashboard.Suggestions})
}
