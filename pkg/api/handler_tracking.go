package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proxima-health/oracle/pkg/tracking"
)

type trackingSuggestRequest struct {
	UserID     string `json:"user_id" binding:"required"`
	SourceType string `json:"source_type" binding:"required"`
	SourceID   string `json:"source_id" binding:"required"`
}

func (s *Server) trackingSuggest(c *gin.Context) {
	var req trackingSuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	suggestions, err := s.deps.Tracking.Suggest(c.Request.Context(),
		req.SourceType, req.SourceID, req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "suggestions": suggestions})
}

func (s *Server) trackingConfigure(c *gin.Context) {
	var req tracking.ConfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	config, err := s.deps.Tracking.Configure(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "configuration": config})
}

func (s *Server) trackingApprove(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			userID = body.UserID
		}
	}

	config, err := s.deps.Tracking.ApproveSuggestion(c.Request.Context(),
		c.Param("suggestion_id"), userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "configuration": config})
}

type dataPointRequest struct {
	UserID          string     `json:"user_id" binding:"required"`
	ConfigurationID string     `json:"configuration_id" binding:"required"`
	Value           *float64   `json:"value" binding:"required"`
	Notes           string     `json:"notes,omitempty"`
	RecordedAt      *time.Time `json:"recorded_at,omitempty"`
}

func (s *Server) trackingAddData(c *gin.Context) {
	var req dataPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	point, err := s.deps.Tracking.AddDataPoint(c.Request.Context(),
		req.ConfigurationID, req.UserID, *req.Value, req.Notes, req.RecordedAt)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data_point": point})
}

func (s *Server) trackingDashboard(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "error": "user_id is required"})
		return
	}

	dashboard, err := s.deps.Tracking.GetDashboard(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"configurations": dashboard.Configurations,
		"suggestions":    dashboard.Suggestions,
	})
}

func (s *Server) trackingChart(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	chart, err := s.deps.Tracking.GetChart(c.Request.Context(),
		c.Param("config_id"), c.Query("user_id"), days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "chart": chart})
}

func (s *Server) trackingConfigurations(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "error": "user_id is required"})
		return
	}

	configs, err := s.deps.Store.ListTrackingConfigurations(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "configurations": configs, "count": len(configs)})
}

func (s *Server) trackingDataPoints(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	points, err := s.deps.Store.ListTrackingDataPoints(c.Request.Context(), c.Param("config_id"), since)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data_points": points, "count": len(points)})
}

func (s *Server) trackingPastScans(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "error": "user_id is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	scans, err := s.deps.Store.ListRecentQuickScans(c.Request.Context(), userID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "scans": scans, "count": len(scans)})
}

func (s *Server) trackingPastDives(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"status": "error", "error": "user_id is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	dives, err := s.deps.Store.ListRecentDeepDives(c.Request.Context(), userID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "sessions": dives, "count": len(dives)})
}
