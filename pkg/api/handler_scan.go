package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type quickScanRequest struct {
	UserID            string         `json:"user_id" binding:"required"`
	BodyParts         []string       `json:"body_parts"`
	FormData          map[string]any `json:"form_data"`
	PartsRelationship string         `json:"parts_relationship,omitempty"`
	Model             string         `json:"model,omitempty"`
}

func (s *Server) quickScan(c *gin.Context) {
	var req quickScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.QuickScans.Scan(c.Request.Context(),
		req.BodyParts, req.FormData, req.UserID, req.PartsRelationship, req.Model)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "success",
		"scan_id":          result.ScanID,
		"analysis":         result.Analysis,
		"confidence_score": result.Confidence,
		"urgency_level":    result.Urgency,
		"model_used":       result.Model,
	})
}

type enhanceRequest struct {
	ScanID string `json:"scan_id" binding:"required"`
	Model  string `json:"model,omitempty"`
}

func (s *Server) quickScanThinkHarder(c *gin.Context) {
	var req enhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	analysis, err := s.deps.QuickScans.ThinkHarder(c.Request.Context(), req.ScanID, req.Model)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "enhanced_analysis": analysis})
}

func (s *Server) quickScanO4(c *gin.Context) {
	var req enhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	analysis, err := s.deps.QuickScans.O4Mini(c.Request.Context(), req.ScanID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "enhanced_analysis": analysis})
}

func (s *Server) quickScanUltraThink(c *gin.Context) {
	var req enhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	analysis, err := s.deps.QuickScans.UltraThink(c.Request.Context(), req.ScanID, req.Model)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "ultra_analysis": analysis})
}

func (s *Server) quickScanAskMore(c *gin.Context) {
	var req enhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	questions, err := s.deps.QuickScans.AskMore(c.Request.Context(), req.ScanID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "questions": questions})
}
