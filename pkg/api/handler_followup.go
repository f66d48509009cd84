package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proxima-health/oracle/pkg/followup"
)

func (s *Server) followUpQuestions(c *gin.Context) {
	assessmentType := c.DefaultQuery("assessment_type", "quick_scan")
	userID := c.Query("user_id")

	questions, err := s.deps.FollowUps.Questions(c.Request.Context(),
		c.Param("assessment_id"), assessmentType, userID)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":              "success",
		"chain_id":            questions.ChainID,
		"follow_up_number":    questions.FollowUpNumber,
		"days_since_original": questions.DaysSinceOriginal,
		"days_since_last":     questions.DaysSinceLast,
		"base_questions":      questions.BaseQuestions,
		"ai_questions":        questions.AIQuestions,
	})
}

func (s *Server) followUpSubmit(c *gin.Context) {
	var req followup.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.FollowUps.Submit(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "success",
		"follow_up_id":      result.FollowUpID,
		"chain_id":          result.ChainID,
		"follow_up_number":  result.FollowUpNumber,
		"analysis":          result.Analysis,
		"confidence_change": result.ConfidenceChange,
	})
}

func (s *Server) followUpChain(c *gin.Context) {
	assessmentType := c.DefaultQuery("assessment_type", "quick_scan")

	chain, err := s.deps.FollowUps.Chain(c.Request.Context(),
		assessmentType, c.Param("assessment_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "chain": chain, "count": len(chain)})
}

type explainVisitRequest struct {
	UserID string `json:"user_id,omitempty"`
	Text   string `json:"text" binding:"required"`
}

// medicalVisitExplain rewrites a clinician note in plain language.
func (s *Server) medicalVisitExplain(c *gin.Context) {
	var req explainVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	explained := s.deps.FollowUps.ExplainVisit(c.Request.Context(), req.Text, req.UserID)
	c.JSON(http.StatusOK, gin.H{"status": "success", "explanation": explained})
}
