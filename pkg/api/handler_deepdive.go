package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type deepDiveStartRequest struct {
	UserID    string         `json:"user_id" binding:"required"`
	BodyParts []string       `json:"body_parts"`
	FormData  map[string]any `json:"form_data"`
	Model     string         `json:"model,omitempty"`
}

func (s *Server) deepDiveStart(c *gin.Context) {
	var req deepDiveStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.DeepDives.Start(c.Request.Context(),
		req.BodyParts, req.FormData, req.UserID, req.Model)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "success",
		"session_id":      result.SessionID,
		"question":        result.Question,
		"question_number": result.QuestionNumber,
	})
}

type deepDiveContinueRequest struct {
	SessionID      string `json:"session_id" binding:"required"`
	Answer         string `json:"answer"`
	QuestionNumber int    `json:"question_number"`
	FallbackModel  string `json:"fallback_model,omitempty"`
}

func (s *Server) deepDiveContinue(c *gin.Context) {
	var req deepDiveContinueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.DeepDives.Continue(c.Request.Context(),
		req.SessionID, req.Answer, req.QuestionNumber, req.FallbackModel)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":               "success",
		"question":             result.Question,
		"question_number":      result.QuestionNumber,
		"is_final_question":    result.IsFinalQuestion,
		"current_confidence":   result.CurrentConfidence,
		"confidence_threshold": result.ConfidenceThreshold,
		"questions_remaining":  result.QuestionsRemaining,
		"ready_for_analysis":   result.ReadyForAnalysis,
		"questions_completed":  result.QuestionsCompleted,
	})
}

type deepDiveCompleteRequest struct {
	SessionID     string `json:"session_id" binding:"required"`
	FinalAnswer   string `json:"final_answer,omitempty"`
	FallbackModel string `json:"fallback_model,omitempty"`
}

func (s *Server) deepDiveComplete(c *gin.Context) {
	var req deepDiveCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	analysis, err := s.deps.DeepDives.Complete(c.Request.Context(),
		req.SessionID, req.FinalAnswer, req.FallbackModel)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "analysis": analysis})
}

type deepDiveEnhanceRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Model     string `json:"model,omitempty"`
}

func (s *Server) deepDiveThinkHarder(c *gin.Context) {
	var req deepDiveEnhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	analysis, err := s.deps.DeepDives.ThinkHarder(c.Request.Context(), req.SessionID, req.Model)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "enhanced_analysis": analysis})
}

func (s *Server) deepDiveUltraThink(c *gin.Context) {
	var req deepDiveEnhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	analysis, err := s.deps.DeepDives.UltraThink(c.Request.Context(), req.SessionID, req.Model)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "ultra_analysis": analysis})
}

type deepDiveAskMoreRequest struct {
	SessionID         string  `json:"session_id" binding:"required"`
	CurrentConfidence float64 `json:"current_confidence"`
	TargetConfidence  float64 `json:"target_confidence"`
	MaxQuestions      int     `json:"max_questions"`
}

func (s *Server) deepDiveAskMore(c *gin.Context) {
	var req deepDiveAskMoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.DeepDives.AskMore(c.Request.Context(),
		req.SessionID, req.CurrentConfidence, req.TargetConfidence, req.MaxQuestions)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":              "success",
		"question":            result.Question,
		"question_number":     result.QuestionNumber,
		"current_confidence":  result.CurrentConfidence,
		"target_confidence":   result.TargetConfidence,
		"confidence_gap":      result.ConfidenceGap,
		"estimated_remaining": result.EstimatedRemaining,
		"questions_remaining": result.QuestionsRemaining,
	})
}

// debugSession dumps a deep-dive session's full state for support use.
func (s *Server) debugSession(c *gin.Context) {
	session, err := s.deps.Store.GetDeepDive(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"session": session,
		"counts": gin.H{
			"questions":            len(session.Questions),
			"additional_questions": len(session.AdditionalQuestions),
			"current_step":         session.CurrentStep,
		},
	})
}
