package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
)

type chatRequest struct {
	Query          string `json:"query" binding:"required"`
	UserID         string `json:"user_id" binding:"required"`
	ConversationID string `json:"conversation_id,omitempty"`
	ReasoningMode  bool   `json:"reasoning_mode,omitempty"`
}

// chat runs one conversation turn. History is read-only here: the
// front-end owns message persistence, so nothing is appended on this
// path and a blocked free-tier turn leaves the conversation untouched.
func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	tier := s.deps.Tiers.Resolve(ctx, req.UserID)

	var history []models.Message
	var conv *models.Conversation
	if req.ConversationID != "" {
		var err error
		conv, err = s.deps.Store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			s.fail(c, err)
			return
		}
		history, err = s.deps.Store.ListMessages(ctx, req.ConversationID)
		if err != nil {
			s.fail(c, err)
			return
		}
	}

	status := s.deps.Contexts.StatusFor(history, tier.IsPremium())
	if !status.CanContinue {
		c.JSON(http.StatusOK, gin.H{
			"status":         "blocked",
			"can_continue":   false,
			"context_status": status,
			"user_tier":      string(tier),
		})
		return
	}

	if status.NeedsCompression {
		if tier.IsPremium() {
			history = s.deps.Contexts.CompressMedical(ctx, history)
		} else {
			history = s.deps.Contexts.FreeTierContext(ctx, history)
		}
	}

	messages := make([]models.ChatMessage, 0, len(history)+2)
	if aggregate := s.deps.Contexts.AggregateUserContext(ctx, req.UserID, req.Query); aggregate != "" {
		messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: aggregate})
	}
	for _, m := range history {
		messages = append(messages, models.ChatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: req.Query})

	result, err := s.deps.Caller.CallWithFallback(ctx, messages, llm.CallOptions{
		UserID:        req.UserID,
		Endpoint:      llm.EndpointChat,
		ReasoningMode: req.ReasoningMode,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	s.maintainTitle(c, conv, history, req.Query)

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"response":       result.Content,
		"model_used":     result.Model,
		"context_status": status,
		"user_tier":      string(tier),
	})
}

// maintainTitle refreshes a young conversation's title. Best-effort;
// locked titles are never touched.
func (s *Server) maintainTitle(c *gin.Context, conv *models.Conversation, history []models.Message, query string) {
	if conv == nil || conv.TitleLocked() || len(history) > 6 {
		return
	}
	ctx := c.Request.Context()
	turns := append(append([]models.Message{}, history...), models.Message{Role: models.RoleUser, Content: query})
	title := s.deps.Contexts.GenerateTitle(ctx, turns)
	if title == "" {
		return
	}
	if err := s.deps.Store.UpdateConversationTitle(ctx, conv.ID, title); err != nil {
		slog.Warn("Conversation title update failed", "conversation_id", conv.ID, "error", err)
	}
}

type healthStoryRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Focus  string `json:"focus,omitempty"`
}

// healthStory writes a plain-language narrative of the user's recorded
// health history.
func (s *Server) healthStory(c *gin.Context) {
	var req healthStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	aggregate := s.deps.Contexts.AggregateUserContext(ctx, req.UserID, req.Focus)
	prompt := "Write the patient's health story: a plain-language narrative of their " +
		"recorded health history, in chronological order, addressed to the patient."
	if req.Focus != "" {
		prompt += " Focus on: " + req.Focus + "."
	}
	if aggregate != "" {
		prompt += "\n\n" + aggregate
	} else {
		prompt += "\n\nNo prior health records exist for this patient; say so briefly."
	}

	result, err := s.deps.Caller.CallWithFallback(ctx,
		[]models.ChatMessage{{Role: models.RoleUser, Content: prompt}},
		llm.CallOptions{UserID: req.UserID, Endpoint: llm.EndpointHealthAnalysis})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"story":      result.Content,
		"model_used": result.Model,
	})
}
