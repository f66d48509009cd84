package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/proxima-health/oracle/pkg/email"
)

func (s *Server) emailSendReport(c *gin.Context) {
	var req email.SendReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.Emails.SendReport(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"success":    result.Success,
		"message_id": result.MessageID,
		"sent_at":    result.SentAt,
		"message":    result.Message,
	})
}

func (s *Server) emailSendScan(c *gin.Context) {
	var req email.SendScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := s.deps.Emails.SendScan(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"success":    result.Success,
		"message_id": result.MessageID,
		"sent_at":    result.SentAt,
		"message":    result.Message,
	})
}

// sendgridEvent is the provider's webhook row. sg_message_id carries a
// routing suffix after the first dot that is not part of the id we
// store.
type sendgridEvent struct {
	SGMessageID string `json:"sg_message_id"`
	Event       string `json:"event"`
	Email       string `json:"email"`
	Timestamp   int64  `json:"timestamp"`
	Reason      string `json:"reason,omitempty"`
}

// emailWebhook ingests a SendGrid event batch. The provider expects a
// 2xx regardless of how many rows matched queue items.
func (s *Server) emailWebhook(c *gin.Context) {
	var batch []sendgridEvent
	if err := c.ShouldBindJSON(&batch); err != nil {
		badRequest(c, err)
		return
	}

	events := make([]email.WebhookEvent, 0, len(batch))
	for _, e := range batch {
		messageID, _, _ := strings.Cut(e.SGMessageID, ".")
		events = append(events, email.WebhookEvent{
			Event:     e.Event,
			MessageID: messageID,
			Email:     e.Email,
			Timestamp: e.Timestamp,
			Reason:    e.Reason,
		})
	}

	if err := s.deps.Emails.Webhook(c.Request.Context(), events); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "processed": len(events)})
}
