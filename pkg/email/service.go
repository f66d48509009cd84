// Package email implements the idempotent outbound email queue, its
// background sender, and provider webhook reconciliation.
package email

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/store"
)

// Email types.
const (
	TypeReport = "medical_report"
	TypeScan   = "scan_results"
)

// Attachment limits and send retry policy.
const (
	maxAttachmentBytes = 10 << 20
	maxSendAttempts    = 3
	sendRetryDelay     = 2 * time.Second
	sendRetryMaxDelay  = 10 * time.Second
)

// Sentinel errors surfaced to the API layer.
var (
	ErrNotOwner           = errors.New("assessment does not belong to the requesting user")
	ErrNoRecipient        = errors.New("a recipient address is required")
	ErrAttachmentTooLarge = errors.New("attachment exceeds the 10 MB limit")
)

// Store is the persistence the service needs.
type Store interface {
	InsertEmail(ctx context.Context, e *models.EmailQueueItem) error
	GetEmail(ctx context.Context, id string) (*models.EmailQueueItem, error)
	GetEmailByIdempotencyKey(ctx context.Context, key string) (*models.EmailQueueItem, error)
	GetEmailByProviderMessageID(ctx context.Context, messageID string) (*models.EmailQueueItem, error)
	ClaimEmails(ctx context.Context, limit int, now time.Time) ([]models.EmailQueueItem, error)
	MarkEmailSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error
	MarkEmailFailed(ctx context.Context, id, errMsg string, retryCount int, nextRetry *time.Time) error
	UpdateEmailStatus(ctx context.Context, id string, status models.EmailStatus) error
	InsertEmailEvent(ctx context.Context, e *models.EmailEvent) error

	GetQuickScan(ctx context.Context, id string) (*models.QuickScan, error)
}

// Service runs the queue.
type Service struct {
	store  Store
	sender Sender

	sendDelay time.Duration
	now       func() time.Time
	newID     func() string
}

// NewService wires the service.
func NewService(st Store, sender Sender) *Service {
	return &Service{
		store:     st,
		sender:    sender,
		sendDelay: sendRetryDelay,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// SendReportRequest asks for a report email, usually with a PDF
// attachment. AttachmentContent is base64.
type SendReportRequest struct {
	UserID             string      `json:"user_id"`
	ScanID             string      `json:"scan_id"`
	Recipient          string      `json:"recipient"`
	CC                 []string    `json:"cc,omitempty"`
	Subject            string      `json:"subject,omitempty"`
	AttachmentContent  string      `json:"attachment_content,omitempty"`
	AttachmentFilename string      `json:"attachment_filename,omitempty"`
	AttachmentType     string      `json:"attachment_type,omitempty"`
	TemplateData       models.JSONMap `json:"template_data,omitempty"`
}

// SendResult reports the outcome of a send or enqueue.
type SendResult struct {
	Success   bool       `json:"success"`
	MessageID string     `json:"message_id"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// idempotencyKey collapses repeat requests within the same hour bucket.
func idempotencyKey(userID, emailType, recipient, sourceID string, at time.Time) string {
	bucket := at.UTC().Format("2006-01-02-15")
	sum := md5.Sum([]byte(userID + ":" + emailType + ":" + recipient + ":" + sourceID + ":" + bucket))
	return fmt.Sprintf("%x", sum)
}

// SendReport enqueues a report email for background delivery. Repeat
// requests in the same hour return the existing item instead of sending
// twice.
func (s *Service) SendReport(ctx context.Context, req SendReportRequest) (*SendResult, error) {
	if req.Recipient == "" {
		return nil, ErrNoRecipient
	}

	scan, err := s.store.GetQuickScan(ctx, req.ScanID)
	if err != nil {
		return nil, err
	}
	if scan.UserID == nil || *scan.UserID != req.UserID {
		return nil, ErrNotOwner
	}

	item := &models.EmailQueueItem{
		ID:             s.newID(),
		UserID:         req.UserID,
		Recipient:      req.Recipient,
		CC:             req.CC,
		EmailType:      TypeReport,
		Subject:        defaultString(req.Subject, "Your health report"),
		Template:       TypeReport,
		TemplateData:   req.TemplateData,
		IdempotencyKey: idempotencyKey(req.UserID, TypeReport, req.Recipient, req.ScanID, s.now()),
		Status:         models.EmailQueued,
		CreatedAt:      s.now().UTC(),
	}

	if req.AttachmentContent != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.AttachmentContent)
		if err != nil {
			return nil, fmt.Errorf("decoding attachment: %w", err)
		}
		if len(decoded) > maxAttachmentBytes {
			return nil, ErrAttachmentTooLarge
		}
		item.AttachmentContent = &req.AttachmentContent
		item.AttachmentMetadata = models.JSONMap{
			"filename":     defaultString(req.AttachmentFilename, "report.pdf"),
			"content_type": defaultString(req.AttachmentType, "application/pdf"),
			"size_bytes":   len(decoded),
		}
	}

	if err := s.store.InsertEmail(ctx, item); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return s.existingResult(ctx, item.IdempotencyKey)
		}
		return nil, err
	}
	s.emitEvent(ctx, item, models.EmailEventRequested, models.JSONMap{"email_type": item.EmailType})

	return &SendResult{Success: true, MessageID: item.ID, Message: "Email queued for delivery"}, nil
}

// SendScanRequest asks for a scan-results email, sent synchronously.
type SendScanRequest struct {
	UserID       string         `json:"user_id"`
	ScanID       string         `json:"scan_id"`
	Recipient    string         `json:"recipient"`
	TemplateData models.JSONMap `json:"template_data,omitempty"`
}

// SendScan sends scan results directly, with retry, no attachment.
func (s *Service) SendScan(ctx context.Context, req SendScanRequest) (*SendResult, error) {
	if req.Recipient == "" {
		return nil, ErrNoRecipient
	}

	item := &models.EmailQueueItem{
		ID:             s.newID(),
		UserID:         req.UserID,
		Recipient:      req.Recipient,
		EmailType:      TypeScan,
		Subject:        "Your scan results",
		Template:       TypeScan,
		TemplateData:   req.TemplateData,
		IdempotencyKey: idempotencyKey(req.UserID, TypeScan, req.Recipient, req.ScanID, s.now()),
		Status:         models.EmailQueued,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertEmail(ctx, item); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return s.existingResult(ctx, item.IdempotencyKey)
		}
		return nil, err
	}
	s.emitEvent(ctx, item, models.EmailEventRequested, models.JSONMap{"email_type": item.EmailType})

	if err := s.deliver(ctx, item); err != nil {
		return &SendResult{MessageID: item.ID, Message: "Send failed, queued for retry"}, nil
	}
	sentAt := s.now().UTC()
	return &SendResult{Success: true, MessageID: item.ID, SentAt: &sentAt}, nil
}

// existingResult reports the prior item holding the idempotency key.
func (s *Service) existingResult(ctx context.Context, key string) (*SendResult, error) {
	existing, err := s.store.GetEmailByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	res := &SendResult{Success: true, MessageID: existing.ID, SentAt: existing.SentAt}
	switch existing.Status {
	case models.EmailSent, models.EmailDelivered:
		res.Message = "Email already sent"
	default:
		res.Message = "Email already queued"
	}
	return res, nil
}

// ProcessQueueItem delivers one claimed item. Exposed for the worker
// and for manual replays.
func (s *Service) ProcessQueueItem(ctx context.Context, queueID string) error {
	item, err := s.store.GetEmail(ctx, queueID)
	if err != nil {
		return err
	}
	return s.deliver(ctx, item)
}

// ProcessDue claims up to limit sendable items and delivers them.
// Returns how many were claimed.
func (s *Service) ProcessDue(ctx context.Context, limit int) (int, error) {
	claimed, err := s.store.ClaimEmails(ctx, limit, s.now().UTC())
	if err != nil {
		return 0, err
	}
	for i := range claimed {
		if err := s.deliver(ctx, &claimed[i]); err != nil {
			slog.Warn("Email delivery failed", "email_id", claimed[i].ID, "error", err)
		}
	}
	return len(claimed), nil
}

// deliver builds and sends one item, then records the outcome. A failed
// send soft-fails the item: retry_count increments and the item becomes
// claimable again at now + 5 x retry_count minutes, up to 3 attempts.
func (s *Service) deliver(ctx context.Context, item *models.EmailQueueItem) error {
	providerID := s.newID()
	msg, err := s.buildMessage(item, providerID)
	if err != nil {
		return s.recordFailure(ctx, item, err)
	}

	err = retry.Do(
		func() error { return s.sender.Send(ctx, msg) },
		retry.Context(ctx),
		retry.Attempts(maxSendAttempts),
		retry.Delay(s.sendDelay),
		retry.MaxDelay(sendRetryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return s.recordFailure(ctx, item, err)
	}

	sentAt := s.now().UTC()
	if err := s.store.MarkEmailSent(ctx, item.ID, providerID, sentAt); err != nil {
		return err
	}
	s.emitEvent(ctx, item, models.EmailEventSent, models.JSONMap{"provider_message_id": providerID})
	return nil
}

func (s *Service) recordFailure(ctx context.Context, item *models.EmailQueueItem, cause error) error {
	retryCount := item.RetryCount + 1
	var nextRetry *time.Time
	if retryCount < maxSendAttempts {
		t := s.now().UTC().Add(time.Duration(5*retryCount) * time.Minute)
		nextRetry = &t
	}
	if err := s.store.MarkEmailFailed(ctx, item.ID, cause.Error(), retryCount, nextRetry); err != nil {
		return err
	}
	s.emitEvent(ctx, item, models.EmailEventFailed, models.JSONMap{
		"error":       cause.Error(),
		"retry_count": retryCount,
		"permanent":   nextRetry == nil,
	})
	return cause
}

func (s *Service) buildMessage(item *models.EmailQueueItem, providerID string) (*OutboundMessage, error) {
	html, err := renderTemplate(item.Template, item.TemplateData)
	if err != nil {
		return nil, fmt.Errorf("rendering email body: %w", err)
	}
	msg := &OutboundMessage{
		MessageID: providerID,
		To:        item.Recipient,
		CC:        item.CC,
		Subject:   item.Subject,
		HTML:      html,
	}
	if item.AttachmentContent != nil {
		msg.Attachment = &Attachment{
			Content:     *item.AttachmentContent,
			Filename:    defaultString(item.AttachmentMetadata.GetString("filename"), "report.pdf"),
			ContentType: defaultString(item.AttachmentMetadata.GetString("content_type"), "application/pdf"),
		}
	}
	return msg, nil
}

// WebhookEvent is one provider delivery event.
type WebhookEvent struct {
	Event     string `json:"event"`
	MessageID string `json:"message_id"`
	Email     string `json:"email"`
	Timestamp int64  `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

// providerStatusMap translates provider event names to queue states.
// Unlisted events (opens, clicks) are recorded but change nothing.
var providerStatusMap = map[string]models.EmailStatus{
	"delivered": models.EmailDelivered,
	"bounce":    models.EmailBounced,
	"dropped":   models.EmailFailed,
	"deferred":  models.EmailFailed,
}

// Webhook reconciles provider delivery events against the queue. Every
// event is recorded; only mapped ones transition the item.
func (s *Service) Webhook(ctx context.Context, events []WebhookEvent) error {
	for _, evt := range events {
		item, err := s.store.GetEmailByProviderMessageID(ctx, evt.MessageID)
		if err != nil {
			slog.Warn("Webhook event for unknown message", "message_id", evt.MessageID, "event", evt.Event)
			continue
		}

		s.emitEvent(ctx, item, models.EmailEventWebhookReceived, models.JSONMap{
			"event":     evt.Event,
			"email":     evt.Email,
			"reason":    evt.Reason,
			"timestamp": evt.Timestamp,
		})

		status, ok := providerStatusMap[evt.Event]
		if !ok {
			continue
		}
		if err := s.store.UpdateEmailStatus(ctx, item.ID, status); err != nil {
			// Terminal items match no rows in the guarded update.
			// Providers re-deliver batches; a failure here would
			// make them retry forever.
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

// emitEvent appends to the audit trail. Best-effort: a failed audit
// write never fails the operation it describes.
func (s *Service) emitEvent(ctx context.Context, item *models.EmailQueueItem, eventType string, data models.JSONMap) {
	err := s.store.InsertEmailEvent(ctx, &models.EmailEvent{
		AggregateID: item.ID,
		UserID:      item.UserID,
		EventType:   eventType,
		EventData:   data,
		Timestamp:   s.now().UTC(),
	})
	if err != nil {
		slog.Warn("Email audit write failed", "email_id", item.ID, "event_type", eventType, "error", err)
	}
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
