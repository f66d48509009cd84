package models

import "time"

// EmailStatus is the queue item lifecycle.
type EmailStatus string

// Queue item states. queued → sending → sent → (delivered|bounced|failed).
// A soft-failed item returns to "failed" with NextRetryAt set.
const (
	EmailQueued    EmailStatus = "queued"
	EmailSending   EmailStatus = "sending"
	EmailSent      EmailStatus = "sent"
	EmailDelivered EmailStatus = "delivered"
	EmailBounced   EmailStatus = "bounced"
	EmailFailed    EmailStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s EmailStatus) Terminal() bool {
	return s == EmailDelivered || s == EmailBounced
}

// EmailQueueItem is the aggregate root of one outbound email.
type EmailQueueItem struct {
	ID                 string      `db:"id" json:"id"`
	UserID             string      `db:"user_id" json:"user_id"`
	Recipient          string      `db:"recipient" json:"recipient"`
	CC                 StringSlice `db:"cc" json:"cc,omitempty"`
	EmailType          string      `db:"email_type" json:"email_type"`
	Subject            string      `db:"subject" json:"subject"`
	Template           string      `db:"template" json:"template"`
	TemplateData       JSONMap     `db:"template_data" json:"template_data,omitempty"`
	AttachmentMetadata JSONMap     `db:"attachment_metadata" json:"attachment_metadata,omitempty"`
	AttachmentContent  *string     `db:"attachment_content" json:"-"`
	IdempotencyKey     string      `db:"idempotency_key" json:"idempotency_key"`
	Status             EmailStatus `db:"status" json:"status"`
	RetryCount         int         `db:"retry_count" json:"retry_count"`
	NextRetryAt        *time.Time  `db:"next_retry_at" json:"next_retry_at,omitempty"`
	ProviderMessageID  *string     `db:"provider_message_id" json:"provider_message_id,omitempty"`
	ErrorMessage       *string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	SentAt             *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
}

// Email audit event types.
const (
	EmailEventRequested       = "email_requested"
	EmailEventSent            = "email_sent"
	EmailEventFailed          = "email_failed"
	EmailEventWebhookReceived = "webhook_received"
)

// EmailEvent is an append-only audit row keyed to a queue item.
type EmailEvent struct {
	ID          int64     `db:"id" json:"id"`
	AggregateID string    `db:"aggregate_id" json:"aggregate_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	EventType   string    `db:"event_type" json:"event_type"`
	EventData   JSONMap   `db:"event_data" json:"event_data,omitempty"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
}
