package store

import (
	"context"
	"fmt"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// InsertEmail enqueues an outbound email. A second insert with the same
// idempotency key returns ErrDuplicate and leaves the original intact.
func (s *Store) InsertEmail(ctx context.Context, e *models.EmailQueueItem) error {
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO email_queue
		   (id, user_id, recipient, cc, email_type, subject, template, template_data,
		    attachment_metadata, attachment_content, idempotency_key, status, retry_count, created_at)
		 VALUES
		   (:id, :user_id, :recipient, :cc, :email_type, :subject, :template, :template_data,
		    :attachment_metadata, :attachment_content, :idempotency_key, :status, :retry_count, :created_at)
		 ON CONFLICT (idempotency_key) DO NOTHING`, e)
	if err != nil {
		return fmt.Errorf("enqueueing email: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("email %s: %w", e.IdempotencyKey, ErrDuplicate)
	}
	return nil
}

// GetEmail loads one queue item.
func (s *Store) GetEmail(ctx context.Context, id string) (*models.EmailQueueItem, error) {
	var e models.EmailQueueItem
	err := s.db.GetContext(ctx, &e, `SELECT * FROM email_queue WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet(err, "email")
	}
	return &e, nil
}

// GetEmailByIdempotencyKey loads the item holding the given key.
func (s *Store) GetEmailByIdempotencyKey(ctx context.Context, key string) (*models.EmailQueueItem, error) {
	var e models.EmailQueueItem
	err := s.db.GetContext(ctx, &e, `SELECT * FROM email_queue WHERE idempotency_key = $1`, key)
	if err != nil {
		return nil, wrapGet(err, "email")
	}
	return &e, nil
}

// GetEmailByProviderMessageID resolves a provider webhook back to the
// queue item it concerns.
func (s *Store) GetEmailByProviderMessageID(ctx context.Context, messageID string) (*models.EmailQueueItem, error) {
	var e models.EmailQueueItem
	err := s.db.GetContext(ctx, &e, `SELECT * FROM email_queue WHERE provider_message_id = $1`, messageID)
	if err != nil {
		return nil, wrapGet(err, "email")
	}
	return &e, nil
}

// ClaimEmails atomically moves up to limit sendable items to "sending"
// and returns them. Sendable means queued, or failed with a due retry.
// FOR UPDATE SKIP LOCKED keeps concurrent workers from double-claiming.
func (s *Store) ClaimEmails(ctx context.Context, limit int, now time.Time) ([]models.EmailQueueItem, error) {
	var out []models.EmailQueueItem
	err := s.db.SelectContext(ctx, &out,
		`UPDATE email_queue SET status = 'sending'
		 WHERE id IN (
		   SELECT id FROM email_queue
		   WHERE status = 'queued'
		      OR (status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= $2)
		   ORDER BY created_at ASC
		   LIMIT $1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING *`, limit, now)
	if err != nil {
		return nil, fmt.Errorf("claiming emails: %w", err)
	}
	return out, nil
}

// MarkEmailSent records a successful provider accept.
func (s *Store) MarkEmailSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	return s.exec(ctx, "marking email sent",
		`UPDATE email_queue
		 SET status = 'sent', provider_message_id = $1, sent_at = $2, error_message = NULL, next_retry_at = NULL
		 WHERE id = $3`, providerMessageID, sentAt, id)
}

// MarkEmailFailed records a send failure. When nextRetry is non-nil the
// item stays eligible for re-claim at that time.
func (s *Store) MarkEmailFailed(ctx context.Context, id, errMsg string, retryCount int, nextRetry *time.Time) error {
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	return s.exec(ctx, "marking email failed",
		`UPDATE email_queue
		 SET status = 'failed', error_message = $1, retry_count = $2, next_retry_at = $3
		 WHERE id = $4`, errMsg, retryCount, nextRetry, id)
}

// UpdateEmailStatus applies a webhook-driven transition. Terminal states
// are never overwritten.
func (s *Store) UpdateEmailStatus(ctx context.Context, id string, status models.EmailStatus) error {
	return s.exec(ctx, "updating email status",
		`UPDATE email_queue SET status = $1
		 WHERE id = $2 AND status NOT IN ('delivered', 'bounced')`, status, id)
}

// InsertEmailEvent appends an audit event.
func (s *Store) InsertEmailEvent(ctx context.Context, e *models.EmailEvent) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO email_events (aggregate_id, user_id, event_type, event_data, timestamp)
		 VALUES (:aggregate_id, :user_id, :event_type, :event_data, :timestamp)`, e)
	if err != nil {
		return fmt.Errorf("inserting email event: %w", err)
	}
	return nil
}

// ListEmailEvents returns an item's audit trail oldest first.
func (s *Store) ListEmailEvents(ctx context.Context, aggregateID string) ([]models.EmailEvent, error) {
	var out []models.EmailEvent
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM email_events WHERE aggregate_id = $1 ORDER BY timestamp ASC, id ASC`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("listing email events: %w", err)
	}
	return out, nil
}
