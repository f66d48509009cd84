package store

import (
	"context"
	"fmt"
	"time"

	"github.com/proxima-health/oracle/pkg/models"
)

// GetSubscription loads the user's subscription row, or nil when the
// user has none.
func (s *Store) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.GetContext(ctx, &sub,
		`SELECT user_id, tier, status, period_end FROM subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	return &sub, nil
}

// GetConversation loads one conversation.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.db.GetContext(ctx, &c,
		`SELECT id, user_id, title, metadata, created_at, last_message_at
		 FROM conversations WHERE id = $1`, id)
	if err != nil {
		return nil, wrapGet(err, "conversation")
	}
	return &c, nil
}

// ListMessages returns a conversation's messages ordered oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out []models.Message
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, conversation_id, role, content, token_count, model_used, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return out, nil
}

// InsertMessage appends a message and bumps the conversation's
// last_message_at.
func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, token_count, model_used, created_at)
		 VALUES (:id, :conversation_id, :role, :content, :token_count, :model_used, :created_at)`, m)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = $1 WHERE id = $2`, m.CreatedAt, m.ConversationID)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

// ListUserMessagesInRange returns a user's chat messages across all
// conversations in the time range, oldest first.
func (s *Store) ListUserMessagesInRange(ctx context.Context, userID string, from, to time.Time) ([]models.Message, error) {
	var out []models.Message
	err := s.db.SelectContext(ctx, &out,
		`SELECT m.* FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.user_id = $1 AND m.created_at >= $2 AND m.created_at <= $3
		 ORDER BY m.created_at ASC`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("listing user messages: %w", err)
	}
	return out, nil
}

// UpdateConversationTitle sets the title unless the user pinned it.
func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = $1
		 WHERE id = $2 AND COALESCE((metadata->>'title_locked')::boolean, false) = false`, title, id)
	if err != nil {
		return fmt.Errorf("updating conversation title: %w", err)
	}
	return nil
}

// ListContextSummaries returns all long-term memory rows for a user,
// oldest first.
func (s *Store) ListContextSummaries(ctx context.Context, userID string) ([]models.ContextSummary, error) {
	var out []models.ContextSummary
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, user_id, conversation_id, summary, context_type, token_count, created_at
		 FROM llm_context_summaries WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing context summaries: %w", err)
	}
	return out, nil
}

// InsertContextSummary appends a long-term memory row.
func (s *Store) InsertContextSummary(ctx context.Context, cs *models.ContextSummary) error {
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO llm_context_summaries (id, user_id, conversation_id, summary, context_type, token_count, created_at)
		 VALUES (:id, :user_id, :conversation_id, :summary, :context_type, :token_count, :created_at)`, cs)
	if err != nil {
		return fmt.Errorf("inserting context summary: %w", err)
	}
	return nil
}
