package models

import "time"

// Chat roles as sent to the LLM provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single turn in a provider-shaped conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is a foreign aggregate root created by the chat front-end.
// The core reads it and may update the title.
type Conversation struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Title         string    `db:"title" json:"title"`
	Metadata      JSONMap   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
}

// TitleLocked reports whether the user pinned the conversation title.
func (c *Conversation) TitleLocked() bool {
	locked, _ := c.Metadata["title_locked"].(bool)
	return locked
}

// Message is one turn of a stored conversation, ordered by CreatedAt.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	TokenCount     int       `db:"token_count" json:"token_count"`
	ModelUsed      *string   `db:"model_used" json:"model_used,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Context summary types.
const (
	ContextTypeConversation = "conversation_summary"
	ContextTypeQuickScan    = "quick_scan_summary"
	ContextTypeDeepDive     = "deep_dive_summary"
)

// ContextSummary is an append-only long-term memory row, aggregated on read.
type ContextSummary struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	ConversationID *string   `db:"conversation_id" json:"conversation_id,omitempty"`
	Summary        string    `db:"summary" json:"summary"`
	ContextType    string    `db:"context_type" json:"context_type"`
	TokenCount     int       `db:"token_count" json:"token_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
