// Package contextmgr enforces per-tier context budgets and performs
// salience-aware compression of long medical conversations.
package contextmgr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/proxima-health/oracle/pkg/llm"
	"github.com/proxima-health/oracle/pkg/models"
	"github.com/proxima-health/oracle/pkg/tokens"
)

// Token limits by tier. Free users are hard-blocked at the hard limit;
// premium users only ever receive advisories.
const (
	FreeSoftLimit          = 30_000
	FreeHardLimit          = 100_000
	PremiumSoftLimit       = 120_000
	PremiumAggressiveLimit = 200_000

	// AggregateThreshold is the token budget above which stored context
	// summaries are re-summarized before prompt injection.
	AggregateThreshold = 25_000

	compressionKeepHead = 3
	compressionKeepTail = 10
	freeTierMaxMessages = 15
	titleSourceMessages = 6
	maxTitleLength      = 100
)

// Salience keyword sets. Matching is case-insensitive substring.
var (
	urgentTerms = []string{
		"emergency", "urgent", "severe", "critical", "immediate", "hospital",
		"er", "911", "chest pain", "difficulty breathing", "stroke",
		"heart attack", "bleeding", "unconscious", "seizure",
	}
	medicationTerms = []string{
		"medication", "medicine", "drug", "prescription", "dosage", "mg",
		"ml", "daily", "twice", "allergic", "allergy", "side effect",
		"interaction",
	}
	recommendationTerms = []string{
		"recommend", "suggest", "should", "consider", "diagnosis",
		"assessment", "likely", "appears to be", "treatment", "next steps",
		"follow up",
	}
)

// Caller is the LLM dependency used for summarization.
type Caller interface {
	CallWithFallback(ctx context.Context, messages []models.ChatMessage, opts llm.CallOptions) (*llm.CallResult, error)
}

// SummaryReader loads a user's long-term context summaries.
type SummaryReader interface {
	ListContextSummaries(ctx context.Context, userID string) ([]models.ContextSummary, error)
}

// Status is the budget report for a conversation.
type Status struct {
	Tokens           int    `json:"tokens"`
	Limit            int    `json:"limit"`
	NeedsCompression bool   `json:"needs_compression"`
	CanContinue      bool   `json:"can_continue"`
	Notice           string `json:"notice,omitempty"`
	UpgradePrompt    string `json:"upgrade_prompt,omitempty"`
}

// Manager owns context budgeting and compression.
type Manager struct {
	caller    Caller
	summaries SummaryReader
	counter   *tokens.Counter
}

// NewManager wires a Manager. summaries may be nil when aggregate
// context is not needed (anonymous flows).
func NewManager(caller Caller, summaries SummaryReader, counter *tokens.Counter) *Manager {
	return &Manager{caller: caller, summaries: summaries, counter: counter}
}

// StatusFor reports the conversation's token budget. Only free-tier
// conversations at or above the hard limit are blocked.
func (m *Manager) StatusFor(messages []models.Message, isPremium bool) Status {
	total := m.totalTokens(messages)

	if isPremium {
		s := Status{Tokens: total, Limit: PremiumSoftLimit, CanContinue: true}
		if total >= PremiumAggressiveLimit {
			s.NeedsCompression = true
			s.Notice = "This conversation is very long; aggressive compression will be applied to keep responses sharp."
		} else if total >= PremiumSoftLimit {
			s.NeedsCompression = true
			s.Notice = "This conversation is getting long and will be compressed to preserve medical details."
		}
		return s
	}

	s := Status{Tokens: total, Limit: FreeHardLimit, CanContinue: total < FreeHardLimit}
	if total >= FreeHardLimit {
		s.NeedsCompression = true
		s.UpgradePrompt = "This conversation has reached the free plan limit. Upgrade to continue with full medical memory."
	} else if total >= FreeSoftLimit {
		s.NeedsCompression = true
		s.Notice = "This conversation is getting long. Older messages will be summarized."
		s.UpgradePrompt = "Upgrade for a much larger medical memory."
	}
	return s
}

// CompressMedical applies premium compression: keep the opening
// complaint and the recent tail verbatim, keep salient middle messages
// (urgent terms, medications, assistant recommendations), and fold the
// rest into one summary message.
func (m *Manager) CompressMedical(ctx context.Context, messages []models.Message) []models.Message {
	if len(messages) <= compressionKeepHead+compressionKeepTail {
		return messages
	}

	head := messages[:compressionKeepHead]
	middle := messages[compressionKeepHead : len(messages)-compressionKeepTail]
	tail := messages[len(messages)-compressionKeepTail:]

	var kept, excluded []models.Message
	for _, msg := range middle {
		if isSalient(msg) {
			kept = append(kept, msg)
		} else {
			excluded = append(excluded, msg)
		}
	}

	out := make([]models.Message, 0, len(messages))
	out = append(out, head...)
	out = append(out, kept...)
	if len(excluded) > 0 {
		summary := m.summarize(ctx, excluded, 500)
		out = append(out, models.Message{
			Role:      models.RoleSystem,
			Content:   fmt.Sprintf("[Previous conversation summary: %s]", summary),
			CreatedAt: excluded[len(excluded)-1].CreatedAt,
		})
	}
	out = append(out, tail...)
	return dedupe(out)
}

// FreeTierContext truncates long free-tier conversations to one summary
// plus the last ten messages.
func (m *Manager) FreeTierContext(ctx context.Context, messages []models.Message) []models.Message {
	if len(messages) <= freeTierMaxMessages {
		return messages
	}

	older := messages[:len(messages)-compressionKeepTail]
	tail := messages[len(messages)-compressionKeepTail:]
	summary := m.summarize(ctx, older, 300)

	out := make([]models.Message, 0, compressionKeepTail+1)
	out = append(out, models.Message{
		Role:      models.RoleSystem,
		Content:   fmt.Sprintf("[Previous conversation summary: %s]", summary),
		CreatedAt: older[len(older)-1].CreatedAt,
	})
	out = append(out, tail...)
	return out
}

// AggregateUserContext concatenates the user's stored context summaries
// for prompt injection, re-summarizing when they exceed the budget. The
// current query focuses the re-summarization.
func (m *Manager) AggregateUserContext(ctx context.Context, userID, currentQuery string) string {
	if m.summaries == nil || userID == "" {
		return ""
	}
	rows, err := m.summaries.ListContextSummaries(ctx, userID)
	if err != nil {
		slog.Error("Loading context summaries failed", "user_id", userID, "error", err)
		return ""
	}
	if len(rows) == 0 {
		return ""
	}

	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, r.Summary)
	}
	combined := strings.Join(parts, "\n\n")

	total := m.counter.Count(combined)
	if total <= AggregateThreshold {
		return combined
	}

	ratio := 1.5
	switch {
	case total >= 100_000:
		ratio = 5
	case total >= 50_000:
		ratio = 2
	}
	target := int(float64(total) / ratio)

	prompt := fmt.Sprintf(
		"Condense the following medical history notes to roughly %d tokens. "+
			"Keep diagnoses, medications, allergies, and unresolved concerns. "+
			"Prioritize anything relevant to the user's current question: %q\n\n%s",
		target, currentQuery, combined)

	result, err := m.caller.CallWithFallback(ctx, []models.ChatMessage{
		{Role: models.RoleUser, Content: prompt},
	}, llm.CallOptions{UserID: userID, Endpoint: llm.EndpointChat, MaxTokens: target + 500, Temperature: 0.2})
	if err != nil {
		slog.Error("Context re-summarization failed, truncating instead", "user_id", userID, "error", err)
		return truncateWords(combined, target)
	}
	return result.Content
}

// GenerateTitle produces a short conversation title from the opening
// messages. Failures fall back to a generic title.
func (m *Manager) GenerateTitle(ctx context.Context, messages []models.Message) string {
	const fallback = "Health Discussion"
	if len(messages) == 0 {
		return fallback
	}

	source := messages
	if len(source) > titleSourceMessages {
		source = source[:titleSourceMessages]
	}
	var b strings.Builder
	for _, msg := range source {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}

	result, err := m.caller.CallWithFallback(ctx, []models.ChatMessage{
		{Role: models.RoleUser, Content: "Write a concise title (under 8 words, no quotes) for this health conversation:\n\n" + b.String()},
	}, llm.CallOptions{Endpoint: llm.EndpointChat, MaxTokens: 50, Temperature: 0.3})
	if err != nil {
		slog.Warn("Title generation failed", "error", err)
		return fallback
	}

	title := strings.TrimSpace(result.Content)
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	if title == "" {
		return fallback
	}
	if len(title) > maxTitleLength {
		title = strings.TrimSpace(title[:maxTitleLength])
	}
	return title
}

func (m *Manager) totalTokens(messages []models.Message) int {
	total := 0
	for _, msg := range messages {
		if msg.TokenCount > 0 {
			total += msg.TokenCount
			continue
		}
		total += m.counter.Count(msg.Content)
	}
	return total
}

func (m *Manager) summarize(ctx context.Context, messages []models.Message, maxTokens int) string {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	prompt := fmt.Sprintf(
		"Summarize this part of a medical conversation in at most %d tokens. "+
			"Keep symptoms, timelines, medications, and any advice given:\n\n%s",
		maxTokens, b.String())

	result, err := m.caller.CallWithFallback(ctx, []models.ChatMessage{
		{Role: models.RoleUser, Content: prompt},
	}, llm.CallOptions{Endpoint: llm.EndpointChat, MaxTokens: maxTokens + 200, Temperature: 0.2})
	if err != nil {
		slog.Error("Conversation summarization failed", "error", err)
		return fmt.Sprintf("%d earlier messages omitted", len(messages))
	}
	return strings.TrimSpace(result.Content)
}

func isSalient(msg models.Message) bool {
	content := strings.ToLower(msg.Content)
	words := wordSet(content)
	if containsAny(content, words, urgentTerms) || containsAny(content, words, medicationTerms) {
		return true
	}
	return msg.Role == models.RoleAssistant && containsAny(content, words, recommendationTerms)
}

// containsAny matches multi-word terms as substrings and single-word
// terms as whole tokens, so "ER" does not fire inside "number".
func containsAny(lowered string, words map[string]bool, terms []string) bool {
	for _, t := range terms {
		if strings.ContainsRune(t, ' ') {
			if strings.Contains(lowered, t) {
				return true
			}
			continue
		}
		if words[t] {
			return true
		}
	}
	return false
}

func wordSet(lowered string) map[string]bool {
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// dedupe removes duplicate messages keyed by role plus the first 100
// characters of content, preserving first-occurrence order.
func dedupe(messages []models.Message) []models.Message {
	seen := make(map[string]bool, len(messages))
	out := messages[:0:0]
	for _, msg := range messages {
		content := msg.Content
		if len(content) > 100 {
			content = content[:100]
		}
		key := msg.Role + "|" + content
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, msg)
	}
	return out
}

func truncateWords(text string, targetTokens int) string {
	words := strings.Fields(text)
	keep := int(float64(targetTokens) / 1.3)
	if keep >= len(words) {
		return text
	}
	return strings.Join(words[:keep], " ")
}
