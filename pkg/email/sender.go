package email

import (
	"context"
	"fmt"

	"github.com/proxima-health/oracle/pkg/httpx"
)

// OutboundMessage is one provider-bound email. MessageID is our
// correlation id, echoed back by delivery webhooks as a custom arg.
type OutboundMessage struct {
	MessageID  string
	To         string
	CC         []string
	Subject    string
	HTML       string
	Attachment *Attachment
}

// Attachment is base64 file content plus metadata.
type Attachment struct {
	Content     string
	Filename    string
	ContentType string
}

// Sender delivers one message to the provider.
type Sender interface {
	Send(ctx context.Context, msg *OutboundMessage) error
}

const sendGridURL = "https://api.sendgrid.com/v3/mail/send"

// SendGridSender posts to the SendGrid v3 mail API.
type SendGridSender struct {
	client    *httpx.Client
	apiKey    string
	fromEmail string
	fromName  string
	url       string
}

// NewSendGridSender wires the sender against the shared HTTP client.
func NewSendGridSender(client *httpx.Client, apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		client:    client,
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		url:       sendGridURL,
	}
}

// Send performs a single provider call. Retry policy lives with the
// caller so queue and synchronous paths can differ.
func (s *SendGridSender) Send(ctx context.Context, msg *OutboundMessage) error {
	personalization := map[string]any{
		"to": []map[string]string{{"email": msg.To}},
	}
	if len(msg.CC) > 0 {
		cc := make([]map[string]string, 0, len(msg.CC))
		for _, addr := range msg.CC {
			cc = append(cc, map[string]string{"email": addr})
		}
		personalization["cc"] = cc
	}

	body := map[string]any{
		"personalizations": []map[string]any{personalization},
		"from":             map[string]string{"email": s.fromEmail, "name": s.fromName},
		"subject":          msg.Subject,
		"content":          []map[string]string{{"type": "text/html", "value": msg.HTML}},
		"custom_args":      map[string]string{"message_id": msg.MessageID},
	}
	if msg.Attachment != nil {
		body["attachments"] = []map[string]string{{
			"content":     msg.Attachment.Content,
			"filename":    msg.Attachment.Filename,
			"type":        msg.Attachment.ContentType,
			"disposition": "attachment",
		}}
	}

	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	if _, err := s.client.PostJSON(ctx, s.url, headers, body); err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	return nil
}
