package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	svix "github.com/svix/svix-webhooks/go"
)

// Identity-provider webhook event types the bridge acts on. Anything else
// falls through to the acknowledge-only branch.
const (
	EventUserCreated = "user.created"
	EventUserDeleted = "user.deleted"
	EventUserUpdated = "user.updated"
)

type EmailAddress struct {
	EmailAddress string `json:"email_address"`
}

type EventData struct {
	ID             string         `json:"id"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
}

type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// PrimaryEmail returns the first email address carried by the event, if any.
func (e Event) PrimaryEmail() string {
	for _, address := range e.Data.EmailAddresses {
		if trimmed := strings.TrimSpace(address.EmailAddress); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type WebhookVerifier struct {
	wh *svix.Webhook
}

func NewWebhookVerifier(secret string) (WebhookVerifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return WebhookVerifier{}, fmt.Errorf("init webhook verifier: %w", err)
	}
	return WebhookVerifier{wh: wh}, nil
}

// Verify checks the svix signature headers against the raw body before any
// field of the payload is trusted, then decodes the event envelope.
func (v WebhookVerifier) Verify(payload []byte, headers http.Header) (Event, error) {
	if v.wh == nil {
		return Event{}, fmt.Errorf("webhook verifier is not configured")
	}
	if err := v.wh.Verify(payload, headers); err != nil {
		return Event{}, fmt.Errorf("verify webhook signature: %w", err)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("decode webhook event: %w", err)
	}
	return event, nil
}
