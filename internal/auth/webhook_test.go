package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"
)

const testWebhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func signedHeaders(t *testing.T, payload []byte) http.Header {
	t.Helper()

	rawSecret, err := base64.StdEncoding.DecodeString("MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw")
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}

	msgID := "msg_test"
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, rawSecret)
	fmt.Fprintf(mac, "%s.%s.%s", msgID, timestamp, payload)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("svix-id", msgID)
	headers.Set("svix-timestamp", timestamp)
	headers.Set("svix-signature", "v1,"+signature)
	return headers
}

func TestVerifyAcceptsSignedEvent(t *testing.T) {
	verifier, err := NewWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	payload := []byte(`{"type":"user.created","data":{"id":"user_2abc","email_addresses":[{"email_address":"al@example.com"}]}}`)
	event, err := verifier.Verify(payload, signedHeaders(t, payload))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if event.Type != EventUserCreated {
		t.Fatalf("unexpected event type: %s", event.Type)
	}
	if event.Data.ID != "user_2abc" {
		t.Fatalf("unexpected external id: %s", event.Data.ID)
	}
	if event.PrimaryEmail() != "al@example.com" {
		t.Fatalf("unexpected email: %s", event.PrimaryEmail())
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	verifier, err := NewWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	payload := []byte(`{"type":"user.created","data":{"id":"user_2abc"}}`)
	headers := signedHeaders(t, payload)

	tampered := []byte(`{"type":"user.created","data":{"id":"user_evil"}}`)
	if _, err := verifier.Verify(tampered, headers); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestVerifyRejectsMissingHeaders(t *testing.T) {
	verifier, err := NewWebhookVerifier(testWebhookSecret)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	if _, err := verifier.Verify([]byte(`{}`), http.Header{}); err == nil {
		t.Fatal("expected verification without headers to fail")
	}
}

func TestPrimaryEmailSkipsBlankEntries(t *testing.T) {
	event := Event{Data: EventData{EmailAddresses: []EmailAddress{{EmailAddress: "  "}, {EmailAddress: "al@example.com"}}}}
	if event.PrimaryEmail() != "al@example.com" {
		t.Fatalf("unexpected email: %s", event.PrimaryEmail())
	}

	empty := Event{}
	if empty.PrimaryEmail() != "" {
		t.Fatal("expected empty email for event without addresses")
	}
}
