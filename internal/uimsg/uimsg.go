// Package uimsg holds the structured message payload rendered by the chat
// UI: an ordered list of parts (text runs, tool invocations, citations).
package uimsg

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	PartTypeText     = "text"
	PartTypeTool     = "tool"
	PartTypeCitation = "citation"
)

type Part struct {
	Type string `json:"type"`
	// Text payload for text parts.
	Text string `json:"text,omitempty"`
	// Tool invocation fields.
	Tool  string          `json:"tool,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	State string          `json:"state,omitempty"`
	// Citation fields.
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

type UIMessage struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// CopyText extracts only text-typed parts and joins them, per message with
// no separator and across messages with a newline. This is the payload the
// copy action places on the clipboard.
func CopyText(messages []UIMessage) string {
	chunks := make([]string, 0, len(messages))
	for _, message := range messages {
		var b strings.Builder
		for _, part := range message.Parts {
			if part.Type == PartTypeText {
				b.WriteString(part.Text)
			}
		}
		chunks = append(chunks, b.String())
	}
	return strings.Join(chunks, "\n")
}

func Encode(messages []UIMessage) (string, error) {
	encoded, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encode ui messages: %w", err)
	}
	return string(encoded), nil
}

// Decode parses a persisted ui_messages payload. An empty payload decodes to
// no messages rather than an error.
func Decode(raw string) ([]UIMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	var messages []UIMessage
	if err := json.Unmarshal([]byte(trimmed), &messages); err != nil {
		return nil, fmt.Errorf("decode ui messages: %w", err)
	}
	return messages, nil
}

// SearchText flattens the text parts of all messages into the plain string
// indexed for full-text search.
func SearchText(messages []UIMessage) string {
	var b strings.Builder
	for _, message := range messages {
		for _, part := range message.Parts {
			if part.Type != PartTypeText {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
	}
	return b.String()
}
