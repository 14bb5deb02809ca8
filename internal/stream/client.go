package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"nimbuschat/backend/internal/store"
)

const maxErrorBodyBytes = 8 * 1024

type streamEvent struct {
	Type   string `json:"type"`
	Delta  string `json:"delta,omitempty"`
	Status string `json:"status,omitempty"`
}

// Consume attaches to a streaming endpoint URL (as built by
// config.StreamURL) and reads incremental text until the stream leaves
// pending. onText receives the full accumulated text after every chunk.
// Canceling the context detaches; that is the only cancellation mechanism.
func Consume(ctx context.Context, httpClient *http.Client, streamURL string, onText func(full string) error) (store.StreamStatus, string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("request stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", "", fmt.Errorf("stream endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var text strings.Builder
	status := store.StreamStatusPending

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}

		switch event.Type {
		case "chunk":
			text.WriteString(event.Delta)
			if onText != nil {
				if err := onText(text.String()); err != nil {
					return status, text.String(), err
				}
			}
		case "status":
			status = store.StreamStatus(event.Status)
			if status != store.StreamStatusPending {
				return status, text.String(), nil
			}
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return status, text.String(), fmt.Errorf("read stream: %w", err)
	}

	return status, text.String(), nil
}
