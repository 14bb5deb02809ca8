package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"nimbuschat/backend/internal/store"
)

const streamPollInterval = 250 * time.Millisecond

type streamChunkEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type streamStatusEvent struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// StreamEvents replays the text accumulated so far for a stream, then tails
// new chunks until the stream leaves pending. The terminal status event is
// always the last thing written. Client disconnect cancels the tail.
func (h Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	streamID := strings.TrimSpace(r.URL.Query().Get("streamId"))
	if streamID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "streamId is required")
		return
	}

	read, err := h.store.ReadStream(r.Context(), streamID, 0)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "stream not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read stream")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "server does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if read.Text != "" {
		writeSSEEvent(w, flusher, streamChunkEvent{Type: "chunk", Delta: read.Text})
	}

	lastSeq := read.LastSeq
	status := read.Status

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for status == store.StreamStatusPending {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		read, err = h.store.ReadStream(r.Context(), streamID, lastSeq)
		if err != nil {
			// The stream row vanished mid-tail; report it and stop.
			writeSSEEvent(w, flusher, streamStatusEvent{Type: "status", Status: string(store.StreamStatusError)})
			return
		}
		if read.Text != "" {
			writeSSEEvent(w, flusher, streamChunkEvent{Type: "chunk", Delta: read.Text})
			lastSeq = read.LastSeq
		}
		status = read.Status
	}

	writeSSEEvent(w, flusher, streamStatusEvent{Type: "status", Status: string(status)})
}
