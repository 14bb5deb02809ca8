// Package stream owns the live side of a message: the render-state machine
// that arbitrates between a persisted message and its incremental text
// stream, the driven-id set, the part parser, and the SSE consumer.
package stream

import (
	"sync"

	"nimbuschat/backend/internal/store"
)

// RenderState decides how a message is displayed. Exactly one of the live
// stream and the persisted content is authoritative at any moment.
type RenderState string

const (
	// RenderPending shows a typing indicator; no stream text has arrived.
	RenderPending RenderState = "pending"
	// RenderStreaming renders parts parsed live from the text stream.
	RenderStreaming RenderState = "streaming"
	// RenderCompleted renders the persisted structured content.
	RenderCompleted RenderState = "completed"
)

// StateFor picks the render state for a message. The streaming path wins if
// the server still reports the stream as pending OR the message id is in the
// driven set; the latter covers a regenerate/edit the session itself issued
// before the server status caught up.
func StateFor(streamStatus store.StreamStatus, driven bool, liveText string) RenderState {
	if streamStatus == store.StreamStatusPending || driven {
		if liveText == "" {
			return RenderPending
		}
		return RenderStreaming
	}
	return RenderCompleted
}

// DrivenSet tracks the message ids the current session itself triggered into
// regeneration. Session-scoped, not global.
type DrivenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewDrivenSet() *DrivenSet {
	return &DrivenSet{ids: make(map[string]struct{})}
}

func (d *DrivenSet) Add(messageID string) {
	if d == nil || messageID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[messageID] = struct{}{}
}

func (d *DrivenSet) Has(messageID string) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.ids[messageID]
	return ok
}

func (d *DrivenSet) Remove(messageID string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.ids, messageID)
}
