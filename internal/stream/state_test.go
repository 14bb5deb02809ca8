package stream

import (
	"testing"

	"nimbuschat/backend/internal/store"
)

func TestStateForPendingStream(t *testing.T) {
	if got := StateFor(store.StreamStatusPending, false, ""); got != RenderPending {
		t.Fatalf("expected pending with no text, got %s", got)
	}
	if got := StateFor(store.StreamStatusPending, false, "partial answer"); got != RenderStreaming {
		t.Fatalf("expected streaming once text arrives, got %s", got)
	}
}

func TestStateForDoneStream(t *testing.T) {
	if got := StateFor(store.StreamStatusDone, false, "full answer"); got != RenderCompleted {
		t.Fatalf("expected completed for done stream, got %s", got)
	}
	if got := StateFor(store.StreamStatusError, false, ""); got != RenderCompleted {
		t.Fatalf("expected completed for errored stream, got %s", got)
	}
}

func TestDrivenOverridesServerStatus(t *testing.T) {
	// A message this session is actively driving stays in the streaming
	// path even when the persisted status has already flipped to done.
	if got := StateFor(store.StreamStatusDone, true, "full answer"); got != RenderStreaming {
		t.Fatalf("expected streaming for driven message, got %s", got)
	}
	if got := StateFor(store.StreamStatusDone, true, ""); got != RenderPending {
		t.Fatalf("expected pending for driven message with no text yet, got %s", got)
	}
}

func TestDrivenSet(t *testing.T) {
	set := NewDrivenSet()
	if set.Has("m1") {
		t.Fatal("empty set should not contain m1")
	}
	set.Add("m1")
	if !set.Has("m1") {
		t.Fatal("expected m1 after Add")
	}
	set.Remove("m1")
	if set.Has("m1") {
		t.Fatal("expected m1 gone after Remove")
	}
	set.Remove("m1")
}
