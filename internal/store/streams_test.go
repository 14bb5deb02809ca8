package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"nimbuschat/backend/internal/db"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	// One pooled connection: an in-memory database exists per connection.
	database.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return New(database)
}

func TestStreamAppendAndIncrementalRead(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	streamID, err := st.CreateStream(ctx)
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}

	for _, chunk := range []string{"Hel", "lo ", "world"} {
		if err := st.AppendStreamChunk(ctx, streamID, chunk); err != nil {
			t.Fatalf("append chunk: %v", err)
		}
	}

	full, err := st.ReadStream(ctx, streamID, 0)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if full.Text != "Hello world" || full.Status != StreamStatusPending {
		t.Fatalf("unexpected read %+v", full)
	}
	if full.LastSeq != 3 {
		t.Fatalf("expected last seq 3, got %d", full.LastSeq)
	}

	tail, err := st.ReadStream(ctx, streamID, 2)
	if err != nil {
		t.Fatalf("read tail: %v", err)
	}
	if tail.Text != "world" || tail.LastSeq != 3 {
		t.Fatalf("unexpected tail %+v", tail)
	}

	empty, err := st.ReadStream(ctx, streamID, 3)
	if err != nil {
		t.Fatalf("read past end: %v", err)
	}
	if empty.Text != "" || empty.LastSeq != 3 {
		t.Fatalf("unexpected empty tail %+v", empty)
	}
}

func TestFinishStreamValidatesStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	streamID, err := st.CreateStream(ctx)
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}

	if err := st.FinishStream(ctx, streamID, StreamStatusPending); err == nil {
		t.Fatal("expected pending to be rejected as a terminal status")
	}
	if err := st.FinishStream(ctx, streamID, StreamStatusDone); err != nil {
		t.Fatalf("finish stream: %v", err)
	}

	status, err := st.StreamStatusFor(ctx, streamID)
	if err != nil || status != StreamStatusDone {
		t.Fatalf("expected done, got status=%s err=%v", status, err)
	}

	if err := st.FinishStream(ctx, "missing-stream", StreamStatusDone); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReadStreamUnknownID(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.ReadStream(context.Background(), "missing", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
