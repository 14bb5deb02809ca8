package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StreamRead is the accumulated view of a persisted text stream.
type StreamRead struct {
	ID      string       `json:"id"`
	Status  StreamStatus `json:"status"`
	Text    string       `json:"text"`
	LastSeq int          `json:"lastSeq"`
}

func (s Store) CreateStream(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO streams (id, status) VALUES (?, ?);
`, id, string(StreamStatusPending)); err != nil {
		return "", fmt.Errorf("create stream: %w", err)
	}
	return id, nil
}

func (s Store) AppendStreamChunk(ctx context.Context, streamID, body string) error {
	if body == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO stream_chunks (stream_id, seq, body)
VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM stream_chunks WHERE stream_id = ?), ?);
`, streamID, streamID, body)
	if err != nil {
		return fmt.Errorf("append stream chunk: %w", err)
	}
	return nil
}

func (s Store) FinishStream(ctx context.Context, streamID string, status StreamStatus) error {
	if status != StreamStatusDone && status != StreamStatusError {
		return fmt.Errorf("invalid terminal stream status %q", status)
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE streams
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?;
`, string(status), streamID)
	if err != nil {
		return fmt.Errorf("finish stream: %w", err)
	}
	return affectedOrNotFound(result)
}

func (s Store) StreamStatusFor(ctx context.Context, streamID string) (StreamStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `
SELECT status FROM streams WHERE id = ? LIMIT 1;
`, streamID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read stream status: %w", err)
	}
	return StreamStatus(status), nil
}

// ReadStream returns the text accumulated after the given sequence number
// (pass 0 for the full body) together with the stream status.
func (s Store) ReadStream(ctx context.Context, streamID string, afterSeq int) (StreamRead, error) {
	status, err := s.StreamStatusFor(ctx, streamID)
	if err != nil {
		return StreamRead{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT seq, body
FROM stream_chunks
WHERE stream_id = ? AND seq > ?
ORDER BY seq ASC;
`, streamID, afterSeq)
	if err != nil {
		return StreamRead{}, fmt.Errorf("read stream: %w", err)
	}
	defer rows.Close()

	var text strings.Builder
	lastSeq := afterSeq
	for rows.Next() {
		var seq int
		var body string
		if err := rows.Scan(&seq, &body); err != nil {
			return StreamRead{}, fmt.Errorf("read stream: %w", err)
		}
		text.WriteString(body)
		lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return StreamRead{}, fmt.Errorf("read stream: %w", err)
	}

	return StreamRead{ID: streamID, Status: status, Text: text.String(), LastSeq: lastSeq}, nil
}
