package store

import (
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) Store {
	return Store{db: db}
}

// ChatStatus is the chat lifecycle driven by message streaming.
type ChatStatus string

const (
	ChatStatusSubmitted ChatStatus = "submitted"
	ChatStatusStreaming ChatStatus = "streaming"
	ChatStatusCompleted ChatStatus = "completed"
	ChatStatusError     ChatStatus = "error"
)

func (s ChatStatus) Valid() bool {
	switch s {
	case ChatStatusSubmitted, ChatStatusStreaming, ChatStatusCompleted, ChatStatusError:
		return true
	}
	return false
}

// StreamStatus is the lifecycle of a persisted text stream.
type StreamStatus string

const (
	StreamStatusPending StreamStatus = "pending"
	StreamStatusDone    StreamStatus = "done"
	StreamStatusError   StreamStatus = "error"
)

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
