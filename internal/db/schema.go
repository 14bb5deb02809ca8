package db

import (
	"database/sql"
	"fmt"
)

// Migrate applies the schema. Every statement is idempotent so it is safe to
// run on each startup, matching how the sqlite file is provisioned locally
// and on Turso.
func Migrate(database *sql.DB) error {
	if _, err := database.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  auth_id TEXT NOT NULL UNIQUE,
  model_id TEXT,
  email TEXT,
  nickname TEXT,
  biography TEXT,
  instructions TEXT,
  appearance_mode TEXT CHECK (appearance_mode IS NULL OR appearance_mode IN ('light', 'dark', 'system')),
  appearance_theme TEXT,
  credits_used INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (model_id) REFERENCES models(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS users_by_auth_id ON users (auth_id);

CREATE TABLE IF NOT EXISTS models (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  model TEXT NOT NULL UNIQUE,
  provider TEXT NOT NULL,
  icon TEXT NOT NULL DEFAULT '',
  description TEXT,
  capabilities TEXT,
  is_premium INTEGER NOT NULL DEFAULT 0,
  is_disabled INTEGER NOT NULL DEFAULT 0,
  cost INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS models_by_name ON models (name);
CREATE INDEX IF NOT EXISTS models_by_model ON models (model);

CREATE TABLE IF NOT EXISTS chats (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT 'New Chat',
  is_public INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL CHECK (status IN ('submitted', 'streaming', 'completed', 'error')),
  branch_id TEXT,
  last_message_timestamp INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
  FOREIGN KEY (branch_id) REFERENCES chats(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS chats_by_user ON chats (user_id);
CREATE UNIQUE INDEX IF NOT EXISTS chats_by_client_id ON chats (user_id, client_id);
CREATE INDEX IF NOT EXISTS chats_by_user_last_message ON chats (user_id, last_message_timestamp);

CREATE TABLE IF NOT EXISTS messages (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  chat_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  model_id TEXT,
  prompt TEXT NOT NULL,
  ui_messages TEXT,
  response_stream_id TEXT NOT NULL,
  tool TEXT,
  error TEXT,
  content TEXT,
  search_content TEXT,
  prompt_tokens INTEGER,
  completion_tokens INTEGER,
  total_tokens INTEGER,
  credits_spent INTEGER,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE,
  FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
  FOREIGN KEY (model_id) REFERENCES models(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS messages_by_chat ON messages (chat_id);
CREATE INDEX IF NOT EXISTS messages_by_stream ON messages (response_stream_id);
CREATE UNIQUE INDEX IF NOT EXISTS messages_by_client_id ON messages (client_id);

CREATE VIRTUAL TABLE IF NOT EXISTS message_search USING fts5 (
  search_content,
  message_id UNINDEXED,
  user_id UNINDEXED
);

CREATE TABLE IF NOT EXISTS files (
  id TEXT PRIMARY KEY,
  key TEXT NOT NULL,
  user_id TEXT NOT NULL,
  message_id TEXT,
  role TEXT CHECK (role IS NULL OR role IN ('agent', 'user')),
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
  FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS files_by_user ON files (user_id);
CREATE INDEX IF NOT EXISTS files_by_key ON files (key);
CREATE INDEX IF NOT EXISTS files_by_message ON files (message_id);
CREATE INDEX IF NOT EXISTS files_by_user_role ON files (user_id, role);

CREATE TABLE IF NOT EXISTS streams (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL CHECK (status IN ('pending', 'done', 'error')),
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stream_chunks (
  stream_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  body TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (stream_id, seq),
  FOREIGN KEY (stream_id) REFERENCES streams(id) ON DELETE CASCADE
);
`
