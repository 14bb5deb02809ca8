package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Chat struct {
	ID                   string     `json:"id"`
	ClientID             string     `json:"clientId"`
	UserID               string     `json:"userId"`
	Title                string     `json:"title"`
	IsPublic             bool       `json:"isPublic"`
	Status               ChatStatus `json:"status"`
	BranchID             string     `json:"branchId,omitempty"`
	LastMessageTimestamp int64      `json:"lastMessageTimestamp"`
	CreatedAt            string     `json:"createdAt"`
}

const chatColumns = `id, client_id, user_id, title, is_public, status, COALESCE(branch_id, ''), last_message_timestamp, created_at`

func scanChat(scanner interface{ Scan(...any) error }) (Chat, error) {
	var out Chat
	var public int
	err := scanner.Scan(
		&out.ID,
		&out.ClientID,
		&out.UserID,
		&out.Title,
		&public,
		&out.Status,
		&out.BranchID,
		&out.LastMessageTimestamp,
		&out.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, fmt.Errorf("scan chat: %w", err)
	}
	out.IsPublic = public != 0
	return out, nil
}

// DefaultChatTitle is the placeholder title until the first response lands.
const DefaultChatTitle = "New Chat"

func (s Store) CreateChat(ctx context.Context, userID, clientID, title string) (Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultChatTitle
	}
	// The client id is unique per user; creations without one get a server
	// generated id so they cannot collide with each other.
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO chats (id, client_id, user_id, title, status, last_message_timestamp)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING `+chatColumns+`;
`, uuid.NewString(), clientID, userID, title, string(ChatStatusSubmitted), time.Now().UnixMilli())
	chat, err := scanChat(row)
	if err != nil {
		return Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

func (s Store) GetChatByID(ctx context.Context, id string) (Chat, error) {
	return scanChat(s.db.QueryRowContext(ctx, `
SELECT `+chatColumns+`
FROM chats
WHERE id = ?
LIMIT 1;
`, id))
}

func (s Store) GetChatByClientID(ctx context.Context, clientID string) (Chat, error) {
	return scanChat(s.db.QueryRowContext(ctx, `
SELECT `+chatColumns+`
FROM chats
WHERE client_id = ?
LIMIT 1;
`, clientID))
}

func (s Store) ListChatsByUser(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+chatColumns+`
FROM chats
WHERE user_id = ?
ORDER BY last_message_timestamp DESC;
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]Chat, 0, 16)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

func (s Store) SetChatStatus(ctx context.Context, id string, status ChatStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid chat status %q", status)
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE chats
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?;
`, string(status), id)
	if err != nil {
		return fmt.Errorf("set chat status: %w", err)
	}
	return nil
}

func (s Store) TouchChat(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE chats
SET last_message_timestamp = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?;
`, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

func (s Store) RenameChat(ctx context.Context, id, userID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title is required")
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE chats
SET title = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND user_id = ?;
`, title, id, userID)
	if err != nil {
		return fmt.Errorf("rename chat: %w", err)
	}
	return affectedOrNotFound(result)
}

func (s Store) SetChatVisibility(ctx context.Context, id, userID string, isPublic bool) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE chats
SET is_public = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND user_id = ?;
`, boolToInt(isPublic), id, userID)
	if err != nil {
		return fmt.Errorf("set chat visibility: %w", err)
	}
	return affectedOrNotFound(result)
}

func (s Store) DeleteChat(ctx context.Context, id, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	defer tx.Rollback()

	// foreign_keys is a per-connection pragma, so dependent rows are
	// removed explicitly instead of through cascades.
	if _, err := tx.ExecContext(ctx, `
DELETE FROM message_search WHERE message_id IN (SELECT id FROM messages WHERE chat_id = ?);
`, id); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?;`, id); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ? AND user_id = ?;`, id, userID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if err := affectedOrNotFound(result); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

// BranchChat creates a new chat rooted at the given message: the source
// chat's messages up to and including it are copied into the new chat, and
// the new chat records its lineage through branch_id.
func (s Store) BranchChat(ctx context.Context, userID, chatID, messageID string) (Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Chat{}, fmt.Errorf("branch chat: %w", err)
	}
	defer tx.Rollback()

	var title string
	if err := tx.QueryRowContext(ctx, `
SELECT title FROM chats WHERE id = ? LIMIT 1;
`, chatID).Scan(&title); errors.Is(err, sql.ErrNoRows) {
		return Chat{}, ErrNotFound
	} else if err != nil {
		return Chat{}, fmt.Errorf("branch chat: %w", err)
	}

	var pivotRowID int64
	if err := tx.QueryRowContext(ctx, `
SELECT rowid FROM messages WHERE id = ? AND chat_id = ? LIMIT 1;
`, messageID, chatID).Scan(&pivotRowID); errors.Is(err, sql.ErrNoRows) {
		return Chat{}, ErrNotFound
	} else if err != nil {
		return Chat{}, fmt.Errorf("branch chat: %w", err)
	}

	branch := Chat{
		ID:       uuid.NewString(),
		ClientID: uuid.NewString(),
		UserID:   userID,
		Title:    title,
		Status:   ChatStatusCompleted,
		BranchID: chatID,
	}
	branchRow := tx.QueryRowContext(ctx, `
INSERT INTO chats (id, client_id, user_id, title, status, branch_id, last_message_timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING `+chatColumns+`;
`, branch.ID, branch.ClientID, branch.UserID, branch.Title, string(branch.Status), branch.BranchID, time.Now().UnixMilli())
	branch, err = scanChat(branchRow)
	if err != nil {
		return Chat{}, fmt.Errorf("branch chat: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
SELECT user_id, COALESCE(model_id, ''), prompt, COALESCE(ui_messages, ''), response_stream_id,
       COALESCE(tool, ''), COALESCE(error, ''), COALESCE(content, ''), COALESCE(search_content, '')
FROM messages
WHERE chat_id = ? AND rowid <= ?
ORDER BY rowid ASC;
`, chatID, pivotRowID)
	if err != nil {
		return Chat{}, fmt.Errorf("branch chat: %w", err)
	}
	defer rows.Close()

	type copiedMessage struct {
		userID, modelID, prompt, uiMessages, streamID, tool, errText, content, searchContent string
	}
	copies := make([]copiedMessage, 0, 16)
	for rows.Next() {
		var m copiedMessage
		if err := rows.Scan(&m.userID, &m.modelID, &m.prompt, &m.uiMessages, &m.streamID, &m.tool, &m.errText, &m.content, &m.searchContent); err != nil {
			return Chat{}, fmt.Errorf("branch chat: %w", err)
		}
		copies = append(copies, m)
	}
	if err := rows.Err(); err != nil {
		return Chat{}, fmt.Errorf("branch chat: %w", err)
	}

	for _, m := range copies {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO messages (id, client_id, chat_id, user_id, model_id, prompt, ui_messages, response_stream_id, tool, error, content, search_content)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, uuid.NewString(), uuid.NewString(), branch.ID, m.userID, nullableString(m.modelID), m.prompt, nullableString(m.uiMessages), m.streamID, nullableString(m.tool), nullableString(m.errText), nullableString(m.content), nullableString(m.searchContent)); err != nil {
			return Chat{}, fmt.Errorf("branch chat: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Chat{}, fmt.Errorf("branch chat: %w", err)
	}
	return branch, nil
}

func affectedOrNotFound(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
