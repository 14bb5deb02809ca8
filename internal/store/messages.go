package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Message struct {
	ID               string `json:"id"`
	ClientID         string `json:"clientId"`
	ChatID           string `json:"chatId"`
	UserID           string `json:"userId"`
	ModelID          string `json:"modelId,omitempty"`
	Prompt           string `json:"prompt"`
	UIMessages       string `json:"uiMessages,omitempty"`
	ResponseStreamID string `json:"responseStreamId"`
	Tool             string `json:"tool,omitempty"`
	Error            string `json:"error,omitempty"`
	Content          string `json:"content,omitempty"`
	SearchContent    string `json:"searchContent,omitempty"`
	PromptTokens     int    `json:"promptTokens,omitempty"`
	CompletionTokens int    `json:"completionTokens,omitempty"`
	TotalTokens      int    `json:"totalTokens,omitempty"`
	CreditsSpent     int    `json:"creditsSpent,omitempty"`
	CreatedAt        string `json:"createdAt"`
}

type MessageUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

const messageColumns = `id, client_id, chat_id, user_id, COALESCE(model_id, ''), prompt,
COALESCE(ui_messages, ''), response_stream_id, COALESCE(tool, ''), COALESCE(error, ''),
COALESCE(content, ''), COALESCE(search_content, ''),
COALESCE(prompt_tokens, 0), COALESCE(completion_tokens, 0), COALESCE(total_tokens, 0),
COALESCE(credits_spent, 0), created_at`

func scanMessage(scanner interface{ Scan(...any) error }) (Message, error) {
	var out Message
	err := scanner.Scan(
		&out.ID,
		&out.ClientID,
		&out.ChatID,
		&out.UserID,
		&out.ModelID,
		&out.Prompt,
		&out.UIMessages,
		&out.ResponseStreamID,
		&out.Tool,
		&out.Error,
		&out.Content,
		&out.SearchContent,
		&out.PromptTokens,
		&out.CompletionTokens,
		&out.TotalTokens,
		&out.CreditsSpent,
		&out.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("scan message: %w", err)
	}
	return out, nil
}

type NewMessage struct {
	ClientID string
	ChatID   string
	UserID   string
	ModelID  string
	Prompt   string
	StreamID string
	Tool     string
}

func (s Store) CreateMessage(ctx context.Context, input NewMessage) (Message, error) {
	if input.ClientID == "" {
		input.ClientID = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO messages (id, client_id, chat_id, user_id, model_id, prompt, response_stream_id, tool)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING `+messageColumns+`;
`, uuid.NewString(), input.ClientID, input.ChatID, input.UserID, nullableString(input.ModelID), input.Prompt, input.StreamID, nullableString(input.Tool))
	message, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}
	return message, nil
}

func (s Store) GetMessageByID(ctx context.Context, id string) (Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE id = ?
LIMIT 1;
`, id))
}

func (s Store) GetMessageByStreamID(ctx context.Context, streamID string) (Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE response_stream_id = ?
LIMIT 1;
`, streamID))
}

func (s Store) ListMessagesByChat(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE chat_id = ?
ORDER BY rowid ASC;
`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, 32)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// ResetMessageForRegenerate points the message at a fresh stream and clears
// the previous completion. An empty prompt keeps the original prompt text;
// the edit-save path passes a replacement.
func (s Store) ResetMessageForRegenerate(ctx context.Context, id, newStreamID, prompt string) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("reset message: %w", err)
	}
	defer tx.Rollback()

	var query string
	args := []any{newStreamID}
	if strings.TrimSpace(prompt) != "" {
		query = `
UPDATE messages
SET response_stream_id = ?, prompt = ?, ui_messages = NULL, error = NULL,
    content = NULL, search_content = NULL, prompt_tokens = NULL,
    completion_tokens = NULL, total_tokens = NULL, credits_spent = NULL
WHERE id = ?
RETURNING ` + messageColumns + `;`
		args = append(args, strings.TrimSpace(prompt), id)
	} else {
		query = `
UPDATE messages
SET response_stream_id = ?, ui_messages = NULL, error = NULL,
    content = NULL, search_content = NULL, prompt_tokens = NULL,
    completion_tokens = NULL, total_tokens = NULL, credits_spent = NULL
WHERE id = ?
RETURNING ` + messageColumns + `;`
		args = append(args, id)
	}

	message, err := scanMessage(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Message{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_search WHERE message_id = ?;`, id); err != nil {
		return Message{}, fmt.Errorf("reset message search: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("reset message: %w", err)
	}
	return message, nil
}

type MessageCompletion struct {
	UIMessages    string
	Content       string
	SearchContent string
	Error         string
	Usage         MessageUsage
	CreditsSpent  int
}

// CompleteMessage writes the authoritative persisted content once streaming
// finished and refreshes the full-text index entry.
func (s Store) CompleteMessage(ctx context.Context, id string, completion MessageCompletion) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("complete message: %w", err)
	}
	defer tx.Rollback()

	message, err := scanMessage(tx.QueryRowContext(ctx, `
UPDATE messages
SET ui_messages = ?, content = ?, search_content = ?, error = ?,
    prompt_tokens = ?, completion_tokens = ?, total_tokens = ?, credits_spent = ?
WHERE id = ?
RETURNING `+messageColumns+`;
`, nullableString(completion.UIMessages), nullableString(completion.Content), nullableString(completion.SearchContent), nullableString(completion.Error),
		completion.Usage.PromptTokens, completion.Usage.CompletionTokens, completion.Usage.TotalTokens, completion.CreditsSpent, id))
	if err != nil {
		return Message{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_search WHERE message_id = ?;`, id); err != nil {
		return Message{}, fmt.Errorf("refresh message search: %w", err)
	}
	if strings.TrimSpace(completion.SearchContent) != "" {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO message_search (search_content, message_id, user_id)
VALUES (?, ?, ?);
`, completion.SearchContent, message.ID, message.UserID); err != nil {
			return Message{}, fmt.Errorf("index message search: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("complete message: %w", err)
	}
	return message, nil
}

type SearchHit struct {
	Message Message `json:"message"`
	ChatID  string  `json:"chatId"`
}

// SearchMessages runs the full-text index over the caller's own messages.
func (s Store) SearchMessages(ctx context.Context, userID, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT `+searchMessageColumns+`
FROM message_search ms
JOIN messages m ON m.id = ms.message_id
WHERE ms.user_id = ? AND message_search MATCH ?
ORDER BY rank
LIMIT ?;
`, userID, ftsMatchExpression(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	hits := make([]SearchHit, 0, limit)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, SearchHit{Message: message, ChatID: message.ChatID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return hits, nil
}

// searchMessageColumns mirrors messageColumns with the join alias spelled
// out; the COALESCE expressions make mechanical prefixing unsafe.
const searchMessageColumns = `m.id, m.client_id, m.chat_id, m.user_id, COALESCE(m.model_id, ''), m.prompt,
COALESCE(m.ui_messages, ''), m.response_stream_id, COALESCE(m.tool, ''), COALESCE(m.error, ''),
COALESCE(m.content, ''), COALESCE(m.search_content, ''),
COALESCE(m.prompt_tokens, 0), COALESCE(m.completion_tokens, 0), COALESCE(m.total_tokens, 0),
COALESCE(m.credits_spent, 0), m.created_at`

// ftsMatchExpression turns free-form user input into a MATCH expression by
// quoting every term, so FTS5 operators and stray quotes in the input cannot
// raise a query syntax error.
func ftsMatchExpression(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
