package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	FileRoleAgent = "agent"
	FileRoleUser  = "user"
)

type File struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	UserID    string `json:"userId"`
	MessageID string `json:"messageId,omitempty"`
	Role      string `json:"role,omitempty"`
	CreatedAt string `json:"createdAt"`
}

const fileColumns = `id, key, user_id, COALESCE(message_id, ''), COALESCE(role, ''), created_at`

func scanFile(scanner interface{ Scan(...any) error }) (File, error) {
	var out File
	err := scanner.Scan(&out.ID, &out.Key, &out.UserID, &out.MessageID, &out.Role, &out.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, ErrNotFound
	}
	if err != nil {
		return File{}, fmt.Errorf("scan file: %w", err)
	}
	return out, nil
}

func (s Store) CreateFile(ctx context.Context, key, userID, messageID, role string) (File, error) {
	row := s.db.QueryRowContext(ctx, `
INSERT INTO files (id, key, user_id, message_id, role)
VALUES (?, ?, ?, ?, ?)
RETURNING `+fileColumns+`;
`, uuid.NewString(), key, userID, nullableString(messageID), nullableString(role))
	file, err := scanFile(row)
	if err != nil {
		return File{}, fmt.Errorf("create file: %w", err)
	}
	return file, nil
}

func (s Store) GetFileByKey(ctx context.Context, key string) (File, error) {
	return scanFile(s.db.QueryRowContext(ctx, `
SELECT `+fileColumns+`
FROM files
WHERE key = ?
LIMIT 1;
`, key))
}

func (s Store) ListFilesByUser(ctx context.Context, userID string) ([]File, error) {
	return s.listFiles(ctx, `
SELECT `+fileColumns+`
FROM files
WHERE user_id = ?
ORDER BY rowid DESC;
`, userID)
}

func (s Store) ListFilesByMessage(ctx context.Context, messageID string) ([]File, error) {
	return s.listFiles(ctx, `
SELECT `+fileColumns+`
FROM files
WHERE message_id = ?
ORDER BY rowid ASC;
`, messageID)
}

func (s Store) listFiles(ctx context.Context, query string, args ...any) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]File, 0, 8)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

func (s Store) DeleteFile(ctx context.Context, id, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ? AND user_id = ?;`, id, userID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return affectedOrNotFound(result)
}
