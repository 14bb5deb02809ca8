package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Preferences struct {
	Nickname     string `json:"nickname,omitempty"`
	Biography    string `json:"biography,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type Appearance struct {
	Mode  string `json:"mode,omitempty"`
	Theme string `json:"theme,omitempty"`
}

type User struct {
	ID          string      `json:"id"`
	AuthID      string      `json:"authId"`
	ModelID     string      `json:"modelId,omitempty"`
	Email       string      `json:"email,omitempty"`
	Preferences Preferences `json:"preferences"`
	Appearance  Appearance  `json:"appearance"`
	CreditsUsed int         `json:"creditsUsed"`
	CreatedAt   string      `json:"createdAt"`
	UpdatedAt   string      `json:"updatedAt"`
}

const userColumns = `id, auth_id, COALESCE(model_id, ''), COALESCE(email, ''),
COALESCE(nickname, ''), COALESCE(biography, ''), COALESCE(instructions, ''),
COALESCE(appearance_mode, ''), COALESCE(appearance_theme, ''), credits_used, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var out User
	err := row.Scan(
		&out.ID,
		&out.AuthID,
		&out.ModelID,
		&out.Email,
		&out.Preferences.Nickname,
		&out.Preferences.Biography,
		&out.Preferences.Instructions,
		&out.Appearance.Mode,
		&out.Appearance.Theme,
		&out.CreditsUsed,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return out, nil
}

func (s Store) GetUserByAuthID(ctx context.Context, authID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE auth_id = ?
LIMIT 1;
`, authID)
	return scanUser(row)
}

func (s Store) GetUserByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = ?
LIMIT 1;
`, id)
	return scanUser(row)
}

func (s Store) CreateUser(ctx context.Context, authID, modelID, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
INSERT INTO users (id, auth_id, model_id, email)
VALUES (?, ?, ?, ?)
RETURNING `+userColumns+`;
`, uuid.NewString(), authID, nullableString(modelID), nullableString(strings.ToLower(strings.TrimSpace(email))))
	user, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	defer tx.Rollback()

	// foreign_keys is a per-connection pragma, so dependent rows are
	// removed explicitly instead of through cascades.
	for _, stmt := range []string{
		`DELETE FROM message_search WHERE user_id = ?;`,
		`DELETE FROM files WHERE user_id = ?;`,
		`DELETE FROM messages WHERE user_id = ?;`,
		`DELETE FROM chats WHERE user_id = ?;`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s Store) UpdateUserPreferences(ctx context.Context, id string, prefs Preferences) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE users
SET nickname = ?, biography = ?, instructions = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?;
`, nullableString(strings.TrimSpace(prefs.Nickname)), nullableString(strings.TrimSpace(prefs.Biography)), nullableString(strings.TrimSpace(prefs.Instructions)), id)
	if err != nil {
		return fmt.Errorf("update user preferences: %w", err)
	}
	return nil
}

func (s Store) UpdateUserAppearance(ctx context.Context, id string, appearance Appearance) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE users
SET appearance_mode = ?, appearance_theme = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?;
`, nullableString(strings.TrimSpace(appearance.Mode)), nullableString(strings.TrimSpace(appearance.Theme)), id)
	if err != nil {
		return fmt.Errorf("update user appearance: %w", err)
	}
	return nil
}

func (s Store) SetUserModel(ctx context.Context, id, modelID string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE users
SET model_id = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?;
`, nullableString(modelID), id)
	if err != nil {
		return fmt.Errorf("set user model: %w", err)
	}
	return nil
}

func (s Store) AddCreditsUsed(ctx context.Context, id string, credits int) error {
	if credits <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE users
SET credits_used = credits_used + ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?;
`, credits, id)
	if err != nil {
		return fmt.Errorf("add credits used: %w", err)
	}
	return nil
}
