package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Model struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Provider     string   `json:"provider"`
	Icon         string   `json:"icon"`
	Description  string   `json:"description,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	IsPremium    bool     `json:"isPremium"`
	IsDisabled   bool     `json:"isDisabled"`
	Cost         int      `json:"cost"`
}

const modelColumns = `id, name, model, provider, icon, COALESCE(description, ''), COALESCE(capabilities, '[]'), is_premium, is_disabled, cost`

func scanModel(scanner interface{ Scan(...any) error }) (Model, error) {
	var out Model
	var rawCapabilities string
	var premium, disabled int
	err := scanner.Scan(
		&out.ID,
		&out.Name,
		&out.Model,
		&out.Provider,
		&out.Icon,
		&out.Description,
		&rawCapabilities,
		&premium,
		&disabled,
		&out.Cost,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Model{}, ErrNotFound
	}
	if err != nil {
		return Model{}, fmt.Errorf("scan model: %w", err)
	}

	out.IsPremium = premium != 0
	out.IsDisabled = disabled != 0
	if err := json.Unmarshal([]byte(rawCapabilities), &out.Capabilities); err != nil {
		out.Capabilities = nil
	}
	return out, nil
}

func (s Store) GetModelByID(ctx context.Context, id string) (Model, error) {
	return scanModel(s.db.QueryRowContext(ctx, `
SELECT `+modelColumns+`
FROM models
WHERE id = ?
LIMIT 1;
`, id))
}

// GetModelByModel looks a catalog entry up by its backing model id, e.g.
// "google/gemini-2.5-flash-preview-05-20".
func (s Store) GetModelByModel(ctx context.Context, model string) (Model, error) {
	return scanModel(s.db.QueryRowContext(ctx, `
SELECT `+modelColumns+`
FROM models
WHERE model = ?
LIMIT 1;
`, model))
}

func (s Store) ListModels(ctx context.Context) ([]Model, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+modelColumns+`
FROM models
ORDER BY is_disabled ASC, name ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	models := make([]Model, 0, 16)
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return models, nil
}

func (s Store) UpsertModel(ctx context.Context, model Model) (Model, error) {
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	capabilities := []byte("[]")
	if len(model.Capabilities) > 0 {
		encoded, err := json.Marshal(model.Capabilities)
		if err != nil {
			return Model{}, fmt.Errorf("encode capabilities: %w", err)
		}
		capabilities = encoded
	}

	row := s.db.QueryRowContext(ctx, `
INSERT INTO models (id, name, model, provider, icon, description, capabilities, is_premium, is_disabled, cost)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(model) DO UPDATE SET
  name = excluded.name,
  provider = excluded.provider,
  icon = excluded.icon,
  description = excluded.description,
  capabilities = excluded.capabilities,
  is_premium = excluded.is_premium,
  is_disabled = excluded.is_disabled,
  cost = excluded.cost,
  updated_at = CURRENT_TIMESTAMP
RETURNING `+modelColumns+`;
`, model.ID, model.Name, model.Model, model.Provider, model.Icon, nullableString(model.Description), string(capabilities), boolToInt(model.IsPremium), boolToInt(model.IsDisabled), model.Cost)

	out, err := scanModel(row)
	if err != nil {
		return Model{}, fmt.Errorf("upsert model: %w", err)
	}
	return out, nil
}
