package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"nimbuschat/backend/internal/store"
)

type updatePreferencesRequest struct {
	Nickname     string `json:"nickname"`
	Biography    string `json:"biography"`
	Instructions string `json:"instructions"`
}

func (h Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	var req updatePreferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	err := h.store.UpdateUserPreferences(r.Context(), user.ID, store.Preferences{
		Nickname:     strings.TrimSpace(req.Nickname),
		Biography:    strings.TrimSpace(req.Biography),
		Instructions: strings.TrimSpace(req.Instructions),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to update preferences")
		return
	}
	h.writeCurrentUser(w, r, user.ID)
}

type updateAppearanceRequest struct {
	Mode  string `json:"mode"`
	Theme string `json:"theme"`
}

func (h Handler) UpdateAppearance(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	var req updateAppearanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	mode := strings.TrimSpace(req.Mode)
	switch mode {
	case "", "light", "dark", "system":
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "mode must be light, dark or system")
		return
	}

	err := h.store.UpdateUserAppearance(r.Context(), user.ID, store.Appearance{
		Mode:  mode,
		Theme: strings.TrimSpace(req.Theme),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to update appearance")
		return
	}
	h.writeCurrentUser(w, r, user.ID)
}

type selectModelRequest struct {
	ModelID string `json:"modelId"`
}

// SelectModel stores the user's default model for new messages.
func (h Handler) SelectModel(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	var req selectModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "modelId is required")
		return
	}

	model, err := h.store.GetModelByID(r.Context(), modelID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "unknown_model", "model is not in the catalog")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to resolve model")
		return
	}
	if model.IsDisabled {
		writeError(w, http.StatusBadRequest, "model_disabled", "model is disabled")
		return
	}

	if err := h.store.SetUserModel(r.Context(), user.ID, model.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to set model")
		return
	}
	h.writeCurrentUser(w, r, user.ID)
}

func (h Handler) writeCurrentUser(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
