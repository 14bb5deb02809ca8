package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"nimbuschat/backend/internal/store"
)

type createChatRequest struct {
	ClientID string `json:"clientId"`
	Title    string `json:"title"`
}

// CreateChat accepts a client-generated id so the client can navigate to the
// chat before the server round trip completes. Reposting the same client id
// returns the existing chat instead of erroring.
func (h Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	var req createChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if clientID := strings.TrimSpace(req.ClientID); clientID != "" {
		existing, err := h.store.GetChatByClientID(r.Context(), clientID)
		if err == nil {
			if existing.UserID != user.ID {
				writeError(w, http.StatusConflict, "client_id_taken", "client id belongs to another chat")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"chat": existing})
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "db_error", "failed to check client id")
			return
		}
	}

	chat, err := h.store.CreateChat(r.Context(), user.ID, strings.TrimSpace(req.ClientID), strings.TrimSpace(req.Title))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to create chat")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"chat": chat})
}

func (h Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	chats, err := h.store.ListChatsByUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list chats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// GetChat serves the chat to its owner, or to anyone when it is public.
// Lookup falls back to the client id so optimistic navigation works before
// the create round trip returns.
func (h Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.readableChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": chat})
}

type branchChatRequest struct {
	MessageID string `json:"messageId"`
}

func (h Handler) BranchChat(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	var req branchChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.MessageID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "messageId is required")
		return
	}

	branch, err := h.store.BranchChat(r.Context(), user.ID, chi.URLParam(r, "chatID"), strings.TrimSpace(req.MessageID))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "chat or message not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to branch chat")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"chat": branch})
}

type updateChatRequest struct {
	Title    *string `json:"title"`
	IsPublic *bool   `json:"isPublic"`
}

func (h Handler) UpdateChat(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())
	chatID := chi.URLParam(r, "chatID")

	var req updateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Title == nil && req.IsPublic == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "nothing to update")
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "title must not be empty")
			return
		}
		if err := h.store.RenameChat(r.Context(), chatID, user.ID, title); err != nil {
			h.writeChatUpdateError(w, err)
			return
		}
	}
	if req.IsPublic != nil {
		if err := h.store.SetChatVisibility(r.Context(), chatID, user.ID, *req.IsPublic); err != nil {
			h.writeChatUpdateError(w, err)
			return
		}
	}

	chat, err := h.store.GetChatByID(r.Context(), chatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": chat})
}

func (h Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	err := h.store.DeleteChat(r.Context(), chi.URLParam(r, "chatID"), user.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "chat not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to delete chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h Handler) writeChatUpdateError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "chat not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "db_error", "failed to update chat")
}

// readableChat loads the chat from the chatID route param (server id first,
// then client id) and enforces owner-or-public access. It writes the error
// response itself when it returns ok=false.
func (h Handler) readableChat(w http.ResponseWriter, r *http.Request) (store.Chat, bool) {
	chatID := chi.URLParam(r, "chatID")

	chat, err := h.store.GetChatByID(r.Context(), chatID)
	if errors.Is(err, store.ErrNotFound) {
		chat, err = h.store.GetChatByClientID(r.Context(), chatID)
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "chat not found")
		return store.Chat{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read chat")
		return store.Chat{}, false
	}

	if chat.IsPublic {
		return chat, true
	}
	user, ok := requestUserFromContext(r.Context())
	if !ok || user.ID != chat.UserID {
		writeError(w, http.StatusNotFound, "not_found", "chat not found")
		return store.Chat{}, false
	}
	return chat, true
}
