package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"nimbuschat/backend/internal/store"
	"nimbuschat/backend/internal/stream"
	"nimbuschat/backend/internal/uimsg"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type messageResponse struct {
	store.Message
	RenderState stream.RenderState `json:"renderState"`
	StreamURL   string             `json:"streamUrl,omitempty"`
}

// ListMessages serves a chat's messages with the render state resolved per
// message: a live stream (or a regenerate this session drove) takes the
// streaming path, everything else renders the persisted content.
func (h Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.readableChat(w, r)
	if !ok {
		return
	}

	messages, err := h.store.ListMessagesByChat(r.Context(), chat.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list messages")
		return
	}

	var driven *stream.DrivenSet
	if user, ok := requestUserFromContext(r.Context()); ok {
		driven = h.driven.forUser(user.ID)
	}

	out := make([]messageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, h.renderMessage(r.Context(), message, driven))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (h Handler) renderMessage(ctx context.Context, message store.Message, driven *stream.DrivenSet) messageResponse {
	status, err := h.store.StreamStatusFor(ctx, message.ResponseStreamID)
	if err != nil {
		status = store.StreamStatusDone
	}

	isDriven := driven.Has(message.ID)
	if isDriven && status != store.StreamStatusPending && (message.Content != "" || message.Error != "") {
		// The persisted row caught up with the stream this session drove.
		driven.Remove(message.ID)
		isDriven = false
	}

	response := messageResponse{Message: message, RenderState: stream.RenderCompleted}
	if status == store.StreamStatusPending || isDriven {
		liveText := ""
		if read, err := h.store.ReadStream(ctx, message.ResponseStreamID, 0); err == nil {
			liveText = read.Text
		}
		response.RenderState = stream.StateFor(status, isDriven, liveText)
		response.StreamURL = h.cfg.StreamURL(message.ResponseStreamID)
	}
	return response
}

type sendMessageRequest struct {
	ClientID string `json:"clientId"`
	Prompt   string `json:"prompt"`
	ModelID  string `json:"modelId"`
	Tool     string `json:"tool"`
}

// SendMessage records the user turn, opens a pending response stream, and
// kicks off generation in the background. The chat flips to submitted until
// the first token arrives.
func (h Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	chat, err := h.store.GetChatByID(r.Context(), chi.URLParam(r, "chatID"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && chat.UserID != user.ID) {
		writeError(w, http.StatusNotFound, "not_found", "chat not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read chat")
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}

	model, ok := h.resolveModel(w, r, user, req.ModelID)
	if !ok {
		return
	}

	streamID, err := h.store.CreateStream(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to create stream")
		return
	}

	message, err := h.store.CreateMessage(r.Context(), store.NewMessage{
		ClientID: strings.TrimSpace(req.ClientID),
		ChatID:   chat.ID,
		UserID:   user.ID,
		ModelID:  model.ID,
		Prompt:   strings.TrimSpace(req.Prompt),
		StreamID: streamID,
		Tool:     strings.TrimSpace(req.Tool),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to create message")
		return
	}

	if err := h.store.SetChatStatus(r.Context(), chat.ID, store.ChatStatusSubmitted); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to update chat status")
		return
	}

	h.driven.forUser(user.ID).Add(message.ID)
	go h.runGeneration(user, chat, message, model)

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   message,
		"streamUrl": h.cfg.StreamURL(streamID),
	})
}

type regenerateMessageRequest struct {
	Prompt string `json:"prompt"`
}

// RegenerateMessage resets a message's response and streams a fresh one. A
// non-empty prompt in the body is the edit-and-save path: the stored prompt
// is replaced before regeneration.
func (h Handler) RegenerateMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	message, err := h.store.GetMessageByID(r.Context(), chi.URLParam(r, "messageID"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && message.UserID != user.ID) {
		writeError(w, http.StatusNotFound, "not_found", "message not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read message")
		return
	}

	var req regenerateMessageRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	chat, err := h.store.GetChatByID(r.Context(), message.ChatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read chat")
		return
	}

	model, ok := h.resolveModel(w, r, user, message.ModelID)
	if !ok {
		return
	}

	streamID, err := h.store.CreateStream(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to create stream")
		return
	}

	message, err = h.store.ResetMessageForRegenerate(r.Context(), message.ID, streamID, strings.TrimSpace(req.Prompt))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to reset message")
		return
	}

	if err := h.store.SetChatStatus(r.Context(), chat.ID, store.ChatStatusSubmitted); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to update chat status")
		return
	}

	h.driven.forUser(user.ID).Add(message.ID)
	go h.runGeneration(user, chat, message, model)

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   message,
		"streamUrl": h.cfg.StreamURL(streamID),
	})
}

func (h Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "q is required")
		return
	}

	limit := defaultSearchLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		if parsed > maxSearchLimit {
			parsed = maxSearchLimit
		}
		limit = parsed
	}

	hits, err := h.store.SearchMessages(r.Context(), user.ID, query, limit)
	if err != nil {
		log.Printf("message search failed: user_id=%s err=%v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to search messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

// CopyMessage extracts the copyable text of a message: text parts only,
// joined in order, with tool and citation parts skipped.
func (h Handler) CopyMessage(w http.ResponseWriter, r *http.Request) {
	message, ok := h.readableMessage(w, r)
	if !ok {
		return
	}

	messages, err := uimsg.Decode(message.UIMessages)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "decode_error", "failed to decode message parts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": uimsg.CopyText(messages)})
}

func (h Handler) readableMessage(w http.ResponseWriter, r *http.Request) (store.Message, bool) {
	message, err := h.store.GetMessageByID(r.Context(), chi.URLParam(r, "messageID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "message not found")
		return store.Message{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read message")
		return store.Message{}, false
	}

	chat, err := h.store.GetChatByID(r.Context(), message.ChatID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read chat")
		return store.Message{}, false
	}
	if chat.IsPublic {
		return message, true
	}
	user, ok := requestUserFromContext(r.Context())
	if !ok || user.ID != message.UserID {
		writeError(w, http.StatusNotFound, "not_found", "message not found")
		return store.Message{}, false
	}
	return message, true
}

// resolveModel picks the model for a generation: the explicit request value,
// then the user's saved default, then the configured default. Premium models
// need an active subscription and disabled models are rejected outright.
func (h Handler) resolveModel(w http.ResponseWriter, r *http.Request, user store.User, requestedModelID string) (store.Model, bool) {
	var model store.Model
	var err error

	switch {
	case strings.TrimSpace(requestedModelID) != "":
		model, err = h.store.GetModelByID(r.Context(), strings.TrimSpace(requestedModelID))
	case user.ModelID != "":
		model, err = h.store.GetModelByID(r.Context(), user.ModelID)
	default:
		model, err = h.store.GetModelByModel(r.Context(), h.cfg.DefaultModel)
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "unknown_model", "model is not in the catalog")
		return store.Model{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to resolve model")
		return store.Model{}, false
	}

	if model.IsDisabled {
		writeError(w, http.StatusBadRequest, "model_disabled", "model is disabled")
		return store.Model{}, false
	}
	if model.IsPremium && !h.userIsPremium(r.Context(), user) {
		writeError(w, http.StatusForbidden, "premium_required", "model requires an active subscription")
		return store.Model{}, false
	}
	return model, true
}
